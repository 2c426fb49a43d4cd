package handler

import (
	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	access       Access
}

func NewAuditHandler(auditService service.AuditService, access Access) *AuditHandler {
	return &AuditHandler{auditService: auditService, access: access}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(h.access.Auth.RequireRole(h.access.Admins...))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated audit rows with the acting user resolved
// @Summary      Get audit logs
// @Description  Every workflow transition and record change, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entity_id  query     string  false  "Entity ID"
// @Param        action     query     string  false  "Action, e.g. APPROVE_APPEAL"
// @Param        user_id    query     string  false  "Acting user ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=[]service.AuditLogResponse,meta=pagination.Meta}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	logs, total, err := h.auditService.List(c.Request.Context(), service.AuditQuery{
		EntityID: c.Query("entity_id"),
		Action:   c.Query("action"),
		UserID:   c.Query("user_id"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, logs, total)
}
