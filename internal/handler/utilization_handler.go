package handler

import (
	"net/http"

	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

const overUtilizedWarning = "utilization exceeds the approved amount; remaining balance shown as 0"

type UtilizationHandler struct {
	utilizationService service.UtilizationService
	access             Access
}

func NewUtilizationHandler(utilizationService service.UtilizationService, access Access) *UtilizationHandler {
	return &UtilizationHandler{utilizationService: utilizationService, access: access}
}

func (h *UtilizationHandler) RegisterRoutes(router *gin.RouterGroup) {
	utilizations := router.Group("/utilizations")
	utilizations.Use(h.access.Auth.RequireAuth())
	{
		utilizations.GET("", h.ListUtilizations)
		utilizations.GET("/stats", h.UtilizationStats)
		utilizations.GET("/appeal/:appealId/balance", h.AppealBalance)
		utilizations.GET("/:id", h.GetUtilization)

		write := h.access.Auth.RequireRole(h.access.Writers...)
		utilizations.POST("", write, h.RecordUtilization)
		utilizations.PUT("/:id", write, h.UpdateUtilization)
	}
}

// ListUtilizations
// @Summary      List fund utilizations
// @Tags         utilizations
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id       query     string  false  "Appeal ID"
// @Param        payment_status  query     string  false  "pending, partial or paid"
// @Param        from            query     string  false  "Utilized on or after (YYYY-MM-DD)"
// @Param        to              query     string  false  "Utilized on or before (YYYY-MM-DD)"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Items per page (default 20)"
// @Success      200             {object}  response.Response{data=[]service.UtilizationResponse,meta=pagination.Meta}
// @Router       /api/utilizations [get]
func (h *UtilizationHandler) ListUtilizations(c *gin.Context) {
	p := pagination.Parse(c)
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, total, err := h.utilizationService.List(c.Request.Context(), service.UtilizationQuery{
		AppealID:      c.Query("appeal_id"),
		PaymentStatus: c.Query("payment_status"),
		From:          from,
		To:            to,
		Page:          p.Page,
		Limit:         p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, rows, total)
}

// UtilizationStats
// @Summary      Utilization totals
// @Tags         utilizations
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id  query     string  false  "Restrict to one appeal"
// @Success      200        {object}  response.Response{data=repository.UtilizationStats}
// @Router       /api/utilizations/stats [get]
func (h *UtilizationHandler) UtilizationStats(c *gin.Context) {
	stats, err := h.utilizationService.Stats(c.Request.Context(), c.Query("appeal_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// AppealBalance
// @Summary      Remaining balance of an appeal
// @Tags         utilizations
// @Produce      json
// @Security     BearerAuth
// @Param        appealId  path      string  true  "Appeal ID"
// @Success      200       {object}  response.Response{data=service.BalanceResponse}
// @Failure      404       {object}  response.Response
// @Router       /api/utilizations/appeal/{appealId}/balance [get]
func (h *UtilizationHandler) AppealBalance(c *gin.Context) {
	balance, err := h.utilizationService.Balance(c.Request.Context(), c.Param("appealId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, balance))
}

// GetUtilization
// @Summary      Get a utilization
// @Tags         utilizations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Utilization ID"
// @Success      200  {object}  response.Response{data=service.UtilizationResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/utilizations/{id} [get]
func (h *UtilizationHandler) GetUtilization(c *gin.Context) {
	u, err := h.utilizationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, u))
}

// RecordUtilization
// @Summary      Record spending against an approved appeal
// @Description  Over-utilization is accepted and flagged under warnings.
// @Tags         utilizations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.RecordUtilizationRequest  true  "Utilization"
// @Success      201      {object}  response.Response{data=service.UtilizationResult}
// @Failure      400      {object}  response.Response
// @Router       /api/utilizations [post]
func (h *UtilizationHandler) RecordUtilization(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.RecordUtilizationRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.utilizationService.Record(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Balance.OverUtilized {
		c.JSON(http.StatusCreated, response.SuccessWithWarnings(http.StatusCreated, result, overUtilizedWarning))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// UpdateUtilization
// @Summary      Correct a recorded utilization
// @Description  Returns the appeal balance after the change; over-utilization is flagged under warnings.
// @Tags         utilizations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                            true  "Utilization ID"
// @Param        payload  body      service.UpdateUtilizationRequest  true  "Utilization"
// @Success      200      {object}  response.Response{data=service.UtilizationResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/utilizations/{id} [put]
func (h *UtilizationHandler) UpdateUtilization(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateUtilizationRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.utilizationService.Update(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Balance.OverUtilized {
		c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, result, overUtilizedWarning))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
