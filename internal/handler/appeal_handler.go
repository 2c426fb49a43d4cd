package handler

import (
	"net/http"

	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type AppealHandler struct {
	appealService      service.AppealService
	utilizationService service.UtilizationService
	access             Access
}

func NewAppealHandler(appealService service.AppealService, utilizationService service.UtilizationService, access Access) *AppealHandler {
	return &AppealHandler{appealService: appealService, utilizationService: utilizationService, access: access}
}

// RegisterRoutes mounts appeal and approval endpoints. Who may create, edit, submit or
// decide is checked by the workflow engine, so every authenticated user reaches these.
func (h *AppealHandler) RegisterRoutes(router *gin.RouterGroup) {
	appeals := router.Group("/appeals")
	appeals.Use(h.access.Auth.RequireAuth())
	{
		appeals.GET("", h.ListAppeals)
		appeals.GET("/:id", h.GetAppeal)
		appeals.POST("", h.CreateAppeal)
		appeals.PUT("/:id", h.UpdateAppeal)
		appeals.DELETE("/:id", h.DeleteAppeal)
		appeals.POST("/:id/submit", h.SubmitAppeal)
		appeals.POST("/:id/documents", h.AddDocument)
		appeals.GET("/:id/balance", h.GetBalance)
	}

	approvals := router.Group("/approvals")
	approvals.Use(h.access.Auth.RequireAuth())
	{
		approvals.GET("/pending", h.PendingApprovals)
		approvals.GET("/history", h.ApprovalHistory)
		approvals.GET("/stats", h.ApprovalStats)
		approvals.POST("/:id/approve", h.ApproveAppeal)
		approvals.POST("/:id/reject", h.RejectAppeal)
	}
}

// ListAppeals
// @Summary      List appeals
// @Description  Lists appeals newest first. status takes a comma-separated list.
// @Tags         appeals
// @Produce      json
// @Security     BearerAuth
// @Param        status      query     string  false  "DRAFT, SUBMITTED, APPROVED, REJECTED"
// @Param        search      query     string  false  "Title, description or beneficiary category contains"
// @Param        created_by  query     string  false  "Creator user id"
// @Param        from        query     string  false  "Created on or after (YYYY-MM-DD)"
// @Param        to          query     string  false  "Created on or before (YYYY-MM-DD)"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=[]service.AppealResponse,meta=pagination.Meta}
// @Failure      400  {object}  response.Response
// @Router       /api/appeals [get]
func (h *AppealHandler) ListAppeals(c *gin.Context) {
	p := pagination.Parse(c)
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	appeals, total, err := h.appealService.List(c.Request.Context(), service.AppealQuery{
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		CreatedBy: c.Query("created_by"),
		From:      from,
		To:        to,
		Page:      p.Page,
		Limit:     p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, appeals, total)
}

// GetAppeal
// @Summary      Get an appeal
// @Tags         appeals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Appeal ID"
// @Success      200  {object}  response.Response{data=service.AppealResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/appeals/{id} [get]
func (h *AppealHandler) GetAppeal(c *gin.Context) {
	appeal, err := h.appealService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, appeal))
}

// CreateAppeal
// @Summary      Create a draft appeal
// @Tags         appeals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.AppealRequest  true  "Appeal"
// @Success      201      {object}  response.Response{data=service.AppealResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/appeals [post]
func (h *AppealHandler) CreateAppeal(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.AppealRequest
	if !bindJSON(c, &req) {
		return
	}

	appeal, err := h.appealService.Create(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, appeal))
}

// UpdateAppeal
// @Summary      Edit a draft appeal
// @Tags         appeals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Appeal ID"
// @Param        payload  body      service.AppealRequest  true  "Appeal"
// @Success      200      {object}  response.Response{data=service.AppealResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/appeals/{id} [put]
func (h *AppealHandler) UpdateAppeal(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.AppealRequest
	if !bindJSON(c, &req) {
		return
	}

	appeal, err := h.appealService.Update(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, appeal))
}

// DeleteAppeal
// @Summary      Delete a draft appeal
// @Tags         appeals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Appeal ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/appeals/{id} [delete]
func (h *AppealHandler) DeleteAppeal(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	if err := h.appealService.Delete(c.Request.Context(), who, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Appeal deleted"}))
}

// SubmitAppeal
// @Summary      Submit a draft appeal for approval
// @Tags         appeals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Appeal ID"
// @Success      200  {object}  response.Response{data=service.AppealResponse}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/appeals/{id}/submit [post]
func (h *AppealHandler) SubmitAppeal(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	appeal, err := h.appealService.Submit(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, appeal))
}

// AddDocument
// @Summary      Attach document metadata to a draft appeal
// @Tags         appeals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                   true  "Appeal ID"
// @Param        payload  body      service.DocumentRequest  true  "Document"
// @Success      201      {object}  response.Response{data=service.AppealResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/appeals/{id}/documents [post]
func (h *AppealHandler) AddDocument(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.DocumentRequest
	if !bindJSON(c, &req) {
		return
	}

	appeal, err := h.appealService.AddDocument(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, appeal))
}

// GetBalance
// @Summary      Remaining balance of an appeal
// @Tags         appeals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Appeal ID"
// @Success      200  {object}  response.Response{data=service.BalanceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/appeals/{id}/balance [get]
func (h *AppealHandler) GetBalance(c *gin.Context) {
	balance, err := h.utilizationService.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, balance))
}

// PendingApprovals
// @Summary      Appeals waiting for a decision
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.AppealResponse,meta=pagination.Meta}
// @Router       /api/approvals/pending [get]
func (h *AppealHandler) PendingApprovals(c *gin.Context) {
	p := pagination.Parse(c)
	appeals, total, err := h.appealService.PendingApprovals(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, appeals, total)
}

// ApprovalHistory
// @Summary      Decided appeals, most recent decision first
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.AppealResponse,meta=pagination.Meta}
// @Router       /api/approvals/history [get]
func (h *AppealHandler) ApprovalHistory(c *gin.Context) {
	p := pagination.Parse(c)
	appeals, total, err := h.appealService.ApprovalHistory(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, appeals, total)
}

// ApprovalStats
// @Summary      Appeal counts by workflow state
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.ApprovalStats}
// @Router       /api/approvals/stats [get]
func (h *AppealHandler) ApprovalStats(c *gin.Context) {
	stats, err := h.appealService.ApprovalStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// ApproveAppeal
// @Summary      Approve a submitted appeal
// @Description  Commits the approval and notifies the appeal's donors. A failed notification is
// @Description  reported under warnings; the approval stands.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Appeal ID"
// @Param        payload  body      service.ApproveRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [post]
func (h *AppealHandler) ApproveAppeal(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.ApproveRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.appealService.Approve(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	decision(c, result)
}

// RejectAppeal
// @Summary      Reject a submitted appeal
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Appeal ID"
// @Param        payload  body      service.RejectRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/reject [post]
func (h *AppealHandler) RejectAppeal(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.RejectRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.appealService.Reject(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	decision(c, result)
}

func decision(c *gin.Context, result *service.TransitionResult) {
	if result.Warning != nil {
		c.JSON(http.StatusOK, response.SuccessWithWarnings(http.StatusOK, result, result.Warning.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
