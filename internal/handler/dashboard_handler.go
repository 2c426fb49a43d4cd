package handler

import (
	"net/http"
	"strconv"

	"donationdesk/internal/model"
	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the landing page widgets.
type DashboardHandler struct {
	reportService service.ReportService
	appealService service.AppealService
	access        Access
}

func NewDashboardHandler(reportService service.ReportService, appealService service.AppealService, access Access) *DashboardHandler {
	return &DashboardHandler{reportService: reportService, appealService: appealService, access: access}
}

func (h *DashboardHandler) RegisterRoutes(router *gin.RouterGroup) {
	dashboard := router.Group("/dashboard")
	dashboard.Use(h.access.Auth.RequireAuth())
	{
		dashboard.GET("/stats", h.Stats)
		dashboard.GET("/donation-trend", h.DonationTrend)
		dashboard.GET("/appeal-status", h.AppealStatus)
		dashboard.GET("/recent-activity", h.RecentActivity)
		dashboard.GET("/pending-approvals", h.PendingApprovals)
	}
}

// Stats
// @Summary      All-time fund totals and appeal counts
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=model.DashboardSummary}
// @Router       /api/dashboard/stats [get]
func (h *DashboardHandler) Stats(c *gin.Context) {
	summary, err := h.reportService.Summary(c.Request.Context(), model.ReportRange{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// DonationTrend
// @Summary      Monthly donations against utilization
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Param        period  query     string  false  "Months back, e.g. 6months (default), up to 24months"
// @Success      200     {object}  response.Response{data=[]model.TrendPoint}
// @Failure      400     {object}  response.Response
// @Router       /api/dashboard/donation-trend [get]
func (h *DashboardHandler) DonationTrend(c *gin.Context) {
	points, err := h.reportService.DonationTrend(c.Request.Context(), c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, points))
}

// AppealStatus
// @Summary      Appeal count per status
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.StatusCount}
// @Router       /api/dashboard/appeal-status [get]
func (h *DashboardHandler) AppealStatus(c *gin.Context) {
	counts, err := h.reportService.AppealStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, counts))
}

// RecentActivity
// @Summary      Latest changes across the system
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Param        limit  query     int  false  "Entries to return (default 5, max 50)"
// @Success      200    {object}  response.Response{data=[]model.Activity}
// @Failure      400    {object}  response.Response
// @Router       /api/dashboard/recent-activity [get]
func (h *DashboardHandler) RecentActivity(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be a number")
			return
		}
		limit = n
	}
	activity, err := h.reportService.RecentActivity(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, activity))
}

// PendingApprovals
// @Summary      Appeals waiting for a decision
// @Tags         dashboard
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.AppealResponse,meta=pagination.Meta}
// @Router       /api/dashboard/pending-approvals [get]
func (h *DashboardHandler) PendingApprovals(c *gin.Context) {
	p := pagination.Parse(c)
	appeals, total, err := h.appealService.PendingApprovals(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, appeals, total)
}
