package handler

import (
	"net/http"

	"donationdesk/internal/service"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService service.ReportService
	assetService  service.AssetService
	access        Access
}

func NewReportHandler(reportService service.ReportService, assetService service.AssetService, access Access) *ReportHandler {
	return &ReportHandler{reportService: reportService, assetService: assetService, access: access}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	reports.Use(h.access.Auth.RequireAuth())
	{
		reports.GET("/summary", h.Summary)
		reports.GET("/appeal-wise", h.AppealWise)
		reports.GET("/pending-balance", h.PendingBalance)
		reports.GET("/donation-utilization", h.DonationUtilization)
		reports.GET("/beneficiary-impact", h.BeneficiaryImpact)
		reports.GET("/asset-utilization", h.AssetUtilization)
	}
}

// Summary
// @Summary      Dashboard summary
// @Description  Fund totals for appeals, donations and utilizations inside the range, with appeal counts.
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "Start date (YYYY-MM-DD or RFC3339)"
// @Param        to    query     string  false  "End date (YYYY-MM-DD or RFC3339)"
// @Success      200   {object}  response.Response{data=model.DashboardSummary}
// @Failure      400   {object}  response.Response
// @Router       /api/reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	rng, err := reportRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := h.reportService.Summary(c.Request.Context(), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// AppealWise
// @Summary      Appeal-wise fund report
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from    query     string  false  "Created on or after"
// @Param        to      query     string  false  "Created on or before"
// @Param        status  query     string  false  "Comma-separated statuses"
// @Success      200     {object}  response.Response{data=[]model.AppealReportRow}
// @Failure      400     {object}  response.Response
// @Router       /api/reports/appeal-wise [get]
func (h *ReportHandler) AppealWise(c *gin.Context) {
	rng, err := reportRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.reportService.AppealWise(c.Request.Context(), rng, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// PendingBalance
// @Summary      Approved appeals with money left to utilize
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "Created on or after"
// @Param        to    query     string  false  "Created on or before"
// @Success      200   {object}  response.Response{data=[]model.AppealReportRow}
// @Router       /api/reports/pending-balance [get]
func (h *ReportHandler) PendingBalance(c *gin.Context) {
	rng, err := reportRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.reportService.PendingBalance(c.Request.Context(), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}

// DonationUtilization
// @Summary      Donations against utilization by month
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "Received or utilized on or after"
// @Param        to    query     string  false  "Received or utilized on or before"
// @Success      200   {object}  response.Response{data=model.DonationUtilizationReport}
// @Failure      400   {object}  response.Response
// @Router       /api/reports/donation-utilization [get]
func (h *ReportHandler) DonationUtilization(c *gin.Context) {
	rng, err := reportRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := h.reportService.DonationUtilization(c.Request.Context(), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// BeneficiaryImpact
// @Summary      Beneficiary reach, feedback and impact stories
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "Registered on or after"
// @Param        to    query     string  false  "Registered on or before"
// @Success      200   {object}  response.Response{data=model.BeneficiaryImpactReport}
// @Failure      400   {object}  response.Response
// @Router       /api/reports/beneficiary-impact [get]
func (h *ReportHandler) BeneficiaryImpact(c *gin.Context) {
	rng, err := reportRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := h.reportService.BeneficiaryImpact(c.Request.Context(), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

// AssetUtilization
// @Summary      Assets linked to fund utilization
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        from  query     string  false  "Linked on or after"
// @Param        to    query     string  false  "Linked on or before"
// @Success      200   {object}  response.Response{data=[]model.AssetReportRow}
// @Failure      400   {object}  response.Response
// @Router       /api/reports/asset-utilization [get]
func (h *ReportHandler) AssetUtilization(c *gin.Context) {
	rng, err := reportRange(c)
	if err != nil {
		respondError(c, err)
		return
	}
	rows, err := h.assetService.Report(c.Request.Context(), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rows))
}
