package handler

import (
	"net/http"

	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type DonationHandler struct {
	donationService service.DonationService
	access          Access
}

func NewDonationHandler(donationService service.DonationService, access Access) *DonationHandler {
	return &DonationHandler{donationService: donationService, access: access}
}

func (h *DonationHandler) RegisterRoutes(router *gin.RouterGroup) {
	donations := router.Group("/donations")
	donations.Use(h.access.Auth.RequireAuth())
	{
		donations.GET("", h.ListDonations)
		donations.GET("/stats", h.DonationStats)
		donations.GET("/:id", h.GetDonation)

		write := h.access.Auth.RequireRole(h.access.Writers...)
		donations.POST("", write, h.RecordDonation)
		donations.PUT("/:id", write, h.UpdateDonation)
		donations.POST("/:id/confirm", write, h.ConfirmDonation)
		donations.POST("/:id/fail", write, h.FailDonation)
	}
}

// ListDonations
// @Summary      List donations
// @Tags         donations
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id  query     string  false  "Appeal ID"
// @Param        status     query     string  false  "PENDING, CONFIRMED or FAILED"
// @Param        mode       query     string  false  "cash, cheque, bank_transfer, upi, online"
// @Param        search     query     string  false  "Donor name, email or receipt number"
// @Param        from       query     string  false  "Received on or after (YYYY-MM-DD)"
// @Param        to         query     string  false  "Received on or before (YYYY-MM-DD)"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  response.Response{data=[]service.DonationResponse,meta=pagination.Meta}
// @Failure      400        {object}  response.Response
// @Router       /api/donations [get]
func (h *DonationHandler) ListDonations(c *gin.Context) {
	p := pagination.Parse(c)
	from, to, err := dateRange(c)
	if err != nil {
		respondError(c, err)
		return
	}

	donations, total, err := h.donationService.List(c.Request.Context(), service.DonationQuery{
		AppealID: c.Query("appeal_id"),
		Status:   c.Query("status"),
		Mode:     c.Query("mode"),
		Search:   c.Query("search"),
		From:     from,
		To:       to,
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, donations, total)
}

// DonationStats
// @Summary      Donation totals
// @Tags         donations
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id  query     string  false  "Restrict to one appeal"
// @Success      200        {object}  response.Response{data=repository.DonationStats}
// @Router       /api/donations/stats [get]
func (h *DonationHandler) DonationStats(c *gin.Context) {
	stats, err := h.donationService.Stats(c.Request.Context(), c.Query("appeal_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// GetDonation
// @Summary      Get a donation
// @Tags         donations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Donation ID"
// @Success      200  {object}  response.Response{data=service.DonationResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/donations/{id} [get]
func (h *DonationHandler) GetDonation(c *gin.Context) {
	donation, err := h.donationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, donation))
}

// RecordDonation
// @Summary      Record a donation
// @Description  Stores a PENDING donation against a submitted or approved appeal and issues a receipt number.
// @Tags         donations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.RecordDonationRequest  true  "Donation"
// @Success      201      {object}  response.Response{data=service.DonationResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/donations [post]
func (h *DonationHandler) RecordDonation(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.RecordDonationRequest
	if !bindJSON(c, &req) {
		return
	}

	donation, err := h.donationService.Record(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, donation))
}

// ConfirmDonation
// @Summary      Mark a pending donation as received
// @Tags         donations
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Donation ID"
// @Success      200  {object}  response.Response{data=service.DonationResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/donations/{id}/confirm [post]
func (h *DonationHandler) ConfirmDonation(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	donation, err := h.donationService.Confirm(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, donation))
}

// FailDonation
// @Summary      Mark a pending donation as failed
// @Tags         donations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Donation ID"
// @Param        payload  body      service.FailDonationRequest  true  "Reason"
// @Success      200      {object}  response.Response{data=service.DonationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/donations/{id}/fail [post]
func (h *DonationHandler) FailDonation(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.FailDonationRequest
	if !bindJSON(c, &req) {
		return
	}

	donation, err := h.donationService.Fail(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, donation))
}

// UpdateDonation
// @Summary      Correct a pending donation
// @Description  Confirmed and failed donations are final and answer 409.
// @Tags         donations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Donation ID"
// @Param        payload  body      service.UpdateDonationRequest  true  "Donation"
// @Success      200      {object}  response.Response{data=service.DonationResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/donations/{id} [put]
func (h *DonationHandler) UpdateDonation(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.UpdateDonationRequest
	if !bindJSON(c, &req) {
		return
	}

	donation, err := h.donationService.Update(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, donation))
}
