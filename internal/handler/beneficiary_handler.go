package handler

import (
	"net/http"

	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type BeneficiaryHandler struct {
	beneficiaryService service.BeneficiaryService
	access             Access
}

func NewBeneficiaryHandler(beneficiaryService service.BeneficiaryService, access Access) *BeneficiaryHandler {
	return &BeneficiaryHandler{beneficiaryService: beneficiaryService, access: access}
}

func (h *BeneficiaryHandler) RegisterRoutes(router *gin.RouterGroup) {
	beneficiaries := router.Group("/beneficiaries")
	beneficiaries.Use(h.access.Auth.RequireAuth())
	{
		beneficiaries.GET("", h.ListBeneficiaries)
		beneficiaries.GET("/stats", h.BeneficiaryStats)
		beneficiaries.GET("/:id", h.GetBeneficiary)

		write := h.access.Auth.RequireRole(h.access.Writers...)
		beneficiaries.POST("", write, h.AddBeneficiary)
		beneficiaries.PUT("/:id", write, h.UpdateBeneficiary)
	}
}

// ListBeneficiaries
// @Summary      List beneficiaries
// @Tags         beneficiaries
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id  query     string  false  "Appeal ID"
// @Param        category   query     string  false  "Category"
// @Param        search     query     string  false  "Name or location contains"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  response.Response{data=[]service.BeneficiaryResponse,meta=pagination.Meta}
// @Router       /api/beneficiaries [get]
func (h *BeneficiaryHandler) ListBeneficiaries(c *gin.Context) {
	p := pagination.Parse(c)
	rows, total, err := h.beneficiaryService.List(c.Request.Context(), service.BeneficiaryQuery{
		AppealID: c.Query("appeal_id"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, rows, total)
}

// BeneficiaryStats
// @Summary      Beneficiary counts and average feedback rating
// @Tags         beneficiaries
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id  query     string  false  "Restrict to one appeal"
// @Success      200        {object}  response.Response{data=repository.BeneficiaryStats}
// @Router       /api/beneficiaries/stats [get]
func (h *BeneficiaryHandler) BeneficiaryStats(c *gin.Context) {
	stats, err := h.beneficiaryService.Stats(c.Request.Context(), c.Query("appeal_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// GetBeneficiary
// @Summary      Get a beneficiary
// @Tags         beneficiaries
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Beneficiary ID"
// @Success      200  {object}  response.Response{data=service.BeneficiaryResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/beneficiaries/{id} [get]
func (h *BeneficiaryHandler) GetBeneficiary(c *gin.Context) {
	b, err := h.beneficiaryService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, b))
}

// AddBeneficiary
// @Summary      Register a beneficiary of an approved appeal
// @Tags         beneficiaries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.BeneficiaryRequest  true  "Beneficiary"
// @Success      201      {object}  response.Response{data=service.BeneficiaryResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/beneficiaries [post]
func (h *BeneficiaryHandler) AddBeneficiary(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.BeneficiaryRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := h.beneficiaryService.Add(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, b))
}

// UpdateBeneficiary
// @Summary      Update a beneficiary and their feedback
// @Tags         beneficiaries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Beneficiary ID"
// @Param        payload  body      service.BeneficiaryRequest  true  "Beneficiary"
// @Success      200      {object}  response.Response{data=service.BeneficiaryResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/beneficiaries/{id} [put]
func (h *BeneficiaryHandler) UpdateBeneficiary(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.BeneficiaryRequest
	if !bindJSON(c, &req) {
		return
	}

	b, err := h.beneficiaryService.Update(c.Request.Context(), who, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, b))
}
