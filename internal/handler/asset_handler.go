package handler

import (
	"net/http"

	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type AssetHandler struct {
	assetService service.AssetService
	access       Access
}

func NewAssetHandler(assetService service.AssetService, access Access) *AssetHandler {
	return &AssetHandler{assetService: assetService, access: access}
}

func (h *AssetHandler) RegisterRoutes(router *gin.RouterGroup) {
	assets := router.Group("/assets")
	assets.Use(h.access.Auth.RequireAuth())
	{
		assets.GET("", h.ListAssetLinks)
		assets.GET("/stats", h.AssetStats)
		assets.GET("/:id", h.GetAssetLink)

		write := h.access.Auth.RequireRole(h.access.Writers...)
		assets.POST("/link", write, h.LinkAsset)
		assets.DELETE("/:id", write, h.UnlinkAsset)
	}
}

// ListAssetLinks
// @Summary      List asset references
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        search          query     string  false  "Asset number, asset name or utilization description contains"
// @Param        owner           query     string  false  "itc or mission"
// @Param        utilization_id  query     string  false  "Utilization ID"
// @Param        page            query     int     false  "Page number (default 1)"
// @Param        limit           query     int     false  "Items per page (default 20)"
// @Success      200             {object}  response.Response{data=[]service.AssetLinkResponse,meta=pagination.Meta}
// @Router       /api/assets [get]
func (h *AssetHandler) ListAssetLinks(c *gin.Context) {
	p := pagination.Parse(c)
	rows, total, err := h.assetService.List(c.Request.Context(), service.AssetLinkQuery{
		UtilizationID: c.Query("utilization_id"),
		Owner:         c.Query("owner"),
		Search:        c.Query("search"),
		Page:          p.Page,
		Limit:         p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, rows, total)
}

// AssetStats
// @Summary      Asset reference counts
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=repository.AssetLinkStats}
// @Router       /api/assets/stats [get]
func (h *AssetHandler) AssetStats(c *gin.Context) {
	stats, err := h.assetService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// GetAssetLink
// @Summary      Get an asset reference
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Asset link ID"
// @Success      200  {object}  response.Response{data=service.AssetLinkResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/assets/{id} [get]
func (h *AssetHandler) GetAssetLink(c *gin.Context) {
	link, err := h.assetService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, link))
}

// LinkAsset
// @Summary      Link an external asset to a utilization
// @Description  Only references the asset; its lifecycle is managed in the asset register.
// @Tags         assets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.LinkAssetRequest  true  "Asset reference"
// @Success      201      {object}  response.Response{data=service.AssetLinkResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/assets/link [post]
func (h *AssetHandler) LinkAsset(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.LinkAssetRequest
	if !bindJSON(c, &req) {
		return
	}

	link, err := h.assetService.Link(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, link))
}

// UnlinkAsset
// @Summary      Remove an asset reference
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Asset link ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/assets/{id} [delete]
func (h *AssetHandler) UnlinkAsset(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	if err := h.assetService.Unlink(c.Request.Context(), who, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Asset unlinked"}))
}
