package handler

import (
	"net/http"

	"donationdesk/internal/model"
	"donationdesk/internal/service"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

type CommunicationHandler struct {
	communicationService service.CommunicationService
	access               Access
}

func NewCommunicationHandler(communicationService service.CommunicationService, access Access) *CommunicationHandler {
	return &CommunicationHandler{communicationService: communicationService, access: access}
}

func (h *CommunicationHandler) RegisterRoutes(router *gin.RouterGroup) {
	comms := router.Group("/communications")
	comms.Use(h.access.Auth.RequireAuth())
	{
		comms.GET("", h.ListCommunications)
		comms.GET("/templates", h.ListTemplates)
		comms.GET("/stats", h.CommunicationStats)

		write := h.access.Auth.RequireRole(h.access.Writers...)
		comms.POST("/send", write, h.SendCommunication)
		comms.POST("/:id/retry", write, h.RetryCommunication)
	}
}

// ListCommunications
// @Summary      Communication history
// @Tags         communications
// @Produce      json
// @Security     BearerAuth
// @Param        appeal_id  query     string  false  "Appeal ID"
// @Param        trigger    query     string  false  "APPROVAL, REJECTION or MANUAL"
// @Param        channel    query     string  false  "EMAIL, SMS or WHATSAPP"
// @Param        status     query     string  false  "PENDING, SENT or FAILED"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Items per page (default 20)"
// @Success      200        {object}  response.Response{data=[]service.CommunicationResponse,meta=pagination.Meta}
// @Router       /api/communications [get]
func (h *CommunicationHandler) ListCommunications(c *gin.Context) {
	p := pagination.Parse(c)
	rows, total, err := h.communicationService.List(c.Request.Context(), service.CommunicationQuery{
		AppealID: c.Query("appeal_id"),
		Trigger:  c.Query("trigger"),
		Channel:  c.Query("channel"),
		Status:   c.Query("status"),
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, p, rows, total)
}

// ListTemplates
// @Summary      Message templates
// @Tags         communications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.Template}
// @Router       /api/communications/templates [get]
func (h *CommunicationHandler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.communicationService.Templates()))
}

// CommunicationStats
// @Summary      Communication counts and recipients reached
// @Tags         communications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=repository.CommunicationStats}
// @Router       /api/communications/stats [get]
func (h *CommunicationHandler) CommunicationStats(c *gin.Context) {
	stats, err := h.communicationService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// SendCommunication
// @Summary      Send a message to an appeal's donors
// @Description  The message is recorded before it is handed to the broker. A failed hand-off is
// @Description  returned with status FAILED and retried by the scheduler.
// @Tags         communications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SendCommunicationRequest  true  "Message"
// @Success      201      {object}  response.Response{data=service.CommunicationResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/communications/send [post]
func (h *CommunicationHandler) SendCommunication(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var req service.SendCommunicationRequest
	if !bindJSON(c, &req) {
		return
	}

	sent, err := h.communicationService.Send(c.Request.Context(), who, req)
	if err != nil {
		respondError(c, err)
		return
	}
	if sent.Status == model.CommunicationFailed {
		c.JSON(http.StatusCreated, response.SuccessWithWarnings(http.StatusCreated, sent, "message recorded but failed to send: "+sent.LastError))
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, sent))
}

// RetryCommunication
// @Summary      Resend a failed communication
// @Tags         communications
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Communication ID"
// @Success      200  {object}  response.Response{data=service.CommunicationResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/communications/{id}/retry [post]
func (h *CommunicationHandler) RetryCommunication(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.communicationService.Retry(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
