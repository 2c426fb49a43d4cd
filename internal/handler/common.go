package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"donationdesk/internal/middleware"
	"donationdesk/internal/model"
	"donationdesk/internal/service"
	"donationdesk/internal/workflow"
	"donationdesk/pkg/pagination"
	"donationdesk/pkg/response"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// Access carries the auth middleware and the role sets that gate non-workflow writes.
// Appeal transitions are authorized by the workflow policy instead.
type Access struct {
	Auth *middleware.Auth
	// Writers may record donations, utilizations and beneficiaries and send communications.
	Writers []string
	// Admins manage users and read the audit trail.
	Admins []string
}

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, response.ErrorWithDetails(http.StatusBadRequest, verr.Error(), verr.Fields))
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
	case errors.Is(err, workflow.ErrForbidden):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
	case errors.Is(err, workflow.ErrInvalidTransition):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	default:
		slog.ErrorContext(c.Request.Context(), "request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, msg))
}

// bindJSON decodes the body into req and answers 400 on malformed input.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// actor returns the authenticated caller; routes without auth never call it.
func actor(c *gin.Context) (workflow.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User not found in context"))
	}
	return a, ok
}

func paged(c *gin.Context, p pagination.Params, data any, total int64) {
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, data, p.Meta(total)))
}

// queryDate parses an optional RFC3339 or YYYY-MM-DD query parameter. A bare date
// used as an upper bound covers the whole day.
func queryDate(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, workflow.NewValidationError(key, "must be a date (YYYY-MM-DD) or RFC3339 timestamp")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// dateRange reads from and to.
func dateRange(c *gin.Context) (from, to *time.Time, err error) {
	if from, err = queryDate(c, "from", false); err != nil {
		return nil, nil, err
	}
	if to, err = queryDate(c, "to", true); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, workflow.NewValidationError("to", "must not be before from")
	}
	return from, to, nil
}

func reportRange(c *gin.Context) (model.ReportRange, error) {
	from, to, err := dateRange(c)
	if err != nil {
		return model.ReportRange{}, err
	}
	var rng model.ReportRange
	if from != nil {
		rng.From = *from
	}
	if to != nil {
		rng.To = *to
	}
	return rng, nil
}
