package service

import (
	"context"
	"encoding/json"
	"strings"

	"donationdesk/internal/repository"
)

type AuditLogResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Details    json.RawMessage `json:"details,omitempty" swaggertype:"object"`
	CreatedAt  string          `json:"created_at"`
}

type AuditQuery struct {
	EntityID string
	Action   string
	UserID   string
	Page     int
	Limit    int
}

type AuditService interface {
	List(ctx context.Context, query AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	audits repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(audits repository.AuditRepository) AuditService {
	return &auditService{audits: audits}
}

// List returns audit rows newest first, with the acting user resolved.
func (s *auditService) List(ctx context.Context, query AuditQuery) ([]AuditLogResponse, int64, error) {
	userID, err := parseOptionalID("user_id", query.UserID)
	if err != nil {
		return nil, 0, err
	}

	logs, total, err := s.audits.List(ctx, repository.AuditFilter{
		EntityID: strings.TrimSpace(query.EntityID),
		Action:   strings.ToUpper(strings.TrimSpace(query.Action)),
		UserID:   userID,
		Page:     query.Page,
		Limit:    query.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		id := ""
		if l.User != nil {
			name = l.User.Name
		}
		if l.UserID != nil {
			id = l.UserID.String()
		}
		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     id,
			UserName:   name,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    json.RawMessage(l.Details),
			CreatedAt:  l.CreatedAt.Format(timeLayout),
		})
	}

	return res, total, nil
}
