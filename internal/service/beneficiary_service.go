package service

import (
	"context"
	"fmt"
	"strings"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
)

type BeneficiaryRequest struct {
	AppealID       string `json:"appeal_id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Location       string `json:"location"`
	Category       string `json:"category"`
	ImpactReceived string `json:"impact_received"`
	FeedbackRating int    `json:"feedback_rating"`
	FeedbackText   string `json:"feedback_text"`
}

type BeneficiaryQuery struct {
	AppealID string
	Category string
	Search   string
	Page     int
	Limit    int
}

type BeneficiaryResponse struct {
	ID             string `json:"id"`
	AppealID       string `json:"appeal_id"`
	AppealTitle    string `json:"appeal_title,omitempty"`
	Name           string `json:"name"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Location       string `json:"location,omitempty"`
	Category       string `json:"category"`
	ImpactReceived string `json:"impact_received,omitempty"`
	FeedbackRating int    `json:"feedback_rating"`
	FeedbackText   string `json:"feedback_text,omitempty"`
	RegisteredBy   string `json:"registered_by"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type BeneficiaryService interface {
	Add(ctx context.Context, actor workflow.Actor, req BeneficiaryRequest) (*BeneficiaryResponse, error)
	Update(ctx context.Context, actor workflow.Actor, id string, req BeneficiaryRequest) (*BeneficiaryResponse, error)
	Get(ctx context.Context, id string) (*BeneficiaryResponse, error)
	List(ctx context.Context, query BeneficiaryQuery) ([]BeneficiaryResponse, int64, error)
	Stats(ctx context.Context, appealID string) (*repository.BeneficiaryStats, error)
}

type beneficiaryService struct {
	beneficiaries repository.BeneficiaryRepository
	appeals       repository.AppealRepository
	audits        repository.AuditRepository
	txManager     repository.TransactionManager
}

func NewBeneficiaryService(
	beneficiaries repository.BeneficiaryRepository,
	appeals repository.AppealRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
) BeneficiaryService {
	return &beneficiaryService{
		beneficiaries: beneficiaries,
		appeals:       appeals,
		audits:        audits,
		txManager:     txManager,
	}
}

func (s *beneficiaryService) Add(ctx context.Context, actor workflow.Actor, req BeneficiaryRequest) (*BeneficiaryResponse, error) {
	appealID, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	b := model.Beneficiary{AppealID: appealID, RegisteredBy: actor.ID}
	applyBeneficiary(&b, req)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.beneficiaries.Create(txCtx, &b); err != nil {
			return fmt.Errorf("failed to add beneficiary: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionAddBeneficiary, b.ID.String(), b.Name, map[string]any{
			"appeal_id": b.AppealID.String(),
			"category":  b.Category,
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, b.ID.String())
}

func (s *beneficiaryService) Update(ctx context.Context, actor workflow.Actor, id string, req BeneficiaryRequest) (*BeneficiaryResponse, error) {
	beneficiaryID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	b, err := s.beneficiaries.FindByID(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.AppealID) == "" {
		req.AppealID = b.AppealID.String()
	}
	appealID, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	b.AppealID = appealID
	b.Appeal = nil
	applyBeneficiary(b, req)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.beneficiaries.Update(txCtx, b); err != nil {
			return fmt.Errorf("failed to update beneficiary: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUpdateBeneficiary, b.ID.String(), b.Name, map[string]any{
			"feedback_rating": b.FeedbackRating,
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, b.ID.String())
}

func (s *beneficiaryService) Get(ctx context.Context, id string) (*BeneficiaryResponse, error) {
	beneficiaryID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	b, err := s.beneficiaries.FindByID(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	res := toBeneficiaryResponse(*b)
	return &res, nil
}

func (s *beneficiaryService) List(ctx context.Context, query BeneficiaryQuery) ([]BeneficiaryResponse, int64, error) {
	appealID, err := parseOptionalID("appeal_id", query.AppealID)
	if err != nil {
		return nil, 0, err
	}

	rows, total, err := s.beneficiaries.List(ctx, repository.BeneficiaryFilter{
		AppealID: appealID,
		Category: strings.TrimSpace(query.Category),
		Search:   query.Search,
		Page:     query.Page,
		Limit:    query.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list beneficiaries: %w", err)
	}

	res := make([]BeneficiaryResponse, 0, len(rows))
	for _, b := range rows {
		res = append(res, toBeneficiaryResponse(b))
	}
	return res, total, nil
}

func (s *beneficiaryService) Stats(ctx context.Context, appealID string) (*repository.BeneficiaryStats, error) {
	id, err := parseOptionalID("appeal_id", appealID)
	if err != nil {
		return nil, err
	}
	stats, err := s.beneficiaries.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// validate checks the request fields and that the appeal exists and was approved.
func (s *beneficiaryService) validate(ctx context.Context, req BeneficiaryRequest) (uuid.UUID, error) {
	v := &workflow.ValidationError{}
	id, perr := parseID("appeal_id", req.AppealID)
	if perr != nil {
		v.Add("appeal_id", "must be a valid id")
	}
	if strings.TrimSpace(req.Name) == "" {
		v.Add("name", "is required")
	}
	if strings.TrimSpace(req.Category) == "" {
		v.Add("category", "is required")
	}
	if req.FeedbackRating < 0 || req.FeedbackRating > 5 {
		v.Add("feedback_rating", "must be between 1 and 5, or 0 for no feedback")
	}
	if err := v.OrNil(); err != nil {
		return id, err
	}

	if _, err := requireStatus(ctx, s.appeals.FindByID, "appeal_id", id, workflow.Approved); err != nil {
		return id, err
	}
	return id, nil
}

func applyBeneficiary(b *model.Beneficiary, req BeneficiaryRequest) {
	b.Name = strings.TrimSpace(req.Name)
	b.Phone = strings.TrimSpace(req.Phone)
	b.Email = strings.ToLower(strings.TrimSpace(req.Email))
	b.Location = strings.TrimSpace(req.Location)
	b.Category = strings.TrimSpace(req.Category)
	b.ImpactReceived = strings.TrimSpace(req.ImpactReceived)
	b.FeedbackRating = req.FeedbackRating
	b.FeedbackText = strings.TrimSpace(req.FeedbackText)
}

func toBeneficiaryResponse(b model.Beneficiary) BeneficiaryResponse {
	res := BeneficiaryResponse{
		ID:             b.ID.String(),
		AppealID:       b.AppealID.String(),
		Name:           b.Name,
		Phone:          b.Phone,
		Email:          b.Email,
		Location:       b.Location,
		Category:       b.Category,
		ImpactReceived: b.ImpactReceived,
		FeedbackRating: b.FeedbackRating,
		FeedbackText:   b.FeedbackText,
		RegisteredBy:   b.RegisteredBy.String(),
		CreatedAt:      b.CreatedAt.Format(timeLayout),
		UpdatedAt:      b.UpdatedAt.Format(timeLayout),
	}
	if b.Appeal != nil {
		res.AppealTitle = b.Appeal.Title
	}
	return res
}
