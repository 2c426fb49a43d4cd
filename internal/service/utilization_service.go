package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/shopspring/decimal"
)

var paymentStatuses = []string{model.PaymentPending, model.PaymentPartial, model.PaymentPaid}

type RecordUtilizationRequest struct {
	AppealID        string          `json:"appeal_id"`
	UtilizationDate *time.Time      `json:"utilization_date"`
	Description     string          `json:"description"`
	AmountUtilized  decimal.Decimal `json:"amount_utilized" swaggertype:"number"`
	VendorName      string          `json:"vendor_name"`
	VendorDetails   string          `json:"vendor_details"`
	InvoiceNumber   string          `json:"invoice_number"`
	PONumber        string          `json:"po_number"`
	PaymentStatus   string          `json:"payment_status"`
}

// UpdateUtilizationRequest corrects a recorded utilization. The appeal cannot change.
type UpdateUtilizationRequest struct {
	UtilizationDate *time.Time      `json:"utilization_date"`
	Description     string          `json:"description"`
	AmountUtilized  decimal.Decimal `json:"amount_utilized" swaggertype:"number"`
	VendorName      string          `json:"vendor_name"`
	VendorDetails   string          `json:"vendor_details"`
	InvoiceNumber   string          `json:"invoice_number"`
	PONumber        string          `json:"po_number"`
	PaymentStatus   string          `json:"payment_status"`
}

type UtilizationQuery struct {
	AppealID      string
	PaymentStatus string
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int
}

type UtilizationResponse struct {
	ID              string          `json:"id"`
	AppealID        string          `json:"appeal_id"`
	AppealTitle     string          `json:"appeal_title,omitempty"`
	UtilizationDate string          `json:"utilization_date"`
	Description     string          `json:"description"`
	AmountUtilized  decimal.Decimal `json:"amount_utilized" swaggertype:"number"`
	VendorName      string          `json:"vendor_name,omitempty"`
	VendorDetails   string          `json:"vendor_details,omitempty"`
	InvoiceNumber   string          `json:"invoice_number,omitempty"`
	PONumber        string          `json:"po_number,omitempty"`
	PaymentStatus   string          `json:"payment_status"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       string          `json:"created_at"`
}

// UtilizationResult returns the stored utilization with the appeal balance after it.
type UtilizationResult struct {
	Utilization UtilizationResponse `json:"utilization"`
	Balance     workflow.Balance    `json:"balance"`
}

type BalanceResponse struct {
	AppealID string `json:"appeal_id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	workflow.Balance
}

type UtilizationService interface {
	Record(ctx context.Context, actor workflow.Actor, req RecordUtilizationRequest) (*UtilizationResult, error)
	Update(ctx context.Context, actor workflow.Actor, id string, req UpdateUtilizationRequest) (*UtilizationResult, error)
	Get(ctx context.Context, id string) (*UtilizationResponse, error)
	List(ctx context.Context, query UtilizationQuery) ([]UtilizationResponse, int64, error)
	Stats(ctx context.Context, appealID string) (*repository.UtilizationStats, error)
	Balance(ctx context.Context, appealID string) (*BalanceResponse, error)
}

type utilizationService struct {
	utilizations repository.UtilizationRepository
	appeals      repository.AppealRepository
	audits       repository.AuditRepository
	txManager    repository.TransactionManager
}

func NewUtilizationService(
	utilizations repository.UtilizationRepository,
	appeals repository.AppealRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
) UtilizationService {
	return &utilizationService{
		utilizations: utilizations,
		appeals:      appeals,
		audits:       audits,
		txManager:    txManager,
	}
}

// Record books spending against an APPROVED appeal. Spending past the approved amount
// is accepted; the returned balance flags it.
func (s *utilizationService) Record(ctx context.Context, actor workflow.Actor, req RecordUtilizationRequest) (*UtilizationResult, error) {
	v := &workflow.ValidationError{}
	appealID, err := parseID("appeal_id", req.AppealID)
	if err != nil {
		v.Add("appeal_id", "must be a valid id")
	}
	status := validSpend(v, req.Description, req.AmountUtilized, req.PaymentStatus)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	appeal, err := requireStatus(ctx, s.appeals.FindByID, "appeal_id", appealID, workflow.Approved)
	if err != nil {
		return nil, err
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.UtilizationDate != nil {
		date = req.UtilizationDate.UTC()
	}
	u := model.Utilization{
		AppealID:        appeal.ID,
		UtilizationDate: date,
		Description:     strings.TrimSpace(req.Description),
		AmountUtilized:  req.AmountUtilized,
		VendorName:      strings.TrimSpace(req.VendorName),
		VendorDetails:   strings.TrimSpace(req.VendorDetails),
		InvoiceNumber:   strings.TrimSpace(req.InvoiceNumber),
		PONumber:        strings.TrimSpace(req.PONumber),
		PaymentStatus:   status,
		CreatedBy:       actor.ID,
	}

	var balance workflow.Balance
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.utilizations.Create(txCtx, &u); err != nil {
			return fmt.Errorf("failed to record utilization: %w", err)
		}
		rows, err := s.utilizations.ListByAppeal(txCtx, appeal.ID)
		if err != nil {
			return err
		}
		balance = workflow.ComputeRemainingBalance(*appeal, rows)
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionRecordUtilization, u.ID.String(), appeal.Title, map[string]any{
			"appeal_id":     appeal.ID.String(),
			"amount":        u.AmountUtilized.String(),
			"over_utilized": balance.OverUtilized,
		}))
	})
	if err != nil {
		return nil, err
	}

	u.Appeal = appeal
	return &UtilizationResult{Utilization: toUtilizationResponse(u), Balance: balance}, nil
}

// validSpend checks the fields shared by record and update and returns the payment
// status, pending when unset.
func validSpend(v *workflow.ValidationError, description string, amount decimal.Decimal, rawStatus string) string {
	if strings.TrimSpace(description) == "" {
		v.Add("description", "is required")
	}
	validAmount(v, "amount_utilized", amount)
	status := strings.ToLower(strings.TrimSpace(rawStatus))
	if status == "" {
		status = model.PaymentPending
	}
	if !slices.Contains(paymentStatuses, status) {
		v.Add("payment_status", "must be one of "+strings.Join(paymentStatuses, ", "))
	}
	return status
}

// Update corrects a utilization and returns the appeal balance after the change.
func (s *utilizationService) Update(ctx context.Context, actor workflow.Actor, id string, req UpdateUtilizationRequest) (*UtilizationResult, error) {
	utilizationID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	v := &workflow.ValidationError{}
	status := validSpend(v, req.Description, req.AmountUtilized, req.PaymentStatus)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	u, err := s.utilizations.FindByID(ctx, utilizationID)
	if err != nil {
		return nil, err
	}
	appeal := u.Appeal
	if appeal == nil {
		if appeal, err = s.appeals.FindByID(ctx, u.AppealID); err != nil {
			return nil, err
		}
	}
	previous := u.AmountUtilized

	if req.UtilizationDate != nil {
		u.UtilizationDate = req.UtilizationDate.UTC()
	}
	u.Description = strings.TrimSpace(req.Description)
	u.AmountUtilized = req.AmountUtilized
	u.VendorName = strings.TrimSpace(req.VendorName)
	u.VendorDetails = strings.TrimSpace(req.VendorDetails)
	u.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	u.PONumber = strings.TrimSpace(req.PONumber)
	u.PaymentStatus = status
	u.Appeal = nil

	var balance workflow.Balance
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.utilizations.Update(txCtx, u); err != nil {
			return fmt.Errorf("failed to update utilization: %w", err)
		}
		rows, err := s.utilizations.ListByAppeal(txCtx, appeal.ID)
		if err != nil {
			return err
		}
		balance = workflow.ComputeRemainingBalance(*appeal, rows)
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUpdateUtilization, u.ID.String(), appeal.Title, map[string]any{
			"appeal_id":       appeal.ID.String(),
			"previous_amount": previous.String(),
			"amount":          u.AmountUtilized.String(),
			"over_utilized":   balance.OverUtilized,
		}))
	})
	if err != nil {
		return nil, err
	}

	u.Appeal = appeal
	return &UtilizationResult{Utilization: toUtilizationResponse(*u), Balance: balance}, nil
}

func (s *utilizationService) Get(ctx context.Context, id string) (*UtilizationResponse, error) {
	utilizationID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	u, err := s.utilizations.FindByID(ctx, utilizationID)
	if err != nil {
		return nil, err
	}
	res := toUtilizationResponse(*u)
	return &res, nil
}

func (s *utilizationService) List(ctx context.Context, query UtilizationQuery) ([]UtilizationResponse, int64, error) {
	appealID, err := parseOptionalID("appeal_id", query.AppealID)
	if err != nil {
		return nil, 0, err
	}

	rows, total, err := s.utilizations.List(ctx, repository.UtilizationFilter{
		AppealID:      appealID,
		PaymentStatus: strings.ToLower(strings.TrimSpace(query.PaymentStatus)),
		From:          query.From,
		To:            query.To,
		Page:          query.Page,
		Limit:         query.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list utilizations: %w", err)
	}

	res := make([]UtilizationResponse, 0, len(rows))
	for _, u := range rows {
		res = append(res, toUtilizationResponse(u))
	}
	return res, total, nil
}

func (s *utilizationService) Stats(ctx context.Context, appealID string) (*repository.UtilizationStats, error) {
	id, err := parseOptionalID("appeal_id", appealID)
	if err != nil {
		return nil, err
	}
	stats, err := s.utilizations.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Balance reports approved minus utilized for any appeal; non-approved appeals have a zero approved amount.
func (s *utilizationService) Balance(ctx context.Context, appealID string) (*BalanceResponse, error) {
	id, err := parseID("appeal_id", appealID)
	if err != nil {
		return nil, err
	}
	appeal, err := s.appeals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.utilizations.ListByAppeal(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		AppealID: appeal.ID.String(),
		Title:    appeal.Title,
		Status:   appeal.Status,
		Balance:  workflow.ComputeRemainingBalance(*appeal, rows),
	}, nil
}

func toUtilizationResponse(u model.Utilization) UtilizationResponse {
	res := UtilizationResponse{
		ID:              u.ID.String(),
		AppealID:        u.AppealID.String(),
		UtilizationDate: u.UtilizationDate.Format("2006-01-02"),
		Description:     u.Description,
		AmountUtilized:  u.AmountUtilized,
		VendorName:      u.VendorName,
		VendorDetails:   u.VendorDetails,
		InvoiceNumber:   u.InvoiceNumber,
		PONumber:        u.PONumber,
		PaymentStatus:   u.PaymentStatus,
		CreatedBy:       u.CreatedBy.String(),
		CreatedAt:       u.CreatedAt.Format(timeLayout),
	}
	if u.Appeal != nil {
		res.AppealTitle = u.Appeal.Title
	}
	return res
}
