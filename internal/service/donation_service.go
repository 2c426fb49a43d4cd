package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/shopspring/decimal"
)

var donationModes = []string{
	model.DonationModeCash,
	model.DonationModeCheque,
	model.DonationModeBankTransfer,
	model.DonationModeUPI,
	model.DonationModeOnline,
}

type RecordDonationRequest struct {
	AppealID        string          `json:"appeal_id"`
	DonorName       string          `json:"donor_name"`
	DonorEmail      string          `json:"donor_email"`
	DonorPhone      string          `json:"donor_phone"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"number"`
	Mode            string          `json:"mode"`
	ChequeNumber    string          `json:"cheque_number"`
	ChequeDate      *time.Time      `json:"cheque_date"`
	TransactionRef  string          `json:"transaction_ref"`
	ReceivingEntity string          `json:"receiving_entity"`
	ReceivedAt      *time.Time      `json:"received_at"`
}

// UpdateDonationRequest corrects a PENDING donation. The appeal cannot change.
type UpdateDonationRequest struct {
	DonorName       string          `json:"donor_name"`
	DonorEmail      string          `json:"donor_email"`
	DonorPhone      string          `json:"donor_phone"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"number"`
	Mode            string          `json:"mode"`
	ChequeNumber    string          `json:"cheque_number"`
	ChequeDate      *time.Time      `json:"cheque_date"`
	TransactionRef  string          `json:"transaction_ref"`
	ReceivingEntity string          `json:"receiving_entity"`
	ReceivedAt      *time.Time      `json:"received_at"`
}

type FailDonationRequest struct {
	Reason string `json:"reason"`
}

type DonationQuery struct {
	AppealID string
	Status   string
	Mode     string
	Search   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

type DonationResponse struct {
	ID              string          `json:"id"`
	ReceiptNo       string          `json:"receipt_no"`
	AppealID        string          `json:"appeal_id"`
	AppealTitle     string          `json:"appeal_title,omitempty"`
	DonorName       string          `json:"donor_name"`
	DonorEmail      string          `json:"donor_email"`
	DonorPhone      string          `json:"donor_phone"`
	Amount          decimal.Decimal `json:"amount" swaggertype:"number"`
	Mode            string          `json:"mode"`
	ChequeNumber    string          `json:"cheque_number,omitempty"`
	ChequeDate      string          `json:"cheque_date,omitempty"`
	TransactionRef  string          `json:"transaction_ref,omitempty"`
	ReceivingEntity string          `json:"receiving_entity,omitempty"`
	ReceivedAt      string          `json:"received_at"`
	Status          string          `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	RecordedBy      string          `json:"recorded_by"`
	CreatedAt       string          `json:"created_at"`
}

type DonationService interface {
	Record(ctx context.Context, actor workflow.Actor, req RecordDonationRequest) (*DonationResponse, error)
	Confirm(ctx context.Context, actor workflow.Actor, id string) (*DonationResponse, error)
	Fail(ctx context.Context, actor workflow.Actor, id string, req FailDonationRequest) (*DonationResponse, error)
	Update(ctx context.Context, actor workflow.Actor, id string, req UpdateDonationRequest) (*DonationResponse, error)
	Get(ctx context.Context, id string) (*DonationResponse, error)
	List(ctx context.Context, query DonationQuery) ([]DonationResponse, int64, error)
	Stats(ctx context.Context, appealID string) (*repository.DonationStats, error)
}

type donationService struct {
	donations repository.DonationRepository
	appeals   repository.AppealRepository
	audits    repository.AuditRepository
	txManager repository.TransactionManager
	now       func() time.Time
}

func NewDonationService(
	donations repository.DonationRepository,
	appeals repository.AppealRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
) DonationService {
	return &donationService{
		donations: donations,
		appeals:   appeals,
		audits:    audits,
		txManager: txManager,
		now:       time.Now,
	}
}

// Record stores a PENDING donation and issues its receipt number. Pledges are taken while an
// appeal is under review as well as after approval; those donors hear about the decision.
func (s *donationService) Record(ctx context.Context, actor workflow.Actor, req RecordDonationRequest) (*DonationResponse, error) {
	v := &workflow.ValidationError{}
	appealID, err := parseID("appeal_id", req.AppealID)
	if err != nil {
		v.Add("appeal_id", "must be a valid id")
	}
	mode := validDonor(v, req.DonorName, req.Amount, req.Mode, req.ChequeNumber)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	appeal, err := requireStatus(ctx, s.appeals.FindByID, "appeal_id", appealID, workflow.Submitted, workflow.Approved)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	receivedAt := now
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}
	donation := model.Donation{
		AppealID:        appeal.ID,
		DonorName:       strings.TrimSpace(req.DonorName),
		DonorEmail:      strings.ToLower(strings.TrimSpace(req.DonorEmail)),
		DonorPhone:      strings.TrimSpace(req.DonorPhone),
		Amount:          req.Amount,
		Mode:            mode,
		ChequeNumber:    strings.TrimSpace(req.ChequeNumber),
		ChequeDate:      req.ChequeDate,
		TransactionRef:  strings.TrimSpace(req.TransactionRef),
		ReceivingEntity: strings.TrimSpace(req.ReceivingEntity),
		ReceivedAt:      receivedAt,
		Status:          model.DonationPending,
		RecordedBy:      actor.ID,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		receipt, err := s.donations.NextReceiptNo(txCtx, now)
		if err != nil {
			return fmt.Errorf("failed to issue receipt number: %w", err)
		}
		donation.ReceiptNo = receipt

		if err := s.donations.Create(txCtx, &donation); err != nil {
			return fmt.Errorf("failed to record donation: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionRecordDonation, donation.ID.String(), donation.ReceiptNo, map[string]any{
			"appeal_id": appeal.ID.String(),
			"amount":    donation.Amount.String(),
			"mode":      donation.Mode,
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, donation.ID.String())
}

// validDonor checks the donor and payment fields shared by record and update and
// returns the normalized mode.
func validDonor(v *workflow.ValidationError, name string, amount decimal.Decimal, rawMode, chequeNumber string) string {
	if strings.TrimSpace(name) == "" {
		v.Add("donor_name", "is required")
	}
	validAmount(v, "amount", amount)
	mode := strings.ToLower(strings.TrimSpace(rawMode))
	if !slices.Contains(donationModes, mode) {
		v.Add("mode", "must be one of "+strings.Join(donationModes, ", "))
	}
	if mode == model.DonationModeCheque && strings.TrimSpace(chequeNumber) == "" {
		v.Add("cheque_number", "is required for cheque donations")
	}
	return mode
}

// Update corrects a donation while it is still PENDING. Confirmed and failed donations
// are final; their receipts have been issued.
func (s *donationService) Update(ctx context.Context, actor workflow.Actor, id string, req UpdateDonationRequest) (*DonationResponse, error) {
	donationID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	v := &workflow.ValidationError{}
	mode := validDonor(v, req.DonorName, req.Amount, req.Mode, req.ChequeNumber)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	d, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DonationPending {
		return nil, donationLocked(d.Status)
	}

	d.DonorName = strings.TrimSpace(req.DonorName)
	d.DonorEmail = strings.ToLower(strings.TrimSpace(req.DonorEmail))
	d.DonorPhone = strings.TrimSpace(req.DonorPhone)
	d.Amount = req.Amount
	d.Mode = mode
	d.ChequeNumber = strings.TrimSpace(req.ChequeNumber)
	d.ChequeDate = req.ChequeDate
	d.TransactionRef = strings.TrimSpace(req.TransactionRef)
	d.ReceivingEntity = strings.TrimSpace(req.ReceivingEntity)
	if req.ReceivedAt != nil {
		d.ReceivedAt = req.ReceivedAt.UTC()
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.donations.UpdatePending(txCtx, d); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				latest, ferr := s.donations.FindByID(txCtx, donationID)
				if ferr != nil {
					return ferr
				}
				return donationLocked(latest.Status)
			}
			return err
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUpdateDonation, d.ID.String(), d.ReceiptNo, map[string]any{
			"amount": d.Amount.String(),
			"mode":   d.Mode,
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func donationLocked(current string) error {
	return fmt.Errorf("%w: only PENDING donations can be edited (current: %s)", workflow.ErrInvalidTransition, current)
}

func (s *donationService) Confirm(ctx context.Context, actor workflow.Actor, id string) (*DonationResponse, error) {
	return s.settle(ctx, actor, id, model.DonationConfirmed, "", model.ActionConfirmDonation)
}

func (s *donationService) Fail(ctx context.Context, actor workflow.Actor, id string, req FailDonationRequest) (*DonationResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, workflow.NewValidationError("reason", "is required")
	}
	return s.settle(ctx, actor, id, model.DonationFailed, reason, model.ActionFailDonation)
}

// settle moves a PENDING donation to its final status.
func (s *donationService) settle(ctx context.Context, actor workflow.Actor, id, next, reason, auditAction string) (*DonationResponse, error) {
	donationID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	current, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.DonationPending {
		return nil, donationConflict(current.Status, next)
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.donations.UpdateStatus(txCtx, donationID, model.DonationPending, next, reason); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				latest, ferr := s.donations.FindByID(txCtx, donationID)
				if ferr != nil {
					return ferr
				}
				return donationConflict(latest.Status, next)
			}
			return err
		}
		details := map[string]any{"from": model.DonationPending, "to": next}
		if reason != "" {
			details["reason"] = reason
		}
		return s.audits.Log(txCtx, auditEntry(actor, auditAction, current.ID.String(), current.ReceiptNo, details))
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func donationConflict(current, next string) error {
	return fmt.Errorf("%w: only PENDING donations can be marked %s (current: %s)", workflow.ErrInvalidTransition, next, current)
}

func (s *donationService) Get(ctx context.Context, id string) (*DonationResponse, error) {
	donationID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	res := toDonationResponse(*donation)
	return &res, nil
}

func (s *donationService) List(ctx context.Context, query DonationQuery) ([]DonationResponse, int64, error) {
	appealID, err := parseOptionalID("appeal_id", query.AppealID)
	if err != nil {
		return nil, 0, err
	}

	rows, total, err := s.donations.List(ctx, repository.DonationFilter{
		AppealID: appealID,
		Status:   strings.ToUpper(strings.TrimSpace(query.Status)),
		Mode:     strings.ToLower(strings.TrimSpace(query.Mode)),
		Search:   query.Search,
		From:     query.From,
		To:       query.To,
		Page:     query.Page,
		Limit:    query.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list donations: %w", err)
	}

	res := make([]DonationResponse, 0, len(rows))
	for _, d := range rows {
		res = append(res, toDonationResponse(d))
	}
	return res, total, nil
}

func (s *donationService) Stats(ctx context.Context, appealID string) (*repository.DonationStats, error) {
	id, err := parseOptionalID("appeal_id", appealID)
	if err != nil {
		return nil, err
	}
	stats, err := s.donations.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func toDonationResponse(d model.Donation) DonationResponse {
	res := DonationResponse{
		ID:              d.ID.String(),
		ReceiptNo:       d.ReceiptNo,
		AppealID:        d.AppealID.String(),
		DonorName:       d.DonorName,
		DonorEmail:      d.DonorEmail,
		DonorPhone:      d.DonorPhone,
		Amount:          d.Amount,
		Mode:            d.Mode,
		ChequeNumber:    d.ChequeNumber,
		ChequeDate:      formatTimePtr(d.ChequeDate),
		TransactionRef:  d.TransactionRef,
		ReceivingEntity: d.ReceivingEntity,
		ReceivedAt:      d.ReceivedAt.Format(timeLayout),
		Status:          d.Status,
		FailureReason:   d.FailureReason,
		RecordedBy:      d.RecordedBy.String(),
		CreatedAt:       d.CreatedAt.Format(timeLayout),
	}
	if d.Appeal != nil {
		res.AppealTitle = d.Appeal.Title
	}
	return res
}
