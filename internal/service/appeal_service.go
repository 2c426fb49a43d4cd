package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/notify"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DocumentRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url"`
}

type AppealRequest struct {
	Title               string            `json:"title"`
	Description         string            `json:"description"`
	EstimatedAmount     decimal.Decimal   `json:"estimated_amount" swaggertype:"number"`
	BeneficiaryCategory string            `json:"beneficiary_category"`
	Duration            string            `json:"duration"`
	Documents           []DocumentRequest `json:"documents"`
}

type ApproveRequest struct {
	ApprovedAmount decimal.Decimal `json:"approved_amount" swaggertype:"number"`
	Remarks        string          `json:"remarks"`
	Conditions     string          `json:"conditions"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// AppealQuery filters the appeal list. Status accepts a comma-separated list.
type AppealQuery struct {
	Status    string
	Search    string
	CreatedBy string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

type DocumentResponse struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url"`
	UploadedBy  string `json:"uploaded_by"`
	UploadedAt  string `json:"uploaded_at"`
}

type AppealResponse struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	EstimatedAmount     decimal.Decimal    `json:"estimated_amount" swaggertype:"number"`
	ApprovedAmount      *decimal.Decimal   `json:"approved_amount" swaggertype:"number"`
	BeneficiaryCategory string             `json:"beneficiary_category"`
	Duration            string             `json:"duration"`
	Status              string             `json:"status"`
	RejectionReason     *string            `json:"rejection_reason"`
	Remarks             string             `json:"remarks,omitempty"`
	Conditions          string             `json:"conditions,omitempty"`
	CreatedBy           string             `json:"created_by"`
	CreatorName         string             `json:"creator_name,omitempty"`
	DecidedBy           string             `json:"decided_by,omitempty"`
	DeciderName         string             `json:"decider_name,omitempty"`
	SubmittedAt         string             `json:"submitted_at,omitempty"`
	DecidedAt           string             `json:"decided_at,omitempty"`
	Documents           []DocumentResponse `json:"documents"`
	CreatedAt           string             `json:"created_at"`
	UpdatedAt           string             `json:"updated_at"`
}

// TransitionResult is the outcome of approve or reject. Warning is set when the
// transition committed but the donor notification could not be handed off.
type TransitionResult struct {
	Appeal      AppealResponse         `json:"appeal"`
	Instruction *workflow.NotifyDonors `json:"notification,omitempty"`
	Warning     error                  `json:"-"`
}

type ApprovalStats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Drafts   int64 `json:"drafts"`
}

// Dispatcher consumes NotifyDonors instructions after the transition has committed.
type Dispatcher interface {
	NotifyDonors(ctx context.Context, instruction workflow.NotifyDonors) error
}

type AppealService interface {
	Create(ctx context.Context, actor workflow.Actor, req AppealRequest) (*AppealResponse, error)
	Update(ctx context.Context, actor workflow.Actor, id string, req AppealRequest) (*AppealResponse, error)
	Delete(ctx context.Context, actor workflow.Actor, id string) error
	Get(ctx context.Context, id string) (*AppealResponse, error)
	List(ctx context.Context, query AppealQuery) ([]AppealResponse, int64, error)
	AddDocument(ctx context.Context, actor workflow.Actor, id string, req DocumentRequest) (*AppealResponse, error)
	Submit(ctx context.Context, actor workflow.Actor, id string) (*AppealResponse, error)
	Approve(ctx context.Context, actor workflow.Actor, id string, req ApproveRequest) (*TransitionResult, error)
	Reject(ctx context.Context, actor workflow.Actor, id string, req RejectRequest) (*TransitionResult, error)
	PendingApprovals(ctx context.Context, page, limit int) ([]AppealResponse, int64, error)
	ApprovalHistory(ctx context.Context, page, limit int) ([]AppealResponse, int64, error)
	ApprovalStats(ctx context.Context) (*ApprovalStats, error)
}

type appealService struct {
	engine     *workflow.Engine
	appeals    repository.AppealRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
	dispatcher Dispatcher
	feed       notify.Publisher
}

// NewAppealService wires the workflow engine to persistence. feed may be nil.
func NewAppealService(
	engine *workflow.Engine,
	appeals repository.AppealRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	dispatcher Dispatcher,
	feed notify.Publisher,
) AppealService {
	return &appealService{
		engine:     engine,
		appeals:    appeals,
		audits:     audits,
		txManager:  txManager,
		dispatcher: dispatcher,
		feed:       feed,
	}
}

func (s *appealService) Create(ctx context.Context, actor workflow.Actor, req AppealRequest) (*AppealResponse, error) {
	appeal, err := s.engine.Create(toAppealInput(req), actor)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.appeals.Create(txCtx, &appeal); err != nil {
			return fmt.Errorf("failed to create appeal: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionCreateAppeal, appeal.ID.String(), appeal.Title, map[string]any{
			"estimated_amount": appeal.EstimatedAmount.String(),
			"documents":        len(appeal.Documents),
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, appeal.ID)
}

func (s *appealService) Update(ctx context.Context, actor workflow.Actor, id string, req AppealRequest) (*AppealResponse, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.Edit(*current, toAppealInput(req), actor)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.appeals.UpdateDraft(txCtx, &next); err != nil {
			return s.conflict(txCtx, err, next.ID, workflow.ActionEdit)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUpdateAppeal, next.ID.String(), next.Title, nil))
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, next.ID)
}

func (s *appealService) Delete(ctx context.Context, actor workflow.Actor, id string) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.CanDelete(*current, actor); err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.appeals.Delete(txCtx, current.ID); err != nil {
			return s.conflict(txCtx, err, current.ID, workflow.ActionDelete)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionDeleteAppeal, current.ID.String(), current.Title, nil))
	})
}

func (s *appealService) Get(ctx context.Context, id string) (*AppealResponse, error) {
	appeal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	res := toAppealResponse(*appeal)
	return &res, nil
}

func (s *appealService) List(ctx context.Context, query AppealQuery) ([]AppealResponse, int64, error) {
	filter := repository.AppealFilter{
		Search: strings.TrimSpace(query.Search),
		From:   query.From,
		To:     query.To,
		Page:   query.Page,
		Limit:  query.Limit,
	}

	statuses, err := parseStatuses(query.Status)
	if err != nil {
		return nil, 0, err
	}
	filter.Statuses = statuses

	if filter.CreatedBy, err = parseOptionalID("created_by", query.CreatedBy); err != nil {
		return nil, 0, err
	}

	return s.list(ctx, filter)
}

func (s *appealService) AddDocument(ctx context.Context, actor workflow.Actor, id string, req DocumentRequest) (*AppealResponse, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.CanAttach(*current, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, workflow.NewValidationError("file_name", "is required")
	}

	doc := workflow.NewDocument(current.ID, workflow.DocumentInput(req), actor, time.Now().UTC())
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.appeals.AddDocument(txCtx, &doc); err != nil {
			return fmt.Errorf("failed to attach document: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionAttachDocument, current.ID.String(), current.Title, map[string]any{
			"file_name": doc.FileName,
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, current.ID)
}

func (s *appealService) Submit(ctx context.Context, actor workflow.Actor, id string) (*AppealResponse, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.Submit(*current, actor)
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, actor, current.Status, &next, workflow.ActionSubmit, model.ActionSubmitAppeal, nil); err != nil {
		return nil, err
	}

	return s.reload(ctx, next.ID)
}

func (s *appealService) Approve(ctx context.Context, actor workflow.Actor, id string, req ApproveRequest) (*TransitionResult, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, instruction, err := s.engine.Approve(*current, workflow.ApproveInput{
		ApprovedAmount: req.ApprovedAmount,
		Remarks:        req.Remarks,
		Conditions:     req.Conditions,
	}, actor)
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"approved_amount":  req.ApprovedAmount.String(),
		"estimated_amount": current.EstimatedAmount.String(),
	}
	if err := s.commit(ctx, actor, current.Status, &next, workflow.ActionApprove, model.ActionApproveAppeal, details); err != nil {
		return nil, err
	}

	return s.decided(ctx, next, instruction)
}

func (s *appealService) Reject(ctx context.Context, actor workflow.Actor, id string, req RejectRequest) (*TransitionResult, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	next, instruction, err := s.engine.Reject(*current, req.Reason, actor)
	if err != nil {
		return nil, err
	}

	details := map[string]any{"reason": instruction.Reason}
	if err := s.commit(ctx, actor, current.Status, &next, workflow.ActionReject, model.ActionRejectAppeal, details); err != nil {
		return nil, err
	}

	return s.decided(ctx, next, instruction)
}

func (s *appealService) PendingApprovals(ctx context.Context, page, limit int) ([]AppealResponse, int64, error) {
	return s.list(ctx, repository.AppealFilter{
		Statuses: []string{string(workflow.Submitted)},
		Page:     page,
		Limit:    limit,
	})
}

func (s *appealService) ApprovalHistory(ctx context.Context, page, limit int) ([]AppealResponse, int64, error) {
	return s.list(ctx, repository.AppealFilter{
		Statuses:   []string{string(workflow.Approved), string(workflow.Rejected)},
		ByDecision: true,
		Page:       page,
		Limit:      limit,
	})
}

func (s *appealService) ApprovalStats(ctx context.Context) (*ApprovalStats, error) {
	counts, err := s.appeals.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count appeals: %w", err)
	}
	return &ApprovalStats{
		Pending:  counts[string(workflow.Submitted)],
		Approved: counts[string(workflow.Approved)],
		Rejected: counts[string(workflow.Rejected)],
		Drafts:   counts[string(workflow.Draft)],
	}, nil
}

// commit writes a status transition and its audit row in one transaction. The write is
// conditional on the status the engine saw, so of two racing deciders exactly one wins.
func (s *appealService) commit(ctx context.Context, actor workflow.Actor, expected string, next *model.Appeal, action workflow.Action, auditAction string, details map[string]any) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.appeals.CompareAndSwapStatus(txCtx, next, expected); err != nil {
			return s.conflict(txCtx, err, next.ID, action)
		}
		if details == nil {
			details = map[string]any{}
		}
		details["from"] = expected
		details["to"] = next.Status
		return s.audits.Log(txCtx, auditEntry(actor, auditAction, next.ID.String(), next.Title, details))
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "appeal status changed",
		"appeal_id", next.ID,
		"from", expected,
		"to", next.Status,
		"actor_id", actor.ID)
	publishFeed(ctx, s.feed, notify.Event{
		ID:         uuid.New(),
		Kind:       notify.KindAppealStatus,
		AppealID:   next.ID,
		Status:     next.Status,
		Subject:    next.Title,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// conflict explains a lost conditional write by re-reading the row the other writer left.
func (s *appealService) conflict(ctx context.Context, err error, id uuid.UUID, action workflow.Action) error {
	if !errors.Is(err, repository.ErrStatusConflict) {
		return err
	}
	latest, ferr := s.appeals.FindByID(ctx, id)
	if ferr != nil {
		return ferr
	}
	from, perr := workflow.ParseStatus(latest.Status)
	if perr != nil {
		return perr
	}
	if _, nerr := workflow.Next(from, action); nerr != nil {
		return nerr
	}
	return &workflow.InvalidTransitionError{From: from, Action: action}
}

// decided hands the instruction to the dispatcher once the decision is durable.
func (s *appealService) decided(ctx context.Context, next model.Appeal, instruction workflow.NotifyDonors) (*TransitionResult, error) {
	appeal, err := s.reload(ctx, next.ID)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{Appeal: *appeal, Instruction: &instruction}
	if s.dispatcher == nil {
		return result, nil
	}
	if err := s.dispatcher.NotifyDonors(ctx, instruction); err != nil {
		slog.WarnContext(ctx, "donor notification failed",
			"appeal_id", instruction.AppealID,
			"trigger", instruction.Trigger,
			"error", err)
		result.Warning = &workflow.NotificationDeliveryFailed{
			AppealID: instruction.AppealID,
			Trigger:  instruction.Trigger,
			Err:      err,
		}
	}
	return result, nil
}

func (s *appealService) load(ctx context.Context, id string) (*model.Appeal, error) {
	appealID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	appeal, err := s.appeals.FindByID(ctx, appealID)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckInvariants(*appeal); err != nil {
		return nil, fmt.Errorf("appeal %s is inconsistent: %w", appeal.ID, err)
	}
	return appeal, nil
}

func (s *appealService) reload(ctx context.Context, id uuid.UUID) (*AppealResponse, error) {
	appeal, err := s.appeals.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload appeal: %w", err)
	}
	res := toAppealResponse(*appeal)
	return &res, nil
}

func (s *appealService) list(ctx context.Context, filter repository.AppealFilter) ([]AppealResponse, int64, error) {
	appeals, total, err := s.appeals.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list appeals: %w", err)
	}
	res := make([]AppealResponse, 0, len(appeals))
	for _, a := range appeals {
		res = append(res, toAppealResponse(a))
	}
	return res, total, nil
}

func parseStatuses(raw string) ([]string, error) {
	var statuses []string
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := workflow.ParseStatus(part)
		if err != nil {
			return nil, workflow.NewValidationError("status", err.Error())
		}
		statuses = append(statuses, string(st))
	}
	return statuses, nil
}

func toAppealInput(req AppealRequest) workflow.AppealInput {
	in := workflow.AppealInput{
		Title:               req.Title,
		Description:         req.Description,
		EstimatedAmount:     req.EstimatedAmount,
		BeneficiaryCategory: req.BeneficiaryCategory,
		Duration:            req.Duration,
	}
	for _, d := range req.Documents {
		in.Documents = append(in.Documents, workflow.DocumentInput(d))
	}
	return in
}

func toAppealResponse(a model.Appeal) AppealResponse {
	res := AppealResponse{
		ID:                  a.ID.String(),
		Title:               a.Title,
		Description:         a.Description,
		EstimatedAmount:     a.EstimatedAmount,
		ApprovedAmount:      a.ApprovedAmount,
		BeneficiaryCategory: a.BeneficiaryCategory,
		Duration:            a.Duration,
		Status:              a.Status,
		RejectionReason:     a.RejectionReason,
		Remarks:             a.Remarks,
		Conditions:          a.Conditions,
		CreatedBy:           a.CreatedBy.String(),
		CreatorName:         userName(a.Creator),
		DeciderName:         userName(a.Decider),
		SubmittedAt:         formatTimePtr(a.SubmittedAt),
		DecidedAt:           formatTimePtr(a.DecidedAt),
		Documents:           make([]DocumentResponse, 0, len(a.Documents)),
		CreatedAt:           a.CreatedAt.Format(timeLayout),
		UpdatedAt:           a.UpdatedAt.Format(timeLayout),
	}
	if a.DecidedBy != nil {
		res.DecidedBy = a.DecidedBy.String()
	}
	for _, d := range a.Documents {
		res.Documents = append(res.Documents, DocumentResponse{
			ID:          d.ID.String(),
			FileName:    d.FileName,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
			URL:         d.URL,
			UploadedBy:  d.UploadedBy.String(),
			UploadedAt:  d.UploadedAt.Format(timeLayout),
		})
	}
	return res
}
