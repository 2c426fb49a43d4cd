package workflow

import (
	"strconv"
	"strings"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trigger says which decision produced a NotifyDonors instruction.
type Trigger string

const (
	TriggerApproved Trigger = "APPROVED"
	TriggerRejected Trigger = "REJECTED"
)

// NotifyDonors is the side-effect request produced by approve and reject. The engine never
// delivers it; the caller hands it to the communication dispatcher after commit.
type NotifyDonors struct {
	AppealID       uuid.UUID        `json:"appeal_id"`
	AppealTitle    string           `json:"appeal_title"`
	Trigger        Trigger          `json:"trigger"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

// DocumentInput is the metadata of a file attached at creation or later.
type DocumentInput struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	URL         string `json:"url"`
}

// AppealInput carries the descriptive fields set at creation and editable in DRAFT.
type AppealInput struct {
	Title               string
	Description         string
	EstimatedAmount     decimal.Decimal
	BeneficiaryCategory string
	Duration            string
	Documents           []DocumentInput
}

// ApproveInput is the approver's decision.
type ApproveInput struct {
	ApprovedAmount decimal.Decimal
	Remarks        string
	Conditions     string
}

// Engine applies the appeal state machine to in-memory records. It holds no
// mutable state; every method returns a new copy and leaves its argument untouched.
type Engine struct {
	policy Policy
	now    func() time.Time
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy, now: time.Now}
}

// WithClock returns an engine that stamps times from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	return &Engine{policy: e.policy, now: now}
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// Create validates input and returns a new DRAFT appeal owned by actor.
func (e *Engine) Create(in AppealInput, actor Actor) (model.Appeal, error) {
	if !e.policy.CanCreate(actor) {
		return model.Appeal{}, Forbidden("role %q may not create appeals", actor.Role)
	}

	v := &ValidationError{}
	validateAppealInput(in, v)
	if actor.ID == uuid.Nil {
		v.Add("created_by", "is required")
	}
	for i, d := range in.Documents {
		if strings.TrimSpace(d.FileName) == "" {
			v.Add(documentField(i), "file_name is required")
		}
	}
	if err := v.OrNil(); err != nil {
		return model.Appeal{}, err
	}

	now := e.now().UTC()
	appeal := model.Appeal{
		ID:                  uuid.New(),
		Title:               strings.TrimSpace(in.Title),
		Description:         strings.TrimSpace(in.Description),
		EstimatedAmount:     in.EstimatedAmount,
		BeneficiaryCategory: strings.TrimSpace(in.BeneficiaryCategory),
		Duration:            strings.TrimSpace(in.Duration),
		Status:              string(Draft),
		CreatedBy:           actor.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, d := range in.Documents {
		appeal.Documents = append(appeal.Documents, NewDocument(appeal.ID, d, actor, now))
	}
	return appeal, nil
}

// Edit replaces the descriptive fields of a DRAFT appeal. Documents are attached separately.
func (e *Engine) Edit(appeal model.Appeal, in AppealInput, actor Actor) (model.Appeal, error) {
	if _, err := e.authorize(appeal, ActionEdit, actor); err != nil {
		return model.Appeal{}, err
	}

	v := &ValidationError{}
	validateAppealInput(in, v)
	if err := v.OrNil(); err != nil {
		return model.Appeal{}, err
	}

	next := appeal
	next.Title = strings.TrimSpace(in.Title)
	next.Description = strings.TrimSpace(in.Description)
	next.EstimatedAmount = in.EstimatedAmount
	next.BeneficiaryCategory = strings.TrimSpace(in.BeneficiaryCategory)
	next.Duration = strings.TrimSpace(in.Duration)
	next.UpdatedAt = e.now().UTC()
	return next, nil
}

// CanDelete reports whether actor may delete the appeal: only its creator (or an
// override role) and only while it is a DRAFT.
func (e *Engine) CanDelete(appeal model.Appeal, actor Actor) error {
	_, err := e.authorize(appeal, ActionDelete, actor)
	return err
}

// CanAttach reports whether documents may still be attached. Attachments follow the
// same rule as edits.
func (e *Engine) CanAttach(appeal model.Appeal, actor Actor) error {
	_, err := e.authorize(appeal, ActionEdit, actor)
	return err
}

// Submit moves a DRAFT appeal to SUBMITTED, freezing its descriptive fields.
func (e *Engine) Submit(appeal model.Appeal, actor Actor) (model.Appeal, error) {
	to, err := e.authorize(appeal, ActionSubmit, actor)
	if err != nil {
		return model.Appeal{}, err
	}

	now := e.now().UTC()
	next := appeal
	next.Status = string(to)
	next.SubmittedAt = &now
	next.UpdatedAt = now
	return next, nil
}

// Approve moves a SUBMITTED appeal to APPROVED with the granted amount, which may differ
// from the estimate, and emits the donor notification instruction.
func (e *Engine) Approve(appeal model.Appeal, in ApproveInput, actor Actor) (model.Appeal, NotifyDonors, error) {
	to, err := e.authorize(appeal, ActionApprove, actor)
	if err != nil {
		return model.Appeal{}, NotifyDonors{}, err
	}

	v := &ValidationError{}
	validateAmount("approved_amount", in.ApprovedAmount, v)
	if err := v.OrNil(); err != nil {
		return model.Appeal{}, NotifyDonors{}, err
	}

	now := e.now().UTC()
	amount := in.ApprovedAmount
	approver := actor.ID

	next := appeal
	next.Status = string(to)
	next.ApprovedAmount = &amount
	next.RejectionReason = nil
	next.Remarks = strings.TrimSpace(in.Remarks)
	next.Conditions = strings.TrimSpace(in.Conditions)
	next.DecidedBy = &approver
	next.DecidedAt = &now
	next.UpdatedAt = now

	notice := NotifyDonors{
		AppealID:       next.ID,
		AppealTitle:    next.Title,
		Trigger:        TriggerApproved,
		ApprovedAmount: &amount,
	}
	return next, notice, nil
}

// Reject moves a SUBMITTED appeal to REJECTED with a mandatory reason and emits the
// donor notification instruction.
func (e *Engine) Reject(appeal model.Appeal, reason string, actor Actor) (model.Appeal, NotifyDonors, error) {
	to, err := e.authorize(appeal, ActionReject, actor)
	if err != nil {
		return model.Appeal{}, NotifyDonors{}, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Appeal{}, NotifyDonors{}, NewValidationError("reason", "is required")
	}

	now := e.now().UTC()
	decider := actor.ID

	next := appeal
	next.Status = string(to)
	next.RejectionReason = &reason
	next.ApprovedAmount = nil
	next.DecidedBy = &decider
	next.DecidedAt = &now
	next.UpdatedAt = now

	notice := NotifyDonors{
		AppealID:    next.ID,
		AppealTitle: next.Title,
		Trigger:     TriggerRejected,
		Reason:      reason,
	}
	return next, notice, nil
}

// authorize checks rights first, then the transition table, and returns the target status.
func (e *Engine) authorize(appeal model.Appeal, action Action, actor Actor) (Status, error) {
	from, err := ParseStatus(appeal.Status)
	if err != nil {
		return "", err
	}

	switch action {
	case ActionApprove, ActionReject:
		if !e.policy.CanApprove(actor) {
			return "", Forbidden("role %q may not %s appeals", actor.Role, action)
		}
	default:
		if !e.policy.CanManage(actor, appeal) {
			return "", Forbidden("only the creator may %s this appeal", action)
		}
	}

	return Next(from, action)
}

// CheckInvariants verifies the status-gated fields of a stored appeal.
func CheckInvariants(appeal model.Appeal) error {
	status, err := ParseStatus(appeal.Status)
	if err != nil {
		return err
	}

	v := &ValidationError{}
	switch {
	case status == Approved && appeal.ApprovedAmount == nil:
		v.Add("approved_amount", "is required when status is APPROVED")
	case status == Approved && !appeal.ApprovedAmount.IsPositive():
		v.Add("approved_amount", "must be greater than 0")
	case status != Approved && appeal.ApprovedAmount != nil:
		v.Add("approved_amount", "must be empty unless status is APPROVED")
	}
	switch {
	case status == Rejected && (appeal.RejectionReason == nil || strings.TrimSpace(*appeal.RejectionReason) == ""):
		v.Add("rejection_reason", "is required when status is REJECTED")
	case status != Rejected && appeal.RejectionReason != nil:
		v.Add("rejection_reason", "must be empty unless status is REJECTED")
	}
	return v.OrNil()
}

// NewDocument builds the metadata row for an attached file.
func NewDocument(appealID uuid.UUID, in DocumentInput, actor Actor, at time.Time) model.AppealDocument {
	return model.AppealDocument{
		ID:          uuid.New(),
		AppealID:    appealID,
		FileName:    strings.TrimSpace(in.FileName),
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
		URL:         in.URL,
		UploadedBy:  actor.ID,
		UploadedAt:  at,
	}
}

func validateAppealInput(in AppealInput, v *ValidationError) {
	if strings.TrimSpace(in.Title) == "" {
		v.Add("title", "is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		v.Add("description", "is required")
	}
	validateAmount("estimated_amount", in.EstimatedAmount, v)
	if strings.TrimSpace(in.BeneficiaryCategory) == "" {
		v.Add("beneficiary_category", "is required")
	}
	if strings.TrimSpace(in.Duration) == "" {
		v.Add("duration", "is required")
	}
}

// validateAmount requires a positive value with at most two decimal places; it never rounds.
func validateAmount(field string, amount decimal.Decimal, v *ValidationError) {
	if !amount.IsPositive() {
		v.Add(field, "must be greater than 0")
		return
	}
	if !amount.Equal(amount.Truncate(2)) {
		v.Add(field, "must have at most 2 decimal places")
	}
}

func documentField(i int) string {
	return "documents[" + strconv.Itoa(i) + "]"
}
