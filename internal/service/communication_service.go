package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/notify"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Recipient selection for manual sends.
const (
	RecipientsAllDonors      = "ALL_DONORS"
	RecipientsSelectedDonors = "SELECTED_DONORS"
)

const retryBatchSize = 50

// pendingGrace is how long a PENDING communication may wait for its first delivery outcome
// before the retry job treats it as stalled.
const pendingGrace = 2 * time.Minute

type SendCommunicationRequest struct {
	AppealID      string   `json:"appeal_id"`
	Channel       string   `json:"channel"`
	TemplateID    string   `json:"template_id"`
	Subject       string   `json:"subject"`
	Message       string   `json:"message"`
	RecipientType string   `json:"recipient_type"`
	Recipients    []string `json:"recipients"` // donor emails or phone numbers for SELECTED_DONORS
}

type CommunicationQuery struct {
	AppealID string
	Trigger  string
	Channel  string
	Status   string
	Page     int
	Limit    int
}

type CommunicationResponse struct {
	ID             string        `json:"id"`
	AppealID       string        `json:"appeal_id"`
	Trigger        string        `json:"trigger"`
	Channel        string        `json:"channel"`
	Subject        string        `json:"subject"`
	Message        string        `json:"message"`
	RecipientCount int           `json:"recipient_count"`
	Recipients     []model.Donor `json:"recipients"`
	Status         string        `json:"status"`
	Attempts       int           `json:"attempts"`
	LastError      string        `json:"last_error,omitempty"`
	SentBy         string        `json:"sent_by,omitempty"`
	SentAt         string        `json:"sent_at,omitempty"`
	CreatedAt      string        `json:"created_at"`
}

type CommunicationService interface {
	Dispatcher
	Send(ctx context.Context, actor workflow.Actor, req SendCommunicationRequest) (*CommunicationResponse, error)
	Retry(ctx context.Context, actor workflow.Actor, id string) (*CommunicationResponse, error)
	RetryFailed(ctx context.Context) (int, error)
	List(ctx context.Context, query CommunicationQuery) ([]CommunicationResponse, int64, error)
	Templates() []Template
	Stats(ctx context.Context) (*repository.CommunicationStats, error)
}

type communicationService struct {
	comms       repository.CommunicationRepository
	donations   repository.DonationRepository
	appeals     repository.AppealRepository
	audits      repository.AuditRepository
	txManager   repository.TransactionManager
	publisher   notify.Publisher
	feed        notify.Publisher
	maxAttempts int
	now         func() time.Time
}

// NewCommunicationService builds the donor communication dispatcher. publisher delivers to
// donors; feed (optional) mirrors delivery outcomes to the admin UI.
func NewCommunicationService(
	comms repository.CommunicationRepository,
	donations repository.DonationRepository,
	appeals repository.AppealRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher notify.Publisher,
	feed notify.Publisher,
	maxAttempts int,
) CommunicationService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &communicationService{
		comms:       comms,
		donations:   donations,
		appeals:     appeals,
		audits:      audits,
		txManager:   txManager,
		publisher:   publisher,
		feed:        feed,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// NotifyDonors turns an approve/reject instruction into a communication and attempts
// delivery once. A failed attempt stays in the table as FAILED for RetryFailed.
func (s *communicationService) NotifyDonors(ctx context.Context, in workflow.NotifyDonors) error {
	donors, err := s.donations.DonorsForAppeal(ctx, in.AppealID)
	if err != nil {
		return fmt.Errorf("failed to resolve donors: %w", err)
	}
	if len(donors) == 0 {
		slog.InfoContext(ctx, "no donors to notify", "appeal_id", in.AppealID, "trigger", in.Trigger)
		return nil
	}

	trigger := model.TriggerApproval
	if in.Trigger == workflow.TriggerRejected {
		trigger = model.TriggerRejection
	}
	vars := map[string]string{
		"appeal_title": in.AppealTitle,
		"reason":       in.Reason,
	}
	if in.ApprovedAmount != nil {
		vars["approved_amount"] = in.ApprovedAmount.StringFixed(2)
	}
	tpl := templateForTrigger(trigger)

	c, err := s.record(ctx, workflow.Actor{}, model.Communication{
		AppealID: in.AppealID,
		Trigger:  trigger,
		Channel:  tpl.Channel,
		Subject:  render(tpl.Subject, vars),
		Message:  render(tpl.Body, vars),
	}, donors)
	if err != nil {
		return err
	}

	return s.deliver(ctx, c)
}

func (s *communicationService) Send(ctx context.Context, actor workflow.Actor, req SendCommunicationRequest) (*CommunicationResponse, error) {
	v := &workflow.ValidationError{}

	appealID, err := uuid.Parse(strings.TrimSpace(req.AppealID))
	if err != nil {
		v.Add("appeal_id", "must be a valid id")
	}

	channel := strings.ToUpper(strings.TrimSpace(req.Channel))
	if channel == "" {
		channel = model.ChannelEmail
	}
	if !slices.Contains([]string{model.ChannelEmail, model.ChannelSMS, model.ChannelWhatsApp}, channel) {
		v.Add("channel", "must be one of EMAIL, SMS, WHATSAPP")
	}

	recipientType := strings.ToUpper(strings.TrimSpace(req.RecipientType))
	if recipientType == "" {
		recipientType = RecipientsAllDonors
	}
	switch recipientType {
	case RecipientsAllDonors:
	case RecipientsSelectedDonors:
		if len(req.Recipients) == 0 {
			v.Add("recipients", "is required when recipient_type is SELECTED_DONORS")
		}
	default:
		v.Add("recipient_type", "must be ALL_DONORS or SELECTED_DONORS")
	}

	subject, message := strings.TrimSpace(req.Subject), strings.TrimSpace(req.Message)
	var tpl *Template
	if req.TemplateID != "" {
		t, ok := templateByID(req.TemplateID)
		if !ok {
			v.Add("template_id", "unknown template")
		} else {
			tpl = &t
		}
	}
	if message == "" && tpl == nil {
		v.Add("message", "is required")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	appeal, err := s.appeals.FindByID(ctx, appealID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, workflow.NewValidationError("appeal_id", "appeal does not exist")
		}
		return nil, err
	}

	if tpl != nil {
		vars := map[string]string{"appeal_title": appeal.Title, "message": message}
		if appeal.ApprovedAmount != nil {
			vars["approved_amount"] = appeal.ApprovedAmount.StringFixed(2)
		}
		if appeal.RejectionReason != nil {
			vars["reason"] = *appeal.RejectionReason
		}
		if subject == "" {
			subject = render(tpl.Subject, vars)
		}
		message = render(tpl.Body, vars)
	}

	donors, err := s.donations.DonorsForAppeal(ctx, appeal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve donors: %w", err)
	}
	if recipientType == RecipientsSelectedDonors {
		donors = selectDonors(donors, req.Recipients)
	}
	if len(donors) == 0 {
		return nil, workflow.NewValidationError("recipients", "no donors match the selection")
	}

	c, err := s.record(ctx, actor, model.Communication{
		AppealID: appeal.ID,
		Trigger:  model.TriggerManual,
		Channel:  channel,
		Subject:  subject,
		Message:  message,
	}, donors)
	if err != nil {
		return nil, err
	}

	if err := s.deliver(ctx, c); err != nil {
		slog.WarnContext(ctx, "manual communication failed", "communication_id", c.ID, "error", err)
	}
	res := toCommunicationResponse(*c)
	return &res, nil
}

// Retry re-publishes one FAILED communication on request, regardless of the attempt cap.
func (s *communicationService) Retry(ctx context.Context, actor workflow.Actor, id string) (*CommunicationResponse, error) {
	commID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	c, err := s.comms.FindByID(ctx, commID)
	if err != nil {
		return nil, err
	}
	if !s.retryable(c) {
		return nil, workflow.NewValidationError("status", "only FAILED or stalled PENDING communications can be retried (current: "+c.Status+")")
	}

	if err := s.deliver(ctx, c); err != nil {
		slog.WarnContext(ctx, "communication retry failed", "communication_id", c.ID, "actor_id", actor.ID, "error", err)
	}
	res := toCommunicationResponse(*c)
	return &res, nil
}

func (s *communicationService) retryable(c *model.Communication) bool {
	switch c.Status {
	case model.CommunicationFailed:
		return true
	case model.CommunicationPending:
		return c.UpdatedAt.Before(s.now().Add(-pendingGrace))
	default:
		return false
	}
}

// RetryFailed re-publishes FAILED and stalled PENDING communications below the attempt cap
// and reports how many went out.
func (s *communicationService) RetryFailed(ctx context.Context) (int, error) {
	rows, err := s.comms.ListRetryable(ctx, s.maxAttempts, s.now().Add(-pendingGrace), retryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load retryable communications: %w", err)
	}

	sent := 0
	for i := range rows {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := s.deliver(ctx, &rows[i]); err != nil {
			slog.WarnContext(ctx, "communication retry failed",
				"communication_id", rows[i].ID,
				"attempts", rows[i].Attempts,
				"error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *communicationService) List(ctx context.Context, query CommunicationQuery) ([]CommunicationResponse, int64, error) {
	appealID, err := parseOptionalID("appeal_id", query.AppealID)
	if err != nil {
		return nil, 0, err
	}

	rows, total, err := s.comms.List(ctx, repository.CommunicationFilter{
		AppealID: appealID,
		Trigger:  strings.ToUpper(query.Trigger),
		Channel:  strings.ToUpper(query.Channel),
		Status:   strings.ToUpper(query.Status),
		Page:     query.Page,
		Limit:    query.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list communications: %w", err)
	}

	res := make([]CommunicationResponse, 0, len(rows))
	for _, c := range rows {
		res = append(res, toCommunicationResponse(c))
	}
	return res, total, nil
}

func (s *communicationService) Templates() []Template {
	return Templates()
}

func (s *communicationService) Stats(ctx context.Context) (*repository.CommunicationStats, error) {
	stats, err := s.comms.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load communication stats: %w", err)
	}
	return &stats, nil
}

// record stores a PENDING communication with its recipient snapshot and audit row.
func (s *communicationService) record(ctx context.Context, actor workflow.Actor, c model.Communication, donors []model.Donor) (*model.Communication, error) {
	recipients, err := json.Marshal(donors)
	if err != nil {
		return nil, fmt.Errorf("encode recipients: %w", err)
	}
	c.Recipients = datatypes.JSON(recipients)
	c.RecipientCount = len(donors)
	c.Status = model.CommunicationPending
	if actor.ID != uuid.Nil {
		id := actor.ID
		c.SentBy = &id
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.comms.Create(txCtx, &c); err != nil {
			return fmt.Errorf("failed to record communication: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionSendCommunication, c.AppealID.String(), c.Subject, map[string]any{
			"communication_id": c.ID.String(),
			"trigger":          c.Trigger,
			"channel":          c.Channel,
			"recipients":       c.RecipientCount,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// deliver makes one publish attempt and stores its outcome on c. The outcome is written even
// when ctx was cancelled during the attempt.
func (s *communicationService) deliver(ctx context.Context, c *model.Communication) error {
	event, err := notify.FromCommunication(*c)
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}

	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	c.Attempts++
	if err != nil {
		c.Status = model.CommunicationFailed
		c.LastError = err.Error()
	} else {
		c.Status = model.CommunicationSent
		c.LastError = ""
		c.SentAt = &now
	}

	if uerr := s.comms.Update(ctx, c); uerr != nil {
		return errors.Join(err, fmt.Errorf("failed to store delivery outcome: %w", uerr))
	}

	publishFeed(ctx, s.feed, notify.Event{
		ID:         c.ID,
		Kind:       notify.KindForTrigger(c.Trigger),
		AppealID:   c.AppealID,
		Status:     c.Status,
		Channel:    strings.ToLower(c.Channel),
		Subject:    c.Subject,
		OccurredAt: now,
	})
	return err
}

// selectDonors keeps the donors whose email or phone appears in keys.
func selectDonors(donors []model.Donor, keys []string) []model.Donor {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			wanted[k] = true
		}
	}

	var out []model.Donor
	for _, d := range donors {
		if (d.Email != "" && wanted[strings.ToLower(d.Email)]) || (d.Phone != "" && wanted[strings.ToLower(d.Phone)]) {
			out = append(out, d)
		}
	}
	return out
}

func toCommunicationResponse(c model.Communication) CommunicationResponse {
	res := CommunicationResponse{
		ID:             c.ID.String(),
		AppealID:       c.AppealID.String(),
		Trigger:        c.Trigger,
		Channel:        c.Channel,
		Subject:        c.Subject,
		Message:        c.Message,
		RecipientCount: c.RecipientCount,
		Recipients:     []model.Donor{},
		Status:         c.Status,
		Attempts:       c.Attempts,
		LastError:      c.LastError,
		SentAt:         formatTimePtr(c.SentAt),
		CreatedAt:      c.CreatedAt.Format(timeLayout),
	}
	if c.SentBy != nil {
		res.SentBy = c.SentBy.String()
	}
	if len(c.Recipients) > 0 {
		_ = json.Unmarshal(c.Recipients, &res.Recipients)
	}
	return res
}
