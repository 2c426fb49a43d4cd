package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/workflow"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCommunicationService_NotifyDonorsWithoutDonors(t *testing.T) {
	e := newEnv(t)
	appeal := e.submitted(t)
	amount := decimal.NewFromInt(100)

	err := e.comms.NotifyDonors(context.Background(), workflow.NotifyDonors{
		AppealID:       mustUUID(appeal.ID),
		AppealTitle:    appeal.Title,
		Trigger:        workflow.TriggerApproved,
		ApprovedAmount: &amount,
	})
	require.NoError(t, err)
	assert.Empty(t, e.publisher.Events())

	_, total, err := e.comms.List(context.Background(), CommunicationQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCommunicationService_RejectionUsesReason(t *testing.T) {
	e := newEnv(t)
	appeal := e.submitted(t)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)

	_, err := e.appeals.Reject(context.Background(), e.approver, appeal.ID, RejectRequest{Reason: "Scope overlaps another appeal"})
	require.NoError(t, err)

	events := e.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "appeal.rejected", events[0].Kind)
	assert.Contains(t, events[0].Message, "Scope overlaps another appeal")
	assert.Equal(t, "Update on School Renovation", events[0].Subject)
}

func TestCommunicationService_RetryFailed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)

	e.publisher.setErr(errors.New("connection refused"))
	res, err := e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(9000)})
	require.NoError(t, err)
	require.Error(t, res.Warning)

	sent, err := e.comms.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	e.publisher.setErr(nil)
	sent, err = e.comms.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	comms, _, err := e.comms.List(ctx, CommunicationQuery{AppealID: appeal.ID})
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, model.CommunicationSent, comms[0].Status)
	assert.Equal(t, 3, comms[0].Attempts)
	assert.Empty(t, comms[0].LastError)
	assert.NotEmpty(t, comms[0].SentAt)

	sent, err = e.comms.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "sent communications are not retried")
}

func TestCommunicationService_RetryFailedStopsAtCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)

	e.publisher.setErr(errors.New("connection refused"))
	_, err := e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(9000)})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := e.comms.RetryFailed(ctx)
		require.NoError(t, err)
	}

	comms, _, err := e.comms.List(ctx, CommunicationQuery{AppealID: appeal.ID})
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, model.CommunicationFailed, comms[0].Status)
	assert.Equal(t, 3, comms[0].Attempts)

	// A manual retry ignores the cap.
	e.publisher.setErr(nil)
	retried, err := e.comms.Retry(ctx, e.approver, comms[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommunicationSent, retried.Status)
	assert.Equal(t, 4, retried.Attempts)

	_, err = e.comms.Retry(ctx, e.approver, comms[0].ID)
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestCommunicationService_OutcomeStoredWhenRequestCancelled(t *testing.T) {
	e := newEnv(t)
	appeal := e.submitted(t)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.publisher.setHook(func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	res, err := e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(9000)})
	require.NoError(t, err)
	require.Error(t, res.Warning)
	assert.ErrorIs(t, res.Warning, context.Canceled)

	bg := context.Background()
	comms, _, err := e.comms.List(bg, CommunicationQuery{AppealID: appeal.ID})
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, model.CommunicationFailed, comms[0].Status)
	assert.Equal(t, 1, comms[0].Attempts)

	e.publisher.setHook(nil)
	sent, err := e.comms.RetryFailed(bg)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestCommunicationService_RetriesStalledPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)

	// A row whose first attempt never recorded an outcome.
	c := model.Communication{
		AppealID:       mustUUID(appeal.ID),
		Trigger:        model.TriggerApproval,
		Channel:        model.ChannelEmail,
		Subject:        "Update",
		Message:        "Approved",
		Recipients:     datatypes.JSON(`[{"name":"Ravi","email":"ravi@example.org"}]`),
		RecipientCount: 1,
		Status:         model.CommunicationPending,
	}
	require.NoError(t, e.db.Create(&c).Error)

	sent, err := e.comms.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "fresh PENDING rows may still be in flight")
	_, err = e.comms.Retry(ctx, e.approver, c.ID.String())
	assert.ErrorIs(t, err, workflow.ErrValidation)

	require.NoError(t, e.db.Model(&c).UpdateColumn("updated_at", time.Now().Add(-10*time.Minute)).Error)

	sent, err = e.comms.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	var stored model.Communication
	require.NoError(t, e.db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, model.CommunicationSent, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.Len(t, e.publisher.Events(), 1)
	assert.Equal(t, "ravi@example.org", e.publisher.Events()[0].Recipients[0].Email)
}

func TestCommunicationService_SendSelectedDonors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)
	e.pledge(t, appeal.ID, "Meera", "meera@example.org", 2500)

	res, err := e.comms.Send(ctx, e.creator, SendCommunicationRequest{
		AppealID:      appeal.ID,
		Channel:       "sms",
		TemplateID:    "thank-you-sms",
		Message:       "Construction starts Monday.",
		RecipientType: RecipientsSelectedDonors,
		Recipients:    []string{"MEERA@example.org"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.TriggerManual, res.Trigger)
	assert.Equal(t, model.ChannelSMS, res.Channel)
	assert.Equal(t, model.CommunicationSent, res.Status)
	require.Len(t, res.Recipients, 1)
	assert.Equal(t, "Meera", res.Recipients[0].Name)
	assert.Equal(t, "Thank you for supporting School Renovation. Construction starts Monday.", res.Message)
	assert.Equal(t, e.creator.ID.String(), res.SentBy)

	events := e.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "appeal.manual", events[0].Kind)
	assert.Equal(t, "sms", events[0].Channel)

	stats, err := e.comms.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 1, stats.RecipientsReached)
}

func TestCommunicationService_SendValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)

	_, err := e.comms.Send(ctx, e.creator, SendCommunicationRequest{AppealID: "nope", Channel: "PIGEON", RecipientType: "SOME"})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)

	_, err = e.comms.Send(ctx, e.creator, SendCommunicationRequest{
		AppealID:      appeal.ID,
		Message:       "hello",
		RecipientType: RecipientsSelectedDonors,
		Recipients:    []string{"stranger@example.org"},
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)
	assert.Contains(t, err.Error(), "no donors match")
}

func TestCommunicationService_SendRecordsFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)
	e.publisher.setErr(errors.New("exchange not found"))

	res, err := e.comms.Send(ctx, e.creator, SendCommunicationRequest{AppealID: appeal.ID, Message: "Update"})
	require.NoError(t, err)
	assert.Equal(t, model.CommunicationFailed, res.Status)
	assert.Equal(t, "exchange not found", res.LastError)
}

func TestTemplates(t *testing.T) {
	tpls := Templates()
	require.NotEmpty(t, tpls)
	tpls[0].Subject = "changed"
	assert.NotEqual(t, "changed", Templates()[0].Subject)

	got := render("{{appeal_title}} needs {{approved_amount}} {{unknown}}", map[string]string{
		"appeal_title":    "Clinic",
		"approved_amount": "100.00",
	})
	assert.Equal(t, "Clinic needs 100.00 {{unknown}}", got)
}
