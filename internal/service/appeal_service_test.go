package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"donationdesk/internal/model"
	"donationdesk/internal/notify"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppealService_CreateSubmitApprove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)
	assert.Equal(t, model.AppealStatusDraft, created.Status)
	assert.Nil(t, created.ApprovedAmount)
	require.Len(t, created.Documents, 1)
	assert.Equal(t, "User itc_admin", created.CreatorName)

	submitted, err := e.appeals.Submit(ctx, e.creator, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppealStatusSubmitted, submitted.Status)
	assert.NotEmpty(t, submitted.SubmittedAt)

	res, err := e.appeals.Approve(ctx, e.approver, created.ID, ApproveRequest{
		ApprovedAmount: decimal.NewFromInt(450000),
		Remarks:        "phase one only",
	})
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, model.AppealStatusApproved, res.Appeal.Status)
	require.NotNil(t, res.Appeal.ApprovedAmount)
	assert.True(t, res.Appeal.ApprovedAmount.Equal(decimal.NewFromInt(450000)))
	assert.True(t, res.Appeal.EstimatedAmount.Equal(decimal.NewFromInt(500000)))
	assert.Nil(t, res.Appeal.RejectionReason)
	assert.Equal(t, e.approver.ID.String(), res.Appeal.DecidedBy)

	require.NotNil(t, res.Instruction)
	assert.Equal(t, workflow.TriggerApproved, res.Instruction.Trigger)
	assert.Equal(t, "School Renovation", res.Instruction.AppealTitle)

	logs, total, err := e.audits.List(ctx, AuditQuery{EntityID: created.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	actions := []string{}
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.ElementsMatch(t, []string{model.ActionCreateAppeal, model.ActionSubmitAppeal, model.ActionApproveAppeal}, actions)

	var kinds []string
	for _, ev := range e.feed.Events() {
		if ev.Kind == notify.KindAppealStatus {
			kinds = append(kinds, ev.Status)
		}
	}
	assert.Equal(t, []string{model.AppealStatusSubmitted, model.AppealStatusApproved}, kinds)
}

func TestAppealService_ApproveNotifiesPledgedDonors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)
	e.pledge(t, appeal.ID, "Ravi again", "RAVI@example.org", 500)
	e.pledge(t, appeal.ID, "Meera", "meera@example.org", 2500)

	res, err := e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(450000)})
	require.NoError(t, err)
	require.NoError(t, res.Warning)

	events := e.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.KindAppealApproved, events[0].Kind)
	assert.Len(t, events[0].Recipients, 2)
	assert.Contains(t, events[0].Message, "450000.00")

	comms, total, err := e.comms.List(ctx, CommunicationQuery{AppealID: appeal.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.TriggerApproval, comms[0].Trigger)
	assert.Equal(t, model.CommunicationSent, comms[0].Status)
	assert.Equal(t, 1, comms[0].Attempts)
	assert.Equal(t, 2, comms[0].RecipientCount)
}

func TestAppealService_NotificationFailureIsAWarning(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)
	e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 1000)
	e.publisher.setErr(errors.New("broker unreachable"))

	res, err := e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(450000)})
	require.NoError(t, err)
	require.Error(t, res.Warning)
	assert.ErrorIs(t, res.Warning, workflow.ErrNotificationDeliveryFailed)
	assert.Contains(t, res.Warning.Error(), "appeal approved; donor notification failed to send")
	assert.Equal(t, model.AppealStatusApproved, res.Appeal.Status)

	stored, err := e.appeals.Get(ctx, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppealStatusApproved, stored.Status)

	comms, _, err := e.comms.List(ctx, CommunicationQuery{AppealID: appeal.ID})
	require.NoError(t, err)
	require.Len(t, comms, 1)
	assert.Equal(t, model.CommunicationFailed, comms[0].Status)
	assert.Contains(t, comms[0].LastError, "broker unreachable")
}

func TestAppealService_Reject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)

	_, err := e.appeals.Reject(ctx, e.approver, appeal.ID, RejectRequest{Reason: "  "})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	res, err := e.appeals.Reject(ctx, e.approver, appeal.ID, RejectRequest{Reason: "Budget exhausted"})
	require.NoError(t, err)
	assert.Equal(t, model.AppealStatusRejected, res.Appeal.Status)
	require.NotNil(t, res.Appeal.RejectionReason)
	assert.Equal(t, "Budget exhausted", *res.Appeal.RejectionReason)
	assert.Nil(t, res.Appeal.ApprovedAmount)
	assert.Equal(t, workflow.TriggerRejected, res.Instruction.Trigger)

	_, err = e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(1)})
	var invalid *workflow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, workflow.Rejected, invalid.From)
}

func TestAppealService_ApproveDraftIsInvalidTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)

	_, err = e.appeals.Approve(ctx, e.approver, created.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.EqualError(t, err, "appeal must be in SUBMITTED state to approve (current: DRAFT)")

	stored, err := e.appeals.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppealStatusDraft, stored.Status)
}

func TestAppealService_Forbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)

	_, err := e.appeals.Approve(ctx, e.creator, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = e.appeals.Create(ctx, e.viewer, appealRequest())
	assert.ErrorIs(t, err, workflow.ErrForbidden)

	created, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)
	other := e.seedUser(t, model.RoleAccountsUser)
	_, err = e.appeals.Submit(ctx, other, created.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestAppealService_CreateValidation(t *testing.T) {
	e := newEnv(t)

	_, err := e.appeals.Create(context.Background(), e.creator, AppealRequest{EstimatedAmount: decimal.RequireFromString("10.005")})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["title"])
	assert.True(t, fields["description"])
	assert.True(t, fields["estimated_amount"])
	assert.True(t, fields["beneficiary_category"])
	assert.True(t, fields["duration"])

	_, total, err := e.appeals.List(context.Background(), AppealQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAppealService_UpdateAndDeleteOnlyInDraft(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)

	req := appealRequest()
	req.Title = "School Renovation (revised)"
	req.EstimatedAmount = decimal.RequireFromString("520000.50")
	updated, err := e.appeals.Update(ctx, e.creator, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "School Renovation (revised)", updated.Title)
	assert.True(t, updated.EstimatedAmount.Equal(decimal.RequireFromString("520000.50")))

	withDoc, err := e.appeals.AddDocument(ctx, e.creator, created.ID, DocumentRequest{FileName: "site-photos.zip"})
	require.NoError(t, err)
	assert.Len(t, withDoc.Documents, 2)

	_, err = e.appeals.Submit(ctx, e.creator, created.ID)
	require.NoError(t, err)

	_, err = e.appeals.Update(ctx, e.creator, created.ID, req)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = e.appeals.AddDocument(ctx, e.creator, created.ID, DocumentRequest{FileName: "late.pdf"})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.ErrorIs(t, e.appeals.Delete(ctx, e.creator, created.ID), workflow.ErrInvalidTransition)

	draft, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)
	require.NoError(t, e.appeals.Delete(ctx, e.creator, draft.ID))
	_, err = e.appeals.Get(ctx, draft.ID)
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestAppealService_ConcurrentDecisionsHaveOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)
	second := e.seedUser(t, model.RoleSuperAdmin)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = e.appeals.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(400000)})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = e.appeals.Reject(ctx, second, appeal.ID, RejectRequest{Reason: "duplicate request"})
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	}
	assert.Equal(t, 1, winners)

	stored, err := e.appeals.Get(ctx, appeal.ID)
	require.NoError(t, err)
	assert.Contains(t, []string{model.AppealStatusApproved, model.AppealStatusRejected}, stored.Status)
	if stored.Status == model.AppealStatusApproved {
		assert.Nil(t, stored.RejectionReason)
	} else {
		assert.Nil(t, stored.ApprovedAmount)
	}
}

// staleRepo hands out a SUBMITTED snapshot even after the row has moved on, the way a
// reader that lost a race sees it.
type staleRepo struct {
	repository.AppealRepository
	snapshot *model.Appeal
	reads    int
}

func (r *staleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Appeal, error) {
	r.reads++
	if r.reads == 1 {
		cp := *r.snapshot
		return &cp, nil
	}
	return r.AppealRepository.FindByID(ctx, id)
}

func TestAppealService_LostRaceMapsToInvalidTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.submitted(t)

	repo := repository.NewAppealRepository(e.db)
	snapshot, err := repo.FindByID(ctx, uuid.MustParse(appeal.ID))
	require.NoError(t, err)

	_, err = e.appeals.Reject(ctx, e.approver, appeal.ID, RejectRequest{Reason: "first decision"})
	require.NoError(t, err)

	stale := &staleRepo{AppealRepository: repo, snapshot: snapshot}
	svc := NewAppealService(workflow.NewEngine(workflow.DefaultPolicy()), stale, repository.NewAuditRepository(e.db),
		repository.NewTransactionManager(e.db), nil, nil)

	_, err = svc.Approve(ctx, e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(10)})
	var invalid *workflow.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, workflow.Rejected, invalid.From)
	assert.Equal(t, workflow.ActionApprove, invalid.Action)
}

func TestAppealService_ListsAndStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)
	pending := e.submitted(t)
	e.approved(t, 1000)

	list, total, err := e.appeals.PendingApprovals(ctx, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, pending.ID, list[0].ID)

	_, total, err = e.appeals.ApprovalHistory(ctx, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = e.appeals.List(ctx, AppealQuery{Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "legacy PENDING alias filters SUBMITTED")

	_, _, err = e.appeals.List(ctx, AppealQuery{Status: "ARCHIVED"})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	stats, err := e.appeals.ApprovalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, ApprovalStats{Pending: 1, Approved: 1, Rejected: 0, Drafts: 1}, *stats)
}

func TestAppealService_GetUnknownAndMalformedIDs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.appeals.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = e.appeals.Get(ctx, "5f0c7d1e-3c1b-4b0e-9d59-0f6f6e0b2a11")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}
