package workflow

import (
	"errors"
	"testing"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(DefaultPolicy()).WithClock(func() time.Time { return fixedNow })
}

func creator() Actor {
	return Actor{ID: uuid.New(), Role: model.RoleITCAdmin}
}

func approver() Actor {
	return Actor{ID: uuid.New(), Role: model.RoleMissionAuthority}
}

func validInput() AppealInput {
	return AppealInput{
		Title:               "School kits for Nagpur district",
		Description:         "Books and uniforms for 200 children",
		EstimatedAmount:     decimal.NewFromInt(500000),
		BeneficiaryCategory: "education",
		Duration:            "6 months",
	}
}

func submitted(t *testing.T, e *Engine, owner Actor) model.Appeal {
	t.Helper()
	a, err := e.Create(validInput(), owner)
	require.NoError(t, err)
	a, err = e.Submit(a, owner)
	require.NoError(t, err)
	return a
}

func TestEngine_CreateSubmitApprove(t *testing.T) {
	e := newTestEngine()
	owner := creator()

	a, err := e.Create(validInput(), owner)
	require.NoError(t, err)
	assert.Equal(t, string(Draft), a.Status)
	assert.Equal(t, owner.ID, a.CreatedBy)
	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.True(t, a.EstimatedAmount.Equal(decimal.NewFromInt(500000)))

	a, err = e.Submit(a, owner)
	require.NoError(t, err)
	assert.Equal(t, string(Submitted), a.Status)
	require.NotNil(t, a.SubmittedAt)
	assert.Equal(t, fixedNow, *a.SubmittedAt)

	boss := approver()
	a, notice, err := e.Approve(a, ApproveInput{ApprovedAmount: decimal.NewFromInt(450000), Remarks: " ok "}, boss)
	require.NoError(t, err)
	assert.Equal(t, string(Approved), a.Status)
	require.NotNil(t, a.ApprovedAmount)
	assert.True(t, a.ApprovedAmount.Equal(decimal.NewFromInt(450000)))
	assert.Nil(t, a.RejectionReason)
	assert.Equal(t, "ok", a.Remarks)
	require.NotNil(t, a.DecidedBy)
	assert.Equal(t, boss.ID, *a.DecidedBy)

	assert.Equal(t, TriggerApproved, notice.Trigger)
	assert.Equal(t, a.ID, notice.AppealID)
	require.NotNil(t, notice.ApprovedAmount)
	assert.True(t, notice.ApprovedAmount.Equal(decimal.NewFromInt(450000)))
	assert.NoError(t, CheckInvariants(a))
}

func TestEngine_Reject(t *testing.T) {
	e := newTestEngine()
	a := submitted(t, e, creator())

	a, notice, err := e.Reject(a, "Insufficient documentation", approver())
	require.NoError(t, err)
	assert.Equal(t, string(Rejected), a.Status)
	require.NotNil(t, a.RejectionReason)
	assert.Equal(t, "Insufficient documentation", *a.RejectionReason)
	assert.Nil(t, a.ApprovedAmount)
	assert.Equal(t, TriggerRejected, notice.Trigger)
	assert.Equal(t, "Insufficient documentation", notice.Reason)
	assert.NoError(t, CheckInvariants(a))
}

func TestEngine_ApproveDraftIsInvalidTransition(t *testing.T) {
	e := newTestEngine()
	a, err := e.Create(validInput(), creator())
	require.NoError(t, err)
	before := a

	_, _, err = e.Approve(a, ApproveInput{ApprovedAmount: decimal.NewFromInt(100)}, approver())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var ite *InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, Draft, ite.From)
	assert.Equal(t, Submitted, ite.Required)
	assert.Equal(t, "appeal must be in SUBMITTED state to approve (current: DRAFT)", err.Error())
	assert.Equal(t, before, a)
}

func TestEngine_ApproveZeroAmount(t *testing.T) {
	e := newTestEngine()
	a := submitted(t, e, creator())

	_, _, err := e.Approve(a, ApproveInput{ApprovedAmount: decimal.Zero}, approver())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, string(Submitted), a.Status)
	assert.Nil(t, a.ApprovedAmount)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "approved_amount", ve.Fields[0].Field)
}

func TestEngine_ApproveAmountPrecision(t *testing.T) {
	e := newTestEngine()
	a := submitted(t, e, creator())

	_, _, err := e.Approve(a, ApproveInput{ApprovedAmount: decimal.RequireFromString("100.005")}, approver())
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = e.Approve(a, ApproveInput{ApprovedAmount: decimal.RequireFromString("-5")}, approver())
	assert.ErrorIs(t, err, ErrValidation)

	got, _, err := e.Approve(a, ApproveInput{ApprovedAmount: decimal.RequireFromString("100.50")}, approver())
	require.NoError(t, err)
	assert.Equal(t, "100.5", got.ApprovedAmount.String())
}

func TestEngine_RejectEmptyReason(t *testing.T) {
	e := newTestEngine()
	a := submitted(t, e, creator())

	_, _, err := e.Reject(a, "   ", approver())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEngine_TerminalStatesAreFinal(t *testing.T) {
	e := newTestEngine()
	boss := approver()

	approved, _, err := e.Approve(submitted(t, e, creator()), ApproveInput{ApprovedAmount: decimal.NewFromInt(10)}, boss)
	require.NoError(t, err)
	rejected, _, err := e.Reject(submitted(t, e, creator()), "duplicate", boss)
	require.NoError(t, err)

	for _, a := range []model.Appeal{approved, rejected} {
		_, _, err := e.Approve(a, ApproveInput{ApprovedAmount: decimal.NewFromInt(10)}, boss)
		assert.ErrorIs(t, err, ErrInvalidTransition, a.Status)
		_, _, err = e.Reject(a, "again", boss)
		assert.ErrorIs(t, err, ErrInvalidTransition, a.Status)
	}
}

func TestEngine_SubmitOnlyFromDraft(t *testing.T) {
	e := newTestEngine()
	owner := creator()
	a := submitted(t, e, owner)

	_, err := e.Submit(a, owner)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngine_Forbidden(t *testing.T) {
	e := newTestEngine()
	owner := creator()

	_, err := e.Create(validInput(), Actor{ID: uuid.New(), Role: model.RoleViewer})
	assert.ErrorIs(t, err, ErrForbidden)

	draft, err := e.Create(validInput(), owner)
	require.NoError(t, err)

	stranger := Actor{ID: uuid.New(), Role: model.RoleAccountsUser}
	_, err = e.Submit(draft, stranger)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, e.CanDelete(draft, stranger), ErrForbidden)

	admin := Actor{ID: uuid.New(), Role: model.RoleSuperAdmin}
	_, err = e.Submit(draft, admin)
	assert.NoError(t, err)

	sub := submitted(t, e, owner)
	_, _, err = e.Approve(sub, ApproveInput{ApprovedAmount: decimal.NewFromInt(1)}, owner)
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = e.Reject(sub, "no", owner)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEngine_ForbiddenCheckedBeforeState(t *testing.T) {
	e := newTestEngine()
	owner := creator()
	draft, err := e.Create(validInput(), owner)
	require.NoError(t, err)

	_, _, err = e.Approve(draft, ApproveInput{ApprovedAmount: decimal.Zero}, owner)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEngine_EditAndDeleteOnlyInDraft(t *testing.T) {
	e := newTestEngine()
	owner := creator()
	draft, err := e.Create(validInput(), owner)
	require.NoError(t, err)

	in := validInput()
	in.Title = "Revised"
	in.EstimatedAmount = decimal.NewFromInt(600000)
	edited, err := e.Edit(draft, in, owner)
	require.NoError(t, err)
	assert.Equal(t, "Revised", edited.Title)
	assert.Equal(t, draft.ID, edited.ID)
	assert.Equal(t, draft.CreatedAt, edited.CreatedAt)
	assert.NoError(t, e.CanDelete(draft, owner))

	sub, err := e.Submit(edited, owner)
	require.NoError(t, err)
	_, err = e.Edit(sub, in, owner)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, e.CanDelete(sub, owner), ErrInvalidTransition)
	assert.ErrorIs(t, e.CanAttach(sub, owner), ErrInvalidTransition)
}

func TestEngine_CreateValidation(t *testing.T) {
	e := newTestEngine()

	_, err := e.Create(AppealInput{EstimatedAmount: decimal.NewFromInt(-1)}, creator())
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	fields := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"title", "description", "estimated_amount", "beneficiary_category", "duration"}, fields)
}

func TestEngine_CreateWithDocuments(t *testing.T) {
	e := newTestEngine()
	owner := creator()
	in := validInput()
	in.Documents = []DocumentInput{{FileName: "budget.pdf", ContentType: "application/pdf", SizeBytes: 2048}}

	a, err := e.Create(in, owner)
	require.NoError(t, err)
	require.Len(t, a.Documents, 1)
	assert.Equal(t, a.ID, a.Documents[0].AppealID)
	assert.Equal(t, owner.ID, a.Documents[0].UploadedBy)

	in.Documents = []DocumentInput{{FileName: " "}}
	_, err = e.Create(in, owner)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCheckInvariants(t *testing.T) {
	amount := decimal.NewFromInt(10)
	reason := "nope"

	cases := []struct {
		name    string
		appeal  model.Appeal
		wantErr bool
	}{
		{"draft clean", model.Appeal{Status: string(Draft)}, false},
		{"draft with amount", model.Appeal{Status: string(Draft), ApprovedAmount: &amount}, true},
		{"approved without amount", model.Appeal{Status: string(Approved)}, true},
		{"approved with amount", model.Appeal{Status: string(Approved), ApprovedAmount: &amount}, false},
		{"approved with reason", model.Appeal{Status: string(Approved), ApprovedAmount: &amount, RejectionReason: &reason}, true},
		{"rejected without reason", model.Appeal{Status: string(Rejected)}, true},
		{"rejected with reason", model.Appeal{Status: string(Rejected), RejectionReason: &reason}, false},
		{"unknown status", model.Appeal{Status: "ARCHIVED"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckInvariants(tc.appeal)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
