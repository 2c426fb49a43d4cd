package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/workflow"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonationService_Record(t *testing.T) {
	e := newEnv(t)
	appeal := e.approved(t, 10000)

	d := e.pledge(t, appeal.ID, "Ravi Kumar", " Ravi@Example.org ", 2500)
	assert.Equal(t, model.DonationPending, d.Status)
	assert.Equal(t, "ravi@example.org", d.DonorEmail)
	assert.Equal(t, appeal.Title, d.AppealTitle)
	assert.True(t, strings.HasPrefix(d.ReceiptNo, "RCPT-"+time.Now().UTC().Format("20060102")+"-"))
	assert.Len(t, d.ReceiptNo, len("RCPT-20060102-00001"))

	second := e.pledge(t, appeal.ID, "Meera", "", 100)
	assert.NotEqual(t, d.ReceiptNo, second.ReceiptNo)
}

func TestDonationService_RecordValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.donations.Record(ctx, e.creator, RecordDonationRequest{
		AppealID: "bad",
		Amount:   decimal.RequireFromString("-5"),
		Mode:     "barter",
	})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)

	_, err = e.donations.Record(ctx, e.creator, RecordDonationRequest{
		AppealID:  appealIDOfDraft(t, e),
		DonorName: "Ravi",
		Amount:    decimal.NewFromInt(10),
		Mode:      model.DonationModeCheque,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cheque_number", verr.Fields[0].Field)

	_, err = e.donations.Record(ctx, e.creator, RecordDonationRequest{
		AppealID:  appealIDOfDraft(t, e),
		DonorName: "Ravi",
		Amount:    decimal.NewFromInt(10),
		Mode:      model.DonationModeCash,
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)
	assert.Contains(t, err.Error(), "appeal must be SUBMITTED or APPROVED (current: DRAFT)")
}

func appealIDOfDraft(t *testing.T, e *env) string {
	t.Helper()
	created, err := e.appeals.Create(context.Background(), e.creator, appealRequest())
	require.NoError(t, err)
	return created.ID
}

func TestDonationService_ConfirmAndFail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	d := e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 2500)

	confirmed, err := e.donations.Confirm(ctx, e.creator, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DonationConfirmed, confirmed.Status)

	_, err = e.donations.Confirm(ctx, e.creator, d.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	_, err = e.donations.Fail(ctx, e.creator, d.ID, FailDonationRequest{Reason: "bounced"})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	other := e.pledge(t, appeal.ID, "Meera", "meera@example.org", 100)
	_, err = e.donations.Fail(ctx, e.creator, other.ID, FailDonationRequest{})
	assert.ErrorIs(t, err, workflow.ErrValidation)
	failed, err := e.donations.Fail(ctx, e.creator, other.ID, FailDonationRequest{Reason: "cheque bounced"})
	require.NoError(t, err)
	assert.Equal(t, model.DonationFailed, failed.Status)
	assert.Equal(t, "cheque bounced", failed.FailureReason)

	stats, err := e.donations.Stats(ctx, appeal.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Count)
	assert.True(t, stats.Confirmed.Equal(decimal.NewFromInt(2500)))
	assert.EqualValues(t, 1, stats.ByStatus[model.DonationFailed])

	list, total, err := e.donations.List(ctx, DonationQuery{Status: "confirmed"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, d.ID, list[0].ID)
}

func TestDonationService_ConcurrentConfirmHasOneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	d := e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 2500)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.donations.Confirm(ctx, e.creator, d.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestUtilizationService_OverUtilizationIsFlagged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 100000)

	first, err := e.utilizations.Record(ctx, e.creator, RecordUtilizationRequest{
		AppealID:       appeal.ID,
		Description:    "Roofing sheets",
		AmountUtilized: decimal.NewFromInt(70000),
		VendorName:     "Steelco",
		PaymentStatus:  "PAID",
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, first.Utilization.PaymentStatus)
	assert.True(t, first.Balance.Display.Equal(decimal.NewFromInt(30000)))
	assert.False(t, first.Balance.OverUtilized)

	second, err := e.utilizations.Record(ctx, e.creator, RecordUtilizationRequest{
		AppealID:       appeal.ID,
		Description:    "Labour",
		AmountUtilized: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)
	assert.True(t, second.Balance.Raw.Equal(decimal.NewFromInt(-20000)))
	assert.True(t, second.Balance.Display.IsZero())
	assert.True(t, second.Balance.OverUtilized)
	assert.Equal(t, model.PaymentPending, second.Utilization.PaymentStatus)

	bal, err := e.utilizations.Balance(ctx, appeal.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Balance.Raw.String(), bal.Raw.String())
	assert.True(t, bal.TotalUtilized.Equal(decimal.NewFromInt(120000)))

	stats, err := e.utilizations.Stats(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Count)
}

func TestUtilizationService_RequiresApprovedAppeal(t *testing.T) {
	e := newEnv(t)
	appeal := e.submitted(t)

	_, err := e.utilizations.Record(context.Background(), e.creator, RecordUtilizationRequest{
		AppealID:       appeal.ID,
		Description:    "Advance",
		AmountUtilized: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	_, err = e.utilizations.Record(context.Background(), e.creator, RecordUtilizationRequest{
		AppealID:       appeal.ID,
		Description:    "Advance",
		AmountUtilized: decimal.Zero,
	})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount_utilized", verr.Fields[0].Field)
}

func TestBeneficiaryService_AddUpdateStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)

	_, err := e.people.Add(ctx, e.creator, BeneficiaryRequest{AppealID: appeal.ID, Name: "Lakshmi", Category: "student", FeedbackRating: 6})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	b, err := e.people.Add(ctx, e.creator, BeneficiaryRequest{AppealID: appeal.ID, Name: "Lakshmi", Category: "student", Location: "Ward 4"})
	require.NoError(t, err)
	assert.Zero(t, b.FeedbackRating)
	assert.Equal(t, appeal.Title, b.AppealTitle)

	updated, err := e.people.Update(ctx, e.creator, b.ID, BeneficiaryRequest{
		Name:           "Lakshmi",
		Category:       "student",
		FeedbackRating: 5,
		FeedbackText:   "New classroom is dry",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.FeedbackRating)
	assert.Equal(t, appeal.ID, updated.AppealID)

	_, err = e.people.Add(ctx, e.creator, BeneficiaryRequest{AppealID: appeal.ID, Name: "Arun", Category: "student", FeedbackRating: 3})
	require.NoError(t, err)

	stats, err := e.people.Stats(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 2, stats.ByCategory["student"])
	assert.InDelta(t, 4.0, stats.AverageRating, 0.001)
}

func TestDonationService_UpdateOnlyWhilePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 10000)
	d := e.pledge(t, appeal.ID, "Ravi", "ravi@example.org", 2500)

	_, err := e.donations.Update(ctx, e.creator, d.ID, UpdateDonationRequest{DonorName: "Ravi", Amount: decimal.NewFromInt(100), Mode: model.DonationModeCheque})
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cheque_number", verr.Fields[0].Field)

	updated, err := e.donations.Update(ctx, e.creator, d.ID, UpdateDonationRequest{
		DonorName:    "Ravi Kumar",
		DonorEmail:   " Ravi.Kumar@Example.org ",
		Amount:       decimal.NewFromInt(3000),
		Mode:         "Cheque",
		ChequeNumber: "000123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", updated.DonorName)
	assert.Equal(t, "ravi.kumar@example.org", updated.DonorEmail)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, model.DonationModeCheque, updated.Mode)
	assert.Equal(t, d.ReceiptNo, updated.ReceiptNo)
	assert.Equal(t, d.AppealID, updated.AppealID)

	var audits int64
	require.NoError(t, e.db.Model(&model.AuditLog{}).Where("action = ? AND entity_id = ?", model.ActionUpdateDonation, d.ID).Count(&audits).Error)
	assert.EqualValues(t, 1, audits)

	_, err = e.donations.Confirm(ctx, e.creator, d.ID)
	require.NoError(t, err)
	_, err = e.donations.Update(ctx, e.creator, d.ID, UpdateDonationRequest{DonorName: "Ravi", Amount: decimal.NewFromInt(1), Mode: model.DonationModeCash})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "only PENDING donations can be edited")

	_, err = e.donations.Update(ctx, e.creator, "f7c1c2a4-0000-4000-8000-000000000000", UpdateDonationRequest{DonorName: "X", Amount: decimal.NewFromInt(1), Mode: model.DonationModeCash})
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestUtilizationService_UpdateRecomputesBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	appeal := e.approved(t, 100000)

	rec, err := e.utilizations.Record(ctx, e.creator, RecordUtilizationRequest{
		AppealID:       appeal.ID,
		Description:    "Roofing sheets",
		AmountUtilized: decimal.NewFromInt(70000),
	})
	require.NoError(t, err)

	_, err = e.utilizations.Update(ctx, e.creator, rec.Utilization.ID, UpdateUtilizationRequest{Description: " ", AmountUtilized: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	res, err := e.utilizations.Update(ctx, e.creator, rec.Utilization.ID, UpdateUtilizationRequest{
		UtilizationDate: &day,
		Description:     "Roofing sheets and labour",
		AmountUtilized:  decimal.NewFromInt(120000),
		InvoiceNumber:   "INV-77",
		PaymentStatus:   "partial",
	})
	require.NoError(t, err)
	assert.Equal(t, appeal.ID, res.Utilization.AppealID)
	assert.Equal(t, appeal.Title, res.Utilization.AppealTitle)
	assert.Equal(t, "2026-03-14", res.Utilization.UtilizationDate)
	assert.Equal(t, model.PaymentPartial, res.Utilization.PaymentStatus)
	assert.Equal(t, "INV-77", res.Utilization.InvoiceNumber)
	assert.True(t, res.Balance.OverUtilized)
	assert.True(t, res.Balance.Raw.Equal(decimal.NewFromInt(-20000)))

	got, err := e.utilizations.Get(ctx, rec.Utilization.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountUtilized.Equal(decimal.NewFromInt(120000)))

	stats, err := e.utilizations.Stats(ctx, appeal.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Count, "an edit never adds a row")
}
