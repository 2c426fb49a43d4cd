package repository

import (
	"context"
	"testing"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestUtilizationRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewUtilizationRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, model.RoleAccountsUser)
	a := seedAppeal(t, db, owner.ID, model.AppealStatusApproved)

	for i, amt := range []int64{300000, 220000} {
		u := model.Utilization{
			AppealID:        a.ID,
			UtilizationDate: time.Date(2026, 4, 1+i, 0, 0, 0, 0, time.UTC),
			Description:     "rations",
			AmountUtilized:  decimal.NewFromInt(amt),
			PaymentStatus:   model.PaymentPaid,
			CreatedBy:       owner.ID,
		}
		require.NoError(t, repo.Create(ctx, &u))
	}

	rows, err := repo.ListByAppeal(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	list, total, err := repo.List(ctx, UtilizationFilter{AppealID: &a.ID, PaymentStatus: model.PaymentPaid})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	stats, err := repo.Stats(ctx, &a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Count)
	assert.True(t, stats.Total.Equal(decimal.NewFromInt(520000)), stats.Total.String())

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBeneficiaryRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewBeneficiaryRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, model.RoleITCAdmin)
	a := seedAppeal(t, db, owner.ID, model.AppealStatusApproved)

	b1 := model.Beneficiary{AppealID: a.ID, Name: "Lata", Category: "education", FeedbackRating: 4, RegisteredBy: owner.ID}
	b2 := model.Beneficiary{AppealID: a.ID, Name: "Kiran", Category: "education", RegisteredBy: owner.ID}
	b3 := model.Beneficiary{AppealID: a.ID, Name: "Sunil", Category: "health", FeedbackRating: 5, RegisteredBy: owner.ID}
	for _, b := range []*model.Beneficiary{&b1, &b2, &b3} {
		require.NoError(t, repo.Create(ctx, b))
	}

	b2.FeedbackRating = 3
	b2.FeedbackText = "helpful"
	require.NoError(t, repo.Update(ctx, &b2))

	got, err := repo.FindByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FeedbackRating)

	rows, total, err := repo.List(ctx, BeneficiaryFilter{Category: "education"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)

	stats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.ByCategory["education"])
	assert.EqualValues(t, 3, stats.WithFeedback)
	assert.InDelta(t, 4.0, stats.AverageRating, 0.001)
}

func TestCommunicationRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewCommunicationRepository(db)
	ctx := context.Background()
	appealID := uuid.New()

	mk := func(status string, attempts, recipients int) *model.Communication {
		c := &model.Communication{
			AppealID:       appealID,
			Trigger:        model.TriggerApproval,
			Channel:        model.ChannelEmail,
			Message:        "hello",
			Recipients:     datatypes.JSON(`[]`),
			RecipientCount: recipients,
			Status:         status,
			Attempts:       attempts,
		}
		require.NoError(t, repo.Create(ctx, c))
		return c
	}
	mk(model.CommunicationSent, 1, 3)
	retry := mk(model.CommunicationFailed, 2, 2)
	mk(model.CommunicationFailed, 5, 2)
	mk(model.CommunicationPending, 0, 1)
	stalled := mk(model.CommunicationPending, 0, 1)
	require.NoError(t, db.Model(stalled).UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	rows, err := repo.ListRetryable(ctx, 5, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, stalled.ID, rows[0].ID, "oldest first")
	assert.Equal(t, retry.ID, rows[1].ID)

	retry.Status = model.CommunicationSent
	retry.Attempts++
	require.NoError(t, repo.Update(ctx, retry))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stats.Total)
	assert.EqualValues(t, 2, stats.ByStatus[model.CommunicationSent])
	assert.EqualValues(t, 2, stats.ByStatus[model.CommunicationPending])
	assert.EqualValues(t, 5, stats.RecipientsReached)
	assert.EqualValues(t, 5, stats.ByTrigger[model.TriggerApproval])

	list, total, err := repo.List(ctx, CommunicationFilter{AppealID: &appealID, Trigger: model.TriggerApproval, Status: model.CommunicationFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)
}

func TestUserAndAuditRepository(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	audits := NewAuditRepository(db)
	ctx := context.Background()

	u := model.User{Name: "Priya", Email: "priya@example.org", Password: "hash", Role: model.RoleMissionAuthority}
	require.NoError(t, users.Create(ctx, &u))

	got, err := users.GetByEmail(ctx, " Priya@Example.org ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	n, err := users.CountByRole(ctx, model.RoleMissionAuthority)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, audits.Log(ctx, &model.AuditLog{UserID: &u.ID, Action: model.ActionApproveAppeal, EntityID: "a-1", Details: datatypes.JSON(`{"amount":"10"}`)}))
	require.NoError(t, audits.Log(ctx, &model.AuditLog{Action: model.ActionSendCommunication, EntityID: "a-1"}))

	logs, total, err := audits.List(ctx, AuditFilter{EntityID: "a-1", Action: model.ActionApproveAppeal})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].User)
	assert.Equal(t, "Priya", logs[0].User.Name)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, err = users.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, users.Delete(ctx, u.ID), ErrNotFound)
}

func TestReportRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, model.RoleITCAdmin)
	a := seedAppeal(t, db, owner.ID, model.AppealStatusApproved)
	seedAppeal(t, db, owner.ID, model.AppealStatusDraft)

	seedDonation(t, db, a.ID, "Ravi", "ravi@example.org", 1000, model.DonationConfirmed)
	seedDonation(t, db, a.ID, "Anil", "anil@example.org", 50, model.DonationPending)
	require.NoError(t, db.Create(&model.Utilization{AppealID: a.ID, UtilizationDate: time.Now().UTC(), Description: "x", AmountUtilized: decimal.NewFromInt(700), PaymentStatus: model.PaymentPaid, CreatedBy: owner.ID}).Error)

	approved, err := repo.AppealsInRange(ctx, model.ReportRange{}, []string{model.AppealStatusApproved})
	require.NoError(t, err)
	require.Len(t, approved, 1)

	donated, err := repo.DonatedByAppeal(ctx, []uuid.UUID{a.ID})
	require.NoError(t, err)
	assert.True(t, donated[a.ID].Equal(decimal.NewFromInt(1000)))

	utilized, err := repo.UtilizedByAppeal(ctx, []uuid.UUID{a.ID})
	require.NoError(t, err)
	assert.True(t, utilized[a.ID].Equal(decimal.NewFromInt(700)))

	totals, err := repo.Totals(ctx, model.ReportRange{})
	require.NoError(t, err)
	assert.True(t, totals.Estimated.Equal(decimal.NewFromInt(1000000)), totals.Estimated.String())
	assert.True(t, totals.Approved.Equal(decimal.NewFromInt(450000)))
	assert.True(t, totals.Donated.Equal(decimal.NewFromInt(1000)))
	assert.True(t, totals.Utilized.Equal(decimal.NewFromInt(700)))
}

func TestReportRepository_FlowsAndImpact(t *testing.T) {
	db := newTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, model.RoleITCAdmin)
	a := seedAppeal(t, db, owner.ID, model.AppealStatusApproved)
	b := seedAppeal(t, db, owner.ID, model.AppealStatusApproved)

	seedDonation(t, db, a.ID, "Ravi", "ravi@example.org", 1000, model.DonationConfirmed)
	seedDonation(t, db, a.ID, "Anil", "anil@example.org", 50, model.DonationPending)
	seedUtilization(t, db, a.ID, owner.ID, "Rations", 700)

	donations, err := repo.ConfirmedDonations(ctx, model.ReportRange{})
	require.NoError(t, err)
	require.Len(t, donations, 1)
	assert.True(t, donations[0].Amount.Equal(decimal.NewFromInt(1000)))
	assert.False(t, donations[0].ReceivedAt.IsZero())

	spent, err := repo.Utilizations(ctx, model.ReportRange{})
	require.NoError(t, err)
	require.Len(t, spent, 1)
	assert.True(t, spent[0].AmountUtilized.Equal(decimal.NewFromInt(700)))

	future := model.ReportRange{From: time.Now().Add(48 * time.Hour)}
	spent, err = repo.Utilizations(ctx, future)
	require.NoError(t, err)
	assert.Empty(t, spent)

	people := []model.Beneficiary{
		{AppealID: a.ID, Name: "Lakshmi", Category: "student", FeedbackRating: 4, ImpactReceived: "Finished school", RegisteredBy: owner.ID},
		{AppealID: a.ID, Name: "Gopal", Category: "student", FeedbackRating: 2, RegisteredBy: owner.ID},
		{AppealID: a.ID, Name: "Meena", Category: "farmer", RegisteredBy: owner.ID},
		{AppealID: b.ID, Name: "Suresh", Category: "farmer", FeedbackRating: 5, ImpactReceived: "New seeds", RegisteredBy: owner.ID},
	}
	for i := range people {
		require.NoError(t, db.Create(&people[i]).Error)
	}

	impact, err := repo.ImpactByAppeal(ctx, model.ReportRange{})
	require.NoError(t, err)
	require.Len(t, impact, 2)
	assert.Equal(t, a.ID.String(), impact[0].AppealID)
	assert.EqualValues(t, 3, impact[0].Beneficiaries)
	assert.EqualValues(t, 2, impact[0].WithFeedback)
	assert.InDelta(t, 3.0, impact[0].AverageRating, 0.001, "unrated people stay out of the average")
	assert.EqualValues(t, 1, impact[1].Beneficiaries)
	assert.InDelta(t, 5.0, impact[1].AverageRating, 0.001)

	categories, err := repo.BeneficiariesByCategory(ctx, model.ReportRange{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"student": 2, "farmer": 2}, categories)

	stories, err := repo.ImpactStories(ctx, model.ReportRange{}, 10)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	for _, s := range stories {
		assert.NotEmpty(t, s.ImpactReceived)
		require.NotNil(t, s.Appeal)
	}
	stories, err = repo.ImpactStories(ctx, model.ReportRange{}, 1)
	require.NoError(t, err)
	assert.Len(t, stories, 1)
}
