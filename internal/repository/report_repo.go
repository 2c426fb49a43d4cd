package repository

import (
	"context"
	"fmt"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FundTotals are the money columns summed over the appeals created in a range.
type FundTotals struct {
	Estimated decimal.Decimal
	Approved  decimal.Decimal
	Donated   decimal.Decimal
	Utilized  decimal.Decimal
}

type ReportRepository interface {
	AppealsInRange(ctx context.Context, r model.ReportRange, statuses []string) ([]model.Appeal, error)
	DonatedByAppeal(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	UtilizedByAppeal(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	Totals(ctx context.Context, r model.ReportRange) (FundTotals, error)
	ConfirmedDonations(ctx context.Context, r model.ReportRange) ([]model.Donation, error)
	Utilizations(ctx context.Context, r model.ReportRange) ([]model.Utilization, error)
	ImpactByAppeal(ctx context.Context, r model.ReportRange) ([]model.AppealImpact, error)
	BeneficiariesByCategory(ctx context.Context, r model.ReportRange) (map[string]int64, error)
	ImpactStories(ctx context.Context, r model.ReportRange, limit int) ([]model.Beneficiary, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func inRange(q *gorm.DB, column string, r model.ReportRange) *gorm.DB {
	if !r.From.IsZero() {
		q = q.Where(column+" >= ?", r.From)
	}
	if !r.To.IsZero() {
		q = q.Where(column+" <= ?", r.To)
	}
	return q
}

func (r *reportRepository) AppealsInRange(ctx context.Context, rng model.ReportRange, statuses []string) ([]model.Appeal, error) {
	var appeals []model.Appeal
	q := inRange(GetDB(ctx, r.db), "created_at", rng)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("created_at DESC").Find(&appeals).Error; err != nil {
		return nil, fmt.Errorf("failed to load appeals for report: %w", err)
	}
	return appeals, nil
}

type appealSum struct {
	AppealID uuid.UUID
	Total    decimal.Decimal
}

func (r *reportRepository) sumByAppeal(ctx context.Context, table any, column, where string, args []any, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q := GetDB(ctx, r.db).Model(table).
		Select("appeal_id, COALESCE(SUM("+column+"), 0) AS total").
		Where("appeal_id IN ?", ids)
	if where != "" {
		q = q.Where(where, args...)
	}

	var rows []appealSum
	if err := q.Group("appeal_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.AppealID] = row.Total
	}
	return out, nil
}

// DonatedByAppeal sums confirmed donations per appeal.
func (r *reportRepository) DonatedByAppeal(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out, err := r.sumByAppeal(ctx, &model.Donation{}, "amount", "status = ?", []any{model.DonationConfirmed}, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to sum donations: %w", err)
	}
	return out, nil
}

func (r *reportRepository) UtilizedByAppeal(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out, err := r.sumByAppeal(ctx, &model.Utilization{}, "amount_utilized", "", nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to sum utilizations: %w", err)
	}
	return out, nil
}

func (r *reportRepository) Totals(ctx context.Context, rng model.ReportRange) (FundTotals, error) {
	totals := FundTotals{Estimated: decimal.Zero, Approved: decimal.Zero, Donated: decimal.Zero, Utilized: decimal.Zero}
	db := GetDB(ctx, r.db)

	var appealSums struct {
		Estimated decimal.Decimal
		Approved  decimal.Decimal
	}
	if err := inRange(db.Model(&model.Appeal{}), "created_at", rng).
		Select("COALESCE(SUM(estimated_amount), 0) AS estimated, COALESCE(SUM(approved_amount), 0) AS approved").
		Scan(&appealSums).Error; err != nil {
		return totals, fmt.Errorf("failed to sum appeals: %w", err)
	}
	totals.Estimated = appealSums.Estimated
	totals.Approved = appealSums.Approved

	var donated struct{ Total decimal.Decimal }
	if err := inRange(db.Model(&model.Donation{}), "received_at", rng).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", model.DonationConfirmed).
		Scan(&donated).Error; err != nil {
		return totals, fmt.Errorf("failed to sum donations: %w", err)
	}
	totals.Donated = donated.Total

	var utilized struct{ Total decimal.Decimal }
	if err := inRange(db.Model(&model.Utilization{}), "utilization_date", rng).
		Select("COALESCE(SUM(amount_utilized), 0) AS total").
		Scan(&utilized).Error; err != nil {
		return totals, fmt.Errorf("failed to sum utilizations: %w", err)
	}
	totals.Utilized = utilized.Total
	return totals, nil
}

// ConfirmedDonations loads the date and amount of every confirmed donation received in rng.
func (r *reportRepository) ConfirmedDonations(ctx context.Context, rng model.ReportRange) ([]model.Donation, error) {
	var rows []model.Donation
	if err := inRange(GetDB(ctx, r.db), "received_at", rng).
		Select("id", "received_at", "amount").
		Where("status = ?", model.DonationConfirmed).
		Order("received_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load donations for report: %w", err)
	}
	return rows, nil
}

func (r *reportRepository) Utilizations(ctx context.Context, rng model.ReportRange) ([]model.Utilization, error) {
	var rows []model.Utilization
	if err := inRange(GetDB(ctx, r.db), "utilization_date", rng).
		Select("id", "utilization_date", "amount_utilized").
		Order("utilization_date ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load utilizations for report: %w", err)
	}
	return rows, nil
}

// ImpactByAppeal counts the beneficiaries registered in rng per appeal. Ratings of 0
// mean no feedback yet and stay out of the average.
func (r *reportRepository) ImpactByAppeal(ctx context.Context, rng model.ReportRange) ([]model.AppealImpact, error) {
	var rows []struct {
		AppealID      uuid.UUID
		Title         string
		People        int64
		WithFeedback  int64
		AverageRating float64
	}
	q := GetDB(ctx, r.db).Model(&model.Beneficiary{}).
		Select("beneficiaries.appeal_id AS appeal_id, appeals.title AS title, COUNT(*) AS people, " +
			"SUM(CASE WHEN beneficiaries.feedback_rating > 0 THEN 1 ELSE 0 END) AS with_feedback, " +
			"COALESCE(AVG(CASE WHEN beneficiaries.feedback_rating > 0 THEN beneficiaries.feedback_rating END), 0) AS average_rating").
		Joins("JOIN appeals ON appeals.id = beneficiaries.appeal_id")
	if err := inRange(q, "beneficiaries.created_at", rng).
		Group("beneficiaries.appeal_id, appeals.title").
		Order("people DESC, appeals.title ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate impact: %w", err)
	}

	out := make([]model.AppealImpact, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.AppealImpact{
			AppealID:      row.AppealID.String(),
			Title:         row.Title,
			Beneficiaries: row.People,
			WithFeedback:  row.WithFeedback,
			AverageRating: row.AverageRating,
		})
	}
	return out, nil
}

func (r *reportRepository) BeneficiariesByCategory(ctx context.Context, rng model.ReportRange) (map[string]int64, error) {
	var rows []struct {
		Category string
		Count    int64
	}
	if err := inRange(GetDB(ctx, r.db).Model(&model.Beneficiary{}), "created_at", rng).
		Select("category, COUNT(*) AS count").Group("category").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate beneficiaries: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Category] = row.Count
	}
	return out, nil
}

// ImpactStories returns the latest beneficiaries in rng who described the help they received.
func (r *reportRepository) ImpactStories(ctx context.Context, rng model.ReportRange, limit int) ([]model.Beneficiary, error) {
	var rows []model.Beneficiary
	if err := inRange(GetDB(ctx, r.db).Preload("Appeal"), "created_at", rng).
		Where("impact_received <> ''").
		Order("created_at DESC").Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load impact stories: %w", err)
	}
	return rows, nil
}
