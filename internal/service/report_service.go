package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReportService interface {
	Summary(ctx context.Context, rng model.ReportRange) (*model.DashboardSummary, error)
	AppealWise(ctx context.Context, rng model.ReportRange, status string) ([]model.AppealReportRow, error)
	PendingBalance(ctx context.Context, rng model.ReportRange) ([]model.AppealReportRow, error)
	DonationUtilization(ctx context.Context, rng model.ReportRange) (*model.DonationUtilizationReport, error)
	BeneficiaryImpact(ctx context.Context, rng model.ReportRange) (*model.BeneficiaryImpactReport, error)
	DonationTrend(ctx context.Context, period string) ([]model.TrendPoint, error)
	AppealStatus(ctx context.Context) ([]model.StatusCount, error)
	RecentActivity(ctx context.Context, limit int) ([]model.Activity, error)
}

const (
	monthLayout        = "2006-01"
	defaultTrendMonths = 6
	maxTrendMonths     = 24
	impactStories      = 10
	defaultActivities  = 5
	maxActivities      = 50
)

type reportService struct {
	reports       repository.ReportRepository
	appeals       repository.AppealRepository
	beneficiaries repository.BeneficiaryRepository
	audits        repository.AuditRepository
	now           func() time.Time
}

func NewReportService(
	reports repository.ReportRepository,
	appeals repository.AppealRepository,
	beneficiaries repository.BeneficiaryRepository,
	audits repository.AuditRepository,
) ReportService {
	return &reportService{
		reports:       reports,
		appeals:       appeals,
		beneficiaries: beneficiaries,
		audits:        audits,
		now:           time.Now,
	}
}

// Summary aggregates fund totals within rng and current appeal counts for the dashboard.
func (s *reportService) Summary(ctx context.Context, rng model.ReportRange) (*model.DashboardSummary, error) {
	totals, err := s.reports.Totals(ctx, rng)
	if err != nil {
		return nil, err
	}
	counts, err := s.appeals.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	people, err := s.beneficiaries.Stats(ctx, nil)
	if err != nil {
		return nil, err
	}

	summary := &model.DashboardSummary{
		TotalEstimated:   totals.Estimated,
		TotalApproved:    totals.Approved,
		TotalDonated:     totals.Donated,
		TotalUtilized:    totals.Utilized,
		RemainingBalance: totals.Approved.Sub(totals.Utilized),
		AppealsByStatus:  make(map[string]int, len(workflow.Statuses)),
		PendingApprovals: int(counts[string(workflow.Submitted)]),
		Beneficiaries:    int(people.Total),
		AverageRating:    people.AverageRating,
	}
	for _, st := range workflow.Statuses {
		summary.AppealsByStatus[string(st)] = int(counts[string(st)])
	}
	return summary, nil
}

// AppealWise lists every appeal created in rng with its money trail. status is an
// optional comma-separated filter.
func (s *reportService) AppealWise(ctx context.Context, rng model.ReportRange, status string) ([]model.AppealReportRow, error) {
	statuses, err := parseStatuses(status)
	if err != nil {
		return nil, err
	}
	return s.rows(ctx, rng, statuses)
}

// PendingBalance lists approved appeals that still have money left to utilize.
func (s *reportService) PendingBalance(ctx context.Context, rng model.ReportRange) ([]model.AppealReportRow, error) {
	rows, err := s.rows(ctx, rng, []string{string(workflow.Approved)})
	if err != nil {
		return nil, err
	}

	pending := make([]model.AppealReportRow, 0, len(rows))
	for _, row := range rows {
		if row.RemainingBalance.IsPositive() {
			pending = append(pending, row)
		}
	}
	return pending, nil
}

func (s *reportService) rows(ctx context.Context, rng model.ReportRange, statuses []string) ([]model.AppealReportRow, error) {
	appeals, err := s.reports.AppealsInRange(ctx, rng, statuses)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(appeals))
	for _, a := range appeals {
		ids = append(ids, a.ID)
	}
	donated, err := s.reports.DonatedByAppeal(ctx, ids)
	if err != nil {
		return nil, err
	}
	utilized, err := s.reports.UtilizedByAppeal(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("appeal report: %w", err)
	}

	rows := make([]model.AppealReportRow, 0, len(appeals))
	for _, a := range appeals {
		spent, ok := utilized[a.ID]
		if !ok {
			spent = decimal.Zero
		}
		given, ok := donated[a.ID]
		if !ok {
			given = decimal.Zero
		}
		balance := workflow.BalanceFrom(a.ApprovedAmount, spent)
		rows = append(rows, model.AppealReportRow{
			AppealID:         a.ID.String(),
			Title:            a.Title,
			Status:           a.Status,
			EstimatedAmount:  a.EstimatedAmount,
			ApprovedAmount:   balance.ApprovedAmount,
			TotalDonated:     given,
			TotalUtilized:    spent,
			RemainingBalance: balance.Display,
			OverUtilized:     balance.OverUtilized,
			CreatedAt:        a.CreatedAt,
		})
	}
	return rows, nil
}

// DonationUtilization compares confirmed donations with spending per calendar month of rng.
// An open range starts and ends at the first and last dated record.
func (s *reportService) DonationUtilization(ctx context.Context, rng model.ReportRange) (*model.DonationUtilizationReport, error) {
	months, err := s.flows(ctx, rng)
	if err != nil {
		return nil, err
	}

	report := &model.DonationUtilizationReport{
		TotalDonated:  decimal.Zero,
		TotalUtilized: decimal.Zero,
		Months:        months,
	}
	for _, m := range months {
		report.TotalDonated = report.TotalDonated.Add(m.Donated)
		report.TotalUtilized = report.TotalUtilized.Add(m.Utilized)
	}
	if report.TotalDonated.IsPositive() {
		report.UtilizationRate = report.TotalUtilized.Div(report.TotalDonated).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return report, nil
}

// DonationTrend returns one point per month for the last period months, the current
// month included. period reads like "6months"; empty means six.
func (s *reportService) DonationTrend(ctx context.Context, period string) ([]model.TrendPoint, error) {
	n, err := parsePeriod(period)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(n - 1), 0)
	return s.flows(ctx, model.ReportRange{From: start, To: now})
}

func parsePeriod(period string) (int, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		return defaultTrendMonths, nil
	}
	p = strings.TrimSuffix(strings.TrimSuffix(p, "months"), "month")
	n, err := strconv.Atoi(strings.TrimSpace(p))
	if err != nil || n < 1 || n > maxTrendMonths {
		return 0, workflow.NewValidationError("period", fmt.Sprintf("must be between 1months and %dmonths", maxTrendMonths))
	}
	return n, nil
}

// flows buckets money in and out by month, filling the months without records with zeros.
func (s *reportService) flows(ctx context.Context, rng model.ReportRange) ([]model.TrendPoint, error) {
	donations, err := s.reports.ConfirmedDonations(ctx, rng)
	if err != nil {
		return nil, err
	}
	utilizations, err := s.reports.Utilizations(ctx, rng)
	if err != nil {
		return nil, err
	}

	first, last := rng.From, rng.To
	widen := func(t time.Time) {
		if rng.From.IsZero() && (first.IsZero() || t.Before(first)) {
			first = t
		}
		if rng.To.IsZero() && (last.IsZero() || t.After(last)) {
			last = t
		}
	}
	for _, d := range donations {
		widen(d.ReceivedAt)
	}
	for _, u := range utilizations {
		widen(u.UtilizationDate)
	}
	if first.IsZero() || last.IsZero() {
		return []model.TrendPoint{}, nil
	}

	index := map[string]int{}
	var points []model.TrendPoint
	first, last = first.UTC(), last.UTC()
	for m := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format(monthLayout)
		index[key] = len(points)
		points = append(points, model.TrendPoint{Month: key, Donated: decimal.Zero, Utilized: decimal.Zero})
	}
	for _, d := range donations {
		if i, ok := index[d.ReceivedAt.UTC().Format(monthLayout)]; ok {
			points[i].Donated = points[i].Donated.Add(d.Amount)
		}
	}
	for _, u := range utilizations {
		if i, ok := index[u.UtilizationDate.UTC().Format(monthLayout)]; ok {
			points[i].Utilized = points[i].Utilized.Add(u.AmountUtilized)
		}
	}
	return points, nil
}

// BeneficiaryImpact summarizes the beneficiaries registered in rng, per appeal and overall,
// with the latest impact stories.
func (s *reportService) BeneficiaryImpact(ctx context.Context, rng model.ReportRange) (*model.BeneficiaryImpactReport, error) {
	appeals, err := s.reports.ImpactByAppeal(ctx, rng)
	if err != nil {
		return nil, err
	}
	categories, err := s.reports.BeneficiariesByCategory(ctx, rng)
	if err != nil {
		return nil, err
	}
	people, err := s.reports.ImpactStories(ctx, rng, impactStories)
	if err != nil {
		return nil, err
	}

	report := &model.BeneficiaryImpactReport{
		ByCategory: categories,
		Appeals:    appeals,
		Stories:    make([]model.ImpactStory, 0, len(people)),
	}
	var ratingSum float64
	for _, a := range appeals {
		report.Total += a.Beneficiaries
		report.WithFeedback += a.WithFeedback
		ratingSum += a.AverageRating * float64(a.WithFeedback)
	}
	if report.WithFeedback > 0 {
		report.AverageRating = ratingSum / float64(report.WithFeedback)
	}
	for _, b := range people {
		story := model.ImpactStory{
			BeneficiaryID:  b.ID.String(),
			Name:           b.Name,
			Category:       b.Category,
			ImpactReceived: b.ImpactReceived,
			FeedbackRating: b.FeedbackRating,
			FeedbackText:   b.FeedbackText,
			CreatedAt:      b.CreatedAt,
		}
		if b.Appeal != nil {
			story.AppealTitle = b.Appeal.Title
		}
		report.Stories = append(report.Stories, story)
	}
	return report, nil
}

// AppealStatus counts appeals per status, every status present.
func (s *reportService) AppealStatus(ctx context.Context) ([]model.StatusCount, error) {
	counts, err := s.appeals.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.StatusCount, 0, len(workflow.Statuses))
	for _, st := range workflow.Statuses {
		out = append(out, model.StatusCount{Status: string(st), Count: counts[string(st)]})
	}
	return out, nil
}

// RecentActivity turns the newest audit rows into a dashboard feed.
func (s *reportService) RecentActivity(ctx context.Context, limit int) ([]model.Activity, error) {
	if limit < 1 {
		limit = defaultActivities
	}
	limit = min(limit, maxActivities)

	logs, _, err := s.audits.List(ctx, repository.AuditFilter{Page: 1, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent activity: %w", err)
	}

	out := make([]model.Activity, 0, len(logs))
	for _, l := range logs {
		out = append(out, model.Activity{
			ID:         l.ID.String(),
			Type:       activityType(l.Action),
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			UserName:   userName(l.User),
			Amount:     detailAmount(l.Details),
			At:         l.CreatedAt,
		})
	}
	return out, nil
}

var activityTypes = []struct{ marker, kind string }{
	{"DONATION", "donation"},
	{"UTILIZATION", "utilization"},
	{"ASSET", "asset"},
	{"BENEFICIARY", "beneficiary"},
	{"COMMUNICATION", "communication"},
	{"USER", "user"},
	{"APPEAL", "appeal"},
	{"DOCUMENT", "appeal"},
}

func activityType(action string) string {
	for _, t := range activityTypes {
		if strings.Contains(action, t.marker) {
			return t.kind
		}
	}
	return "other"
}

// detailAmount picks the money figure an audit row carries, if any.
func detailAmount(raw []byte) *decimal.Decimal {
	if len(raw) == 0 {
		return nil
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil
	}
	for _, key := range []string{"amount", "approved_amount", "estimated_amount"} {
		str, ok := details[key].(string)
		if !ok {
			continue
		}
		if d, err := decimal.NewFromString(str); err == nil {
			return &d
		}
	}
	return nil
}
