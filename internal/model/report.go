package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardSummary aggregates fund totals and appeal counts for the dashboard
type DashboardSummary struct {
	TotalEstimated   decimal.Decimal `json:"total_estimated"`
	TotalApproved    decimal.Decimal `json:"total_approved"`
	TotalDonated     decimal.Decimal `json:"total_donated"`
	TotalUtilized    decimal.Decimal `json:"total_utilized"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	AppealsByStatus  map[string]int  `json:"appeals_by_status"`
	PendingApprovals int             `json:"pending_approvals"`
	Beneficiaries    int             `json:"beneficiaries"`
	AverageRating    float64         `json:"average_rating"`
}

// AppealReportRow is one line of the appeal-wise report
type AppealReportRow struct {
	AppealID         string          `json:"appeal_id"`
	Title            string          `json:"title"`
	Status           string          `json:"status"`
	EstimatedAmount  decimal.Decimal `json:"estimated_amount"`
	ApprovedAmount   decimal.Decimal `json:"approved_amount"`
	TotalDonated     decimal.Decimal `json:"total_donated"`
	TotalUtilized    decimal.Decimal `json:"total_utilized"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	OverUtilized     bool            `json:"over_utilized"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ReportRange bounds a report query
type ReportRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TrendPoint is one month of money in and out. Month is YYYY-MM.
type TrendPoint struct {
	Month    string          `json:"month"`
	Donated  decimal.Decimal `json:"donated"`
	Utilized decimal.Decimal `json:"utilized"`
}

// DonationUtilizationReport compares confirmed donations with spending month by month.
type DonationUtilizationReport struct {
	TotalDonated    decimal.Decimal `json:"total_donated"`
	TotalUtilized   decimal.Decimal `json:"total_utilized"`
	UtilizationRate float64         `json:"utilization_rate"` // percent of donated money spent
	Months          []TrendPoint    `json:"months"`
}

// StatusCount is one slice of the appeal status breakdown
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Activity is one entry of the dashboard feed, derived from the audit trail
type Activity struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Action     string           `json:"action"`
	EntityID   string           `json:"entity_id"`
	EntityName string           `json:"entity_name,omitempty"`
	UserName   string           `json:"user_name,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	At         time.Time        `json:"at"`
}

// AppealImpact summarizes the people one appeal reached
type AppealImpact struct {
	AppealID      string  `json:"appeal_id"`
	Title         string  `json:"title"`
	Beneficiaries int64   `json:"beneficiaries"`
	WithFeedback  int64   `json:"with_feedback"`
	AverageRating float64 `json:"average_rating"`
}

// ImpactStory is a beneficiary's own account of the help received
type ImpactStory struct {
	BeneficiaryID  string    `json:"beneficiary_id"`
	Name           string    `json:"name"`
	AppealTitle    string    `json:"appeal_title"`
	Category       string    `json:"category"`
	ImpactReceived string    `json:"impact_received"`
	FeedbackRating int       `json:"feedback_rating"`
	FeedbackText   string    `json:"feedback_text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeneficiaryImpactReport covers beneficiaries registered in a range
type BeneficiaryImpactReport struct {
	Total         int64            `json:"total"`
	WithFeedback  int64            `json:"with_feedback"`
	AverageRating float64          `json:"average_rating"`
	ByCategory    map[string]int64 `json:"by_category"`
	Appeals       []AppealImpact   `json:"appeals"`
	Stories       []ImpactStory    `json:"stories"`
}

// AssetReportRow is one asset link with the spending and appeal behind it
type AssetReportRow struct {
	LinkID                  string          `json:"link_id"`
	AssetRegistrationNumber string          `json:"asset_registration_number"`
	AssetName               string          `json:"asset_name"`
	AssetOwner              string          `json:"asset_owner"`
	UtilizationID           string          `json:"utilization_id"`
	UtilizationDescription  string          `json:"utilization_description"`
	AmountUtilized          decimal.Decimal `json:"amount_utilized"`
	AppealID                string          `json:"appeal_id"`
	AppealTitle             string          `json:"appeal_title"`
	LinkedAt                time.Time       `json:"linked_at"`
}
