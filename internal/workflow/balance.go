package workflow

import (
	"donationdesk/internal/model"

	"github.com/shopspring/decimal"
)

// Balance is the approved amount of an appeal minus everything utilized against it.
type Balance struct {
	ApprovedAmount decimal.Decimal `json:"approved_amount"`
	TotalUtilized  decimal.Decimal `json:"total_utilized"`
	// Raw is the signed difference, negative when the appeal is over-utilized.
	Raw decimal.Decimal `json:"raw_balance"`
	// Display is Raw clamped at zero.
	Display      decimal.Decimal `json:"remaining_balance"`
	OverUtilized bool            `json:"over_utilized"`
}

// ComputeRemainingBalance sums the utilizations that belong to appeal. An appeal
// without an approved amount counts as zero approved.
func ComputeRemainingBalance(appeal model.Appeal, utilizations []model.Utilization) Balance {
	total := decimal.Zero
	for _, u := range utilizations {
		if u.AppealID != appeal.ID {
			continue
		}
		total = total.Add(u.AmountUtilized)
	}
	return BalanceFrom(appeal.ApprovedAmount, total)
}

// BalanceFrom builds a Balance from an already aggregated utilization total.
func BalanceFrom(approved *decimal.Decimal, totalUtilized decimal.Decimal) Balance {
	amount := decimal.Zero
	if approved != nil {
		amount = *approved
	}
	raw := amount.Sub(totalUtilized)
	display := raw
	if raw.IsNegative() {
		display = decimal.Zero
	}
	return Balance{
		ApprovedAmount: amount,
		TotalUtilized:  totalUtilized,
		Raw:            raw,
		Display:        display,
		OverUtilized:   raw.IsNegative(),
	}
}
