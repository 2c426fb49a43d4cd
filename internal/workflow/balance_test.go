package workflow

import (
	"testing"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeRemainingBalance_OverUtilized(t *testing.T) {
	approved := decimal.NewFromInt(500000)
	appeal := model.Appeal{ID: uuid.New(), Status: string(Approved), ApprovedAmount: &approved}
	uses := []model.Utilization{
		{AppealID: appeal.ID, AmountUtilized: decimal.NewFromInt(300000)},
		{AppealID: appeal.ID, AmountUtilized: decimal.NewFromInt(220000)},
		{AppealID: uuid.New(), AmountUtilized: decimal.NewFromInt(999999)},
	}

	b := ComputeRemainingBalance(appeal, uses)
	assert.True(t, b.Raw.Equal(decimal.NewFromInt(-20000)), b.Raw.String())
	assert.True(t, b.Display.IsZero())
	assert.True(t, b.OverUtilized)
	assert.True(t, b.TotalUtilized.Equal(decimal.NewFromInt(520000)))

	again := ComputeRemainingBalance(appeal, uses)
	assert.Equal(t, b, again)
}

func TestComputeRemainingBalance_WithinBudget(t *testing.T) {
	approved := decimal.RequireFromString("1000.50")
	appeal := model.Appeal{ID: uuid.New(), ApprovedAmount: &approved}

	b := ComputeRemainingBalance(appeal, []model.Utilization{
		{AppealID: appeal.ID, AmountUtilized: decimal.RequireFromString("0.25")},
	})
	assert.Equal(t, "1000.25", b.Raw.String())
	assert.True(t, b.Display.Equal(b.Raw))
	assert.False(t, b.OverUtilized)
}

func TestComputeRemainingBalance_NotApproved(t *testing.T) {
	b := ComputeRemainingBalance(model.Appeal{ID: uuid.New()}, nil)
	assert.True(t, b.ApprovedAmount.IsZero())
	assert.True(t, b.Raw.IsZero())
	assert.False(t, b.OverUtilized)
}
