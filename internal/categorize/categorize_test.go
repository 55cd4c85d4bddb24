package categorize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/rules"
)

func TestApply_SetsAndClearsCategorization(t *testing.T) {
	snap := rules.NewSnapshot([]domain.Rule{
		{ID: 7, Keyword: "STRIPE", Category: "Business Income", Subcategory: "Payments", Priority: 10, Status: domain.RuleStatusActive},
	})

	stale := "Stale Category"
	staleRule := int64(99)
	txns := []domain.Transaction{
		{ID: "a", Description: "STRIPE PAYMENT", Amount: decimal.NewFromInt(-50)},
		{ID: "b", Description: "UNKNOWN VENDOR", Amount: decimal.NewFromInt(-10), Category: &stale, RuleID: &staleRule},
	}

	out := Apply(txns, snap)
	require.Len(t, out, 2)

	require.NotNil(t, out[0].Category)
	assert.Equal(t, "Business Income", *out[0].Category)
	require.NotNil(t, out[0].Subcategory)
	assert.Equal(t, "Payments", *out[0].Subcategory)
	require.NotNil(t, out[0].RuleID)
	assert.Equal(t, int64(7), *out[0].RuleID)

	// No match clears any previous categorization.
	assert.Nil(t, out[1].Category)
	assert.Nil(t, out[1].Subcategory)
	assert.Nil(t, out[1].RuleID)

	// Inputs are untouched.
	assert.Nil(t, txns[0].Category)
	require.NotNil(t, txns[1].Category)
	assert.Equal(t, "Stale Category", *txns[1].Category)
}

func TestApply_RuleWithoutCategoryStillRecordsRuleID(t *testing.T) {
	snap := rules.NewSnapshot([]domain.Rule{
		{ID: 3, Keyword: "FEE", Priority: 10, Status: domain.RuleStatusActive},
	})

	out := Apply([]domain.Transaction{{ID: "a", Description: "MONTHLY FEE"}}, snap)
	require.Len(t, out, 1)

	assert.Nil(t, out[0].Category)
	assert.Nil(t, out[0].Subcategory)
	require.NotNil(t, out[0].RuleID)
	assert.Equal(t, int64(3), *out[0].RuleID)
}

func TestApply_EmptyBatch(t *testing.T) {
	out := Apply(nil, rules.Snapshot{})
	assert.Empty(t, out)
}

func TestApply_PassesThroughOtherFields(t *testing.T) {
	snap := rules.NewSnapshot([]domain.Rule{
		{ID: 1, Keyword: "STRIPE", Category: "Business Income", Priority: 10, Status: domain.RuleStatusActive},
	})

	in := domain.Transaction{
		ID:          "tx-1",
		StatementID: "stmt-1",
		Description: "STRIPE PAYOUT",
		Amount:      decimal.RequireFromString("123.45"),
	}

	out := Apply([]domain.Transaction{in}, snap)
	require.Len(t, out, 1)
	assert.Equal(t, in.ID, out[0].ID)
	assert.Equal(t, in.StatementID, out[0].StatementID)
	assert.Equal(t, in.Description, out[0].Description)
	assert.True(t, in.Amount.Equal(out[0].Amount))
}
