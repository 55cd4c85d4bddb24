package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-engine/internal/domain"
)

func activeRule(id int64, keyword string, priority int) domain.Rule {
	return domain.Rule{
		ID:       id,
		Keyword:  keyword,
		Priority: priority,
		Status:   domain.RuleStatusActive,
	}
}

func TestNewSnapshot_FiltersInactiveAndBlank(t *testing.T) {
	snap := NewSnapshot([]domain.Rule{
		activeRule(1, "STRIPE", 10),
		{ID: 2, Keyword: "AWS", Priority: 10, Status: domain.RuleStatusInactive},
		{ID: 3, Keyword: "   ", Priority: 10, Status: domain.RuleStatusActive},
		activeRule(4, "SALARY", 20),
	})

	assert.Equal(t, 2, snap.Len())
	assert.Nil(t, snap.Match("AWS MARKETPLACE"))
	assert.Nil(t, snap.Match("anything at all"))
	require.NotNil(t, snap.Match("STRIPE PAYMENT"))
}

func TestSnapshot_MatchOrder(t *testing.T) {
	// Both keywords appear in the description. Lower priority wins; on a
	// priority tie the lower ID wins.
	tests := []struct {
		name        string
		rules       []domain.Rule
		description string
		wantID      int64
	}{
		{
			name: "lower priority wins",
			rules: []domain.Rule{
				activeRule(1, "PAYMENT", 50),
				activeRule(2, "STRIPE", 10),
			},
			description: "STRIPE PAYMENT 123",
			wantID:      2,
		},
		{
			name: "priority tie breaks by id",
			rules: []domain.Rule{
				activeRule(9, "PAYMENT", 10),
				activeRule(3, "STRIPE", 10),
			},
			description: "STRIPE PAYMENT 123",
			wantID:      3,
		},
		{
			name: "insertion order does not matter",
			rules: []domain.Rule{
				activeRule(3, "STRIPE", 10),
				activeRule(9, "PAYMENT", 10),
			},
			description: "STRIPE PAYMENT 123",
			wantID:      3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := NewSnapshot(tt.rules)
			got := snap.Match(tt.description)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSnapshot_MatchCaseInsensitiveSubstring(t *testing.T) {
	snap := NewSnapshot([]domain.Rule{activeRule(1, "stripe", 10)})

	tests := []struct {
		description string
		want        bool
	}{
		{"STRIPE PAYMENT", true},
		{"payment via Stripe Inc", true},
		{"PINSTRIPED SUIT", true}, // plain substring, no word boundaries
		{"STR IPE", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got := snap.Match(tt.description)
			assert.Equal(t, tt.want, got != nil)
		})
	}
}

func TestSnapshot_ZeroValueMatchesNothing(t *testing.T) {
	var snap Snapshot
	assert.Equal(t, 0, snap.Len())
	assert.Nil(t, snap.Match("STRIPE PAYMENT"))
}

func TestSnapshot_MatchReturnsCopy(t *testing.T) {
	snap := NewSnapshot([]domain.Rule{activeRule(1, "STRIPE", 10)})

	first := snap.Match("STRIPE")
	require.NotNil(t, first)
	first.Keyword = "mutated"

	second := snap.Match("STRIPE")
	require.NotNil(t, second)
	assert.Equal(t, "STRIPE", second.Keyword)
}
