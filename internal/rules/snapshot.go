// Package rules implements the categorization rule matcher. Matching is a
// pure function over an immutable snapshot of the active ruleset, so one
// categorization pass always sees one coherent rule version no matter how
// rules are edited concurrently.
package rules

import (
	"sort"
	"strings"

	"github.com/dvloznov/statement-engine/internal/domain"
)

// Snapshot is an immutable, priority-ordered view of the active ruleset at a
// fixed point in time. The zero value is a valid empty snapshot that matches
// nothing.
type Snapshot struct {
	rules    []domain.Rule
	keywords []string // case-folded, index-aligned with rules
}

// NewSnapshot builds a snapshot from an arbitrary slice of rules. Inactive
// and blank-keyword rules are dropped, and the rest are sorted by
// (priority ascending, id ascending). The input slice is not modified.
func NewSnapshot(all []domain.Rule) Snapshot {
	active := make([]domain.Rule, 0, len(all))
	for _, r := range all {
		if r.Active() {
			active = append(active, r)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})

	keywords := make([]string, len(active))
	for i, r := range active {
		keywords[i] = strings.ToLower(strings.TrimSpace(r.Keyword))
	}

	return Snapshot{rules: active, keywords: keywords}
}

// Len returns the number of rules in the snapshot.
func (s Snapshot) Len() int {
	return len(s.rules)
}

// Match returns the first rule in priority order whose keyword is a
// case-insensitive substring of description, or nil when no rule matches.
// Plain substring containment is deliberate: no tokenization or stemming,
// so a rule's effect is predictable from its keyword alone.
func (s Snapshot) Match(description string) *domain.Rule {
	desc := strings.ToLower(description)
	for i, kw := range s.keywords {
		if strings.Contains(desc, kw) {
			r := s.rules[i]
			return &r
		}
	}
	return nil
}
