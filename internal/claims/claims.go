// Package claims implements the claim and comparison graph (spec
// component E): storing distilled claims and pairwise comparisons, and
// deriving each entry's max_friction, needs_review and
// integration_status as pure functions of its comparison set.
package claims

import (
	"context"
	"fmt"

	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

// Thresholds configures the derived-status computation of spec §4.4.
// Zero values are replaced with the spec defaults by NewGraph.
type Thresholds struct {
	ReviewThreshold     float32
	ContestedThreshold  float32
	IntegratedThreshold float32
	MinComparisons      int
}

// DefaultThresholds returns the spec §4.4 defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReviewThreshold:     0.2,
		ContestedThreshold:  0.5,
		IntegratedThreshold: 0.2,
		MinComparisons:      1,
	}
}

// Graph is the claim/comparison store wrapper that also recomputes
// derived per-entry aggregates.
type Graph struct {
	st         store.Storage
	thresholds Thresholds
}

// NewGraph creates a Graph. A zero-value Thresholds falls back to
// DefaultThresholds field-by-field.
func NewGraph(st store.Storage, t Thresholds) *Graph {
	d := DefaultThresholds()
	if t.ReviewThreshold == 0 {
		t.ReviewThreshold = d.ReviewThreshold
	}
	if t.ContestedThreshold == 0 {
		t.ContestedThreshold = d.ContestedThreshold
	}
	if t.IntegratedThreshold == 0 {
		t.IntegratedThreshold = d.IntegratedThreshold
	}
	if t.MinComparisons == 0 {
		t.MinComparisons = d.MinComparisons
	}
	return &Graph{st: st, thresholds: t}
}

// StoreClaims persists the distilled claims for an entry, ordinal order
// significant (most central first).
func (g *Graph) StoreClaims(ctx context.Context, entryID string, claims []types.Claim) error {
	if err := g.st.InsertClaims(ctx, entryID, claims); err != nil {
		return fmt.Errorf("store claims: %w", err)
	}
	return nil
}

// UpsertComparison stores or replaces the single Comparison row for an
// unordered entry pair, then recomputes derived aggregates for both
// sides.
func (g *Graph) UpsertComparison(ctx context.Context, c types.Comparison) error {
	if err := g.st.UpsertComparison(ctx, c); err != nil {
		return fmt.Errorf("upsert comparison: %w", err)
	}
	a, b := c.Pair()
	for _, entryID := range []string{a, b} {
		if err := g.Recompute(ctx, entryID); err != nil {
			return err
		}
	}
	return nil
}

// Recompute derives max_friction and integration_status for entryID
// from its current comparison set and persists them via
// UpdateEnrichment. Pure function of state already in the store.
// needs_review is not stored; it follows from max_friction (NeedsReview).
func (g *Graph) Recompute(ctx context.Context, entryID string) error {
	e, err := g.st.FindEntryByID(ctx, entryID)
	if err != nil {
		return err
	}
	comparisons, err := g.st.ComparisonsForEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("comparisons for entry: %w", err)
	}

	maxFriction := MaxFriction(comparisons)
	status := IntegrationStatusFor(e.ClaimsStatus, comparisons, maxFriction, g.thresholds)

	e.MaxFriction = maxFriction
	e.IntegrationStatus = status
	if err := g.st.UpdateEnrichment(ctx, e); err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}

// MaxFriction is the maximum friction across a comparison set, 0 if
// empty.
func MaxFriction(comparisons []types.Comparison) float32 {
	var max float32
	for _, c := range comparisons {
		if c.Friction > max {
			max = c.Friction
		}
	}
	return max
}

// NeedsReview reports whether maxFriction crosses the review threshold.
func NeedsReview(maxFriction float32, t Thresholds) bool {
	return maxFriction > t.ReviewThreshold
}

// IntegrationStatusFor derives the integration_status of spec §4.4.
func IntegrationStatusFor(claimsStatus types.ClaimsStatus, comparisons []types.Comparison, maxFriction float32, t Thresholds) types.IntegrationStatus {
	if maxFriction >= t.ContestedThreshold {
		return types.StatusContested
	}
	if claimsStatus == types.ClaimsDistilled && len(comparisons) >= t.MinComparisons && maxFriction < t.IntegratedThreshold {
		return types.StatusIntegrated
	}
	return types.StatusProbation
}
