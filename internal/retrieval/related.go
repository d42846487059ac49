package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/tideline/notebook/internal/types"
)

// Direction selects which side of the friction spectrum Related
// returns.
type Direction string

const (
	DirectionSimilar     Direction = "similar"
	DirectionContradicts Direction = "contradicts"
	DirectionAll         Direction = "all"
)

const similarFrictionMax = 0.1

// RelatedEntry is one row of a Related traversal, enriched with the
// neighbor's topic, claims and integration_status via a single
// batched claims lookup.
type RelatedEntry struct {
	EntryID           string            `json:"entry_id"`
	Topic             string            `json:"topic"`
	Claims            []types.Claim     `json:"claims"`
	ClaimsStatus      types.ClaimsStatus `json:"claims_status"`
	IntegrationStatus types.IntegrationStatus `json:"integration_status"`
	Friction          float32           `json:"friction"`
	Entropy           float32           `json:"entropy"`
}

// Related performs a one-hop graph traversal from entryID, filtering
// comparisons by friction threshold per direction and sorting by
// (-friction, -entropy).
func (r *Retriever) Related(ctx context.Context, entryID string, direction Direction, maxResults int) ([]RelatedEntry, error) {
	comparisons, err := r.st.ComparisonsForEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("comparisons for entry: %w", err)
	}

	type neighbor struct {
		id       string
		friction float32
		entropy  float32
	}
	var neighbors []neighbor
	for _, c := range comparisons {
		switch direction {
		case DirectionSimilar:
			if c.Friction > similarFrictionMax {
				continue
			}
		case DirectionContradicts:
			if c.Friction <= similarFrictionMax {
				continue
			}
		}
		other := c.EntryA
		if other == entryID {
			other = c.EntryB
		}
		neighbors = append(neighbors, neighbor{id: other, friction: c.Friction, entropy: c.Entropy})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].friction != neighbors[j].friction {
			return neighbors[i].friction > neighbors[j].friction
		}
		return neighbors[i].entropy > neighbors[j].entropy
	})
	if maxResults <= 0 {
		maxResults = 20
	}
	if len(neighbors) > maxResults {
		neighbors = neighbors[:maxResults]
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.id
	}
	batch, err := r.ClaimsBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("claims batch: %w", err)
	}
	byID := make(map[string]types.ClaimsBatchEntry, len(batch))
	for _, b := range batch {
		byID[b.ID] = b
	}

	out := make([]RelatedEntry, 0, len(neighbors))
	for _, n := range neighbors {
		b := byID[n.id]
		out = append(out, RelatedEntry{
			EntryID:           n.id,
			Topic:             b.Topic,
			Claims:            b.Claims,
			ClaimsStatus:      b.ClaimsStatus,
			IntegrationStatus: b.IntegrationStatus,
			Friction:          n.friction,
			Entropy:           n.entropy,
		})
	}
	return out, nil
}
