package retrieval

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// defaultRRFK is the spec §4.6 default fusion constant, used when the
// Retriever has no configured HybridRRFK (SetRRFK never called or
// called with 0).
const defaultRRFK = 60

// HybridResult is the outcome of a fused search, possibly degraded to
// a single surviving mode.
type HybridResult struct {
	Results []SearchResult
	Note    string
}

// Hybrid runs semantic and lexical search concurrently to topK*2 each
// and fuses them with reciprocal rank fusion (k set by SetRRFK, 60 when
// unset). If exactly one
// mode errors, the surviving mode's results are returned with a
// degraded-mode note; if both error, Hybrid returns an error.
func (r *Retriever) Hybrid(ctx context.Context, notebookID, query string, topK int) (HybridResult, error) {
	if topK <= 0 {
		topK = 20
	}
	fanOut := topK * 2

	var semantic, lexical []SearchResult
	var semErr, lexErr error

	var g errgroup.Group
	g.Go(func() error {
		semantic, semErr = r.Semantic(ctx, notebookID, query, fanOut, 0)
		return nil
	})
	g.Go(func() error {
		lexical, lexErr = r.Lexical(ctx, notebookID, query, SearchBoth, fanOut)
		return nil
	})
	_ = g.Wait()

	switch {
	case semErr != nil && lexErr != nil:
		return HybridResult{}, fmt.Errorf("hybrid search: semantic: %v, lexical: %v", semErr, lexErr)
	case semErr != nil:
		return HybridResult{Results: capResults(lexical, topK), Note: "semantic search unavailable, lexical-only results"}, nil
	case lexErr != nil:
		return HybridResult{Results: capResults(semantic, topK), Note: "lexical search unavailable, semantic-only results"}, nil
	}

	k := r.rrfK
	if k <= 0 {
		k = defaultRRFK
	}
	fused := fuseRRF(k, semantic, lexical)
	return HybridResult{Results: capResults(fused, topK)}, nil
}

func capResults(results []SearchResult, topK int) []SearchResult {
	if len(results) > topK {
		return results[:topK]
	}
	return results
}

// fuseRRF combines ranked result lists by reciprocal rank fusion:
// score(e) = Σ_modes 1/(k + rank_mode(e)), rank 1-based.
func fuseRRF(k int, modes ...[]SearchResult) []SearchResult {
	scores := make(map[string]float32)
	snippets := make(map[string]string)
	order := make([]string, 0)

	for _, mode := range modes {
		for i, res := range mode {
			rank := i + 1
			if _, seen := scores[res.EntryID]; !seen {
				order = append(order, res.EntryID)
				snippets[res.EntryID] = res.Snippet
			}
			scores[res.EntryID] += 1.0 / float32(k+rank)
		}
	}

	out := make([]SearchResult, 0, len(order))
	for _, id := range order {
		out = append(out, SearchResult{EntryID: id, Snippet: snippets[id], Score: scores[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
