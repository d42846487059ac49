// Package retrieval implements the retrieval layer (spec component F):
// filtered browse, lexical and semantic search, reciprocal-rank-fusion
// hybrid search, and graph-based "related" traversal.
package retrieval

import (
	"context"

	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

// Embedder is the external embedding collaborator semantic search
// depends on. Out of scope per spec §1; this is its call contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever bundles the store and embedding collaborator behind the
// operations of spec §4.6.
type Retriever struct {
	st       store.Storage
	embedder Embedder

	reviewThreshold float32
	rrfK            int
}

// New creates a Retriever. embedder may be nil, in which case semantic
// search returns DependencyUnavailable and hybrid search returns
// lexical-only results with a degraded-mode note.
func New(st store.Storage, embedder Embedder) *Retriever {
	return &Retriever{st: st, embedder: embedder}
}

// SetReviewThreshold configures the review threshold applied by
// Browse's needs_review filter (spec §4.4's review_threshold). Mirrors
// the threshold wired into claims.Graph so the two never diverge.
func (r *Retriever) SetReviewThreshold(threshold float32) {
	r.reviewThreshold = threshold
}

// SetRRFK configures the k used by Hybrid's reciprocal rank fusion
// (spec §4.6, default 60).
func (r *Retriever) SetRRFK(k int) {
	r.rrfK = k
}

// Browse returns a filtered, paginated view of a notebook's entries.
func (r *Retriever) Browse(ctx context.Context, notebookID string, f types.Filter) (types.Page, error) {
	if f.ReviewThreshold == 0 {
		f.ReviewThreshold = r.reviewThreshold
	}
	return r.st.ListEntriesFiltered(ctx, notebookID, f)
}

// SearchResult is one row of a lexical, semantic or hybrid result set.
type SearchResult struct {
	EntryID string  `json:"entry_id"`
	Snippet string  `json:"snippet"`
	Score   float32 `json:"score"`
}

// ClaimsBatch looks up claims for up to 100 entries in one call.
func (r *Retriever) ClaimsBatch(ctx context.Context, entryIDs []string) ([]types.ClaimsBatchEntry, error) {
	if len(entryIDs) > 100 {
		entryIDs = entryIDs[:100]
	}
	return r.st.ClaimsBatch(ctx, entryIDs)
}
