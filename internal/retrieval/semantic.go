package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/tideline/notebook/internal/types"
)

const defaultMinSimilarity = 0.3

// Semantic embeds query via the embedding collaborator and ranks
// entries by cosine similarity of their stored embedding to it.
func (r *Retriever) Semantic(ctx context.Context, notebookID, query string, topK int, minSimilarity float32) ([]SearchResult, error) {
	if r.embedder == nil {
		return nil, types.ErrEmbeddingUnavailable
	}
	if minSimilarity == 0 {
		minSimilarity = defaultMinSimilarity
	}
	if topK <= 0 {
		topK = 20
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, types.Wrap(types.KindDependencyUnavailable, fmt.Errorf("embed query: %w", err))
	}

	embeddings, err := r.st.ListEmbeddings(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	entries, err := r.st.ListEntries(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	byID := make(map[string]*types.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	results := make([]SearchResult, 0, len(embeddings))
	for entryID, vec := range embeddings {
		sim := cosineSimilarity(queryVec, vec)
		if sim < minSimilarity {
			continue
		}
		e, ok := byID[entryID]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			EntryID: entryID,
			Snippet: snippet(e.Content),
			Score:   sim,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
