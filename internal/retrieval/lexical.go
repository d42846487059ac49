package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SearchField selects what text lexical search matches against.
type SearchField string

const (
	SearchContent SearchField = "content"
	SearchClaims  SearchField = "claims"
	SearchBoth    SearchField = "both"
)

const snippetLen = 160

// Lexical runs trigram-similarity search over the chosen field(s),
// returning up to maxResults rows sorted by score descending. Scores
// are only comparable within one query.
func (r *Retriever) Lexical(ctx context.Context, notebookID, query string, field SearchField, maxResults int) ([]SearchResult, error) {
	entries, err := r.st.ListEntries(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	queryTrigrams := trigrams(query)

	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		var score float32
		switch field {
		case SearchClaims:
			score = r.claimsScore(ctx, e.ID, queryTrigrams)
		case SearchBoth:
			contentScore := trigramSimilarity(queryTrigrams, string(e.Content))
			claimsScore := r.claimsScore(ctx, e.ID, queryTrigrams)
			if claimsScore > contentScore {
				score = claimsScore
			} else {
				score = contentScore
			}
		default:
			score = trigramSimilarity(queryTrigrams, string(e.Content))
		}
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			EntryID: e.ID,
			Snippet: snippet(e.Content),
			Score:   score,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if maxResults <= 0 {
		maxResults = 20
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func (r *Retriever) claimsScore(ctx context.Context, entryID string, queryTrigrams map[string]struct{}) float32 {
	claims, err := r.st.GetClaims(ctx, entryID)
	if err != nil || len(claims) == 0 {
		return 0
	}
	var best float32
	for _, c := range claims {
		if s := trigramSimilarity(queryTrigrams, c.Text); s > best {
			best = s
		}
	}
	return best
}

func snippet(content []byte) string {
	if len(content) <= snippetLen {
		return string(content)
	}
	return string(content[:snippetLen])
}

func trigrams(s string) map[string]struct{} {
	s = "  " + strings.ToLower(strings.TrimSpace(s)) + "  "
	out := make(map[string]struct{})
	runes := []rune(s)
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = struct{}{}
	}
	return out
}

func trigramSimilarity(queryTrigrams map[string]struct{}, field string) float32 {
	if len(queryTrigrams) == 0 {
		return 0
	}
	fieldTrigrams := trigrams(field)
	if len(fieldTrigrams) == 0 {
		return 0
	}
	intersect := 0
	for t := range queryTrigrams {
		if _, ok := fieldTrigrams[t]; ok {
			intersect++
		}
	}
	union := len(queryTrigrams) + len(fieldTrigrams) - intersect
	if union == 0 {
		return 0
	}
	return float32(intersect) / float32(union)
}
