package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/notebook/internal/retrieval"
	"github.com/tideline/notebook/internal/store/memory"
	"github.com/tideline/notebook/internal/types"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func seedNotebook(t *testing.T, st *memory.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	require.NoError(t, st.InsertEntry(ctx, &types.Entry{
		ID: "e1", NotebookID: "nb1", Topic: "onboarding", Content: []byte("new hires complete orientation in week one"),
	}))
	require.NoError(t, st.InsertEntry(ctx, &types.Entry{
		ID: "e2", NotebookID: "nb1", Topic: "billing", Content: []byte("invoices are generated monthly for customers"),
	}))
}

func TestBrowse_DelegatesToStore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	r := retrieval.New(st, nil)

	page, err := r.Browse(ctx, "nb1", types.Filter{TopicPrefix: "billing"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestLexical_RanksByTrigramSimilarity(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	r := retrieval.New(st, nil)

	results, err := r.Lexical(ctx, "nb1", "invoices customers", retrieval.SearchContent, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "e2", results[0].EntryID)
}

func TestLexical_NoMatchesReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	r := retrieval.New(st, nil)

	results, err := r.Lexical(ctx, "nb1", "zzz qqq xyz", retrieval.SearchContent, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSemantic_NoEmbedderReturnsDependencyUnavailable(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	r := retrieval.New(st, nil)

	_, err := r.Semantic(ctx, "nb1", "anything", 10, 0)
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)
}

func TestSemantic_RanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	require.NoError(t, st.SetEmbedding(ctx, "e1", []float32{1, 0, 0}))
	require.NoError(t, st.SetEmbedding(ctx, "e2", []float32{0, 1, 0}))

	r := retrieval.New(st, &stubEmbedder{})
	results, err := r.Semantic(ctx, "nb1", "query", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "e1", results[0].EntryID)
}

func TestHybrid_DegradesToSingleModeOnEmbedderFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)

	r := retrieval.New(st, &stubEmbedder{err: errors.New("embedding service down")})
	got, err := r.Hybrid(ctx, "nb1", "invoices customers", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Note)
	assert.NotEmpty(t, got.Results)
}

func TestHybrid_FusesBothModesWhenAvailable(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	require.NoError(t, st.SetEmbedding(ctx, "e2", []float32{1, 0, 0}))

	r := retrieval.New(st, &stubEmbedder{})
	got, err := r.Hybrid(ctx, "nb1", "invoices customers", 5)
	require.NoError(t, err)
	assert.Empty(t, got.Note)
	assert.NotEmpty(t, got.Results)
}

func TestRelated_FiltersByDirectionAndSortsByFriction(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	require.NoError(t, st.UpsertComparison(ctx, types.Comparison{EntryA: "e1", EntryB: "e2", Friction: 0.8, Entropy: 0.2}))

	r := retrieval.New(st, nil)

	contradicting, err := r.Related(ctx, "e1", retrieval.DirectionContradicts, 10)
	require.NoError(t, err)
	require.Len(t, contradicting, 1)
	assert.Equal(t, "e2", contradicting[0].EntryID)

	similar, err := r.Related(ctx, "e1", retrieval.DirectionSimilar, 10)
	require.NoError(t, err)
	assert.Empty(t, similar)

	require.NoError(t, st.UpsertComparison(ctx, types.Comparison{EntryA: "e1", EntryB: "e3", Friction: 0.5, Entropy: 0.9}))
	sorted, err := r.Related(ctx, "e1", retrieval.DirectionContradicts, 10)
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, "e2", sorted[0].EntryID, "higher friction sorts first")
	assert.Equal(t, "e3", sorted[1].EntryID)
}

func TestClaimsBatch_CapsAtOneHundred(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedNotebook(t, st)
	r := retrieval.New(st, nil)

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = "e1"
	}
	batch, err := r.ClaimsBatch(ctx, ids)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(batch), 100)
}
