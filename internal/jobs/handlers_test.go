package jobs_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/notebook/internal/claims"
	"github.com/tideline/notebook/internal/jobs"
	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/store/memory"
	"github.com/tideline/notebook/internal/types"
)

type fakeEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func setup(t *testing.T, compareFanOut int) (*queue.Queue, *memory.Store, string) {
	t.Helper()
	return setupWithEmbedder(t, compareFanOut, nil)
}

func setupWithEmbedder(t *testing.T, compareFanOut int, embedder jobs.Embedder) (*queue.Queue, *memory.Store, string) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	graph := claims.NewGraph(st, claims.Thresholds{})
	q := queue.New(st, 0)
	jobs.Register(q, st, graph, embedder, compareFanOut)
	return q, st, "nb1"
}

func TestOnDistill_StoresClaimsAndEnqueuesFollowUps(t *testing.T) {
	ctx := context.Background()
	q, st, nbID := setup(t, 5)

	entry := &types.Entry{ID: "e1", NotebookID: nbID, ClaimsStatus: types.ClaimsPending}
	require.NoError(t, st.InsertEntry(ctx, entry))

	payload, err := json.Marshal(jobs.DistillPayload{EntryID: "e1"})
	require.NoError(t, err)
	jobID, err := q.Enqueue(ctx, nbID, types.JobDistillClaims, payload, 0)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, nbID, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	result, err := json.Marshal(types.DistillResult{Claims: []struct {
		Text       string  `json:"text"`
		Confidence float32 `json:"confidence"`
	}{
		{Text: "the sky is blue", Confidence: 0.9},
	}})
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job.ID, "w1", result))

	stored, err := st.GetClaims(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "the sky is blue", stored[0].Text)

	got, err := st.FindEntryByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, types.ClaimsDistilled, got.ClaimsStatus)

	stats, err := q.Stats(ctx, nbID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[types.JobClassifyTopic][types.JobPending])
}

func TestOnDistill_EmbedsEntryWhenEmbedderConfigured(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	q, st, nbID := setupWithEmbedder(t, 5, embedder)

	entry := &types.Entry{ID: "e1", NotebookID: nbID, ClaimsStatus: types.ClaimsPending, Content: []byte("the sky is blue")}
	require.NoError(t, st.InsertEntry(ctx, entry))

	payload, err := json.Marshal(jobs.DistillPayload{EntryID: "e1"})
	require.NoError(t, err)
	jobID, err := q.Enqueue(ctx, nbID, types.JobDistillClaims, payload, 0)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, nbID, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	result, err := json.Marshal(types.DistillResult{})
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, "w1", result))

	assert.Equal(t, 1, embedder.calls)
	vec, ok, err := st.GetEmbedding(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOnDistill_FansOutCompareJobsBoundedByM(t *testing.T) {
	ctx := context.Background()
	q, st, nbID := setup(t, 2)

	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		e := &types.Entry{ID: id, NotebookID: nbID, ClaimsStatus: types.ClaimsDistilled, Sequence: uint64(i)}
		require.NoError(t, st.InsertEntry(ctx, e))
	}
	fresh := &types.Entry{ID: "fresh", NotebookID: nbID, ClaimsStatus: types.ClaimsPending, Sequence: 99}
	require.NoError(t, st.InsertEntry(ctx, fresh))

	payload, err := json.Marshal(jobs.DistillPayload{EntryID: "fresh"})
	require.NoError(t, err)
	jobID, err := q.Enqueue(ctx, nbID, types.JobDistillClaims, payload, 0)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, nbID, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	result, _ := json.Marshal(types.DistillResult{})
	require.NoError(t, q.Complete(ctx, job.ID, "w1", result))

	stats, err := q.Stats(ctx, nbID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[types.JobCompareClaims][types.JobPending])
}

func TestOnCompare_UpsertsComparison(t *testing.T) {
	ctx := context.Background()
	q, st, nbID := setup(t, 5)

	a := &types.Entry{ID: "a", NotebookID: nbID, ClaimsStatus: types.ClaimsDistilled}
	b := &types.Entry{ID: "b", NotebookID: nbID, ClaimsStatus: types.ClaimsDistilled}
	require.NoError(t, st.InsertEntry(ctx, a))
	require.NoError(t, st.InsertEntry(ctx, b))

	payload, err := json.Marshal(jobs.ComparePayload{EntryID: "a", PeerID: "b"})
	require.NoError(t, err)
	jobID, err := q.Enqueue(ctx, nbID, types.JobCompareClaims, payload, 0)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, nbID, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	result, err := json.Marshal(types.CompareResult{Entropy: 0.4, Friction: 0.7})
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, "w1", result))

	cmp, err := st.GetComparison(ctx, "a", "b")
	require.NoError(t, err)
	require.NotNil(t, cmp)
	assert.Equal(t, float32(0.7), cmp.Friction)

	got, err := st.FindEntryByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusContested, got.IntegrationStatus)
}

func TestOnClassify_NeverOverwritesExistingTopic(t *testing.T) {
	ctx := context.Background()
	q, st, nbID := setup(t, 5)

	e := &types.Entry{ID: "e1", NotebookID: nbID, Topic: "auth"}
	require.NoError(t, st.InsertEntry(ctx, e))

	payload, err := json.Marshal(jobs.ClassifyPayload{EntryID: "e1"})
	require.NoError(t, err)
	jobID, err := q.Enqueue(ctx, nbID, types.JobClassifyTopic, payload, 0)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, nbID, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	result, err := json.Marshal(types.ClassifyResult{PrimaryTopic: "billing"})
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, "w1", result))

	got, err := st.FindEntryByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "auth", got.Topic)
}

func TestOnClassify_SetsTopicWhenEntryHasNone(t *testing.T) {
	ctx := context.Background()
	q, st, nbID := setup(t, 5)

	e := &types.Entry{ID: "e1", NotebookID: nbID}
	require.NoError(t, st.InsertEntry(ctx, e))

	payload, err := json.Marshal(jobs.ClassifyPayload{EntryID: "e1"})
	require.NoError(t, err)
	jobID, err := q.Enqueue(ctx, nbID, types.JobClassifyTopic, payload, 0)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, nbID, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	result, err := json.Marshal(types.ClassifyResult{NewTopic: "gardening"})
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job.ID, "w1", result))

	got, err := st.FindEntryByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "gardening", got.Topic)
}
