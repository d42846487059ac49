package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/notebook/internal/store/memory"
	"github.com/tideline/notebook/internal/types"
)

func TestNotebookCRUD(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	nb := &types.Notebook{ID: "nb1", Name: "research", Owner: "alice"}
	require.NoError(t, s.CreateNotebook(ctx, nb))

	_, err := s.GetNotebook(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotebookNotFound)

	got, err := s.GetNotebook(ctx, "nb1")
	require.NoError(t, err)
	assert.Equal(t, "research", got.Name)

	require.NoError(t, s.RenameNotebook(ctx, "nb1", "renamed"))
	got, err = s.GetNotebook(ctx, "nb1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, s.DeleteNotebook(ctx, "nb1"))
	_, err = s.GetNotebook(ctx, "nb1")
	assert.ErrorIs(t, err, types.ErrNotebookNotFound)
}

func TestParticipants_SetUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	nb := &types.Notebook{ID: "nb1", Owner: "alice"}
	require.NoError(t, s.CreateNotebook(ctx, nb))

	require.NoError(t, s.SetParticipant(ctx, "nb1", types.Participant{Entity: "bob", Read: true}))
	got, err := s.GetNotebook(ctx, "nb1")
	require.NoError(t, err)
	require.Len(t, got.Participants, 1)
	assert.True(t, got.HasPermission("bob", false))
	assert.False(t, got.HasPermission("bob", true))

	require.NoError(t, s.SetParticipant(ctx, "nb1", types.Participant{Entity: "bob", Read: true, Write: true}))
	got, err = s.GetNotebook(ctx, "nb1")
	require.NoError(t, err)
	require.Len(t, got.Participants, 1, "setting the same entity again updates in place")
	assert.True(t, got.HasPermission("bob", true))

	require.NoError(t, s.RemoveParticipant(ctx, "nb1", "bob"))
	got, err = s.GetNotebook(ctx, "nb1")
	require.NoError(t, err)
	assert.False(t, got.HasPermission("bob", false))
}

func TestNextSequence_MonotonicPerNotebook(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	seq1, err := s.NextSequence(ctx, "nb1")
	require.NoError(t, err)
	seq2, err := s.NextSequence(ctx, "nb1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
}

func TestEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	e := &types.Entry{ID: "e1", NotebookID: "nb1", Topic: "auth", Content: []byte("hi")}
	require.NoError(t, s.InsertEntry(ctx, e))

	got, err := s.GetEntry(ctx, "nb1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "auth", got.Topic)

	byID, err := s.FindEntryByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", byID.ID)

	_, err = s.FindEntryByID(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrEntryNotFound)

	byID.Topic = "renamed"
	byID.ClaimsStatus = types.ClaimsDistilled
	require.NoError(t, s.UpdateEnrichment(ctx, byID))

	reGot, err := s.GetEntry(ctx, "nb1", "e1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", reGot.Topic)
	assert.Equal(t, types.ClaimsDistilled, reGot.ClaimsStatus)
}

func TestListRevisions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "parent", NotebookID: "nb1"}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "child1", NotebookID: "nb1", RevisionOf: "parent"}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "child2", NotebookID: "nb1", RevisionOf: "parent"}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "unrelated", NotebookID: "nb1"}))

	revs, err := s.ListRevisions(ctx, "nb1", "parent")
	require.NoError(t, err)
	assert.Len(t, revs, 2)
}

func TestChanges_FilteredBySequence(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	require.NoError(t, s.RecordChange(ctx, "nb1", types.ChangeEvent{Sequence: 1, EntryID: "e1", Kind: "written"}))
	require.NoError(t, s.RecordChange(ctx, "nb1", types.ChangeEvent{Sequence: 2, EntryID: "e2", Kind: "written"}))

	changes, err := s.ListChanges(ctx, "nb1", 1)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, uint64(2), changes[0].Sequence)
}

func TestClaimsBatch_CapsAtOneHundredAndSkipsMissing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "e1", NotebookID: "nb1", Topic: "auth"}))
	require.NoError(t, s.InsertClaims(ctx, "e1", []types.Claim{{EntryID: "e1", Ordinal: 1, Text: "b"}, {EntryID: "e1", Ordinal: 0, Text: "a"}}))

	batch, err := s.ClaimsBatch(ctx, []string{"e1", "missing"})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "e1", batch[0].ID)
	require.Len(t, batch[0].Claims, 2)
	assert.Equal(t, "a", batch[0].Claims[0].Text, "InsertClaims sorts by ordinal")

	many := make([]string, 150)
	for i := range many {
		many[i] = "e1"
	}
	capped, err := s.ClaimsBatch(ctx, many)
	require.NoError(t, err)
	assert.Len(t, capped, 100)
}

func TestComparisons_CanonicalKeyAndLookupBothSides(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.UpsertComparison(ctx, types.Comparison{EntryA: "b", EntryB: "a", Friction: 0.5}))

	got, err := s.GetComparison(ctx, "a", "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float32(0.5), got.Friction)

	forA, err := s.ComparisonsForEntry(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, forA, 1)
	forB, err := s.ComparisonsForEntry(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, forB, 1)
}

func TestJobLifecycle_CompleteRejectsWrongWorkerOrStaleLease(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	j := &types.Job{ID: "j1", NotebookID: "nb1", JobType: types.JobDistillClaims, Status: types.JobPending, MaxAttempts: 3, CreatedAt: time.Now()}
	require.NoError(t, s.EnqueueJob(ctx, j))

	leased, err := s.LeaseNext(ctx, "nb1", "w1", nil, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, leased)

	_, err = s.CompleteJob(ctx, "j1", "wrong-worker")
	assert.ErrorIs(t, err, types.ErrStaleLease)

	completed, err := s.CompleteJob(ctx, "j1", "w1")
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, completed.Status)

	_, err = s.CompleteJob(ctx, "j1", "w1")
	assert.ErrorIs(t, err, types.ErrStaleLease, "completing an already-completed job is a stale lease")
}

func TestJobLifecycle_FailRevertsToPendingUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	j := &types.Job{ID: "j1", NotebookID: "nb1", JobType: types.JobDistillClaims, Status: types.JobPending, MaxAttempts: 2, CreatedAt: time.Now()}
	require.NoError(t, s.EnqueueJob(ctx, j))

	leased, err := s.LeaseNext(ctx, "nb1", "w1", nil, time.Minute)
	require.NoError(t, err)

	failed, err := s.FailJob(ctx, leased.ID, "w1", "oops")
	require.NoError(t, err)
	assert.Equal(t, types.JobPending, failed.Status)

	leased2, err := s.LeaseNext(ctx, "nb1", "w2", nil, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, leased2)

	failed2, err := s.FailJob(ctx, leased2.ID, "w2", "oops again")
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, failed2.Status)
}

func TestEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "e1", NotebookID: "nb1"}))

	_, ok, err := s.GetEmbedding(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetEmbedding(ctx, "e1", []float32{0.1, 0.2}))
	v, ok, err := s.GetEmbedding(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, v)

	all, err := s.ListEmbeddings(ctx, "nb1")
	require.NoError(t, err)
	assert.Contains(t, all, "e1")
}

func TestConfig(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	got, err := s.GetConfig(ctx, "nb1", "missing")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, s.SetConfig(ctx, "nb1", "lease_ttl_seconds", "90"))
	got, err = s.GetConfig(ctx, "nb1", "lease_ttl_seconds")
	require.NoError(t, err)
	assert.Equal(t, "90", got)
}

func TestListEntriesFiltered_QueryTopicAndPagination(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, s.InsertEntry(ctx, &types.Entry{
			ID: id, NotebookID: "nb1", Topic: "billing", Content: []byte("invoice details"),
			Sequence: uint64(i + 1), Author: "alice",
		}))
	}
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{
		ID: "z", NotebookID: "nb1", Topic: "astronomy", Content: []byte("stars"), Sequence: 6, Author: "bob",
	}))

	page, err := s.ListEntriesFiltered(ctx, "nb1", types.Filter{TopicPrefix: "billing"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	// default sort is sequence descending
	assert.Equal(t, uint64(5), page.Entries[0].Sequence)

	page, err = s.ListEntriesFiltered(ctx, "nb1", types.Filter{Author: "bob"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "z", page.Entries[0].ID)

	page, err = s.ListEntriesFiltered(ctx, "nb1", types.Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)
	assert.Len(t, page.Entries, 2)
}

func TestListEntriesFiltered_FragmentsOrderedByIndex(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	idx2 := uint32(2)
	idx0 := uint32(0)
	idx1 := uint32(1)
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "f2", NotebookID: "nb1", FragmentOf: "doc", FragmentIndex: &idx2, Sequence: 3}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "f0", NotebookID: "nb1", FragmentOf: "doc", FragmentIndex: &idx0, Sequence: 1}))
	require.NoError(t, s.InsertEntry(ctx, &types.Entry{ID: "f1", NotebookID: "nb1", FragmentOf: "doc", FragmentIndex: &idx1, Sequence: 2}))

	page, err := s.ListEntriesFiltered(ctx, "nb1", types.Filter{FragmentOf: "doc"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, []string{"f0", "f1", "f2"}, []string{page.Entries[0].ID, page.Entries[1].ID, page.Entries[2].ID})
}
