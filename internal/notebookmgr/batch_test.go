package notebookmgr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/notebook/internal/notebookmgr"
	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/store/memory"
	"github.com/tideline/notebook/internal/types"
)

func TestWriteBatch_RejectsEmptyAndOversized(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	nb, err := m.CreateNotebook(ctx, "research", "alice")
	require.NoError(t, err)

	_, err = m.WriteBatch(ctx, nb.ID, "alice", "alice", nil)
	assert.ErrorIs(t, err, types.ErrBatchEmpty)

	huge := make([]types.EntryInput, 101)
	for i := range huge {
		huge[i] = types.EntryInput{Content: []byte("x")}
	}
	_, err = m.WriteBatch(ctx, nb.ID, "alice", "alice", huge)
	assert.ErrorIs(t, err, types.ErrBatchTooLarge)
}

func TestWriteBatch_RequiresWritePermission(t *testing.T) {
	ctx := context.Background()
	m := newManager()
	nb, err := m.CreateNotebook(ctx, "research", "alice")
	require.NoError(t, err)

	_, err = m.WriteBatch(ctx, nb.ID, "mallory", "mallory", []types.EntryInput{{Content: []byte("x")}})
	assert.ErrorIs(t, err, types.ErrPermissionDenied)
}

func TestWriteBatch_AssignsSequenceAndEnqueuesDistillJobs(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st, 0)
	m := notebookmgr.New(st, q)

	nb, err := m.CreateNotebook(ctx, "research", "alice")
	require.NoError(t, err)

	results, err := m.WriteBatch(ctx, nb.ID, "alice", "alice", []types.EntryInput{
		{Content: []byte("first note")},
		{Content: []byte("second note")},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].Sequence)
	assert.Equal(t, uint64(2), results[1].Sequence)

	stats, err := q.Stats(ctx, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[types.JobDistillClaims][types.JobPending])
}

func TestWriteBatch_InvalidRevisionTargetFailsWholeBatch(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st, 0)
	m := notebookmgr.New(st, q)

	nb, err := m.CreateNotebook(ctx, "research", "alice")
	require.NoError(t, err)

	_, err = m.WriteBatch(ctx, nb.ID, "alice", "alice", []types.EntryInput{
		{Content: []byte("valid")},
		{Content: []byte("revises nothing"), RevisionOf: "does-not-exist"},
	})
	assert.ErrorIs(t, err, types.ErrInvalidRevisionTarget)

	all, err := st.ListEntries(ctx, nb.ID)
	require.NoError(t, err)
	assert.Empty(t, all, "a failed batch must not persist any of its entries")
}

func TestWriteBatch_RevisionInheritsParentTopic(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	q := queue.New(st, 0)
	m := notebookmgr.New(st, q)

	nb, err := m.CreateNotebook(ctx, "research", "alice")
	require.NoError(t, err)

	first, err := m.WriteBatch(ctx, nb.ID, "alice", "alice", []types.EntryInput{
		{Content: []byte("auth uses passwords"), Topic: "auth"},
	})
	require.NoError(t, err)

	second, err := m.WriteBatch(ctx, nb.ID, "alice", "alice", []types.EntryInput{
		{Content: []byte("auth now also supports magic links"), RevisionOf: first[0].EntryID},
	})
	require.NoError(t, err)

	entry, err := st.GetEntry(ctx, nb.ID, second[0].EntryID)
	require.NoError(t, err)
	assert.Equal(t, "auth", entry.Topic)
	assert.Equal(t, first[0].EntryID, entry.RevisionOf)
}
