package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/store/memory"
	"github.com/tideline/notebook/internal/types"
)

func TestEnqueueAndLease(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	q := queue.New(st, 0)
	id, err := q.Enqueue(ctx, "nb1", types.JobDistillClaims, []byte(`{}`), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	job, err := q.LeaseNext(ctx, "nb1", "worker-1", nil)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, types.JobInProgress, job.Status)
	assert.Equal(t, "worker-1", job.WorkerID)
}

func TestLeaseNext_EmptyQueueReturnsNil(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	q := queue.New(st, 0)

	job, err := q.LeaseNext(ctx, "nb1", "worker-1", nil)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestComplete_DispatchesRegisteredHandler(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	q := queue.New(st, 0)

	var handled []byte
	q.RegisterHandler(types.JobDistillClaims, func(ctx context.Context, job *types.Job, result []byte) error {
		handled = result
		return nil
	})

	id, err := q.Enqueue(ctx, "nb1", types.JobDistillClaims, []byte(`{}`), 0)
	require.NoError(t, err)
	job, err := q.LeaseNext(ctx, "nb1", "w1", nil)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	require.NoError(t, q.Complete(ctx, job.ID, "w1", []byte(`{"ok":true}`)))
	assert.Equal(t, `{"ok":true}`, string(handled))
}

func TestComplete_HandlerErrorWrapsAsWorkerKind(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	q := queue.New(st, 0)

	q.RegisterHandler(types.JobDistillClaims, func(ctx context.Context, job *types.Job, result []byte) error {
		return errors.New("bad result")
	})

	id, err := q.Enqueue(ctx, "nb1", types.JobDistillClaims, []byte(`{}`), 0)
	require.NoError(t, err)
	job, err := q.LeaseNext(ctx, "nb1", "w1", nil)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	err = q.Complete(ctx, job.ID, "w1", nil)
	require.Error(t, err)
	assert.Equal(t, types.KindWorkerError, types.KindOf(err))
}

func TestFail_RetriesUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	q := queue.New(st, 0)

	id, err := q.Enqueue(ctx, "nb1", types.JobCompareClaims, []byte(`{}`), 2)
	require.NoError(t, err)

	job, err := q.LeaseNext(ctx, "nb1", "w1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, "w1", "transient error"))

	again, err := q.LeaseNext(ctx, "nb1", "w2", nil)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, id, again.ID)

	require.NoError(t, q.Fail(ctx, again.ID, "w2", "transient error again"))

	stats, err := q.Stats(ctx, "nb1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats[types.JobCompareClaims][types.JobFailed])
}

func TestLeaseNext_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))
	q := queue.New(st, 10*time.Millisecond)

	_, err := q.Enqueue(ctx, "nb1", types.JobDistillClaims, []byte(`{}`), 0)
	require.NoError(t, err)

	first, err := q.LeaseNext(ctx, "nb1", "w1", nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	time.Sleep(20 * time.Millisecond)

	second, err := q.LeaseNext(ctx, "nb1", "w2", nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "w2", second.WorkerID)
}
