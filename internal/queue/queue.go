// Package queue implements the durable, at-least-once job queue (spec
// component D): enqueue, lease-based work stealing, completion and
// failure with retry, and per-notebook stats.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

const (
	// DefaultMaxAttempts bounds retries before a job is marked failed.
	DefaultMaxAttempts = 5
	// DefaultLeaseTTL is how long a leased job is held before it
	// becomes eligible for re-lease by a different worker.
	DefaultLeaseTTL = 60 * time.Second
)

// ResultHandler processes the outcome of one completed job. Handlers
// must be idempotent per (entry_id, job_type) since the queue's
// contract is at-least-once delivery.
type ResultHandler func(ctx context.Context, job *types.Job, result []byte) error

// Queue wraps a store.Storage with the job-queue operations and result
// handler dispatch table of spec §4.3.
type Queue struct {
	st                 store.Storage
	leaseTTL           time.Duration
	defaultMaxAttempts int
	handlers           map[types.JobType]ResultHandler
}

// New creates a Queue backed by st. leaseTTL of 0 uses DefaultLeaseTTL.
func New(st store.Storage, leaseTTL time.Duration) *Queue {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &Queue{st: st, leaseTTL: leaseTTL, defaultMaxAttempts: DefaultMaxAttempts, handlers: make(map[types.JobType]ResultHandler)}
}

// SetDefaultMaxAttempts configures the max_attempts used by Enqueue and
// BuildJob calls that pass 0, per the deployment's configured
// max-attempts (n <= 0 is ignored, keeping DefaultMaxAttempts).
func (q *Queue) SetDefaultMaxAttempts(n int) {
	if n > 0 {
		q.defaultMaxAttempts = n
	}
}

// RegisterHandler wires the result handler invoked when Complete
// succeeds for jobType. Mirrors the backend-registry pattern used
// elsewhere in this codebase for pluggable implementations.
func (q *Queue) RegisterHandler(jobType types.JobType, h ResultHandler) {
	q.handlers[jobType] = h
}

// BuildJob constructs a pending job without persisting it, for callers
// (e.g. notebookmgr.WriteBatch) that need to hand it to a backend's
// atomic batch-write method alongside other durable state. maxAttempts
// of 0 uses the queue's configured default.
func (q *Queue) BuildJob(notebookID string, jobType types.JobType, payload []byte, maxAttempts int) *types.Job {
	if maxAttempts <= 0 {
		maxAttempts = q.defaultMaxAttempts
	}
	return &types.Job{
		ID:          uuid.NewString(),
		NotebookID:  notebookID,
		JobType:     jobType,
		Payload:     payload,
		Status:      types.JobPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}
}

// Enqueue creates a new pending job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, notebookID string, jobType types.JobType, payload []byte, maxAttempts int) (string, error) {
	j := q.BuildJob(notebookID, jobType, payload, maxAttempts)
	if err := q.st.EnqueueJob(ctx, j); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return j.ID, nil
}

// LeaseNext atomically picks one eligible job — pending, or in_progress
// with an expired lease — and assigns it to workerID.
func (q *Queue) LeaseNext(ctx context.Context, notebookID, workerID string, jobType *types.JobType) (*types.Job, error) {
	j, err := q.st.LeaseNext(ctx, notebookID, workerID, jobType, q.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("lease next job: %w", err)
	}
	return j, nil
}

// Complete dispatches a job's result to the handler registered for its
// job_type and, only once the handler succeeds, marks the job
// completed. The caller (worker) must hold the current lease. If the
// handler fails (malformed result, transient store error), the job is
// reverted to pending for retry (or failed once max_attempts is
// exhausted) instead of being stuck permanently completed with its
// claims/comparisons/topic never actually recorded.
func (q *Queue) Complete(ctx context.Context, jobID, workerID string, result []byte) error {
	j, err := q.st.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != types.JobInProgress || j.WorkerID != workerID {
		return types.ErrStaleLease
	}

	if h, ok := q.handlers[j.JobType]; ok {
		if err := h(ctx, j, result); err != nil {
			wrapped := types.Wrap(types.KindWorkerError, fmt.Errorf("result handler for %s: %w", j.JobType, err))
			if _, failErr := q.st.FailJob(ctx, jobID, workerID, wrapped.Error()); failErr != nil {
				return failErr
			}
			return wrapped
		}
	}

	if _, err := q.st.CompleteJob(ctx, jobID, workerID); err != nil {
		return err
	}
	return nil
}

// Fail records a worker-reported error, reverting the job to pending
// for retry or marking it failed once max_attempts is exhausted.
func (q *Queue) Fail(ctx context.Context, jobID, workerID, errMsg string) error {
	_, err := q.st.FailJob(ctx, jobID, workerID, errMsg)
	return err
}

// Stats returns per (job_type, status) counts for a notebook.
func (q *Queue) Stats(ctx context.Context, notebookID string) (map[types.JobType]map[types.JobStatus]int, error) {
	return q.st.JobStats(ctx, notebookID)
}
