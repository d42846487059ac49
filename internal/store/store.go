// Package store defines the storage interface shared by the entry store,
// job queue and claim graph, and the backends that implement it.
package store

import (
	"context"
	"time"

	"github.com/tideline/notebook/internal/types"
)

// Storage is the full persistence surface consumed by the pipeline
// components. A single implementation backs components A (Entry Store),
// D (Job Queue) and E (Claim Graph) so that writes, job enqueues and
// aggregate recomputation can share one per-notebook transaction, per
// spec §5.
type Storage interface {
	// Notebooks (component G)
	CreateNotebook(ctx context.Context, nb *types.Notebook) error
	GetNotebook(ctx context.Context, id string) (*types.Notebook, error)
	ListNotebooks(ctx context.Context, participant string) ([]*types.Notebook, error)
	RenameNotebook(ctx context.Context, id, name string) error
	DeleteNotebook(ctx context.Context, id string) error
	SetParticipant(ctx context.Context, notebookID string, p types.Participant) error
	RemoveParticipant(ctx context.Context, notebookID, entity string) error

	// Entries (component A)
	NextSequence(ctx context.Context, notebookID string) (uint64, error)
	InsertEntry(ctx context.Context, e *types.Entry) error
	// WriteEntryBatch persists a whole write batch (sequence assignment,
	// insert, change event, distill job enqueue per entry) as a single
	// atomic unit: either every entry and job in the batch becomes
	// durable, or none does, per spec §4.1, §8.
	WriteEntryBatch(ctx context.Context, notebookID string, entries []*types.Entry, distillJobs []*types.Job) error
	GetEntry(ctx context.Context, notebookID, entryID string) (*types.Entry, error)
	// FindEntryByID looks up an entry across all notebooks by id alone,
	// for callers (e.g. comparison recomputation) that only have an
	// entry id on hand.
	FindEntryByID(ctx context.Context, entryID string) (*types.Entry, error)
	ListEntries(ctx context.Context, notebookID string) ([]*types.Entry, error)
	ListEntriesFiltered(ctx context.Context, notebookID string, f types.Filter) (types.Page, error)
	ListRevisions(ctx context.Context, notebookID, entryID string) ([]*types.Entry, error)
	UpdateEnrichment(ctx context.Context, e *types.Entry) error
	RecordChange(ctx context.Context, notebookID string, ev types.ChangeEvent) error
	ListChanges(ctx context.Context, notebookID string, since uint64) ([]types.ChangeEvent, error)

	// Claims & comparisons (component E)
	InsertClaims(ctx context.Context, entryID string, claims []types.Claim) error
	GetClaims(ctx context.Context, entryID string) ([]types.Claim, error)
	ClaimsBatch(ctx context.Context, entryIDs []string) ([]types.ClaimsBatchEntry, error)
	UpsertComparison(ctx context.Context, c types.Comparison) error
	GetComparison(ctx context.Context, a, b string) (*types.Comparison, error)
	ComparisonsForEntry(ctx context.Context, entryID string) ([]types.Comparison, error)

	// Jobs (component D)
	EnqueueJob(ctx context.Context, j *types.Job) error
	LeaseNext(ctx context.Context, notebookID, workerID string, jobType *types.JobType, leaseTTL time.Duration) (*types.Job, error)
	CompleteJob(ctx context.Context, jobID, workerID string) (*types.Job, error)
	FailJob(ctx context.Context, jobID, workerID, errMsg string) (*types.Job, error)
	GetJob(ctx context.Context, jobID string) (*types.Job, error)
	JobStats(ctx context.Context, notebookID string) (map[types.JobType]map[types.JobStatus]int, error)

	// Embeddings (used by semantic search, component F)
	SetEmbedding(ctx context.Context, entryID string, vec []float32) error
	GetEmbedding(ctx context.Context, entryID string) ([]float32, bool, error)
	ListEmbeddings(ctx context.Context, notebookID string) (map[string][]float32, error)

	// Config (per-notebook key/value overlay, e.g. thresholds)
	SetConfig(ctx context.Context, notebookID, key, value string) error
	GetConfig(ctx context.Context, notebookID, key string) (string, error)

	Close() error
}
