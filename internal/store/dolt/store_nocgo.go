//go:build !cgo

package dolt

import (
	"context"
	"fmt"
	"time"

	"github.com/tideline/notebook/internal/types"
)

// DoltStore is a stub for non-CGO builds. Every method except Close
// returns errNoCGO so the server reports a clear configuration error instead
// of failing to link the embedded Dolt driver.
type DoltStore struct{}

var errNoCGO = fmt.Errorf("dolt storage backend: rebuild with CGO_ENABLED=1")

// New always fails on non-CGO builds.
func New(ctx context.Context, cfg Config) (*DoltStore, error) {
	return nil, errNoCGO
}

func (s *DoltStore) CreateNotebook(ctx context.Context, nb *types.Notebook) error { return errNoCGO }
func (s *DoltStore) GetNotebook(ctx context.Context, id string) (*types.Notebook, error) {
	return nil, errNoCGO
}
func (s *DoltStore) ListNotebooks(ctx context.Context, participant string) ([]*types.Notebook, error) {
	return nil, errNoCGO
}
func (s *DoltStore) RenameNotebook(ctx context.Context, id, name string) error { return errNoCGO }
func (s *DoltStore) DeleteNotebook(ctx context.Context, id string) error       { return errNoCGO }
func (s *DoltStore) SetParticipant(ctx context.Context, notebookID string, p types.Participant) error {
	return errNoCGO
}
func (s *DoltStore) RemoveParticipant(ctx context.Context, notebookID, entity string) error {
	return errNoCGO
}

func (s *DoltStore) NextSequence(ctx context.Context, notebookID string) (uint64, error) {
	return 0, errNoCGO
}
func (s *DoltStore) InsertEntry(ctx context.Context, e *types.Entry) error { return errNoCGO }
func (s *DoltStore) WriteEntryBatch(ctx context.Context, notebookID string, entries []*types.Entry, distillJobs []*types.Job) error {
	return errNoCGO
}
func (s *DoltStore) GetEntry(ctx context.Context, notebookID, entryID string) (*types.Entry, error) {
	return nil, errNoCGO
}
func (s *DoltStore) FindEntryByID(ctx context.Context, entryID string) (*types.Entry, error) {
	return nil, errNoCGO
}
func (s *DoltStore) ListEntries(ctx context.Context, notebookID string) ([]*types.Entry, error) {
	return nil, errNoCGO
}
func (s *DoltStore) ListEntriesFiltered(ctx context.Context, notebookID string, f types.Filter) (types.Page, error) {
	return types.Page{}, errNoCGO
}
func (s *DoltStore) ListRevisions(ctx context.Context, notebookID, entryID string) ([]*types.Entry, error) {
	return nil, errNoCGO
}
func (s *DoltStore) UpdateEnrichment(ctx context.Context, e *types.Entry) error { return errNoCGO }
func (s *DoltStore) RecordChange(ctx context.Context, notebookID string, ev types.ChangeEvent) error {
	return errNoCGO
}
func (s *DoltStore) ListChanges(ctx context.Context, notebookID string, since uint64) ([]types.ChangeEvent, error) {
	return nil, errNoCGO
}

func (s *DoltStore) InsertClaims(ctx context.Context, entryID string, claims []types.Claim) error {
	return errNoCGO
}
func (s *DoltStore) GetClaims(ctx context.Context, entryID string) ([]types.Claim, error) {
	return nil, errNoCGO
}
func (s *DoltStore) ClaimsBatch(ctx context.Context, entryIDs []string) ([]types.ClaimsBatchEntry, error) {
	return nil, errNoCGO
}
func (s *DoltStore) UpsertComparison(ctx context.Context, c types.Comparison) error { return errNoCGO }
func (s *DoltStore) GetComparison(ctx context.Context, a, b string) (*types.Comparison, error) {
	return nil, errNoCGO
}
func (s *DoltStore) ComparisonsForEntry(ctx context.Context, entryID string) ([]types.Comparison, error) {
	return nil, errNoCGO
}

func (s *DoltStore) EnqueueJob(ctx context.Context, j *types.Job) error { return errNoCGO }
func (s *DoltStore) LeaseNext(ctx context.Context, notebookID, workerID string, jobType *types.JobType, leaseTTL time.Duration) (*types.Job, error) {
	return nil, errNoCGO
}
func (s *DoltStore) CompleteJob(ctx context.Context, jobID, workerID string) (*types.Job, error) {
	return nil, errNoCGO
}
func (s *DoltStore) FailJob(ctx context.Context, jobID, workerID, errMsg string) (*types.Job, error) {
	return nil, errNoCGO
}
func (s *DoltStore) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	return nil, errNoCGO
}
func (s *DoltStore) JobStats(ctx context.Context, notebookID string) (map[types.JobType]map[types.JobStatus]int, error) {
	return nil, errNoCGO
}

func (s *DoltStore) SetEmbedding(ctx context.Context, entryID string, vec []float32) error {
	return errNoCGO
}
func (s *DoltStore) GetEmbedding(ctx context.Context, entryID string) ([]float32, bool, error) {
	return nil, false, errNoCGO
}
func (s *DoltStore) ListEmbeddings(ctx context.Context, notebookID string) (map[string][]float32, error) {
	return nil, errNoCGO
}

func (s *DoltStore) SetConfig(ctx context.Context, notebookID, key, value string) error {
	return errNoCGO
}
func (s *DoltStore) GetConfig(ctx context.Context, notebookID, key string) (string, error) {
	return "", errNoCGO
}

func (s *DoltStore) Close() error { return nil }
