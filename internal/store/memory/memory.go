// Package memory implements an in-process Storage backend. It is the
// default backend for tests and for any deployment that does not need
// cross-process durability; internal/store/dolt provides the durable,
// versioned alternative.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tideline/notebook/internal/types"
)

// defaultReviewThreshold mirrors claims.DefaultThresholds().ReviewThreshold,
// used when a Filter carries NeedsReview but no explicit ReviewThreshold
// (Storage can't import internal/claims without a cycle).
const defaultReviewThreshold = 0.2

// Store is a concurrency-safe, in-memory Storage implementation.
type Store struct {
	mu sync.RWMutex

	notebooks map[string]*types.Notebook

	entries    map[string]map[string]*types.Entry // notebookID -> entryID -> entry
	entryOrder map[string][]string                 // notebookID -> entry ids, sequence order

	claims      map[string][]types.Claim      // entryID -> claims, ordinal order
	comparisons map[string]types.Comparison    // "a|b" canonical -> comparison

	jobs      map[string]*types.Job
	jobOrder  []string // insertion order, used as the FIFO tiebreak

	embeddings map[string][]float32 // entryID -> vector

	config map[string]map[string]string // notebookID -> key -> value

	changes map[string][]types.ChangeEvent // notebookID -> change log
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		notebooks:   make(map[string]*types.Notebook),
		entries:     make(map[string]map[string]*types.Entry),
		entryOrder:  make(map[string][]string),
		claims:      make(map[string][]types.Claim),
		comparisons: make(map[string]types.Comparison),
		jobs:        make(map[string]*types.Job),
		embeddings:  make(map[string][]float32),
		config:      make(map[string]map[string]string),
		changes:     make(map[string][]types.ChangeEvent),
	}
}

func comparisonKey(a, b string) string {
	if a <= b {
		return a + "|" + b
	}
	return b + "|" + a
}

// --- Notebooks -------------------------------------------------------

func (s *Store) CreateNotebook(ctx context.Context, nb *types.Notebook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notebooks[nb.ID]; ok {
		return fmt.Errorf("notebook %s already exists", nb.ID)
	}
	cp := *nb
	s.notebooks[nb.ID] = &cp
	return nil
}

func (s *Store) GetNotebook(ctx context.Context, id string) (*types.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nb, ok := s.notebooks[id]
	if !ok {
		return nil, types.ErrNotebookNotFound
	}
	cp := *nb
	return &cp, nil
}

func (s *Store) ListNotebooks(ctx context.Context, participant string) ([]*types.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Notebook
	for _, nb := range s.notebooks {
		if nb.HasPermission(participant, false) {
			cp := *nb
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RenameNotebook(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, ok := s.notebooks[id]
	if !ok {
		return types.ErrNotebookNotFound
	}
	nb.Name = name
	return nil
}

func (s *Store) DeleteNotebook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notebooks[id]; !ok {
		return types.ErrNotebookNotFound
	}
	delete(s.notebooks, id)
	delete(s.entries, id)
	delete(s.entryOrder, id)
	delete(s.config, id)
	delete(s.changes, id)
	return nil
}

func (s *Store) SetParticipant(ctx context.Context, notebookID string, p types.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, ok := s.notebooks[notebookID]
	if !ok {
		return types.ErrNotebookNotFound
	}
	for i, existing := range nb.Participants {
		if existing.Entity == p.Entity {
			nb.Participants[i] = p
			return nil
		}
	}
	nb.Participants = append(nb.Participants, p)
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, notebookID, entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, ok := s.notebooks[notebookID]
	if !ok {
		return types.ErrNotebookNotFound
	}
	out := nb.Participants[:0]
	for _, p := range nb.Participants {
		if p.Entity != entity {
			out = append(out, p)
		}
	}
	nb.Participants = out
	return nil
}

// --- Entries -----------------------------------------------------------

func (s *Store) NextSequence(ctx context.Context, notebookID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, ok := s.notebooks[notebookID]
	if !ok {
		return 0, types.ErrNotebookNotFound
	}
	nb.SequenceCounter++
	return nb.SequenceCounter, nil
}

func (s *Store) InsertEntry(ctx context.Context, e *types.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notebooks[e.NotebookID]; !ok {
		return types.ErrNotebookNotFound
	}
	if s.entries[e.NotebookID] == nil {
		s.entries[e.NotebookID] = make(map[string]*types.Entry)
	}
	cp := *e
	s.entries[e.NotebookID][e.ID] = &cp
	s.entryOrder[e.NotebookID] = append(s.entryOrder[e.NotebookID], e.ID)
	return nil
}

// WriteEntryBatch assigns each entry its sequence, inserts it, records
// its change event, and enqueues its distill job, all under one lock:
// either every entry and job in the batch becomes visible, or (on a
// missing notebook) none of them do.
func (s *Store) WriteEntryBatch(ctx context.Context, notebookID string, entries []*types.Entry, distillJobs []*types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, ok := s.notebooks[notebookID]
	if !ok {
		return types.ErrNotebookNotFound
	}
	if s.entries[notebookID] == nil {
		s.entries[notebookID] = make(map[string]*types.Entry)
	}

	for i, e := range entries {
		nb.SequenceCounter++
		e.Sequence = nb.SequenceCounter
		e.CreatedAt = time.Now()

		cp := *e
		s.entries[notebookID][e.ID] = &cp
		s.entryOrder[notebookID] = append(s.entryOrder[notebookID], e.ID)

		s.changes[notebookID] = append(s.changes[notebookID], types.ChangeEvent{
			Sequence: e.Sequence,
			EntryID:  e.ID,
			Kind:     "written",
			At:       e.CreatedAt,
		})

		if i < len(distillJobs) {
			j := distillJobs[i]
			jcp := *j
			s.jobs[j.ID] = &jcp
			s.jobOrder = append(s.jobOrder, j.ID)
		}
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, notebookID, entryID string) (*types.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[notebookID][entryID]
	if !ok {
		return nil, types.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// FindEntryByID scans all notebooks for entryID. Used by comparison
// recomputation, which only has an entry id on hand.
func (s *Store) FindEntryByID(ctx context.Context, entryID string) (*types.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, byID := range s.entries {
		if e, ok := byID[entryID]; ok {
			cp := *e
			return &cp, nil
		}
	}
	return nil, types.ErrEntryNotFound
}

// ListEntries returns all entries of a notebook in sequence order,
// ascending. Callers needing a pre-write snapshot for the cost engine
// should call this before InsertEntry.
func (s *Store) ListEntries(ctx context.Context, notebookID string) ([]*types.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.entryOrder[notebookID]
	out := make([]*types.Entry, 0, len(order))
	for _, id := range order {
		e := s.entries[notebookID][id]
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListRevisions(ctx context.Context, notebookID, entryID string) ([]*types.Entry, error) {
	all, err := s.ListEntries(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	var out []*types.Entry
	for _, e := range all {
		if e.RevisionOf == entryID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) UpdateEnrichment(ctx context.Context, e *types.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[e.NotebookID][e.ID]
	if !ok {
		return types.ErrEntryNotFound
	}
	existing.Topic = e.Topic
	existing.ClaimsStatus = e.ClaimsStatus
	existing.IntegrationStatus = e.IntegrationStatus
	existing.MaxFriction = e.MaxFriction
	return nil
}

func (s *Store) RecordChange(ctx context.Context, notebookID string, ev types.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[notebookID] = append(s.changes[notebookID], ev)
	return nil
}

func (s *Store) ListChanges(ctx context.Context, notebookID string, since uint64) ([]types.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ChangeEvent
	for _, ev := range s.changes[notebookID] {
		if ev.Sequence > since {
			out = append(out, ev)
		}
	}
	return out, nil
}

// --- Claims & comparisons ----------------------------------------------

func (s *Store) InsertClaims(ctx context.Context, entryID string, claims []types.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]types.Claim(nil), claims...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })
	s.claims[entryID] = sorted
	return nil
}

func (s *Store) GetClaims(ctx context.Context, entryID string) ([]types.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Claim(nil), s.claims[entryID]...), nil
}

func (s *Store) ClaimsBatch(ctx context.Context, entryIDs []string) ([]types.ClaimsBatchEntry, error) {
	if len(entryIDs) > 100 {
		entryIDs = entryIDs[:100]
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ClaimsBatchEntry, 0, len(entryIDs))
	for _, id := range entryIDs {
		var e *types.Entry
		for _, byID := range s.entries {
			if found, ok := byID[id]; ok {
				e = found
				break
			}
		}
		if e == nil {
			continue
		}
		out = append(out, types.ClaimsBatchEntry{
			ID:                e.ID,
			Topic:             e.Topic,
			Claims:            append([]types.Claim(nil), s.claims[id]...),
			ClaimsStatus:      e.ClaimsStatus,
			IntegrationStatus: e.IntegrationStatus,
		})
	}
	return out, nil
}

func (s *Store) UpsertComparison(ctx context.Context, c types.Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, b := c.Pair()
	c.EntryA, c.EntryB = a, b
	s.comparisons[comparisonKey(a, b)] = c
	return nil
}

func (s *Store) GetComparison(ctx context.Context, a, b string) (*types.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comparisons[comparisonKey(a, b)]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (s *Store) ComparisonsForEntry(ctx context.Context, entryID string) ([]types.Comparison, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Comparison
	for _, c := range s.comparisons {
		if c.EntryA == entryID || c.EntryB == entryID {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Jobs ----------------------------------------------------------------

func (s *Store) EnqueueJob(ctx context.Context, j *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
	s.jobOrder = append(s.jobOrder, j.ID)
	return nil
}

func (s *Store) LeaseNext(ctx context.Context, notebookID, workerID string, jobType *types.JobType, leaseTTL time.Duration) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	var candidates []*types.Job
	for _, id := range s.jobOrder {
		j := s.jobs[id]
		if j.NotebookID != notebookID {
			continue
		}
		if jobType != nil && j.JobType != *jobType {
			continue
		}
		if j.Status == types.JobPending || (j.Status == types.JobInProgress && j.LeaseExpiresAt.Before(now)) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, k int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[k].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
		}
		return candidates[i].ID < candidates[k].ID
	})
	j := candidates[0]
	j.Status = types.JobInProgress
	j.Attempts++
	j.WorkerID = workerID
	j.LeaseExpiresAt = now.Add(leaseTTL)
	cp := *j
	return &cp, nil
}

func (s *Store) CompleteJob(ctx context.Context, jobID, workerID string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	if j.Status == types.JobCompleted {
		return nil, types.ErrStaleLease
	}
	if j.Status != types.JobInProgress || j.WorkerID != workerID {
		return nil, types.ErrStaleLease
	}
	j.Status = types.JobCompleted
	cp := *j
	return &cp, nil
}

func (s *Store) FailJob(ctx context.Context, jobID, workerID, errMsg string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	if j.Status != types.JobInProgress || j.WorkerID != workerID {
		return nil, types.ErrStaleLease
	}
	j.LastError = errMsg
	if j.Attempts < j.MaxAttempts {
		j.Status = types.JobPending
		j.WorkerID = ""
		j.LeaseExpiresAt = time.Time{}
	} else {
		j.Status = types.JobFailed
	}
	cp := *j
	return &cp, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, types.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) JobStats(ctx context.Context, notebookID string) (map[types.JobType]map[types.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.JobType]map[types.JobStatus]int)
	for _, j := range s.jobs {
		if j.NotebookID != notebookID {
			continue
		}
		if out[j.JobType] == nil {
			out[j.JobType] = make(map[types.JobStatus]int)
		}
		out[j.JobType][j.Status]++
	}
	return out, nil
}

// --- Embeddings ----------------------------------------------------------

func (s *Store) SetEmbedding(ctx context.Context, entryID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[entryID] = append([]float32(nil), vec...)
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, entryID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.embeddings[entryID]
	return v, ok, nil
}

func (s *Store) ListEmbeddings(ctx context.Context, notebookID string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float32)
	for id := range s.entries[notebookID] {
		if v, ok := s.embeddings[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

// --- Config ----------------------------------------------------------------

func (s *Store) SetConfig(ctx context.Context, notebookID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config[notebookID] == nil {
		s.config[notebookID] = make(map[string]string)
	}
	s.config[notebookID][key] = value
	return nil
}

func (s *Store) GetConfig(ctx context.Context, notebookID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config[notebookID][key], nil
}

func (s *Store) Close() error { return nil }

// ListEntriesFiltered implements the browse operation of spec §4.6.
func (s *Store) ListEntriesFiltered(ctx context.Context, notebookID string, f types.Filter) (types.Page, error) {
	all, err := s.ListEntries(ctx, notebookID)
	if err != nil {
		return types.Page{}, err
	}

	var filtered []*types.Entry
	for _, e := range all {
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(e.Topic), q) && !strings.Contains(strings.ToLower(string(e.Content)), q) {
				continue
			}
		}
		if f.TopicPrefix != "" && !strings.HasPrefix(e.Topic, f.TopicPrefix) {
			continue
		}
		if f.ClaimsStatus != nil && e.ClaimsStatus != *f.ClaimsStatus {
			continue
		}
		if f.Author != "" && e.Author != f.Author {
			continue
		}
		if f.SequenceMin != nil && e.Sequence < *f.SequenceMin {
			continue
		}
		if f.SequenceMax != nil && e.Sequence > *f.SequenceMax {
			continue
		}
		if f.FragmentOf != "" && e.FragmentOf != f.FragmentOf {
			continue
		}
		if f.HasFrictionAbove != nil && e.MaxFriction <= *f.HasFrictionAbove {
			continue
		}
		if f.NeedsReview != nil {
			threshold := f.ReviewThreshold
			if threshold <= 0 {
				threshold = defaultReviewThreshold
			}
			needsReview := e.MaxFriction > threshold
			if needsReview != *f.NeedsReview {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	if f.FragmentOf != "" {
		sort.Slice(filtered, func(i, j int) bool {
			ii, ji := uint32(0), uint32(0)
			if filtered[i].FragmentIndex != nil {
				ii = *filtered[i].FragmentIndex
			}
			if filtered[j].FragmentIndex != nil {
				ji = *filtered[j].FragmentIndex
			}
			return ii < ji
		})
	} else {
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Sequence > filtered[j].Sequence })
	}

	total := len(filtered)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return types.Page{Entries: filtered[offset:end], Total: total}, nil
}
