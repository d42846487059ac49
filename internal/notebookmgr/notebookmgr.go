// Package notebookmgr implements the notebook manager (spec component
// G): notebook CRUD, participant permissions, and batch write
// orchestration. It is the single entry point through which clients
// reach the entry store, cost engine and job queue, so that a write
// batch, its cost computation and its DISTILL_CLAIMS enqueue happen as
// one serialized per-notebook task (spec §9).
package notebookmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

// PurposeTopic is the reserved topic convention of spec §4.7: the
// latest entry with this topic is a notebook's "purpose" statement.
const PurposeTopic = "notebook:purpose"

const maxBatchSize = 100

// Manager orchestrates notebook lifecycle and write batches.
type Manager struct {
	st    store.Storage
	queue *queue.Queue

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Manager backed by st, enqueuing DISTILL_CLAIMS jobs
// through q on every successful write.
func New(st store.Storage, q *queue.Queue) *Manager {
	return &Manager{st: st, queue: q, locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) notebookLock(notebookID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[notebookID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[notebookID] = l
	}
	return l
}

// CreateNotebook creates a new notebook owned by owner.
func (m *Manager) CreateNotebook(ctx context.Context, name, owner string) (*types.Notebook, error) {
	nb := &types.Notebook{
		ID:        uuid.NewString(),
		Name:      name,
		Owner:     owner,
		CreatedAt: time.Now(),
	}
	if err := m.st.CreateNotebook(ctx, nb); err != nil {
		return nil, fmt.Errorf("create notebook: %w", err)
	}
	return nb, nil
}

// GetNotebook requires that caller has at least read permission.
func (m *Manager) GetNotebook(ctx context.Context, notebookID, caller string) (*types.Notebook, error) {
	nb, err := m.st.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if !nb.HasPermission(caller, false) {
		return nil, types.ErrPermissionDenied
	}
	return nb, nil
}

// ListNotebooks returns every notebook where caller is a participant.
func (m *Manager) ListNotebooks(ctx context.Context, caller string) ([]*types.Notebook, error) {
	return m.st.ListNotebooks(ctx, caller)
}

// RenameNotebook requires caller to be the owner.
func (m *Manager) RenameNotebook(ctx context.Context, notebookID, caller, name string) (*types.Notebook, error) {
	nb, err := m.st.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if nb.Owner != caller {
		return nil, types.ErrPermissionDenied
	}
	if err := m.st.RenameNotebook(ctx, notebookID, name); err != nil {
		return nil, fmt.Errorf("rename notebook: %w", err)
	}
	nb.Name = name
	return nb, nil
}

// DeleteNotebook requires caller to be the owner.
func (m *Manager) DeleteNotebook(ctx context.Context, notebookID, caller string) error {
	nb, err := m.st.GetNotebook(ctx, notebookID)
	if err != nil {
		return err
	}
	if nb.Owner != caller {
		return types.ErrPermissionDenied
	}
	return m.st.DeleteNotebook(ctx, notebookID)
}

// SetParticipant requires caller to be the owner.
func (m *Manager) SetParticipant(ctx context.Context, notebookID, caller string, p types.Participant) error {
	nb, err := m.st.GetNotebook(ctx, notebookID)
	if err != nil {
		return err
	}
	if nb.Owner != caller {
		return types.ErrPermissionDenied
	}
	return m.st.SetParticipant(ctx, notebookID, p)
}

// RemoveParticipant requires caller to be the owner.
func (m *Manager) RemoveParticipant(ctx context.Context, notebookID, caller, entity string) error {
	nb, err := m.st.GetNotebook(ctx, notebookID)
	if err != nil {
		return err
	}
	if nb.Owner != caller {
		return types.ErrPermissionDenied
	}
	return m.st.RemoveParticipant(ctx, notebookID, entity)
}

// Purpose returns the latest entry with the notebook:purpose topic, or
// nil if none has been written yet.
func (m *Manager) Purpose(ctx context.Context, notebookID string) (*types.Entry, error) {
	page, err := m.st.ListEntriesFiltered(ctx, notebookID, types.Filter{TopicPrefix: PurposeTopic, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("purpose lookup: %w", err)
	}
	if len(page.Entries) == 0 {
		return nil, nil
	}
	return page.Entries[0], nil
}
