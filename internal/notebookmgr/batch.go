package notebookmgr

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tideline/notebook/internal/cost"
	"github.com/tideline/notebook/internal/jobs"
	"github.com/tideline/notebook/internal/types"
)

// WriteBatch persists entries atomically under the notebook's
// exclusive write lock, computing integration cost per entry and
// enqueueing one DISTILL_CLAIMS job per entry written.
func (m *Manager) WriteBatch(ctx context.Context, notebookID, caller, author string, inputs []types.EntryInput) ([]types.WriteResult, error) {
	if len(inputs) == 0 {
		return nil, types.ErrBatchEmpty
	}
	if len(inputs) > maxBatchSize {
		return nil, types.ErrBatchTooLarge
	}

	nb, err := m.st.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	if !nb.HasPermission(caller, true) {
		return nil, types.ErrPermissionDenied
	}

	lock := m.notebookLock(notebookID)
	lock.Lock()
	defer lock.Unlock()

	snapshot, err := m.st.ListEntries(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("snapshot entries: %w", err)
	}

	// Build and validate every entry against the snapshot plus siblings
	// assigned earlier in this batch before persisting any of them, so
	// a late validation failure fails the whole batch atomically.
	pending := make([]*types.Entry, 0, len(inputs))
	known := append([]*types.Entry(nil), snapshot...)

	for _, in := range inputs {
		topic := in.Topic
		var revisionOf string
		if in.RevisionOf != "" {
			parent := findByID(known, in.RevisionOf)
			if parent == nil {
				return nil, types.ErrInvalidRevisionTarget
			}
			topic = parent.Topic
			revisionOf = in.RevisionOf
		}

		resolvedRefs := cost.ResolveReferences(in.References, known)
		referencesBroken := uint32(len(in.References) - len(resolvedRefs))

		c := cost.Compute(cost.Candidate{
			Topic:      topic,
			Content:    in.Content,
			References: in.References,
			RevisionOf: revisionOf,
		}, known)
		c.ReferencesBroken = referencesBroken

		e := &types.Entry{
			ID:                uuid.NewString(),
			NotebookID:        notebookID,
			Content:           in.Content,
			ContentType:       in.ContentType,
			Topic:             topic,
			References:        resolvedRefs,
			RevisionOf:        revisionOf,
			FragmentOf:        in.FragmentOf,
			FragmentIndex:     in.FragmentIndex,
			Author:            author,
			Cost:              c,
			ClaimsStatus:      types.ClaimsPending,
			IntegrationStatus: types.StatusProbation,
		}
		pending = append(pending, e)
		known = append(known, e)
	}

	// Build every distill job up front (without persisting it) so the
	// whole batch, entries and distill jobs alike, can be handed to the
	// store as one atomic unit: either all of it becomes durable, or a
	// mid-batch failure leaves nothing behind.
	distillJobs := make([]*types.Job, 0, len(pending))
	for _, e := range pending {
		payload, err := json.Marshal(jobs.DistillPayload{EntryID: e.ID})
		if err != nil {
			return nil, fmt.Errorf("marshal distill payload: %w", err)
		}
		distillJobs = append(distillJobs, m.queue.BuildJob(notebookID, types.JobDistillClaims, payload, 0))
	}

	if err := m.st.WriteEntryBatch(ctx, notebookID, pending, distillJobs); err != nil {
		return nil, fmt.Errorf("write entry batch: %w", err)
	}

	results := make([]types.WriteResult, 0, len(pending))
	for _, e := range pending {
		results = append(results, types.WriteResult{EntryID: e.ID, Sequence: e.Sequence, Cost: e.Cost})
	}

	return results, nil
}

func findByID(entries []*types.Entry, id string) *types.Entry {
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}
