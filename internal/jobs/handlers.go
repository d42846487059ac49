package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tideline/notebook/internal/claims"
	"github.com/tideline/notebook/internal/queue"
	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

// DefaultCompareFanOut is M, the number of most-recent other distilled
// entries a freshly distilled entry is compared against.
const DefaultCompareFanOut = 20

// Embedder is the external embedding collaborator invoked once an
// entry finishes DISTILL, so semantic and hybrid search have a vector
// to work with. Out of scope per spec §1; this is its call contract.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Register wires the three result handlers of spec §4.3 into q.
// embedder may be nil, in which case distilled entries are never
// embedded: semantic search never returns them, and hybrid search
// finds them only through its lexical side.
func Register(q *queue.Queue, st store.Storage, graph *claims.Graph, embedder Embedder, compareFanOut int) {
	if compareFanOut <= 0 {
		compareFanOut = DefaultCompareFanOut
	}
	h := &handlers{st: st, graph: graph, queue: q, embedder: embedder, compareFanOut: compareFanOut}
	q.RegisterHandler(types.JobDistillClaims, h.onDistill)
	q.RegisterHandler(types.JobCompareClaims, h.onCompare)
	q.RegisterHandler(types.JobClassifyTopic, h.onClassify)
}

type handlers struct {
	st            store.Storage
	graph         *claims.Graph
	queue         *queue.Queue
	embedder      Embedder
	compareFanOut int
}

func (h *handlers) onDistill(ctx context.Context, job *types.Job, result []byte) error {
	var payload DistillPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal distill payload: %w", err)
	}
	var distilled types.DistillResult
	if err := json.Unmarshal(result, &distilled); err != nil {
		return types.Wrap(types.KindWorkerError, fmt.Errorf("unmarshal distill result: %w", err))
	}

	claimRows := make([]types.Claim, len(distilled.Claims))
	for i, c := range distilled.Claims {
		claimRows[i] = types.Claim{
			EntryID:    payload.EntryID,
			Ordinal:    i,
			Text:       c.Text,
			Confidence: c.Confidence,
		}
	}
	if err := h.graph.StoreClaims(ctx, payload.EntryID, claimRows); err != nil {
		return err
	}

	entry, err := h.st.FindEntryByID(ctx, payload.EntryID)
	if err != nil {
		return err
	}
	entry.ClaimsStatus = types.ClaimsDistilled
	if err := h.st.UpdateEnrichment(ctx, entry); err != nil {
		return fmt.Errorf("mark entry distilled: %w", err)
	}

	if h.embedder != nil {
		vec, err := h.embedder.Embed(ctx, string(entry.Content))
		if err != nil {
			return types.Wrap(types.KindDependencyUnavailable, fmt.Errorf("embed entry: %w", err))
		}
		if err := h.st.SetEmbedding(ctx, entry.ID, vec); err != nil {
			return fmt.Errorf("store embedding: %w", err)
		}
	}

	peers, err := h.recentDistilledPeers(ctx, entry.NotebookID, entry.ID)
	if err != nil {
		return err
	}
	for _, peer := range peers {
		payload, err := json.Marshal(ComparePayload{EntryID: entry.ID, PeerID: peer.ID})
		if err != nil {
			return fmt.Errorf("marshal compare payload: %w", err)
		}
		if _, err := h.queue.Enqueue(ctx, entry.NotebookID, types.JobCompareClaims, payload, 0); err != nil {
			return fmt.Errorf("enqueue compare job: %w", err)
		}
	}

	classifyPayload, err := json.Marshal(ClassifyPayload{EntryID: entry.ID})
	if err != nil {
		return fmt.Errorf("marshal classify payload: %w", err)
	}
	if _, err := h.queue.Enqueue(ctx, entry.NotebookID, types.JobClassifyTopic, classifyPayload, 0); err != nil {
		return fmt.Errorf("enqueue classify job: %w", err)
	}
	return nil
}

// recentDistilledPeers returns the M most-recent other distilled
// entries in the notebook, sequence descending.
func (h *handlers) recentDistilledPeers(ctx context.Context, notebookID, excludeID string) ([]*types.Entry, error) {
	all, err := h.st.ListEntries(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var distilled []*types.Entry
	for _, e := range all {
		if e.ID == excludeID {
			continue
		}
		if e.ClaimsStatus == types.ClaimsPending {
			continue
		}
		distilled = append(distilled, e)
	}
	sort.Slice(distilled, func(i, j int) bool { return distilled[i].Sequence > distilled[j].Sequence })
	if len(distilled) > h.compareFanOut {
		distilled = distilled[:h.compareFanOut]
	}
	return distilled, nil
}

func (h *handlers) onCompare(ctx context.Context, job *types.Job, result []byte) error {
	var payload ComparePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal compare payload: %w", err)
	}
	var res types.CompareResult
	if err := json.Unmarshal(result, &res); err != nil {
		return types.Wrap(types.KindWorkerError, fmt.Errorf("unmarshal compare result: %w", err))
	}

	c := types.Comparison{
		EntryA:         payload.EntryID,
		EntryB:         payload.PeerID,
		Entropy:        res.Entropy,
		Friction:       res.Friction,
		Contradictions: res.Contradictions,
	}
	return h.graph.UpsertComparison(ctx, c)
}

func (h *handlers) onClassify(ctx context.Context, job *types.Job, result []byte) error {
	var payload ClassifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal classify payload: %w", err)
	}
	var res types.ClassifyResult
	if err := json.Unmarshal(result, &res); err != nil {
		return types.Wrap(types.KindWorkerError, fmt.Errorf("unmarshal classify result: %w", err))
	}

	entry, err := h.st.FindEntryByID(ctx, payload.EntryID)
	if err != nil {
		return err
	}
	if entry.Topic != "" {
		return nil // already has a topic; the classification result is discarded and the topic kept
	}
	topic := res.PrimaryTopic
	if topic == "" {
		topic = res.NewTopic
	}
	entry.Topic = topic
	if err := h.st.UpdateEnrichment(ctx, entry); err != nil {
		return fmt.Errorf("set classified topic: %w", err)
	}
	return nil
}
