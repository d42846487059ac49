// Package jobs wires the job queue's result handlers (spec §4.3):
// DISTILL_CLAIMS, COMPARE_CLAIMS and CLASSIFY_TOPIC completions are
// dispatched here to the claim graph, the store and further enqueues.
package jobs

// DistillPayload is the DISTILL_CLAIMS job payload.
type DistillPayload struct {
	EntryID string `json:"entry_id"`
}

// ComparePayload is the COMPARE_CLAIMS job payload: the new entry and
// the peer it is being compared against.
type ComparePayload struct {
	EntryID string `json:"entry_id"`
	PeerID  string `json:"peer_id"`
}

// ClassifyPayload is the CLASSIFY_TOPIC job payload.
type ClassifyPayload struct {
	EntryID string `json:"entry_id"`
}
