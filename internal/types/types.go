// Package types defines the core data model of the notebook: notebooks,
// entries, integration cost, claims, comparisons and jobs.
package types

import "time"

// ClaimsStatus is the lifecycle stage of an entry's claim distillation.
type ClaimsStatus string

const (
	ClaimsPending   ClaimsStatus = "pending"
	ClaimsDistilled ClaimsStatus = "distilled"
	ClaimsVerified  ClaimsStatus = "verified"
)

// IntegrationStatus is the derived standing of an entry within the corpus.
type IntegrationStatus string

const (
	StatusProbation  IntegrationStatus = "probation"
	StatusIntegrated IntegrationStatus = "integrated"
	StatusContested  IntegrationStatus = "contested"
)

// JobType identifies which worker contract a job follows.
type JobType string

const (
	JobDistillClaims JobType = "DISTILL_CLAIMS"
	JobCompareClaims JobType = "COMPARE_CLAIMS"
	JobClassifyTopic JobType = "CLASSIFY_TOPIC"
)

// JobStatus is the job's position in the lease state machine.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Participant is a (entity, read, write) tuple on a Notebook.
type Participant struct {
	Entity string `json:"entity"`
	Read   bool   `json:"read"`
	Write  bool   `json:"write"`
}

// Notebook is the top-level container: an append-only log with a
// monotone per-notebook sequence counter.
type Notebook struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Owner           string        `json:"owner"`
	Participants    []Participant `json:"participants"`
	CreatedAt       time.Time     `json:"created_at"`
	SequenceCounter uint64        `json:"sequence_counter"`
}

// HasPermission reports whether entity has the requested permission.
// The owner implicitly has both read and write.
func (n *Notebook) HasPermission(entity string, write bool) bool {
	if entity == n.Owner {
		return true
	}
	for _, p := range n.Participants {
		if p.Entity != entity {
			continue
		}
		if write {
			return p.Write
		}
		return p.Read
	}
	return false
}

// IntegrationCost is the synchronous structural-disruption signal computed
// at write time. Immutable once computed.
type IntegrationCost struct {
	EntriesRevised    uint32  `json:"entries_revised"`
	ReferencesBroken  uint32  `json:"references_broken"`
	CatalogShift      float32 `json:"catalog_shift"`
	Orphan            bool    `json:"orphan"`
}

// Entry is a single append-only unit of content in a notebook.
type Entry struct {
	ID                string            `json:"id"`
	NotebookID        string            `json:"notebook_id"`
	Content           []byte            `json:"content"`
	ContentType       string            `json:"content_type"`
	Topic             string            `json:"topic"`
	References        []string          `json:"references"`
	RevisionOf        string            `json:"revision_of,omitempty"`
	FragmentOf        string            `json:"fragment_of,omitempty"`
	FragmentIndex     *uint32           `json:"fragment_index,omitempty"`
	Author            string            `json:"author"`
	CreatedAt         time.Time         `json:"created_at"`
	Sequence          uint64            `json:"sequence"`
	Cost              IntegrationCost   `json:"integration_cost"`
	ClaimsStatus      ClaimsStatus      `json:"claims_status"`
	IntegrationStatus IntegrationStatus `json:"integration_status"`
	MaxFriction       float32           `json:"max_friction"`
}

// EntryInput is the payload of a single entry in a write batch.
type EntryInput struct {
	Content       []byte   `json:"content"`
	ContentType   string   `json:"content_type"`
	Topic         string   `json:"topic"`
	References    []string `json:"references"`
	RevisionOf    string   `json:"revision_of,omitempty"`
	FragmentOf    string   `json:"fragment_of,omitempty"`
	FragmentIndex *uint32  `json:"fragment_index,omitempty"`
}

// WriteResult reports the outcome of writing one entry in a batch.
type WriteResult struct {
	EntryID  string          `json:"entry_id"`
	Sequence uint64          `json:"sequence"`
	Cost     IntegrationCost `json:"integration_cost"`
}

// Claim is an LLM-distilled factual sentence extracted from an entry.
// Ordinal ordering is semantically meaningful: most central first.
type Claim struct {
	ID         string  `json:"id"`
	EntryID    string  `json:"entry_id"`
	Ordinal    int     `json:"ordinal"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// Contradiction is one claim-pair disagreement surfaced by a comparison.
type Contradiction struct {
	ClaimAText string  `json:"claim_a_text"`
	ClaimBText string  `json:"claim_b_text"`
	Severity   float32 `json:"severity"`
}

// Comparison is the pairwise relation between two entries. Stored with
// key (min(a,b), max(a,b)); at most one per unordered pair.
type Comparison struct {
	EntryA        string          `json:"entry_a"`
	EntryB        string          `json:"entry_b"`
	Entropy       float32         `json:"entropy"`
	Friction      float32         `json:"friction"`
	Contradictions []Contradiction `json:"contradictions"`
}

// Pair returns the comparison's key in canonical (min, max) order.
func (c Comparison) Pair() (string, string) {
	if c.EntryA <= c.EntryB {
		return c.EntryA, c.EntryB
	}
	return c.EntryB, c.EntryA
}

// Job is a durable, leased unit of background work.
type Job struct {
	ID              string          `json:"id"`
	NotebookID      string          `json:"notebook_id"`
	JobType         JobType         `json:"job_type"`
	Payload         []byte          `json:"payload"`
	Status          JobStatus       `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	LeaseExpiresAt  time.Time       `json:"lease_expires_at"`
	WorkerID        string          `json:"worker_id,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Filter composes the conjunctive browse predicate of spec §4.6.
type Filter struct {
	Query            string
	TopicPrefix      string
	ClaimsStatus     *ClaimsStatus
	Author           string
	SequenceMin      *uint64
	SequenceMax      *uint64
	FragmentOf       string
	HasFrictionAbove *float32
	NeedsReview      *bool
	// ReviewThreshold is the deployment's configured review threshold
	// (spec §4.4's review_threshold), applied when NeedsReview is set.
	// Zero means "use the spec default of 0.2".
	ReviewThreshold float32
	Limit           int
	Offset          int
}

// Page is one page of browse results.
type Page struct {
	Entries []*Entry `json:"entries"`
	Total   int      `json:"total"`
}

// DistillResult is the worker-supplied result schema for DISTILL_CLAIMS.
type DistillResult struct {
	Claims []struct {
		Text       string  `json:"text"`
		Confidence float32 `json:"confidence"`
	} `json:"claims"`
}

// ClassificationType is the per-claim verdict in a COMPARE_CLAIMS result.
type ClassificationType string

const (
	ClassNovel       ClassificationType = "NOVEL"
	ClassRedundant   ClassificationType = "REDUNDANT"
	ClassContradicts ClassificationType = "CONTRADICTS"
)

// CompareResult is the worker-supplied result schema for COMPARE_CLAIMS.
type CompareResult struct {
	Entropy        float32         `json:"entropy"`
	Friction       float32         `json:"friction"`
	Contradictions []Contradiction `json:"contradictions"`
}

// ClassifyResult is the worker-supplied result schema for CLASSIFY_TOPIC.
type ClassifyResult struct {
	PrimaryTopic    string   `json:"primary_topic"`
	SecondaryTopics []string `json:"secondary_topics"`
	NewTopic        string   `json:"new_topic,omitempty"`
}

// CatalogCluster is one topic-grouped row of the catalog projection.
type CatalogCluster struct {
	Topic           string   `json:"topic"`
	Summary         string   `json:"summary"`
	EntryCount      int      `json:"entry_count"`
	CumulativeCost  float64  `json:"cumulative_cost"`
	LatestSequence  uint64   `json:"latest_sequence"`
	EntryIDs        []string `json:"entry_ids"`
}

// ClaimsBatchEntry is one row of a claims_batch lookup.
type ClaimsBatchEntry struct {
	ID                string            `json:"id"`
	Topic             string            `json:"topic"`
	Claims            []Claim          `json:"claims"`
	ClaimsStatus      ClaimsStatus      `json:"claims_status"`
	IntegrationStatus IntegrationStatus `json:"integration_status"`
}

// ChangeEvent is one row of the observe() change feed.
type ChangeEvent struct {
	Sequence uint64    `json:"sequence"`
	EntryID  string    `json:"entry_id"`
	Kind     string    `json:"kind"` // "written", "enriched"
	At       time.Time `json:"at"`
}
