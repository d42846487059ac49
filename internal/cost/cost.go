// Package cost implements the integration-cost engine: a pure,
// deterministic function of a candidate entry and a snapshot of the
// notebook's existing entries, computing the disruption quadruple
// attached synchronously to every write.
package cost

import (
	"math"
	"strings"

	"github.com/tideline/notebook/internal/types"
)

const (
	jaccardThreshold   = 0.3
	orphanTokenOverlap = 3
	snippetChars       = 200
)

// Candidate is the subset of entry fields the engine needs, so callers
// can compute cost before an entry has an id or sequence assigned.
type Candidate struct {
	Topic      string
	Content    []byte
	References []string
	RevisionOf string
}

func tokenBag(topic string, content []byte) map[string]struct{} {
	text := topic
	if len(content) > snippetChars {
		text += string(content[:snippetChars])
	} else {
		text += string(content)
	}
	bag := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		bag[tok] = struct{}{}
	}
	return bag
}

func topicTokens(topic string) map[string]struct{} {
	bag := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(topic)) {
		bag[tok] = struct{}{}
	}
	return bag
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersect := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersect++
		}
	}
	union := len(a) + len(b) - intersect
	if union == 0 {
		return 0
	}
	return float64(intersect) / float64(union)
}

func round4(f float64) float32 {
	return float32(math.Round(f*10000) / 10000)
}

// Compute evaluates the cost quadruple of candidate against snapshot,
// which must contain every entry already visible in the notebook
// (including siblings assigned earlier in the same write batch).
func Compute(candidate Candidate, snapshot []*types.Entry) types.IntegrationCost {
	candidateBag := tokenBag(candidate.Topic, candidate.Content)

	known := make(map[string]struct{}, len(snapshot))
	for _, e := range snapshot {
		known[e.ID] = struct{}{}
	}

	var entriesRevised uint32
	if candidate.RevisionOf != "" {
		if _, ok := known[candidate.RevisionOf]; ok {
			entriesRevised++
		}
	}

	var referencesBroken uint32
	var resolvedCount int
	for _, ref := range candidate.References {
		if _, ok := known[ref]; ok {
			resolvedCount++
		} else {
			referencesBroken++
		}
	}

	candidateTopic := topicTokens(candidate.Topic)
	existingTopic := make(map[string]struct{})

	maxSharedTokens := 0
	for _, e := range snapshot {
		eBag := tokenBag(e.Topic, e.Content)
		if jaccard(candidateBag, eBag) > jaccardThreshold {
			entriesRevised++
		}
		shared := 0
		for tok := range candidateBag {
			if _, ok := eBag[tok]; ok {
				shared++
			}
		}
		if shared > maxSharedTokens {
			maxSharedTokens = shared
		}
		for tok := range topicTokens(e.Topic) {
			existingTopic[tok] = struct{}{}
		}
	}

	var catalogShift float32
	if len(candidateTopic) == 0 {
		catalogShift = 0
	} else {
		novel := 0
		for tok := range candidateTopic {
			if _, ok := existingTopic[tok]; !ok {
				novel++
			}
		}
		catalogShift = round4(float64(novel) / float64(len(candidateTopic)))
	}

	orphan := resolvedCount == 0 && maxSharedTokens < orphanTokenOverlap && len(snapshot) > 0

	return types.IntegrationCost{
		EntriesRevised:   entriesRevised,
		ReferencesBroken: referencesBroken,
		CatalogShift:     catalogShift,
		Orphan:           orphan,
	}
}

// ResolveReferences partitions a candidate's requested references into
// the subset that exists in snapshot, preserving order.
func ResolveReferences(requested []string, snapshot []*types.Entry) []string {
	known := make(map[string]struct{}, len(snapshot))
	for _, e := range snapshot {
		known[e.ID] = struct{}{}
	}
	var out []string
	for _, ref := range requested {
		if _, ok := known[ref]; ok {
			out = append(out, ref)
		}
	}
	return out
}
