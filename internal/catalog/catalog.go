// Package catalog implements the catalog projector (spec component C):
// a topic-grouped view over a notebook's entries, computed on demand
// and never persisted.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/tideline/notebook/internal/store"
	"github.com/tideline/notebook/internal/types"
)

const noneBucket = "(none)"

const summaryChars = 150

// Project derives the topic clusters for a notebook. It is a pure
// projection over the entry list; callers that cache it must
// invalidate on every write into the notebook.
func Project(ctx context.Context, st store.Storage, notebookID string) ([]types.CatalogCluster, error) {
	entries, err := st.ListEntries(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	byTopic := make(map[string][]*types.Entry)
	for _, e := range entries {
		topic := e.Topic
		if topic == "" {
			topic = noneBucket
		}
		byTopic[topic] = append(byTopic[topic], e)
	}

	clusters := make([]types.CatalogCluster, 0, len(byTopic))
	for topic, es := range byTopic {
		sort.Slice(es, func(i, j int) bool { return es[i].Sequence < es[j].Sequence })

		var cumulative float64
		var latestSeq uint64
		ids := make([]string, 0, len(es))
		for _, e := range es {
			cumulative += float64(e.Cost.EntriesRevised)*0.3 + float64(e.Cost.ReferencesBroken)*0.5 + float64(e.Cost.CatalogShift)
			if e.Sequence > latestSeq {
				latestSeq = e.Sequence
			}
			ids = append(ids, e.ID)
		}
		latest := es[len(es)-1]
		clusters = append(clusters, types.CatalogCluster{
			Topic:          topic,
			Summary:        summary(latest.Content),
			EntryCount:     len(es),
			CumulativeCost: cumulative,
			LatestSequence: latestSeq,
			EntryIDs:       ids,
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].CumulativeCost > clusters[j].CumulativeCost })
	return clusters, nil
}

func summary(content []byte) string {
	if len(content) <= summaryChars {
		return string(content)
	}
	return string(content[:summaryChars])
}
