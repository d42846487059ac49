package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/notebook/internal/catalog"
	"github.com/tideline/notebook/internal/store/memory"
	"github.com/tideline/notebook/internal/types"
)

func TestProject_GroupsByTopicAndSortsByCost(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	require.NoError(t, st.InsertEntry(ctx, &types.Entry{
		ID: "a", NotebookID: "nb1", Topic: "billing", Sequence: 1,
		Cost: types.IntegrationCost{EntriesRevised: 1},
	}))
	require.NoError(t, st.InsertEntry(ctx, &types.Entry{
		ID: "b", NotebookID: "nb1", Topic: "billing", Sequence: 2,
		Cost: types.IntegrationCost{ReferencesBroken: 2},
	}))
	require.NoError(t, st.InsertEntry(ctx, &types.Entry{
		ID: "c", NotebookID: "nb1", Topic: "", Sequence: 3,
	}))

	clusters, err := catalog.Project(ctx, st, "nb1")
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	billing := clusters[0]
	assert.Equal(t, "billing", billing.Topic)
	assert.Equal(t, 2, billing.EntryCount)
	assert.Equal(t, uint64(2), billing.LatestSequence)
	assert.Equal(t, []string{"a", "b"}, billing.EntryIDs)

	assert.Equal(t, "(none)", clusters[1].Topic)
}

func TestProject_SummaryTruncates(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, st.InsertEntry(ctx, &types.Entry{ID: "a", NotebookID: "nb1", Topic: "t", Content: long}))

	clusters, err := catalog.Project(ctx, st, "nb1")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Summary, 150)
}

func TestProject_EmptyNotebookReturnsNoClusters(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.CreateNotebook(ctx, &types.Notebook{ID: "nb1", Owner: "alice"}))

	clusters, err := catalog.Project(ctx, st, "nb1")
	require.NoError(t, err)
	assert.Empty(t, clusters)
}
