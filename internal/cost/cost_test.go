package cost_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tideline/notebook/internal/cost"
	"github.com/tideline/notebook/internal/types"
)

func TestCompute_EmptySnapshot(t *testing.T) {
	c := cost.Compute(cost.Candidate{Topic: "onboarding", Content: []byte("first note ever")}, nil)
	assert.Equal(t, uint32(0), c.EntriesRevised)
	assert.Equal(t, uint32(0), c.ReferencesBroken)
	assert.False(t, c.Orphan, "orphan is never set for the very first entry in a notebook")
}

func TestCompute_RevisionOfCountsAsRevised(t *testing.T) {
	snapshot := []*types.Entry{
		{ID: "parent", Topic: "auth", Content: []byte("users log in with a password")},
	}
	c := cost.Compute(cost.Candidate{
		Topic:      "auth",
		Content:    []byte("users log in with a password or a magic link"),
		RevisionOf: "parent",
	}, snapshot)
	assert.GreaterOrEqual(t, c.EntriesRevised, uint32(1))
}

func TestCompute_ReferencesBroken(t *testing.T) {
	snapshot := []*types.Entry{
		{ID: "known", Topic: "x", Content: []byte("x")},
	}
	c := cost.Compute(cost.Candidate{
		Topic:      "y",
		Content:    []byte("something unrelated entirely"),
		References: []string{"known", "missing"},
	}, snapshot)
	assert.Equal(t, uint32(1), c.ReferencesBroken)
}

func TestCompute_CatalogShiftNewTopicIsFullyNovel(t *testing.T) {
	snapshot := []*types.Entry{
		{ID: "a", Topic: "billing", Content: []byte("invoices are generated monthly")},
	}
	c := cost.Compute(cost.Candidate{Topic: "astronomy", Content: []byte("stars")}, snapshot)
	assert.Equal(t, float32(1), c.CatalogShift)
}

func TestCompute_CatalogShiftKnownTopicIsZero(t *testing.T) {
	snapshot := []*types.Entry{
		{ID: "a", Topic: "billing", Content: []byte("invoices are generated monthly")},
	}
	c := cost.Compute(cost.Candidate{Topic: "billing", Content: []byte("refunds take five days")}, snapshot)
	assert.Equal(t, float32(0), c.CatalogShift)
}

func TestCompute_OrphanWhenUnreferencedAndDissimilar(t *testing.T) {
	snapshot := []*types.Entry{
		{ID: "a", Topic: "billing", Content: []byte("invoices are generated monthly for enterprise customers")},
	}
	c := cost.Compute(cost.Candidate{
		Topic:   "astronomy",
		Content: []byte("the andromeda galaxy is approaching the milky way"),
	}, snapshot)
	assert.True(t, c.Orphan)
}

func TestCompute_NotOrphanWhenReferencesResolve(t *testing.T) {
	snapshot := []*types.Entry{
		{ID: "a", Topic: "billing", Content: []byte("invoices are generated monthly")},
	}
	c := cost.Compute(cost.Candidate{
		Topic:      "astronomy",
		Content:    []byte("totally unrelated text"),
		References: []string{"a"},
	}, snapshot)
	assert.False(t, c.Orphan)
}

func TestResolveReferences_DropsUnknownPreservesOrder(t *testing.T) {
	snapshot := []*types.Entry{{ID: "a"}, {ID: "b"}}
	got := cost.ResolveReferences([]string{"b", "missing", "a"}, snapshot)
	assert.Equal(t, []string{"b", "a"}, got)
}

func TestResolveReferences_NilWhenNoneResolve(t *testing.T) {
	snapshot := []*types.Entry{{ID: "a"}}
	got := cost.ResolveReferences([]string{"missing"}, snapshot)
	assert.Empty(t, got)
}
