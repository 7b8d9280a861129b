package generator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/gctrace/internal/decoder"
	"github.com/jittakal/gctrace/pkg/catalog"
	"github.com/jittakal/gctrace/pkg/tracer"
)

func names(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Desc.Name
	}
	return out
}

func TestEventsMatchDescriptorArity(t *testing.T) {
	g := New(catalog.Default(), 42, 3)

	var events []Event
	for i := 0; i < 500; i++ {
		events = append(events, g.Mutator())
	}
	events = append(events, g.Collection()...)
	events = append(events, g.Concurrent()...)

	for _, e := range events {
		assert.Len(t, e.Values, len(e.Desc.Fields), "event %s", e.Desc.Name)
	}
}

func TestMutatorMostlyAllocates(t *testing.T) {
	g := New(catalog.Default(), 7, 1)

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		e := g.Mutator()
		assert.False(t, e.Background)
		counts[e.Desc.Name]++
	}
	assert.Greater(t, counts["alloc"], 800)
	assert.Equal(t, 1000, counts["alloc"]+counts["pin"]+counts["collection_requested"])
}

func TestCollectionOrder(t *testing.T) {
	g := New(catalog.Default(), 1, 4)

	events := g.Collection()
	got := names(events)

	require.NotEmpty(t, got)
	assert.Equal(t, "world_stopping", got[0])
	assert.Equal(t, "world_restarted", got[len(got)-1])
	assert.True(t, events[len(events)-1].Desc.Flush)

	counts := map[string]int{}
	for _, n := range got {
		counts[n]++
	}
	assert.Equal(t, 4, counts["thread_suspend"])
	assert.Equal(t, 4, counts["thread_restart"])
	assert.Equal(t, 1, counts["collection_begin"])
	assert.Equal(t, 1, counts["collection_end"])
	assert.Less(t, indexOf(got, "world_stopped"), indexOf(got, "collection_begin"))
	assert.Less(t, indexOf(got, "collection_end"), indexOf(got, "world_restarting"))
}

func TestCollectionIndexAdvances(t *testing.T) {
	g := New(catalog.Default(), 3, 1)

	first := g.Collection()
	second := g.Collection()

	idx := func(events []Event) uint64 {
		for _, e := range events {
			if e.Desc.Name == "collection_begin" {
				return e.Values[0]
			}
		}
		return 0
	}
	assert.Equal(t, uint64(1), idx(first))
	assert.Equal(t, uint64(2), idx(second))
}

func TestSeedIsDeterministic(t *testing.T) {
	a := New(catalog.Default(), 99, 2)
	b := New(catalog.Default(), 99, 2)

	for i := 0; i < 50; i++ {
		ea, eb := a.Mutator(), b.Mutator()
		assert.Equal(t, ea.Desc.Name, eb.Desc.Name)
		assert.Equal(t, ea.Values, eb.Values)
	}
}

func TestPointersAreAligned(t *testing.T) {
	g := New(catalog.Default(), 5, 1)

	for i := 0; i < 200; i++ {
		p := g.pointer()
		assert.GreaterOrEqual(t, p, heapBase)
		assert.Zero(t, p%objectAlign)
	}
}

func TestGeneratedStreamDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gc.trace")
	tr, err := tracer.New(tracer.Config{Path: path, Heavy: true})
	require.NoError(t, err)

	g := New(tr.Catalog(), 11, 2)
	emitted := 0
	for i := 0; i < 100; i++ {
		e := g.Mutator()
		tr.EmitEvent(e.Desc, e.Background, e.Values...)
		emitted++
	}
	for _, e := range g.Collection() {
		tr.EmitEvent(e.Desc, e.Background, e.Values...)
		emitted++
	}
	require.NoError(t, tr.Close())

	_, records, err := decoder.ReadFile(path, tr.Catalog())
	require.NoError(t, err)
	// The header is not returned as a record.
	assert.Len(t, records, emitted)
	assert.Equal(t, "world_restarted", records[len(records)-1].Name)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
