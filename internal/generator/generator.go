// Package generator produces synthetic garbage collector event streams for
// exercising the tracer under load.
package generator

import (
	"math/rand"
	"time"

	"github.com/jaswdr/faker"

	"github.com/jittakal/gctrace/pkg/catalog"
)

const (
	heapBase    uint64 = 0xc000000000
	heapSpan           = 1 << 30
	objectAlign        = 16
)

// Event is one event ready to pass to Tracer.EmitEvent.
type Event struct {
	Desc       *catalog.Descriptor
	Background bool
	Values     []uint64
}

// Generator generates fake GC events. A Generator is not safe for
// concurrent use; give each goroutine its own.
type Generator struct {
	faker   faker.Faker
	catalog *catalog.Catalog
	thread  uint64
	threads []uint64
	index   uint64
	now     func() time.Time
}

// New creates a generator over cat. A zero seed picks a random one.
func New(cat *catalog.Catalog, seed int64, threads int) *Generator {
	f := faker.New()
	if seed != 0 {
		f = faker.NewWithSeed(rand.NewSource(seed))
	}
	if threads < 1 {
		threads = 1
	}

	g := &Generator{
		faker:   f,
		catalog: cat,
		now:     time.Now,
	}
	g.thread = g.threadAddr()
	for i := 0; i < threads; i++ {
		g.threads = append(g.threads, g.threadAddr())
	}
	return g
}

// Mutator returns the next event of a mutator thread: mostly allocations,
// occasionally a pin or a collection request.
func (g *Generator) Mutator() Event {
	switch roll := g.faker.IntBetween(1, 100); {
	case roll <= 90:
		return g.event("alloc", false, g.pointer(), g.vtable(), g.size(), g.pointer())
	case roll <= 98:
		return g.event("pin", false, g.pointer(), g.vtable(), g.size())
	default:
		return g.event("collection_requested", false, g.generation(), g.size()*64, uint64(g.faker.IntBetween(0, 1)))
	}
}

// Collection returns the events of one stop-the-world collection in the
// order a collector would emit them. It ends with world_restarted, which
// is a flushing event.
func (g *Generator) Collection() []Event {
	gen := g.generation()
	g.index++

	events := []Event{
		g.event("world_stopping", false, gen, g.timestamp(), g.thread),
	}
	for _, th := range g.threads {
		events = append(events, g.event("thread_suspend", false, th, g.ip()))
	}
	events = append(events,
		g.event("world_stopped", false, gen, g.timestamp(),
			g.cards(), g.cards(), g.cards(), g.cards()),
		g.event("collection_begin", false, g.index, gen),
	)

	objects := g.faker.IntBetween(4, 32)
	for i := 0; i < objects; i++ {
		from := g.pointer()
		vt := g.vtable()
		size := g.size()
		events = append(events, g.event("mark", true, from, vt, size))
		if gen == 0 {
			events = append(events, g.event("copy", true, from, g.pointer(), vt, size))
		}
	}
	events = append(events,
		g.event("sweep_begin", true, gen, uint64(g.faker.IntBetween(0, 1))),
		g.event("empty", true, g.pointer(), g.size()*8),
		g.event("sweep_end", true, gen, 0),
		g.event("collection_end", false, g.index, gen, g.cards(), g.cards()),
		g.event("world_restarting", false, gen, g.timestamp()),
	)
	for _, th := range g.threads {
		events = append(events, g.event("thread_restart", false, th))
	}
	events = append(events, g.event("world_restarted", false, gen, g.timestamp()))
	return events
}

// Concurrent returns the events of a background concurrent mark phase.
func (g *Generator) Concurrent() []Event {
	events := []Event{g.event("concurrent_start", true)}
	for i := g.faker.IntBetween(1, 4); i > 0; i-- {
		events = append(events, g.event("concurrent_update", true))
	}
	return append(events, g.event("concurrent_finish", true))
}

func (g *Generator) event(name string, background bool, values ...uint64) Event {
	return Event{
		Desc:       g.catalog.MustByName(name),
		Background: background,
		Values:     values,
	}
}

func (g *Generator) pointer() uint64 {
	off := uint64(g.faker.IntBetween(0, heapSpan/objectAlign-1)) * objectAlign
	return heapBase + off
}

func (g *Generator) vtable() uint64 {
	return 0x4a0000 + uint64(g.faker.IntBetween(0, 0xffff))*8
}

func (g *Generator) threadAddr() uint64 {
	return 0xc000010000 + uint64(g.faker.IntBetween(0, 0xffff))*0x100
}

func (g *Generator) ip() uint64 {
	return 0x401000 + uint64(g.faker.IntBetween(0, 0xfffff))
}

func (g *Generator) size() uint64 {
	return uint64(g.faker.IntBetween(1, 256)) * objectAlign
}

func (g *Generator) cards() uint64 {
	return uint64(g.faker.IntBetween(0, 1<<20))
}

// generation is 0 for a nursery collection, 1 for a major one.
func (g *Generator) generation() uint64 {
	if g.faker.IntBetween(1, 10) == 10 {
		return 1
	}
	return 0
}

func (g *Generator) timestamp() uint64 {
	return uint64(g.now().UnixNano())
}
