// Package catalog maps event kinds to their payload layouts.
//
// The tracer uses a catalog to encode events and the decoder uses the same
// catalog to find record boundaries, since records carry no length.
package catalog

import (
	"fmt"
	"sort"

	"github.com/jittakal/gctrace/internal/validator"
	"github.com/jittakal/gctrace/pkg/event"
)

// Aliases for the descriptor model, so callers only need this package.
type (
	Descriptor = event.Descriptor
	Field      = event.Field
	FieldType  = event.FieldType
)

const (
	Int32   = event.FieldInt32
	Int64   = event.FieldInt64
	Bool    = event.FieldBool
	Pointer = event.FieldPointer
	Size    = event.FieldSize
)

// Catalog is an immutable set of descriptors indexed by kind and name.
type Catalog struct {
	byKind [event.MaxKind + 1]*Descriptor
	byName map[string]*Descriptor
}

// New builds a catalog from descs. The header descriptor is always present
// under kind 0, which is therefore not available to descs.
func New(descs ...Descriptor) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Descriptor, len(descs)+1)}

	header := event.HeaderDescriptor
	c.byKind[event.KindHeader] = &header
	c.byName[header.Name] = &header

	v := validator.NewDescriptorValidator()
	for i := range descs {
		d := descs[i]
		d.Fields = append([]Field(nil), d.Fields...)

		if err := v.Validate(&d); err != nil {
			return nil, err
		}
		if d.Kind == event.KindHeader {
			return nil, fmt.Errorf("descriptor %q: kind 0 is reserved for the header", d.Name)
		}
		if prev := c.byKind[d.Kind]; prev != nil {
			return nil, fmt.Errorf("descriptor %q: kind %d already used by %q", d.Name, d.Kind, prev.Name)
		}
		if _, ok := c.byName[d.Name]; ok {
			return nil, fmt.Errorf("descriptor %q: duplicate name", d.Name)
		}

		c.byKind[d.Kind] = &d
		c.byName[d.Name] = &d
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(descs ...Descriptor) *Catalog {
	c, err := New(descs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the descriptor for kind.
func (c *Catalog) Lookup(kind event.Kind) (*Descriptor, bool) {
	if kind > event.MaxKind {
		return nil, false
	}
	d := c.byKind[kind]
	return d, d != nil
}

// ByName returns the descriptor with the given name.
func (c *Catalog) ByName(name string) (*Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// MustByName is like ByName but panics if the name is unknown.
func (c *Catalog) MustByName(name string) *Descriptor {
	d, ok := c.byName[name]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown event %q", name))
	}
	return d
}

// Descriptors returns all descriptors ordered by kind.
func (c *Catalog) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.byName))
	for _, d := range c.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Len returns the number of descriptors, header included.
func (c *Catalog) Len() int {
	return len(c.byName)
}
