// Package validator validates event descriptors and trace file headers.
package validator

import (
	"fmt"

	"github.com/jittakal/gctrace/internal/errors"
	"github.com/jittakal/gctrace/pkg/event"
)

// maxPayloadSize keeps a record, tag included, well inside one buffer.
const maxPayloadSize = 4096

// DescriptorValidator validates event descriptors before they are added to
// a catalog.
type DescriptorValidator struct{}

// NewDescriptorValidator creates a new descriptor validator.
func NewDescriptorValidator() *DescriptorValidator {
	return &DescriptorValidator{}
}

// Validate validates a descriptor.
func (v *DescriptorValidator) Validate(d *event.Descriptor) error {
	if d.Kind > event.MaxKind {
		return &errors.ValidationError{
			Kind:   d.Kind,
			Field:  "kind",
			Reason: fmt.Sprintf("kind exceeds %d", event.MaxKind),
		}
	}

	if d.Name == "" {
		return &errors.ValidationError{
			Kind:   d.Kind,
			Field:  "name",
			Reason: "required field is missing",
		}
	}

	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return &errors.ValidationError{
				Kind:   d.Kind,
				Field:  "fields",
				Reason: "field name is missing",
			}
		}
		if seen[f.Name] {
			return &errors.ValidationError{
				Kind:   d.Kind,
				Field:  f.Name,
				Reason: "duplicate field name",
			}
		}
		seen[f.Name] = true

		if !f.Type.Valid() {
			return &errors.ValidationError{
				Kind:   d.Kind,
				Field:  f.Name,
				Reason: fmt.Sprintf("unknown field type %s", f.Type),
			}
		}
	}

	if size := d.PayloadSizeFor(8); size > maxPayloadSize {
		return &errors.ValidationError{
			Kind:   d.Kind,
			Field:  "fields",
			Reason: fmt.Sprintf("payload of %d bytes exceeds %d", size, maxPayloadSize),
		}
	}

	return nil
}

// HeaderValidator validates decoded trace file headers.
type HeaderValidator struct{}

// NewHeaderValidator creates a new header validator.
func NewHeaderValidator() *HeaderValidator {
	return &HeaderValidator{}
}

// Validate validates a header.
func (v *HeaderValidator) Validate(h event.Header) error {
	if h.Check != event.HeaderCheck {
		return &errors.ValidationError{
			Kind:   event.KindHeader,
			Field:  "check",
			Reason: fmt.Sprintf("unexpected check value %#x", h.Check),
		}
	}

	if h.Version != event.HeaderVersion {
		return &errors.ValidationError{
			Kind:   event.KindHeader,
			Field:  "version",
			Reason: fmt.Sprintf("unsupported version: %d (supported: %d)", h.Version, event.HeaderVersion),
		}
	}

	if h.PointerSize != 4 && h.PointerSize != 8 {
		return &errors.ValidationError{
			Kind:   event.KindHeader,
			Field:  "pointer_size",
			Reason: fmt.Sprintf("unsupported pointer size %d", h.PointerSize),
		}
	}

	return nil
}
