// Package model defines the core domain types for Jikko.
//
// Types are shared by the parser, the run state, and the storage layer.
// Optional fields use pointers: nil means the field was never supplied,
// which is a different thing from an empty value throughout this codebase.
package model

import (
	"sort"
	"strings"
)

// Invocation is one parsed command issued by the model: an action name,
// optional string attributes, an optional text payload, and a canonical
// tag-form rendering used for logging and exact-repeat detection.
//
// A nil Attributes map means no attribute block was supplied; an empty
// non-nil map means a block was present but contained no valid pairs.
// The example-misuse guard depends on that distinction. Invocations are
// immutable after construction.
type Invocation struct {
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    *string           `json:"payload,omitempty"`

	canonical string
}

// NewInvocation builds an Invocation and derives its canonical form.
// Attribute keys render in sorted order so two invocations with equal
// fields always share the same canonical string; the attribute block is
// omitted entirely when Attributes is nil, and an absent payload renders
// as an empty body.
func NewInvocation(action string, attributes map[string]string, payload *string) Invocation {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(action)
	if attributes != nil {
		keys := make([]string, 0, len(attributes))
		for k := range attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteString(`="`)
			b.WriteString(attributes[k])
			b.WriteByte('"')
		}
	}
	b.WriteByte('>')
	if payload != nil {
		b.WriteString(*payload)
	}
	b.WriteString("</")
	b.WriteString(action)
	b.WriteByte('>')

	return Invocation{
		Action:     action,
		Attributes: attributes,
		Payload:    payload,
		canonical:  b.String(),
	}
}

// Canonical returns the tag-form rendering of the invocation,
// e.g. `<save-memory key="topic">content</save-memory>`.
func (i Invocation) Canonical() string { return i.canonical }

// Equal reports whether two invocations have byte-equal canonical forms.
// This is the only notion of invocation equality the loop uses.
func (i Invocation) Equal(other Invocation) bool { return i.canonical == other.canonical }
