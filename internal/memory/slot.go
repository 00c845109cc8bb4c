// Package memory implements the named storage slots an agent run carries:
// a goal with its previous value, tagged notes, and append-only lists. Slots
// render into the prompts so the model sees its own state every step.
//
// Slots are mutated only from the single-threaded dispatch path while an
// action runs; they carry no locking of their own. Actions must not retain
// a slot past their own execution.
package memory

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects a slot's mutation and rendering behavior. The declaration
// order doubles as rendering priority: the goal always appears before
// auxiliary memories.
type Kind int

const (
	// KindCurrentPrevious holds one current value with replace-on-write
	// semantics, remembering the value it replaced.
	KindCurrentPrevious Kind = iota
	// KindTagged maps short tags to values, last write per tag wins.
	KindTagged
	// KindList accumulates values in insertion order.
	KindList
)

// Priority returns the slot's rendering rank; lower renders first.
func (k Kind) Priority() int { return int(k) }

// Spec names a slot a namespace depends on. The run state instantiates a
// slot the first time any active namespace declares it.
type Spec struct {
	Name string
	Kind Kind
}

// Slot is one named memory cell scoped to a single run. Slots are never
// destroyed during a run; they only accumulate or replace content.
type Slot struct {
	name string
	kind Kind

	current  string
	previous string
	tagged   map[string]string
	list     []string
}

// NewSlot returns an empty slot of the given kind.
func NewSlot(name string, kind Kind) *Slot {
	s := &Slot{name: name, kind: kind}
	if kind == KindTagged {
		s.tagged = make(map[string]string)
	}
	return s
}

func (s *Slot) Name() string { return s.name }

func (s *Slot) Kind() Kind { return s.kind }

// SetCurrent replaces the current value, keeping the replaced value as
// the previous one.
func (s *Slot) SetCurrent(value string) {
	if s.current != "" {
		s.previous = s.current
	}
	s.current = value
}

func (s *Slot) Current() string { return s.current }

func (s *Slot) Previous() string { return s.previous }

// Store sets the value for a tag, replacing any earlier value.
func (s *Slot) Store(tag, value string) {
	s.tagged[tag] = value
}

// Delete removes a tag and reports whether it was present.
func (s *Slot) Delete(tag string) bool {
	if _, ok := s.tagged[tag]; !ok {
		return false
	}
	delete(s.tagged, tag)
	return true
}

// Get returns the value for a tag.
func (s *Slot) Get(tag string) (string, bool) {
	v, ok := s.tagged[tag]
	return v, ok
}

// Entries returns a copy of the tagged contents.
func (s *Slot) Entries() map[string]string {
	out := make(map[string]string, len(s.tagged))
	for k, v := range s.tagged {
		out[k] = v
	}
	return out
}

// Append adds a value to the end of a list slot.
func (s *Slot) Append(value string) {
	s.list = append(s.list, value)
}

// Items returns a copy of the list contents in insertion order.
func (s *Slot) Items() []string {
	out := make([]string, len(s.list))
	copy(out, s.list)
	return out
}

// Render produces the slot's structured text block for prompt inclusion.
// Tagged entries render in sorted tag order so the block is stable across
// steps that did not change it.
func (s *Slot) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", s.name)

	switch s.kind {
	case KindCurrentPrevious:
		if s.current == "" {
			b.WriteString("not set yet\n")
			break
		}
		b.WriteString(s.current)
		b.WriteString("\n")
		if s.previous != "" {
			fmt.Fprintf(&b, "\nPrevious %s:\n\n%s\n", s.name, s.previous)
		}
	case KindTagged:
		if len(s.tagged) == 0 {
			b.WriteString("nothing stored yet\n")
			break
		}
		tags := make([]string, 0, len(s.tagged))
		for tag := range s.tagged {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		for _, tag := range tags {
			fmt.Fprintf(&b, "- %s: %s\n", tag, s.tagged[tag])
		}
	case KindList:
		if len(s.list) == 0 {
			b.WriteString("nothing stored yet\n")
			break
		}
		for _, item := range s.list {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	return b.String()
}

// SortForRender orders slots by kind priority, then name, so rendering is
// deterministic and the goal leads.
func SortForRender(slots []*Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].kind != slots[j].kind {
			return slots[i].kind.Priority() < slots[j].kind.Priority()
		}
		return slots[i].name < slots[j].name
	})
}
