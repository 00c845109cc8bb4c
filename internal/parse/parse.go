// Package parse recovers structured command invocations from raw model text.
//
// Generated text is not guaranteed to be well-formed: tags arrive
// unterminated, attributes malformed, payloads missing or wrapped in prose.
// The scanner is total over arbitrary input — a broken fragment is skipped,
// never allowed to fail the rest of the response. This is a narrow
// line-oriented tag subset (single level, one optional text payload, no
// nesting, no escaping), not XML; do not replace it with a strict parser.
package parse

import (
	"regexp"
	"strings"

	"github.com/ashita-ai/jikko/internal/model"
)

// attrPattern accepts any non-'=' run as key and any quoted, quote-free run
// as value. Deliberately permissive: a stricter key grammar would reject
// attribute blocks the model emits slightly wrong, and tolerating those is
// the point.
var attrPattern = regexp.MustCompile(`(?m)(([^=]+)="([^"]+)")`)

// Parse scans text left to right and returns every well-delimited invocation
// in order. It never fails; the result length is bounded by the number of
// '<' characters in the input.
func Parse(text string) []model.Invocation {
	var invocations []model.Invocation

	current := 0
	for current < len(text) {
		rel := strings.IndexByte(text[current:], '<')
		if rel < 0 {
			break
		}
		start := current + rel
		ptr := text[start:]

		inv, consumed := scanTag(ptr)
		if consumed == 0 {
			// Unterminated or unclosed candidate: abandon this '<' and
			// resume one character past it so a stray bracket never
			// stalls the scan.
			current = start + 1
			continue
		}

		invocations = append(invocations, inv)
		current = start + consumed
	}

	return invocations
}

// scanTag attempts to read one complete `<name …>payload</name>` region from
// the beginning of ptr (ptr[0] is '<'). It returns the parsed invocation and
// the number of bytes consumed, or consumed == 0 when no complete tag starts
// here.
func scanTag(ptr string) (model.Invocation, int) {
	// The name runs to the first '>' or space.
	nameEnd := strings.IndexAny(ptr, "> ")
	if nameEnd < 0 {
		return model.Invocation{}, 0
	}
	name := ptr[1:nameEnd]

	openEnd := strings.IndexByte(ptr, '>')
	if openEnd < 0 {
		return model.Invocation{}, 0
	}

	// The closing tag must appear after the opening '>'.
	closing := "</" + name + ">"
	closeRel := strings.Index(ptr[openEnd+1:], closing)
	if closeRel < 0 {
		return model.Invocation{}, 0
	}
	closeStart := openEnd + 1 + closeRel

	// A space before '>' means an attribute block was supplied, even when
	// no pair inside it parses. No space means no attributes at all.
	var attrs map[string]string
	if ptr[nameEnd] == ' ' {
		attrs = make(map[string]string)
		for _, m := range attrPattern.FindAllStringSubmatch(ptr[nameEnd+1:openEnd], -1) {
			key := strings.TrimSpace(m[2])
			value := strings.TrimSpace(m[3])
			attrs[key] = value
		}
	}

	// Payload sits between the opening '>' and the closing tag. A region
	// that starts with '<' looks like nested markup and is dropped rather
	// than captured verbatim; an empty region (after trimming) is absent,
	// not the empty string.
	var payload *string
	region := ptr[openEnd+1 : closeStart]
	if region != "" && region[0] != '<' {
		if trimmed := strings.TrimSpace(region); trimmed != "" {
			payload = &trimmed
		}
	}

	return model.NewInvocation(name, attrs, payload), closeStart + len(closing)
}
