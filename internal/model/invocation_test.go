package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/jikko/internal/model"
)

func strPtr(s string) *string { return &s }

func TestNewInvocation_Canonical(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		attrs   map[string]string
		payload *string
		want    string
	}{
		{
			name:    "payload only",
			action:  "read-file",
			payload: strPtr("/tmp/a.txt"),
			want:    "<read-file>/tmp/a.txt</read-file>",
		},
		{
			name:   "no attributes no payload",
			action: "complete-task",
			want:   "<complete-task></complete-task>",
		},
		{
			name:    "attributes and payload",
			action:  "save-memory",
			attrs:   map[string]string{"key": "findings"},
			payload: strPtr("the port is open"),
			want:    `<save-memory key="findings">the port is open</save-memory>`,
		},
		{
			name:   "empty attribute map renders no block",
			action: "cmd",
			attrs:  map[string]string{},
			want:   "<cmd></cmd>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := model.NewInvocation(tt.action, tt.attrs, tt.payload)
			assert.Equal(t, tt.want, inv.Canonical())
		})
	}
}

func TestNewInvocation_CanonicalAttributeOrderIsDeterministic(t *testing.T) {
	// Map iteration order is randomized; the canonical form must not be.
	want := `<query lang="en" limit="5" site="example.org">term</query>`
	for range 50 {
		inv := model.NewInvocation("query", map[string]string{
			"site":  "example.org",
			"limit": "5",
			"lang":  "en",
		}, strPtr("term"))
		assert.Equal(t, want, inv.Canonical())
	}
}

func TestInvocation_Equal(t *testing.T) {
	a := model.NewInvocation("read-file", nil, strPtr("/tmp/a.txt"))
	b := model.NewInvocation("read-file", nil, strPtr("/tmp/a.txt"))
	c := model.NewInvocation("read-file", nil, strPtr("/tmp/b.txt"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	// Absent payload and absent attributes are part of identity.
	d := model.NewInvocation("read-file", nil, nil)
	assert.False(t, a.Equal(d))

	// An empty attribute block renders identically to no block; equality
	// follows the canonical form, not the field-level distinction.
	e := model.NewInvocation("read-file", map[string]string{}, strPtr("/tmp/a.txt"))
	assert.True(t, a.Equal(e))
}

func TestExecution_Failed(t *testing.T) {
	inv := model.NewInvocation("read-file", nil, strPtr("/tmp/a.txt"))

	ok := model.NewExecution(inv, strPtr("contents"), nil)
	assert.False(t, ok.Failed())
	assert.False(t, ok.At.IsZero())

	silent := model.NewExecution(inv, nil, nil)
	assert.False(t, silent.Failed())

	failed := model.NewExecution(inv, nil, strPtr("no such file"))
	assert.True(t, failed.Failed())
}
