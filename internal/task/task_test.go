package task_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jikko/internal/task"
)

func writeTask(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTask(t, "recon.yml", `
system_prompt: you are a careful investigator
prompt: find the owner of the server
timeout: 5m
guidance:
  - do not guess
  - cite every source
using:
  - filesystem
  - task
`)

	tk, err := task.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "recon", tk.Name())

	prompt, err := tk.Prompt()
	require.NoError(t, err)
	assert.Equal(t, "find the owner of the server", prompt)

	system, err := tk.SystemPrompt()
	require.NoError(t, err)
	assert.Equal(t, "you are a careful investigator", system)

	guidance, err := tk.Guidance()
	require.NoError(t, err)
	assert.Equal(t, []string{"do not guess", "cite every source"}, guidance)

	assert.Equal(t, []string{"filesystem", "task"}, tk.Namespaces())

	d, err := tk.MaxDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)
}

func TestLoadMissingSystemPrompt(t *testing.T) {
	path := writeTask(t, "bad.yml", "prompt: do something\n")
	_, err := task.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := task.Load("/does/not/exist.yml")
	assert.Error(t, err)
}

func TestPromptSuppliedAtLoad(t *testing.T) {
	path := writeTask(t, "open.yml", "system_prompt: you are an assistant\n")
	tk, err := task.Load(path)
	require.NoError(t, err)

	_, err = tk.Prompt()
	require.ErrorIs(t, err, task.ErrNoPrompt)

	tk.SetPrompt("count to three")
	prompt, err := tk.Prompt()
	require.NoError(t, err)
	assert.Equal(t, "count to three", prompt)
}

func TestNamespacesNilMeansAll(t *testing.T) {
	path := writeTask(t, "all.yml", "system_prompt: s\nprompt: p\n")
	tk, err := task.Load(path)
	require.NoError(t, err)
	assert.Nil(t, tk.Namespaces())
}

func TestFunctions(t *testing.T) {
	path := writeTask(t, "tools.yml", `
system_prompt: s
prompt: p
functions:
  - name: conversion
    description: utilities for converting text
    actions:
      - name: count-chars
        description: count the characters in the payload
        example_payload: some text
        tool: /usr/bin/wc -c
`)

	tk, err := task.Load(path)
	require.NoError(t, err)

	namespaces := tk.Functions()
	require.Len(t, namespaces, 1)
	assert.Equal(t, "conversion", namespaces[0].Name)
	require.Len(t, namespaces[0].Actions, 1)

	action := namespaces[0].Actions[0]
	assert.Equal(t, "count-chars", action.Name())
	require.NotNil(t, action.ExamplePayload())
	assert.Equal(t, "some text", *action.ExamplePayload())
}

func TestToolActionRuns(t *testing.T) {
	path := writeTask(t, "echo.yml", `
system_prompt: s
prompt: p
functions:
  - name: test
    actions:
      - name: say
        description: echo the payload
        tool: echo
`)

	tk, err := task.Load(path)
	require.NoError(t, err)
	action := tk.Functions()[0].Actions[0]

	payload := "hello world"
	out, err := action.Run(context.Background(), nil, nil, &payload)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "hello world\n", *out)
}

func TestToolActionFailureSurfacesOutput(t *testing.T) {
	path := writeTask(t, "fail.yml", `
system_prompt: s
prompt: p
functions:
  - name: test
    actions:
      - name: broken
        description: always fails
        tool: sh -c exit_1_does_not_exist
`)

	tk, err := task.Load(path)
	require.NoError(t, err)
	action := tk.Functions()[0].Actions[0]

	_, err = action.Run(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestLoadRejectsToollessFunction(t *testing.T) {
	path := writeTask(t, "notool.yml", `
system_prompt: s
functions:
  - name: test
    actions:
      - name: broken
        description: no tool declared
`)
	_, err := task.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBlankTool(t *testing.T) {
	path := writeTask(t, "blanktool.yml", `
system_prompt: s
functions:
  - name: test
    actions:
      - name: broken
        description: tool is only whitespace
        tool: "   "
`)
	_, err := task.Load(path)
	assert.Error(t, err)
}
