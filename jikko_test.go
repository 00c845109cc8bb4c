package jikko

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTask struct {
	name   string
	prompt string
}

func (t testTask) Name() string { return t.name }

func (t testTask) Prompt() (string, error) { return t.prompt, nil }

func (t testTask) SystemPrompt() (string, error) { return "You are a test agent.", nil }

func (t testTask) Guidance() ([]string, error) { return nil, nil }

func (t testTask) Namespaces() []string { return nil }

// scriptedGenerator replays canned responses in order, then repeats the
// last one.
type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (g *scriptedGenerator) Generate(context.Context, string, string, string, GenerationOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

type echoAction struct{}

func (echoAction) Name() string { return "echo" }

func (echoAction) Description() string { return "To repeat a phrase back:" }

func (echoAction) ExamplePayload() *string { return nil }

func (echoAction) ExampleAttributes() map[string]string { return nil }

func (echoAction) Run(_ context.Context, _ Handle, _ map[string]string, payload *string) (*string, error) {
	if payload == nil {
		return nil, errors.New("nothing to echo")
	}
	out := "echo: " + *payload
	return &out, nil
}

type recordingHook struct {
	mu         sync.Mutex
	executions []Execution
	finished   []RunResult
}

func (h *recordingHook) OnExecution(_ context.Context, _ string, _ int, exec Execution) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executions = append(h.executions, exec)
	return nil
}

func (h *recordingHook) OnFinish(_ context.Context, result RunResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, result)
	return nil
}

func newTestAgent(t *testing.T, gen Generator, opts ...Option) *Agent {
	t.Helper()
	t.Setenv("JIKKO_KNOWLEDGE", "off")

	opts = append([]Option{
		WithTask(testTask{name: "test", prompt: "do the thing"}),
		WithGenerator(gen),
		WithoutArchive(),
		WithMaxIterations(5),
	}, opts...)

	agent, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = agent.Shutdown(context.Background()) })
	return agent
}

func TestNewRequiresTask(t *testing.T) {
	t.Setenv("JIKKO_KNOWLEDGE", "off")
	_, err := New(WithoutArchive())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task is required")
}

func TestNewRejectsTaskAndTaskFile(t *testing.T) {
	t.Setenv("JIKKO_KNOWLEDGE", "off")
	_, err := New(
		WithTask(testTask{name: "a", prompt: "p"}),
		WithTaskFile("b.yaml"),
		WithoutArchive(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestRunCompletes(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"<echo>hello</echo>",
		"<complete-task>echoed the phrase</complete-task>",
	}}
	agent := newTestAgent(t, gen, WithActionGroup(ActionGroup{
		Name:        "testing",
		Description: "test helpers",
		Actions:     []Action{echoAction{}},
	}))

	result, err := agent.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, result.Status)
	assert.Equal(t, "test", result.TaskName)
	require.NotNil(t, result.Reason)
	assert.Equal(t, "echoed the phrase", *result.Reason)
	assert.NotNil(t, result.FinishedAt)
	require.NotNil(t, result.RootHash)

	assert.True(t, agent.IsComplete())
	assert.False(t, agent.Impossible())

	history := agent.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "echo", history[0].Invocation.Action)
	require.NotNil(t, history[0].Result)
	assert.Equal(t, "echo: hello", *history[0].Result)
	assert.Equal(t, "complete-task", history[1].Invocation.Action)
}

// reportingAction records a sub-step of its own work through the handle
// before returning its result.
type reportingAction struct{}

func (reportingAction) Name() string { return "deploy" }

func (reportingAction) Description() string { return "To deploy the build:" }

func (reportingAction) ExamplePayload() *string { return nil }

func (reportingAction) ExampleAttributes() map[string]string { return nil }

func (reportingAction) Run(_ context.Context, h Handle, _ map[string]string, _ *string) (*string, error) {
	result := "uploaded"
	h.AppendHistory(Execution{
		Invocation: Invocation{Action: "deploy/upload"},
		Result:     &result,
	})
	done := "deployed"
	return &done, nil
}

func TestActionSelfReportInHistory(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"<deploy>prod</deploy>",
		"<complete-task>shipped</complete-task>",
	}}
	agent := newTestAgent(t, gen, WithActionGroup(ActionGroup{
		Name:        "testing",
		Description: "test helpers",
		Actions:     []Action{reportingAction{}},
	}))

	_, err := agent.Run(context.Background())
	require.NoError(t, err)

	history := agent.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "deploy/upload", history[0].Invocation.Action)
	require.NotNil(t, history[0].Result)
	assert.Equal(t, "uploaded", *history[0].Result)
	assert.Equal(t, "deploy", history[1].Invocation.Action)
	assert.False(t, history[0].At.IsZero(), "self-reported records are timestamped on append")
}

func TestRunImpossible(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"<impossible-task>no tools can reach the moon</impossible-task>",
	}}
	agent := newTestAgent(t, gen)

	result, err := agent.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunStatusImpossible, result.Status)
	assert.True(t, agent.Impossible())
	require.NotNil(t, result.Reason)
	assert.Equal(t, "no tools can reach the moon", *result.Reason)
}

func TestRunBudgetExhausted(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"still thinking about it"}}
	agent := newTestAgent(t, gen, WithMaxIterations(2))

	result, err := agent.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, RunStatusExhausted, result.Status)
	assert.False(t, agent.IsComplete())
}

func TestStepAdvancesIteration(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"nothing actionable"}}
	agent := newTestAgent(t, gen)

	require.NoError(t, agent.Step(context.Background()))
	require.NoError(t, agent.Step(context.Background()))
	assert.False(t, agent.IsComplete())
}

func TestRunHookReceivesLifecycle(t *testing.T) {
	hook := &recordingHook{}
	gen := &scriptedGenerator{responses: []string{
		"<complete-task>done immediately</complete-task>",
	}}
	agent := newTestAgent(t, gen, WithRunHook(hook))

	result, err := agent.Run(context.Background())
	require.NoError(t, err)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.executions, 1)
	assert.Equal(t, "complete-task", hook.executions[0].Invocation.Action)
	require.Len(t, hook.finished, 1)
	assert.Equal(t, result.ID, hook.finished[0].ID)
}

func TestTranscriptAlternatesRoles(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		"<echo>one</echo>",
		"<complete-task>done</complete-task>",
	}}
	agent := newTestAgent(t, gen, WithActionGroup(ActionGroup{
		Name:    "testing",
		Actions: []Action{echoAction{}},
	}))

	_, err := agent.Run(context.Background())
	require.NoError(t, err)

	transcript := agent.Transcript(0)
	require.NotEmpty(t, transcript)
	for _, msg := range transcript {
		assert.Contains(t, []string{"assistant", "user"}, msg.Role)
	}
}

func TestGenerationOptionOverride(t *testing.T) {
	var got GenerationOptions
	gen := generatorFunc(func(_ context.Context, _, _, _ string, opts GenerationOptions) (string, error) {
		got = opts
		return "<complete-task>done</complete-task>", nil
	})
	agent := newTestAgent(t, gen, WithGenerationOptions(GenerationOptions{
		ContextWindow: 2048,
		Temperature:   0.1,
		RepeatPenalty: 1.0,
		TopK:          5,
	}))

	_, err := agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2048, got.ContextWindow)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
}

type generatorFunc func(ctx context.Context, model, system, prompt string, opts GenerationOptions) (string, error)

func (f generatorFunc) Generate(ctx context.Context, model, system, prompt string, opts GenerationOptions) (string, error) {
	return f(ctx, model, system, prompt, opts)
}

// Compile-time interface checks for the example-facing surfaces.
var (
	_ Generator = (*scriptedGenerator)(nil)
	_ Action    = echoAction{}
	_ RunHook   = (*recordingHook)(nil)
)
