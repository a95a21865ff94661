package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palette/internal/domain"
	"palette/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedProvider replays canned responses and records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*domain.ChatResponse
	err       error
	requests  []domain.ChatRequest
}

func (p *scriptedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &domain.ChatResponse{Content: "done"}, nil
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	cp := *r
	return &cp, nil
}

func (p *scriptedProvider) Name() string                      { return "scripted" }
func (p *scriptedProvider) Mode() domain.ProviderMode         { return domain.ModeAPI }
func (p *scriptedProvider) Models() []string                  { return []string{"scripted"} }
func (p *scriptedProvider) SupportsToolCalling() bool         { return true }
func (p *scriptedProvider) Healthy(ctx context.Context) error { return nil }

func call(id, name string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: args}
}

func newExecutor(p domain.Provider) *Executor {
	return NewExecutor(ExecutorConfig{
		Provider:    p,
		RateLimiter: NewRateLimiter(100, 60000),
		Logger:      testLogger(),
	})
}

func weatherTools() *tool.Registry {
	reg := tool.NewRegistry(testLogger())
	reg.Register(tool.NewWeatherTool())
	reg.Register(tool.NewWeekdayOfDateTool())
	return reg
}

func TestExecute_ToolThenAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []*domain.ChatResponse{
		{ToolCalls: []domain.ToolCall{call("c1", "Weather Tool", map[string]any{"input": "Wednesday"})}},
		{Content: "It will be 13°C on Wednesday."},
	}}

	res, err := newExecutor(p).Execute(context.Background(), ExecuteRequest{
		Tools:        weatherTools(),
		Input:        "How warm is it on Wednesday?",
		History:      []domain.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
		MaxSteps:     6,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  0.3,
		Model:        "gpt-4o-mini",
	})
	require.NoError(t, err)

	assert.Equal(t, "It will be 13°C on Wednesday.", res.Output)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "Weather Tool", res.Steps[0].Action.ToolName)
	assert.Equal(t, "Wednesday", res.Steps[0].Action.ToolInput)
	assert.Equal(t, "13", res.Steps[0].Result)

	require.Len(t, p.requests, 2)
	first := p.requests[0]
	assert.Equal(t, "gpt-4o-mini", first.Model)
	assert.InDelta(t, 0.3, first.Temperature, 1e-9)
	assert.Len(t, first.Tools, 2)
	require.Len(t, first.Messages, 4)
	assert.Equal(t, "system", first.Messages[0].Role)
	assert.Equal(t, "How warm is it on Wednesday?", first.Messages[3].Content)

	second := p.requests[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, "tool", last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
	assert.Equal(t, "13", last.Content)
}

func TestExecute_ToolErrorBecomesResult(t *testing.T) {
	p := &scriptedProvider{responses: []*domain.ChatResponse{
		{ToolCalls: []domain.ToolCall{
			call("c1", "Return Weekday of Date Tool", map[string]any{"input": "next week"}),
			call("c2", "No Such Tool", map[string]any{"input": "x"}),
		}},
		{Content: "Sorry, I could not work that out."},
	}}

	res, err := newExecutor(p).Execute(context.Background(), ExecuteRequest{Tools: weatherTools(), Input: "q"})
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Contains(t, res.Steps[0].Result, "Error executing tool Return Weekday of Date Tool")
	assert.Contains(t, res.Steps[1].Result, "Error executing tool No Such Tool")
	assert.Equal(t, "Sorry, I could not work that out.", res.Output)
}

func TestExecute_BudgetExhausted(t *testing.T) {
	loop := &domain.ChatResponse{ToolCalls: []domain.ToolCall{call("c", "Weather Tool", map[string]any{"input": "Monday"})}}
	p := &scriptedProvider{responses: []*domain.ChatResponse{loop, loop, loop, loop}}

	res, err := newExecutor(p).Execute(context.Background(), ExecuteRequest{Tools: weatherTools(), Input: "q", MaxSteps: 3})
	require.NoError(t, err)
	assert.Equal(t, StoppedOutput, res.Output)
	assert.Len(t, res.Steps, 3)
	assert.Len(t, p.requests, 3)
}

func TestExecute_ExtractsToolCallsFromContent(t *testing.T) {
	p := &scriptedProvider{responses: []*domain.ChatResponse{
		{Content: `{"name": "weather_tool", "arguments": {"input": "Sunday"}}`},
		{Content: "Assistant: 20 degrees."},
	}}

	res, err := newExecutor(p).Execute(context.Background(), ExecuteRequest{Tools: weatherTools(), Input: "Sunday?"})
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "Weather Tool", res.Steps[0].Action.ToolName)
	assert.Equal(t, "20", res.Steps[0].Result)
	assert.Equal(t, "20 degrees.", res.Output)
}

func TestExecute_ProviderErrorPropagates(t *testing.T) {
	p := &scriptedProvider{err: errors.New("upstream down")}
	_, err := newExecutor(p).Execute(context.Background(), ExecuteRequest{Input: "q"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "upstream down")
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newExecutor(&scriptedProvider{}).Execute(ctx, ExecuteRequest{Input: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToolInput(t *testing.T) {
	assert.Equal(t, "Monday", toolInput(map[string]any{"input": "Monday"}))
	assert.Equal(t, "", toolInput(nil))
	assert.JSONEq(t, `{"a":1,"b":"x"}`, toolInput(map[string]any{"a": 1, "b": "x"}))
	assert.Equal(t, `{"n":3}`, toolInput(map[string]any{"n": 3}))
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("  ", []domain.Message{{Role: "user", Content: ""}, {Role: "assistant", Content: "a"}}, "q")
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Equal(t, "q", msgs[1].Content)
}
