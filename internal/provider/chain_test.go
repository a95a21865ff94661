package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"palette/internal/domain"
)

// mockProvider implements domain.Provider for testing.
type mockProvider struct {
	name      string
	healthy   bool
	chatErr   error
	chatResp  *domain.ChatResponse
	toolCalls bool
	lastReq   domain.ChatRequest
	calls     int
}

func (m *mockProvider) Name() string              { return m.name }
func (m *mockProvider) Mode() domain.ProviderMode { return domain.ModeAPI }
func (m *mockProvider) Models() []string          { return []string{m.name + "-model"} }
func (m *mockProvider) SupportsToolCalling() bool { return m.toolCalls }

func (m *mockProvider) Healthy(ctx context.Context) error {
	if !m.healthy {
		return errors.New("unhealthy")
	}
	return nil
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.calls++
	m.lastReq = req
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	return m.chatResp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var chainWeatherTools = []domain.ToolDefinition{{Name: "Weather Tool", Description: "current weather"}}

func TestModelChain_ResolvedProviderAnswers(t *testing.T) {
	p1 := &mockProvider{name: "openai", chatResp: &domain.ChatResponse{Content: "from-openai"}}
	p2 := &mockProvider{name: "claude", chatResp: &domain.ChatResponse{Content: "from-claude"}}
	c := NewModelChain("OpenAI", []domain.Provider{p1, p2}, testLogger())

	resp, err := c.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from-openai" {
		t.Fatalf("expected 'from-openai', got %q", resp.Content)
	}
	if p2.calls != 0 {
		t.Fatalf("fallback called %d times", p2.calls)
	}
}

func TestModelChain_FallsBackOnError(t *testing.T) {
	p1 := &mockProvider{name: "openai", chatErr: ErrRateLimited}
	p2 := &mockProvider{name: "claude", chatResp: &domain.ChatResponse{Content: "from-claude"}}
	c := NewModelChain("OpenAI", []domain.Provider{p1, p2}, testLogger())

	resp, err := c.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from-claude" {
		t.Fatalf("expected 'from-claude', got %q", resp.Content)
	}
}

func TestModelChain_AllFailReportsEveryMember(t *testing.T) {
	fail1 := errors.New("fail 1")
	p1 := &mockProvider{name: "openai", chatErr: fail1}
	p2 := &mockProvider{name: "claude", chatErr: ErrRateLimited}
	c := NewModelChain("OpenAI", []domain.Provider{p1, p2}, testLogger())

	_, err := c.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	if !errors.Is(err, fail1) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error should wrap both failures, got %v", err)
	}
	for _, want := range []string{"model OpenAI", "openai: fail 1", "claude: "} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestModelChain_ToolRequestsSkipMembersWithoutToolCalling(t *testing.T) {
	plain := &mockProvider{name: "local", chatResp: &domain.ChatResponse{Content: "plain text"}}
	capable := &mockProvider{name: "claude", toolCalls: true, chatResp: &domain.ChatResponse{Content: "tool-capable"}}
	c := NewModelChain("Local", []domain.Provider{plain, capable}, testLogger())

	resp, err := c.Chat(context.Background(), domain.ChatRequest{Tools: chainWeatherTools, Model: "llama3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "tool-capable" {
		t.Fatalf("expected the tool-capable member, got %q", resp.Content)
	}
	if plain.calls != 0 {
		t.Fatalf("member without tool calling was called %d times", plain.calls)
	}
	if capable.lastReq.Model != "" {
		t.Fatalf("fallback should use its own default model, got %q", capable.lastReq.Model)
	}

	// Without tools the resolved provider answers as usual.
	resp, err = c.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "plain text" {
		t.Fatalf("expected the resolved provider, got %q", resp.Content)
	}
}

func TestModelChain_ToolRequestsWithNoCapableMemberUseWholeChain(t *testing.T) {
	p1 := &mockProvider{name: "local", chatResp: &domain.ChatResponse{Content: "from-local"}}
	p2 := &mockProvider{name: "other"}
	c := NewModelChain("Local", []domain.Provider{p1, p2}, testLogger())

	resp, err := c.Chat(context.Background(), domain.ChatRequest{Tools: chainWeatherTools})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from-local" {
		t.Fatalf("expected 'from-local', got %q", resp.Content)
	}
}

func TestModelChain_Healthy(t *testing.T) {
	sick := &mockProvider{name: "sick"}
	well := &mockProvider{name: "well", healthy: true}
	if err := NewModelChain("M", []domain.Provider{sick, well}, testLogger()).Healthy(context.Background()); err != nil {
		t.Fatalf("expected healthy, got: %v", err)
	}

	err := NewModelChain("M", []domain.Provider{sick, &mockProvider{name: "sick2"}}, testLogger()).Healthy(context.Background())
	if err == nil {
		t.Fatal("expected unhealthy error")
	}
	for _, want := range []string{"sick: unhealthy", "sick2: unhealthy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestModelChain_Describe(t *testing.T) {
	p1 := &mockProvider{name: "bedrock"}
	p2 := &mockProvider{name: "openai", toolCalls: true}
	c := NewModelChain("Bedrock", []domain.Provider{p1, p2}, testLogger())

	if got := c.Name(); got != "Bedrock: bedrock→openai" {
		t.Fatalf("name = %q", got)
	}
	if got := c.Models(); len(got) != 1 || got[0] != "bedrock-model" {
		t.Fatalf("models = %v, want only the resolved provider's", got)
	}
	if !c.SupportsToolCalling() {
		t.Fatal("expected SupportsToolCalling=true when any member has it")
	}
}

func TestModelChain_ModelOverrideOnlyForResolvedProvider(t *testing.T) {
	p1 := &mockProvider{name: "openai", chatErr: errors.New("down")}
	p2 := &mockProvider{name: "claude", chatResp: &domain.ChatResponse{Content: "ok"}}
	c := NewModelChain("OpenAI", []domain.Provider{p1, p2}, testLogger())

	if _, err := c.Chat(context.Background(), domain.ChatRequest{Model: "gpt-4o"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1.lastReq.Model != "gpt-4o" {
		t.Fatalf("resolved provider should see the override, got %q", p1.lastReq.Model)
	}
	if p2.lastReq.Model != "" {
		t.Fatalf("fallback should use its own default model, got %q", p2.lastReq.Model)
	}
}

func TestModelChain_StopsOnCancelledContext(t *testing.T) {
	p1 := &mockProvider{name: "openai"}
	p2 := &mockProvider{name: "claude", chatResp: &domain.ChatResponse{Content: "late"}}
	c := NewModelChain("OpenAI", []domain.Provider{p1, p2}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Chat(ctx, domain.ChatRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if p2.calls != 0 {
		t.Fatalf("fallback must not be tried after cancellation, got %d calls", p2.calls)
	}
}

func TestModelChain_Empty(t *testing.T) {
	c := NewModelChain("OpenAI", nil, testLogger())
	if _, err := c.Chat(context.Background(), domain.ChatRequest{}); err == nil {
		t.Fatal("expected error for empty chain")
	}
	if err := c.Healthy(context.Background()); err == nil {
		t.Fatal("expected error for empty chain")
	}
}
