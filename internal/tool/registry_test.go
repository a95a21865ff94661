package tool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"palette/internal/domain"
)

// stubTool is a minimal tool for testing the registry.
type stubTool struct {
	name   string
	result string
	err    error
}

func (s *stubTool) Name() string                                              { return s.name }
func (s *stubTool) Description() string                                       { return "stub: " + s.name }
func (s *stubTool) Parameters() map[string]any                                { return map[string]any{"type": "object", "properties": map[string]any{}} }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) { return s.result, s.err }

var _ domain.Tool = (*stubTool)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	tool := &stubTool{name: "test_tool", result: "ok"}
	reg.Register(tool)

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("expected to find registered tool")
	}
	if got.Name() != "test_tool" {
		t.Fatalf("expected 'test_tool', got %q", got.Name())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	got := reg.Get("nonexistent")
	if got != nil {
		t.Fatal("expected nil for unknown tool")
	}
}

func TestRegistry_Execute(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "echo", result: "hello"})

	result, err := reg.Execute(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result != "hello" {
		t.Fatalf("expected 'hello', got %q", result)
	}
}

func TestRegistry_ExecuteUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	_, err := reg.Execute(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestRegistry_NamesKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	for _, n := range []string{"gamma", "alpha", "beta"} {
		reg.Register(&stubTool{name: n})
	}

	names := reg.Names()
	want := []string{"gamma", "alpha", "beta"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_GetDefinitions(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "tool1"})
	reg.Register(&stubTool{name: "tool2"})

	defs := reg.GetDefinitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Name != "tool1" || defs[1].Name != "tool2" {
		t.Fatalf("definitions out of order: %v, %v", defs[0].Name, defs[1].Name)
	}
}

func TestRegistry_OverwriteRegistration(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&stubTool{name: "dup", result: "v1"})
	reg.Register(&stubTool{name: "dup", result: "v2"})

	result, _ := reg.Execute(context.Background(), "dup", nil)
	if result != "v2" {
		t.Fatalf("expected overwritten tool result 'v2', got %q", result)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 tool after re-registration, got %d", reg.Len())
	}
}

// --- schema validation ---

// echoTool requires a string "input".
type echoTool struct{}

func (echoTool) Name() string               { return "echo" }
func (echoTool) Description() string        { return "echo input" }
func (echoTool) Parameters() map[string]any { return singleInput("text to echo") }
func (echoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return ArgsString(args, InputKey), nil
}

// docsTool returns a structured result.
type docsTool struct{ echoTool }

func (docsTool) Name() string { return "docs" }
func (docsTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return []domain.Document{{PageContent: ArgsString(args, InputKey)}}, nil
}

func TestRegistry_ValidatesArguments(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(echoTool{})

	if _, err := reg.Execute(context.Background(), "echo", map[string]any{}); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs for missing input, got %v", err)
	}
	if _, err := reg.Execute(context.Background(), "echo", map[string]any{"input": 42}); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs for numeric input, got %v", err)
	}
	got, err := reg.Execute(context.Background(), "echo", map[string]any{"input": "hi"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "hi" {
		t.Fatalf("expected 'hi', got %q", got)
	}
}

func TestRegistry_InvokeStructured(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(docsTool{})
	reg.Register(echoTool{})

	v, err := reg.Invoke(context.Background(), "docs", map[string]any{"input": "q"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	docs, ok := v.([]domain.Document)
	if !ok || len(docs) != 1 || docs[0].PageContent != "q" {
		t.Fatalf("unexpected structured result: %#v", v)
	}

	v, err = reg.Invoke(context.Background(), "echo", map[string]any{"input": "plain"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if v != "plain" {
		t.Fatalf("expected string result, got %#v", v)
	}
}

// --- ToolParameters ---

func TestToolParameters_WithRequired(t *testing.T) {
	params := ToolParameters(
		map[string]Param{
			"name": {Type: "string", Description: "The name"},
			"age":  {Type: "number", Description: "The age in years"},
		},
		[]string{"name"},
	)

	if params["type"] != "object" {
		t.Fatal("expected type=object")
	}
	props := params["properties"].(map[string]any)
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(props))
	}

	nameParam := props["name"].(map[string]any)
	if nameParam["description"] != "The name" {
		t.Fatalf("expected 'The name', got %q", nameParam["description"])
	}

	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "name" {
		t.Fatalf("unexpected required: %v", required)
	}
}

func TestToolParameters_NoRequired(t *testing.T) {
	params := ToolParameters(
		map[string]Param{
			"query": {Type: "string", Description: "Search query"},
		},
		nil,
	)
	if _, ok := params["required"]; ok {
		t.Fatal("should not have 'required' key when nil")
	}
}

// --- ArgsString ---

func TestArgsString_StringValue(t *testing.T) {
	args := map[string]any{"key": "value"}
	if got := ArgsString(args, "key"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestArgsString_MissingKey(t *testing.T) {
	args := map[string]any{"other": "value"}
	if got := ArgsString(args, "key"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestArgsString_NilArgs(t *testing.T) {
	if got := ArgsString(nil, "key"); got != "" {
		t.Fatalf("expected empty for nil args, got %q", got)
	}
}

func TestArgsString_NonStringValue(t *testing.T) {
	args := map[string]any{"num": 42.0}
	got := ArgsString(args, "num")
	if got == "" {
		t.Fatal("expected non-empty for numeric value")
	}
}
