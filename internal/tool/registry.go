package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"palette/internal/domain"
)

// ErrInvalidArgs is returned when tool arguments do not match the tool's schema.
var ErrInvalidArgs = errors.New("invalid tool arguments")

type entry struct {
	tool   domain.Tool
	schema *jsonschema.Schema // nil when the tool's schema did not compile
}

// Registry holds all available tools and executes them. Definitions and
// names come back in registration order, which is the order the model sees.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]entry),
		logger: logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	schema, err := compileSchema(t.Name(), t.Parameters())
	if err != nil {
		r.logger.Warn("tool schema rejected, arguments will not be validated", "name", t.Name(), "err", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = entry{tool: t, schema: schema}
	r.logger.Debug("registered tool", "name", t.Name())
}

func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name].tool
}

func (r *Registry) lookup(name string, args map[string]any) (domain.Tool, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s (available: %v)", name, r.Names())
	}
	if e.schema != nil {
		if err := validateArgs(e.schema, args); err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidArgs, name, err)
		}
	}
	return e.tool, nil
}

// Execute validates args and runs the tool, returning its textual result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, err := r.lookup(name, args)
	if err != nil {
		return "", err
	}
	return t.Execute(ctx, args)
}

// Invoke is Execute for callers that keep structured results. Tools that do
// not implement domain.StructuredTool yield their string result.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, err := r.lookup(name, args)
	if err != nil {
		return nil, err
	}
	if st, ok := t.(domain.StructuredTool); ok {
		return st.Invoke(ctx, args)
	}
	return t.Execute(ctx, args)
}

// GetDefinitions returns tool definitions in OpenAI-compatible format for the LLM.
func (r *Registry) GetDefinitions() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name].tool
		defs = append(defs, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// compileSchema compiles a tool's parameter schema. The schema is passed
// through JSON first because the compiler only accepts decoded JSON values.
func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	doc, err := roundTrip(params)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	return c.Compile("schema.json")
}

func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := roundTrip(args)
	if err != nil {
		return err
	}
	return schema.Validate(payload)
}

func roundTrip(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
}

// ToolParameters builds a JSON Schema "parameters" object for a tool.
func ToolParameters(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		props[name] = map[string]any{"type": p.Type, "description": p.Description}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// singleInput is the schema of tools that take one free-text action input.
func singleInput(description string) map[string]any {
	return ToolParameters(map[string]Param{
		InputKey: {Type: "string", Description: description},
	}, []string{InputKey})
}

// InputKey names the argument of single-input tools.
const InputKey = "input"

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
