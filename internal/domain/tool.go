package domain

import "context"

// Tool is the interface for agent capabilities (weather lookup, retrieval, cloud ops, etc).
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// StructuredTool is implemented by tools whose result is richer than text,
// such as retrievers returning documents. The agent records the structured
// value in its steps and shows the model its JSON form.
type StructuredTool interface {
	Tool
	Invoke(ctx context.Context, args map[string]any) (any, error)
}
