package provider

import (
	"fmt"
	"strings"

	"palette/internal/domain"
)

const maxToolNameLen = 64

// sanitizeToolName maps a display name such as "Weather Tool" onto the
// [a-zA-Z0-9_-]{1,64} alphabet every backend accepts.
func sanitizeToolName(in string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(in) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if len(out) > maxToolNameLen {
		out = out[:maxToolNameLen]
	}
	if out == "" {
		out = "tool"
	}
	return out
}

// toolNames translates between registry names and the names sent on the wire.
type toolNames struct {
	toWire      map[string]string
	toCanonical map[string]string
}

func newToolNames(defs []domain.ToolDefinition) (*toolNames, error) {
	n := &toolNames{
		toWire:      make(map[string]string, len(defs)),
		toCanonical: make(map[string]string, len(defs)),
	}
	for _, d := range defs {
		wire := sanitizeToolName(d.Name)
		if prev, ok := n.toCanonical[wire]; ok && prev != d.Name {
			return nil, fmt.Errorf("tool name %q sanitizes to %q which collides with %q", d.Name, wire, prev)
		}
		n.toWire[d.Name] = wire
		n.toCanonical[wire] = d.Name
	}
	return n, nil
}

func (n *toolNames) wire(name string) string {
	if w, ok := n.toWire[name]; ok {
		return w
	}
	return sanitizeToolName(name)
}

// canonical returns the registry name for a wire name. Unknown names pass
// through so the executor can report them as unknown tools.
func (n *toolNames) canonical(wire string) string {
	if c, ok := n.toCanonical[wire]; ok {
		return c
	}
	return wire
}

// normalizeFinish maps backend stop reasons onto stop | tool_calls | length.
func normalizeFinish(reason string) string {
	switch reason {
	case "tool_use", "tool_calls", "function_call":
		return "tool_calls"
	case "max_tokens", "length":
		return "length"
	case "":
		return ""
	default:
		return "stop"
	}
}
