package agent

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"palette/internal/domain"
)

// contentCall is one tool call written into a model's text. Models use
// several shapes: {"name","arguments"}, {"name","parameters"}, the wire form
// {"function":{"name","arguments":"<json>"}}, and the ReAct form
// {"action","action_input"}.
type contentCall struct {
	Name        string          `json:"name"`
	Tool        string          `json:"tool"`
	Action      string          `json:"action"`
	Arguments   json.RawMessage `json:"arguments"`
	Parameters  json.RawMessage `json:"parameters"`
	ToolInput   json.RawMessage `json:"tool_input"`
	ActionInput json.RawMessage `json:"action_input"`
	Function    *contentCall    `json:"function"`
}

func (c contentCall) name() string {
	if c.Function != nil {
		if n := c.Function.name(); n != "" {
			return n
		}
	}
	for _, n := range []string{c.Name, c.Tool, c.Action} {
		if n != "" {
			return n
		}
	}
	return ""
}

func (c contentCall) arguments() map[string]any {
	if c.Function != nil && len(c.Function.Arguments) > 0 {
		return decodeArguments(c.Function.Arguments)
	}
	for _, raw := range []json.RawMessage{c.Arguments, c.Parameters, c.ToolInput, c.ActionInput} {
		if len(raw) > 0 {
			return decodeArguments(raw)
		}
	}
	return map[string]any{}
}

// decodeArguments accepts an object, a string holding an object, or a bare
// string, which becomes the tool's single "input" argument.
func decodeArguments(raw json.RawMessage) map[string]any {
	if string(raw) == "null" {
		return map[string]any{}
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) == nil && obj != nil {
		return obj
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if json.Unmarshal([]byte(s), &obj) == nil && obj != nil {
			return obj
		}
		return map[string]any{"input": s}
	}
	return map[string]any{}
}

// parseContentToolCalls recovers tool calls that a model wrote into its text
// instead of the tool_calls field. Every JSON value in content is tried in
// order; the first one naming registered tools wins, so a JSON answer that
// names no tool is left alone.
func parseContentToolCalls(content string, registered []string) []domain.ToolCall {
	for i := 0; i < len(content); i++ {
		if content[i] != '{' && content[i] != '[' {
			continue
		}
		raw, n, ok := decodeValue(content[i:])
		if !ok {
			continue
		}
		if calls := registeredCalls(raw, registered); len(calls) > 0 {
			return calls
		}
		i += n - 1
	}
	return nil
}

// decodeValue reads the JSON value at the start of s, repairing invalid
// string escapes when the plain read fails. n is the number of bytes of s
// the value occupied.
func decodeValue(s string) (json.RawMessage, int, bool) {
	var raw json.RawMessage
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&raw); err == nil {
		return raw, int(dec.InputOffset()), true
	}
	repaired := repairEscapes(s)
	dec = json.NewDecoder(strings.NewReader(repaired))
	if err := dec.Decode(&raw); err != nil {
		return nil, 0, false
	}
	// Repairs only remove bytes, so the offset stays inside the original value.
	return raw, int(dec.InputOffset()), true
}

func registeredCalls(raw json.RawMessage, registered []string) []domain.ToolCall {
	var list []contentCall
	if len(raw) > 0 && raw[0] == '[' {
		if json.Unmarshal(raw, &list) != nil {
			return nil
		}
	} else {
		var one contentCall
		if json.Unmarshal(raw, &one) != nil {
			return nil
		}
		list = []contentCall{one}
	}

	var calls []domain.ToolCall
	for _, c := range list {
		name, ok := matchToolName(c.name(), registered)
		if !ok {
			continue
		}
		calls = append(calls, domain.ToolCall{
			ID:        "extracted_" + uuid.NewString(),
			Name:      name,
			Arguments: c.arguments(),
		})
	}
	return calls
}

// matchToolName maps a model-generated tool name onto a registered one.
// Case and the separators ' ', '_' and '-' are ignored.
func matchToolName(name string, registered []string) (string, bool) {
	if name == "" {
		return "", false
	}
	key := foldToolName(name)
	for _, r := range registered {
		if r == name {
			return r, true
		}
	}
	for _, r := range registered {
		if foldToolName(r) == key {
			return r, true
		}
	}
	return name, false
}

func foldToolName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var answerPrefixes = []string{"final answer", "assistant", "ai"}

// finalText cleans the agent's closing answer: leaked role names and
// "Final Answer:" markers are removed, and a ReAct final-answer object is
// reduced to its text.
func finalText(content string) string {
	s := strings.TrimSpace(content)
	if answer, ok := finalAnswerAction(s); ok {
		return answer
	}
	for stripped := true; stripped; {
		stripped = false
		for _, p := range answerPrefixes {
			if len(s) <= len(p) || !strings.EqualFold(s[:len(p)], p) {
				continue
			}
			if rest := s[len(p):]; rest[0] == ':' || rest[0] == '\n' {
				s = strings.TrimSpace(rest[1:])
				stripped = true
				break
			}
		}
	}
	return s
}

func finalAnswerAction(s string) (string, bool) {
	if !strings.HasPrefix(s, "{") {
		return "", false
	}
	var c contentCall
	if json.Unmarshal([]byte(s), &c) != nil || !strings.EqualFold(c.Action, "Final Answer") {
		return "", false
	}
	var text string
	if json.Unmarshal(c.ActionInput, &text) == nil {
		return text, true
	}
	return string(c.ActionInput), true
}

// repairEscapes drops the backslash of escape sequences JSON does not
// define, such as \% or \Y, inside string literals.
func repairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inString:
			inString = ch == '"'
		case ch == '"':
			inString = false
		case ch == '\\' && i+1 < len(s):
			if strings.IndexByte(`"\/bfnrtu`, s[i+1]) < 0 {
				continue
			}
			b.WriteByte(ch)
			i++
			ch = s[i]
		}
		b.WriteByte(ch)
	}
	return b.String()
}
