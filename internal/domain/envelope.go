package domain

import "encoding/json"

const EnvelopeTypeText = "text"

// ResponseEnvelope is the single result of a routed run.
type ResponseEnvelope struct {
	SessionID string               `json:"sessionId"`
	Type      string               `json:"type"`
	Content   string               `json:"content"`
	Metadata  ConversationMetadata `json:"metadata"`
}

// ConversationMetadata describes how a turn was produced. It is attached to
// the conversation record once per successful run.
type ConversationMetadata struct {
	Text2TextModel       string   `json:"text2text_model"`
	Temperature          float64  `json:"temperature"`
	ChatHistoryWindow    int      `json:"chat_history_window"`
	Files                []string `json:"files,omitempty"`
	ReasoningActingSteps []Step   `json:"reasoning_acting_steps,omitempty"`
	AutogenChatMessages  []any    `json:"autogen_chat_messages,omitempty"`
	ImageModel           string   `json:"image_model,omitempty"`
	Images               []string `json:"images,omitempty"`
}

// AgentAction is one tool invocation chosen by the agent.
type AgentAction struct {
	ToolName  string `json:"tool"`
	ToolInput string `json:"tool_input"`
	Rationale string `json:"log"`
}

func (a AgentAction) MarshalJSON() ([]byte, error) {
	type wire struct {
		ToolName  string `json:"tool"`
		ToolInput string `json:"tool_input"`
		Rationale string `json:"log"`
		Type      string `json:"type"`
	}
	return json.Marshal(wire{ToolName: a.ToolName, ToolInput: a.ToolInput, Rationale: a.Rationale, Type: "AgentAction"})
}

// Step pairs an action with the normalized result the tool produced.
type Step struct {
	Action AgentAction `json:"action"`
	Result any         `json:"result"`
}
