package agent

import (
	"strings"

	"palette/internal/domain"
)

// DefaultSystemPrompt frames the tool-calling assistant.
const DefaultSystemPrompt = `Respond to the human as helpfully and accurately as possible.
You have access to tools. Use a tool whenever the answer depends on facts you
cannot know on your own, such as today's date, temperatures, documents the human
uploaded, knowledge-base content or cloud resources. Call one tool at a time and
wait for its result before deciding the next step. When you have enough
information, reply to the human directly without calling a tool.
Answer in the language the human used.`

// BuildMessages assembles the conversation sent to the provider: the system
// prompt, the windowed history and the new input.
func BuildMessages(systemPrompt string, history []domain.Message, input string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		msgs = append(msgs, domain.Message{Role: "system", Content: s})
	}
	for _, h := range history {
		if h.Content == "" {
			continue
		}
		msgs = append(msgs, domain.Message{Role: h.Role, Content: h.Content})
	}
	return append(msgs, domain.Message{Role: "user", Content: input})
}
