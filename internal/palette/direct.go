package palette

import (
	"context"
	"fmt"
	"log/slog"

	"palette/internal/agent"
	"palette/internal/config"
	"palette/internal/domain"
	"palette/internal/memory"
)

const directChatPrompt = `The following is a friendly conversation between a human and an AI.
The AI is talkative and provides lots of specific details from its context.
If the AI does not know the answer to a question, it truthfully says it does not know.`

const directChatMaxTokens = 4096

// DirectChatStrategy sends the question straight to the model with the
// memory window attached. It is only reachable through RunModeDirectChat.
type DirectChatStrategy struct {
	provider domain.Provider
	window   *memory.Window
	rt       config.Runtime
	logger   *slog.Logger
}

func NewDirectChatStrategy(provider domain.Provider, window *memory.Window, rt config.Runtime, logger *slog.Logger) *DirectChatStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectChatStrategy{provider: provider, window: window, rt: rt, logger: logger}
}

func (s *DirectChatStrategy) Chat(ctx context.Context, question string) (domain.ResponseEnvelope, error) {
	history, err := s.window.Load(ctx)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}

	resp, err := s.provider.Chat(ctx, domain.ChatRequest{
		Messages:    agent.BuildMessages(directChatPrompt, history, question),
		MaxTokens:   directChatMaxTokens,
		Temperature: s.rt.Temperature,
	})
	if err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("direct chat: %w", err)
	}

	md := BaseMetadata(s.rt)
	if err := s.window.SaveTurn(ctx, question, resp.Content, nil); err != nil {
		return domain.ResponseEnvelope{}, err
	}
	if err := s.window.AddMetadata(ctx, md); err != nil {
		return domain.ResponseEnvelope{}, err
	}
	return Envelope(s.rt.SessionID, resp.Content, md), nil
}
