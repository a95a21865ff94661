package palette

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"palette/internal/config"
	"palette/internal/domain"
	"palette/internal/memory"
	"palette/internal/peer"
)

// apologyPrefix starts the reply for a failed delegation. The turn is not
// kept in the conversation record.
const apologyPrefix = "对不起，我执行过程中出现异常，这条对话将不会保存在聊天记录里，错误信息为："

// ArithmeticStrategy delegates "make 24" puzzles to the peer solver.
type ArithmeticStrategy struct {
	peer   peer.Invoker
	window *memory.Window
	rt     config.Runtime
	logger *slog.Logger
}

func NewArithmeticStrategy(invoker peer.Invoker, window *memory.Window, rt config.Runtime, logger *slog.Logger) *ArithmeticStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArithmeticStrategy{peer: invoker, window: window, rt: rt, logger: logger}
}

// Delegate calls the peer once. Every failure, missing credentials
// included, produces an apology envelope and leaves the record untouched.
func (s *ArithmeticStrategy) Delegate(ctx context.Context, question string) (domain.ResponseEnvelope, error) {
	resp, err := s.invoke(ctx, question)
	if err != nil {
		s.logger.Warn("peer delegation failed, turn not recorded",
			"session", s.rt.SessionID, "err", err, "function_error", errors.Is(err, peer.ErrPeerFunction))
		return Envelope(s.rt.SessionID, apologyPrefix+err.Error(), BaseMetadata(s.rt)), nil
	}

	md := BaseMetadata(s.rt)
	md.AutogenChatMessages = resp.ChatMessages
	if err := s.window.SaveTurn(ctx, question, resp.LastMessage, &md); err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("record arithmetic turn: %w", err)
	}
	return Envelope(s.rt.SessionID, resp.LastMessage, md), nil
}

func (s *ArithmeticStrategy) invoke(ctx context.Context, question string) (*peer.Response, error) {
	if err := s.rt.RequirePeerCredentials(); err != nil {
		return nil, err
	}
	if s.peer == nil {
		return nil, fmt.Errorf("peer invoker: %w", config.ErrMissing)
	}
	return s.peer.Invoke(ctx, peer.Request{
		Question:       question,
		APIKey:         s.rt.PeerAPIKey,
		BaseURL:        s.rt.PeerBaseURL,
		Text2TextModel: s.rt.Model,
	})
}
