package palette

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"palette/internal/agent"
	"palette/internal/config"
	"palette/internal/domain"
	"palette/internal/memory"
	"palette/internal/tool"
)

// ToolAgentStrategy is the default route: a tool-calling agent over the
// session's memory window.
type ToolAgentStrategy struct {
	executor *agent.Executor
	tools    *tool.Registry
	window   *memory.Window
	rt       config.Runtime
	logger   *slog.Logger
}

func NewToolAgentStrategy(executor *agent.Executor, tools *tool.Registry, window *memory.Window, rt config.Runtime, logger *slog.Logger) *ToolAgentStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolAgentStrategy{executor: executor, tools: tools, window: window, rt: rt, logger: logger}
}

// Tools exposes the assembled toolset.
func (s *ToolAgentStrategy) Tools() *tool.Registry { return s.tools }

func (s *ToolAgentStrategy) Run(ctx context.Context, question string) (domain.ResponseEnvelope, error) {
	if s.rt.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rt.AgentTimeout)
		defer cancel()
	}

	history, err := s.window.Load(ctx)
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}

	start := time.Now()
	res, err := s.executor.Execute(ctx, agent.ExecuteRequest{
		Tools:        s.tools,
		Input:        question,
		History:      history,
		MaxSteps:     s.rt.MaxSteps(),
		SystemPrompt: agent.DefaultSystemPrompt,
		Temperature:  s.rt.Temperature,
	})
	if err != nil {
		return domain.ResponseEnvelope{}, fmt.Errorf("tool agent: %w", err)
	}
	s.logger.Info("tool agent finished",
		"session", s.rt.SessionID, "steps", len(res.Steps), "duration", time.Since(start).Round(time.Millisecond))

	md := BaseMetadata(s.rt)
	md.ReasoningActingSteps = NormalizeSteps(res.Steps)

	if err := s.window.SaveTurn(ctx, question, res.Output, nil); err != nil {
		return domain.ResponseEnvelope{}, err
	}
	if err := s.window.AddMetadata(ctx, md); err != nil {
		return domain.ResponseEnvelope{}, err
	}
	return Envelope(s.rt.SessionID, res.Output, md), nil
}
