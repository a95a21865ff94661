package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"palette/internal/domain"
)

// ModelChain serves one run model from the provider it maps to, then from
// the general.failoverChain members in order. Requests that carry tool
// definitions skip members without native tool calling, unless no member
// has it.
type ModelChain struct {
	model   string
	members []domain.Provider
	logger  *slog.Logger
}

// NewModelChain builds the chain for model. members[0] is the provider the
// model resolves to.
func NewModelChain(model string, members []domain.Provider, logger *slog.Logger) *ModelChain {
	return &ModelChain{model: model, members: members, logger: logger}
}

func (c *ModelChain) Name() string {
	names := make([]string, len(c.members))
	for i, p := range c.members {
		names[i] = p.Name()
	}
	return c.model + ": " + strings.Join(names, "→")
}

func (c *ModelChain) Mode() domain.ProviderMode {
	if len(c.members) > 0 {
		return c.members[0].Mode()
	}
	return domain.ModeAPI
}

// Models reports the resolved provider's models; fallbacks answer with
// their own defaults.
func (c *ModelChain) Models() []string {
	if len(c.members) == 0 {
		return nil
	}
	return c.members[0].Models()
}

func (c *ModelChain) SupportsToolCalling() bool {
	for _, p := range c.members {
		if p.SupportsToolCalling() {
			return true
		}
	}
	return false
}

// Healthy succeeds when any member is healthy and otherwise reports every
// member's failure.
func (c *ModelChain) Healthy(ctx context.Context) error {
	if len(c.members) == 0 {
		return fmt.Errorf("model %s: no providers", c.model)
	}
	errs := make([]error, 0, len(c.members))
	for _, p := range c.members {
		err := p.Healthy(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return fmt.Errorf("model %s: no healthy provider: %w", c.model, errors.Join(errs...))
}

// Chat returns the first successful answer. Only the resolved provider sees
// req.Model. Caller cancellation stops the chain.
func (c *ModelChain) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	candidates := c.candidates(len(req.Tools) > 0)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("model %s: no providers", c.model)
	}

	var errs []error
	for i, p := range candidates {
		r := req
		if p != c.members[0] {
			r.Model = ""
		}
		resp, err := p.Chat(ctx, r)
		if err == nil {
			if i > 0 {
				c.logger.Info("model served by fallback provider",
					"model", c.model,
					"provider", p.Name(),
					"attempt", i+1,
				)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		c.logger.Warn("provider failed, trying next",
			"model", c.model,
			"provider", p.Name(),
			"attempt", i+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("model %s: all providers failed: %w", c.model, errors.Join(errs...))
}

func (c *ModelChain) candidates(needTools bool) []domain.Provider {
	if !needTools {
		return c.members
	}
	var capable []domain.Provider
	for _, p := range c.members {
		if p.SupportsToolCalling() {
			capable = append(capable, p)
		}
	}
	if len(capable) == 0 {
		return c.members
	}
	return capable
}
