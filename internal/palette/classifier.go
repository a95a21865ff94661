package palette

import (
	"context"
	"log/slog"
	"time"

	"palette/internal/domain"
)

const (
	defaultClassifierTimeout = 30 * time.Second
	classifierMaxTokens      = 128
)

// Classifier asks a text-generation provider for the question's category.
// It carries no conversation memory and uses the provider's default model.
type Classifier struct {
	provider domain.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

type ClassifierConfig struct {
	Provider domain.Provider
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultClassifierTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Classifier{
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}
}

// Classify returns the question's classification. Provider errors and
// timeouts are logged and yield LabelDefault.
func (c *Classifier) Classify(ctx context.Context, question string) Classification {
	if c.provider == nil {
		return Classification{Label: LabelDefault}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: classifierUserPrompt(question)},
		},
		MaxTokens:   classifierMaxTokens,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("classifier failed, using default route", "err", err, "contract", ClassifierContractVersion)
		return Classification{Label: LabelDefault}
	}

	cl := ParseClassification(resp.Content)
	c.logger.Debug("classified question", "label", cl.Label.String(), "raw", cl.Raw)
	return cl
}
