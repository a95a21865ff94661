package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"palette/internal/domain"
)

const (
	humanPrefix = "Human"
	aiPrefix    = "Assistant"
)

// WindowConfig configures a sliding-window view over one session.
type WindowConfig struct {
	Store     domain.ConversationStore
	SessionID string
	K         int // number of turns (human+assistant pairs) to keep
	Logger    *slog.Logger
}

// Window exposes the last K turns of a session to a strategy and writes new
// turns back through the store. It does not cache; every Load hits the store.
type Window struct {
	store     domain.ConversationStore
	sessionID string
	k         int
	logger    *slog.Logger
}

func NewWindow(cfg WindowConfig) *Window {
	if cfg.K < 0 {
		cfg.K = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Window{
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		k:         cfg.K,
		logger:    cfg.Logger,
	}
}

func (w *Window) SessionID() string { return w.sessionID }
func (w *Window) K() int            { return w.k }

// Load returns the windowed history as chat messages, oldest first.
func (w *Window) Load(ctx context.Context) ([]domain.Message, error) {
	if w.k == 0 || w.store == nil {
		return nil, nil
	}
	records, err := w.store.Messages(ctx, w.sessionID, 2*w.k)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", w.sessionID, err)
	}
	msgs := make([]domain.Message, 0, len(records))
	for _, r := range records {
		role := r.Role
		if role != domain.RoleHuman && role != domain.RoleAI {
			w.logger.Debug("skipping history record with unknown role", "role", role)
			continue
		}
		msgs = append(msgs, domain.Message{Role: role, Content: r.Content})
	}
	return msgs, nil
}

// Buffer renders the window as a prefixed transcript, one line per message.
func (w *Window) Buffer(ctx context.Context) (string, error) {
	msgs, err := w.Load(ctx)
	if err != nil {
		return "", err
	}
	return FormatTranscript(msgs), nil
}

// SaveTurn appends a human input and the assistant output. Metadata, when
// present, rides on the assistant message.
func (w *Window) SaveTurn(ctx context.Context, input, output string, md *domain.ConversationMetadata) error {
	if err := w.store.AppendMessage(ctx, w.sessionID, domain.MessageRecord{
		Role:    domain.RoleHuman,
		Content: input,
	}); err != nil {
		return fmt.Errorf("append human message: %w", err)
	}
	if err := w.store.AppendMessage(ctx, w.sessionID, domain.MessageRecord{
		Role:     domain.RoleAI,
		Content:  output,
		Metadata: md,
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

// AddMetadata appends run metadata to the session record.
func (w *Window) AddMetadata(ctx context.Context, md domain.ConversationMetadata) error {
	if err := w.store.AppendMetadata(ctx, w.sessionID, md); err != nil {
		return fmt.Errorf("append metadata: %w", err)
	}
	return nil
}

// FormatTranscript renders messages with Human/Assistant prefixes.
func FormatTranscript(msgs []domain.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		prefix := humanPrefix
		if m.Role == domain.RoleAI {
			prefix = aiPrefix
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(prefix)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
