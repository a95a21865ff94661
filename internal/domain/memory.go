package domain

import (
	"context"
	"time"
)

const (
	RoleHuman = "user"
	RoleAI    = "assistant"
)

// ConversationStore owns the per-session conversation record. The routing
// core only appends to it and reads prior turns through window memory.
type ConversationStore interface {
	AppendMessage(ctx context.Context, sessionID string, msg MessageRecord) error
	AppendMetadata(ctx context.Context, sessionID string, md ConversationMetadata) error
	Messages(ctx context.Context, sessionID string, limit int) ([]MessageRecord, error)
	Metadata(ctx context.Context, sessionID string) ([]ConversationMetadata, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

// Counter increments named integer keys.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
}

type MessageRecord struct {
	ID        int64                 `json:"id"`
	SessionID string                `json:"session_id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	Metadata  *ConversationMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
