package domain

import "context"

// Channel is the interface for user-facing front ends (Telegram, HTTP).
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}
