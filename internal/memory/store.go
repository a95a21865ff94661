package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"palette/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ConversationStore and domain.Counter using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// ensureSession creates the session row on first write.
func (s *SQLiteStore) ensureSession(ctx context.Context, sessionID, firstContent string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sessionID, generateTitle(firstContent), now, now,
	)
	return err
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg domain.MessageRecord) error {
	if err := s.ensureSession(ctx, sessionID, msg.Content); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	var metadata sql.NullString
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, metadata, msg.CreatedAt,
	); err != nil {
		return err
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID)
	return nil
}

func (s *SQLiteStore) AppendMetadata(ctx context.Context, sessionID string, md domain.ConversationMetadata) error {
	if err := s.ensureSession(ctx, sessionID, ""); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_metadata (session_id, metadata, created_at) VALUES (?, ?, ?)`,
		sessionID, string(data), time.Now(),
	)
	return err
}

// Messages returns the last limit messages of a session, oldest first.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string, limit int) ([]domain.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.MessageRecord
	for rows.Next() {
		var m domain.MessageRecord
		var content, metadata sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &content, &metadata, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Content = content.String
		if metadata.Valid && metadata.String != "" {
			var md domain.ConversationMetadata
			if err := json.Unmarshal([]byte(metadata.String), &md); err == nil {
				m.Metadata = &md
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Metadata returns every metadata entry appended to a session, oldest first.
func (s *SQLiteStore) Metadata(ctx context.Context, sessionID string) ([]domain.ConversationMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metadata FROM session_metadata WHERE session_id = ? ORDER BY id ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationMetadata
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var md domain.ConversationMetadata
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, md)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// ListSessions returns the most recently updated sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var ss domain.Session
		var title sql.NullString
		if err := rows.Scan(&ss.ID, &title, &ss.CreatedAt, &ss.UpdatedAt); err != nil {
			return nil, err
		}
		ss.Title = title.String
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// Increment adds one to the named counter and returns the new value.
func (s *SQLiteStore) Increment(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET value = value + 1, updated_at = excluded.updated_at
		 RETURNING value`,
		key, time.Now(),
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func generateTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "New conversation"
	}
	if idx := strings.IndexAny(msg, "\n\r"); idx > 0 {
		msg = msg[:idx]
	}
	runes := []rune(msg)
	if len(runes) > 60 {
		head := string(runes[:60])
		if cut := strings.LastIndex(head, " "); cut >= 20 {
			head = head[:cut]
		}
		msg = head + "..."
	}
	return msg
}
