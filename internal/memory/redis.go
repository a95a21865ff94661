package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"palette/internal/domain"
)

const defaultRedisPrefix = "palette"

// RedisConfig configures the Redis conversation store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Logger   *slog.Logger
}

// RedisStore implements domain.ConversationStore and domain.Counter on Redis
// lists. Each session owns a message list, a metadata list and a sequence key.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreFromClient(rdb, cfg.Prefix, cfg.Logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *RedisStore) messagesKey(sessionID string) string {
	return s.prefix + ":session:" + sessionID + ":messages"
}

func (s *RedisStore) metadataKey(sessionID string) string {
	return s.prefix + ":session:" + sessionID + ":metadata"
}

func (s *RedisStore) seqKey(sessionID string) string {
	return s.prefix + ":session:" + sessionID + ":seq"
}

func (s *RedisStore) AppendMessage(ctx context.Context, sessionID string, msg domain.MessageRecord) error {
	id, err := s.rdb.Incr(ctx, s.seqKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis message sequence: %w", err)
	}
	msg.ID = id
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.rdb.RPush(ctx, s.messagesKey(sessionID), data).Err()
}

func (s *RedisStore) AppendMetadata(ctx context.Context, sessionID string, md domain.ConversationMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return s.rdb.RPush(ctx, s.metadataKey(sessionID), data).Err()
}

// Messages returns the last limit messages of a session, oldest first.
func (s *RedisStore) Messages(ctx context.Context, sessionID string, limit int) ([]domain.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := s.rdb.LRange(ctx, s.messagesKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	msgs := make([]domain.MessageRecord, 0, len(raw))
	for _, item := range raw {
		var m domain.MessageRecord
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			s.logger.Warn("skipping undecodable message", "session", sessionID, "err", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) Metadata(ctx context.Context, sessionID string) ([]domain.ConversationMetadata, error) {
	raw, err := s.rdb.LRange(ctx, s.metadataKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]domain.ConversationMetadata, 0, len(raw))
	for _, item := range raw {
		var md domain.ConversationMetadata
		if err := json.Unmarshal([]byte(item), &md); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, md)
	}
	return out, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.messagesKey(sessionID), s.metadataKey(sessionID), s.seqKey(sessionID)).Err()
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	v, err := s.rdb.Incr(ctx, s.prefix+":kv:"+key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
