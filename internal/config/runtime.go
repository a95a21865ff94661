package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Keys a caller may set per run. They mirror the deployment environment the
// router was first operated in, so existing clients keep working.
const (
	KeyAgentID        = "agent_id"
	KeyModel          = "text2text_model"
	KeyTemperature    = "temperature"
	KeyHistoryWindow  = "chat_history_window"
	KeyIsAdmin        = "is_admin"
	KeyFiles          = "files"
	KeyK              = "k"
	KeyEmbeddingModel = "embedding_model"
	KeyUserID         = "user_id"
	KeyPeerAPIKey     = "OPENAI_API_KEY"
	KeyPeerBaseURL    = "OPENAI_API_BASE"
)

// LookupFunc resolves a runtime key. It has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// MapLookup resolves keys from an in-memory map.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// ChainLookup tries each lookup in order and returns the first hit.
func ChainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

// Runtime is the immutable snapshot of settings a single run reads. It is
// built once at run start and passed to the router and every strategy.
type Runtime struct {
	SessionID         string
	UserID            string
	AgentID           string
	Model             string
	HighCapacityModel string
	Temperature       float64
	HistoryWindow     int
	Privileged        bool
	Files             []string
	K                 int
	EmbeddingModel    string
	PeerAPIKey        string
	PeerBaseURL       string
	MaxStepsHigh      int
	MaxStepsDefault   int
	ClassifierTimeout time.Duration
	AgentTimeout      time.Duration
}

// NewRuntime merges cfg defaults with per-run overrides from lookup.
func NewRuntime(cfg *Config, sessionID string, lookup LookupFunc) (Runtime, error) {
	if lookup == nil {
		lookup = MapLookup(nil)
	}
	p := cfg.Palette
	rt := Runtime{
		SessionID:         sessionID,
		AgentID:           p.AgentID,
		Model:             p.Text2TextModel,
		HighCapacityModel: p.HighCapacityModel,
		Temperature:       p.Temperature,
		HistoryWindow:     p.ChatHistoryWindow,
		Privileged:        IsPrivileged(p.IsAdmin),
		K:                 p.K,
		EmbeddingModel:    p.EmbeddingModel,
		PeerAPIKey:        cfg.Peer.APIKey,
		PeerBaseURL:       cfg.Peer.BaseURL,
		MaxStepsHigh:      p.StepsHighCapacity,
		MaxStepsDefault:   p.StepsDefault,
		ClassifierTimeout: time.Duration(p.ClassifierTimeout) * time.Second,
		AgentTimeout:      time.Duration(p.AgentTimeout) * time.Second,
	}

	if v, ok := lookup(KeyAgentID); ok && v != "" {
		rt.AgentID = v
	}
	if v, ok := lookup(KeyModel); ok && v != "" {
		rt.Model = v
	}
	if v, ok := lookup(KeyUserID); ok {
		rt.UserID = v
	}
	if v, ok := lookup(KeyIsAdmin); ok {
		rt.Privileged = IsPrivileged(v)
	}
	if v, ok := lookup(KeyEmbeddingModel); ok && v != "" {
		rt.EmbeddingModel = v
	}
	if v, ok := lookup(KeyPeerAPIKey); ok && v != "" {
		rt.PeerAPIKey = v
	}
	if v, ok := lookup(KeyPeerBaseURL); ok && v != "" {
		rt.PeerBaseURL = v
	}
	if v, ok := lookup(KeyTemperature); ok && v != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Runtime{}, fmt.Errorf("runtime %s=%q: %w", KeyTemperature, v, err)
		}
		rt.Temperature = t
	}
	if v, ok := lookup(KeyHistoryWindow); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return Runtime{}, fmt.Errorf("runtime %s=%q: must be a non-negative integer", KeyHistoryWindow, v)
		}
		rt.HistoryWindow = n
	}
	if v, ok := lookup(KeyK); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 1 {
			return Runtime{}, fmt.Errorf("runtime %s=%q: must be a positive integer", KeyK, v)
		}
		rt.K = n
	}
	if v, ok := lookup(KeyFiles); ok {
		files, err := parseFiles(v)
		if err != nil {
			return Runtime{}, fmt.Errorf("runtime %s: %w", KeyFiles, err)
		}
		rt.Files = files
	}

	if rt.Model == "" {
		return Runtime{}, fmt.Errorf("%w: %s", ErrMissing, KeyModel)
	}
	return rt, nil
}

// RuntimeFromEnv builds a Runtime with process environment overrides.
func RuntimeFromEnv(cfg *Config, sessionID string) (Runtime, error) {
	return NewRuntime(cfg, sessionID, os.LookupEnv)
}

// IsPrivileged reports whether an is_admin value grants privileged tools.
// Only a case-insensitive "true" does.
func IsPrivileged(value string) bool {
	return strings.EqualFold(value, "true")
}

// HighCapacity reports whether the run uses the model variant that gets the
// larger step budget.
func (r Runtime) HighCapacity() bool {
	return r.HighCapacityModel != "" && r.Model == r.HighCapacityModel
}

// MaxSteps returns the agent step budget for the run's model.
func (r Runtime) MaxSteps() int {
	if r.HighCapacity() {
		return r.MaxStepsHigh
	}
	return r.MaxStepsDefault
}

// RequirePeerCredentials returns ErrMissing when the peer cannot be called.
func (r Runtime) RequirePeerCredentials() error {
	var missing []string
	if r.PeerAPIKey == "" {
		missing = append(missing, KeyPeerAPIKey)
	}
	if r.PeerBaseURL == "" {
		missing = append(missing, KeyPeerBaseURL)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// parseFiles accepts a JSON array or a comma-separated list.
func parseFiles(v string) ([]string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "[") {
		var files []string
		if err := json.Unmarshal([]byte(v), &files); err != nil {
			return nil, err
		}
		return files, nil
	}
	var files []string
	for _, f := range strings.Split(v, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}
