package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrMissing marks a required setting that is absent. Runs that need it fail
// without producing an envelope.
var ErrMissing = errors.New("missing configuration")

// Config is the root configuration for Palette.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Providers map[string]ProviderConfig `json:"providers"`
	Palette   PaletteConfig             `json:"palette"`
	Peer      PeerConfig                `json:"peer"`
	Memory    MemoryConfig              `json:"memory"`
	Knowledge KnowledgeConfig           `json:"knowledge"`
	Tools     ToolsConfig               `json:"tools"`
	Images    ImageConfig               `json:"images"`
	Server    ServerConfig              `json:"server"`
	Telegram  TelegramConfig            `json:"telegram"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	Workspace       string   `json:"workspace"`
	LogLevel        string   `json:"logLevel"`
	LogFile         string   `json:"logFile,omitempty"`
	DefaultProvider string   `json:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty"` // provider failover order
	RateLimitPerMin float64  `json:"rateLimitPerMinute"`
	RateBurst       int      `json:"rateBurst"`
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled"`
	Mode         string `json:"mode"` // "api" | "managed"
	APIBase      string `json:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty"`
	Region       string `json:"region,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty"`
}

// PaletteConfig holds the routing defaults that a run may override.
type PaletteConfig struct {
	AgentID           string            `json:"agentId"`
	Text2TextModel    string            `json:"text2textModel"`
	HighCapacityModel string            `json:"highCapacityModel"`
	ModelProviders    map[string]string `json:"modelProviders"` // text2text model name -> provider key
	Temperature       float64           `json:"temperature"`
	ChatHistoryWindow int               `json:"chatHistoryWindow"`
	IsAdmin           string            `json:"isAdmin"`
	K                 int               `json:"k"`
	EmbeddingModel    string            `json:"embeddingModel"`
	ClassifierTimeout int               `json:"classifierTimeoutSeconds"`
	AgentTimeout      int               `json:"agentTimeoutSeconds"`
	StepsHighCapacity int               `json:"maxStepsHighCapacity"`
	StepsDefault      int               `json:"maxStepsDefault"`
}

type PeerConfig struct {
	Transport    string `json:"transport"` // "lambda" | "http"
	FunctionName string `json:"functionName"`
	Region       string `json:"region,omitempty"`
	URL          string `json:"url,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	BaseURL      string `json:"baseUrl,omitempty"`
	Timeout      int    `json:"timeoutSeconds"`
}

type MemoryConfig struct {
	Backend              string `json:"backend"` // "sqlite" | "redis"
	DBPath               string `json:"dbPath"`
	RedisAddr            string `json:"redisAddr,omitempty"`
	RedisPassword        string `json:"redisPassword,omitempty"`
	RedisDB              int    `json:"redisDb,omitempty"`
	MaxHistoryPerSession int    `json:"maxHistoryPerSession"`
}

// KnowledgeConfig configures the local retrieval indices.
type KnowledgeConfig struct {
	DBPath       string   `json:"dbPath"`
	Bases        []string `json:"bases"`
	ChunkSize    int      `json:"chunkSize"`    // tokens per chunk
	ChunkOverlap int      `json:"chunkOverlap"` // overlapping tokens
}

type ToolsConfig struct {
	AttachmentsDir    string `json:"attachmentsDir"`
	YouTubeMaxResults int    `json:"youtubeMaxResults"`
	ArxivMaxResults   int    `json:"arxivMaxResults"`
	ArxivAPIBase      string `json:"arxivApiBase,omitempty"`
	AWSRegion         string `json:"awsRegion,omitempty"`
	HTTPTimeout       int    `json:"httpTimeoutSeconds"`
}

type ImageConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model"`
	Size    string `json:"size"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	APIKey  string `json:"apiKey,omitempty"`
	Version string `json:"version"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.palette).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".palette"
	}
	return filepath.Join(home, ".palette")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON, YAML or TOML config file, chosen by extension.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	data, err = toJSON(path, data)
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.Knowledge.DBPath = ExpandPath(cfg.Knowledge.DBPath)
	cfg.Tools.AttachmentsDir = ExpandPath(cfg.Tools.AttachmentsDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// toJSON converts YAML and TOML documents into JSON so that a single set of
// struct tags drives decoding.
func toJSON(path string, data []byte) ([]byte, error) {
	var generic map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	if generic == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(generic)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg in the format implied by the file extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" || ext == ".toml" {
		var generic map[string]any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if ext == ".toml" {
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(generic); err != nil {
				return fmt.Errorf("cannot marshal config: %w", err)
			}
			data = buf.Bytes()
		} else if data, err = yaml.Marshal(generic); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.RateLimitPerMin <= 0 {
		errs = append(errs, "general.rateLimitPerMinute must be > 0")
	}
	if cfg.Palette.Temperature < 0 || cfg.Palette.Temperature > 2 {
		errs = append(errs, "palette.temperature must be between 0 and 2")
	}
	if cfg.Palette.ChatHistoryWindow < 0 {
		errs = append(errs, "palette.chatHistoryWindow must be >= 0")
	}
	if cfg.Palette.K < 1 {
		errs = append(errs, "palette.k must be >= 1")
	}
	if cfg.Palette.StepsDefault < 1 || cfg.Palette.StepsHighCapacity < 1 {
		errs = append(errs, "palette.maxStepsDefault and palette.maxStepsHighCapacity must be >= 1")
	}
	if cfg.Palette.ClassifierTimeout < 1 || cfg.Palette.AgentTimeout < 1 {
		errs = append(errs, "palette timeouts must be >= 1 second")
	}

	switch cfg.Peer.Transport {
	case "lambda":
		if cfg.Peer.FunctionName == "" {
			errs = append(errs, "peer.functionName is required for the lambda transport")
		}
	case "http":
		if cfg.Peer.URL == "" {
			errs = append(errs, "peer.url is required for the http transport")
		}
	default:
		errs = append(errs, "peer.transport must be one of: lambda, http")
	}

	switch cfg.Memory.Backend {
	case "sqlite":
	case "redis":
		if cfg.Memory.RedisAddr == "" {
			errs = append(errs, "memory.redisAddr is required for the redis backend")
		}
	default:
		errs = append(errs, "memory.backend must be one of: sqlite, redis")
	}
	if cfg.Memory.MaxHistoryPerSession < 1 {
		errs = append(errs, "memory.maxHistoryPerSession must be >= 1")
	}
	if cfg.Knowledge.ChunkSize < 1 || cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "knowledge.chunkOverlap must be in [0, chunkSize)")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}
	for model, provName := range cfg.Palette.ModelProviders {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("palette.modelProviders.%s references unknown provider: %s", model, provName))
		}
	}

	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch pc.Mode {
		case "api":
			if pc.APIBase == "" && name != "claude" {
				errs = append(errs, fmt.Sprintf("providers.%s: apiBase is required for API mode", name))
			}
		case "managed":
			if pc.Region == "" {
				errs = append(errs, fmt.Sprintf("providers.%s: region is required for managed mode", name))
			}
		default:
			errs = append(errs, fmt.Sprintf("providers.%s: mode must be one of: api, managed", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
