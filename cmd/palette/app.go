package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"palette/internal/agent"
	"palette/internal/awsclient"
	"palette/internal/config"
	"palette/internal/domain"
	"palette/internal/knowledge"
	"palette/internal/memory"
	"palette/internal/metrics"
	"palette/internal/palette"
	"palette/internal/peer"
	"palette/internal/provider"
	"palette/internal/tool"
)

// conversationStore is what both memory backends provide.
type conversationStore interface {
	domain.ConversationStore
	domain.Counter
}

// app holds the long-lived collaborators built from one config file.
type app struct {
	cfg       *config.Config
	store     conversationStore
	knowledge *knowledge.Store
	engine    *knowledge.Engine
	providers *provider.Factory
	deps      palette.Deps
	logger    *slog.Logger
}

// newLogger builds the process logger at the configured level, writing to
// general.logFile when one is set.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist yet.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(config.ExpandPath(cfgPath)); os.IsNotExist(statErr) {
		logger.Warn("config not found, using defaults", "path", cfgPath)
		cfg = config.Defaults()
		cfg.Memory.DBPath = config.ExpandPath(cfg.Memory.DBPath)
		cfg.Knowledge.DBPath = config.ExpandPath(cfg.Knowledge.DBPath)
		cfg.Tools.AttachmentsDir = config.ExpandPath(cfg.Tools.AttachmentsDir)
		cfg.General.Workspace = config.ExpandPath(cfg.General.Workspace)
		return cfg, nil
	}
	return nil, fmt.Errorf("load config: %w", err)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (conversationStore, error) {
	switch cfg.Memory.Backend {
	case "", "sqlite":
		return memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
	case "redis":
		return memory.NewRedisStore(ctx, memory.RedisConfig{
			Addr:     cfg.Memory.RedisAddr,
			Password: cfg.Memory.RedisPassword,
			DB:       cfg.Memory.RedisDB,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

// newApp opens the stores and builds the routing dependencies.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	kb, err := knowledge.NewStore(cfg.Knowledge.DBPath, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("knowledge store: %w", err)
	}
	engine := knowledge.NewEngine(knowledge.EngineConfig{
		Store:     kb,
		ChunkSize: cfg.Knowledge.ChunkSize,
		Overlap:   cfg.Knowledge.ChunkOverlap,
		Logger:    logger,
	})

	attachments, err := tool.NewAttachments(tool.AttachmentsConfig{Dir: cfg.Tools.AttachmentsDir, Logger: logger})
	if err != nil {
		logger.Warn("attachments unavailable, document reader disabled", "err", err)
	}

	invoker, err := peer.New(ctx, cfg.Peer, logger)
	if err != nil {
		logger.Warn("peer function unavailable, arithmetic route disabled", "err", err)
	}

	var ec2Tools *tool.EC2
	awsCfg, err := awsclient.Load(ctx, cfg.Tools.AWSRegion)
	if err != nil {
		logger.Warn("aws config unavailable, EC2 tools disabled", "err", err)
	} else {
		ec2Tools = tool.NewEC2(ec2.NewFromConfig(awsCfg))
	}

	factory := provider.NewFactory(cfg, logger)

	return &app{
		cfg:       cfg,
		store:     store,
		knowledge: kb,
		engine:    engine,
		providers: factory,
		deps: palette.Deps{
			Providers:   factory,
			Images:      factory.ImageGenerator(),
			Peer:        invoker,
			Store:       store,
			Retriever:   engine,
			Attachments: attachments,
			EC2:         ec2Tools,
			HTTPClient:  &http.Client{Timeout: time.Duration(cfg.Tools.HTTPTimeout) * time.Second},
			Tools:       cfg.Tools,
			RateLimiter: agent.NewRateLimiter(cfg.General.RateBurst, cfg.General.RateLimitPerMin),
			Metrics:     metrics.Default,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

func (a *app) Close() {
	if err := a.knowledge.Close(); err != nil {
		a.logger.Warn("close knowledge store", "err", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close memory store", "err", err)
	}
}

// runtimeLookup layers per-run overrides over the process environment.
func runtimeLookup(overrides map[string]string) config.LookupFunc {
	return config.ChainLookup(config.MapLookup(overrides), os.LookupEnv)
}

// run routes one question with the given overrides.
func (a *app) run(ctx context.Context, sessionID, question string, overrides map[string]string) (domain.ResponseEnvelope, error) {
	rt, err := config.NewRuntime(a.cfg, sessionID, runtimeLookup(overrides))
	if err != nil {
		return domain.ResponseEnvelope{}, err
	}
	return palette.Run(ctx, a.deps, rt, question)
}

// parseOverrides turns key=value pairs into a runtime override map.
func parseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
