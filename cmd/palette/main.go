package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"palette/internal/channel"
	"palette/internal/config"
	"palette/internal/domain"
	"palette/internal/knowledge"
	"palette/internal/metrics"
	"palette/internal/server"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "palette",
		Short: "Palette: question router for tools, images and puzzles",
		Long: "Palette classifies each question and routes it to image generation, the 24-point " +
			"puzzle solver, a tool-using agent or a plain chat model.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.palette/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(askCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(telegramCmd())
	root.AddCommand(kbCmd())
	root.AddCommand(configCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// setup loads the config, reconfigures the logger and opens the app.
func setup(ctx context.Context) (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	l, closeLog, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger = l

	a, err := newApp(ctx, cfg)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		closeLog()
	}, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			for _, dir := range []string{cfg.General.Workspace, cfg.Tools.AttachmentsDir} {
				if err := os.MkdirAll(config.ExpandPath(dir), 0o755); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "workspace", cfg.General.Workspace)
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var (
		sessionID string
		agentID   string
		sets      []string
		raw       bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Route a single question and print the response envelope",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseOverrides(sets)
			if err != nil {
				return err
			}
			if agentID != "" {
				overrides[config.KeyAgentID] = agentID
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			env, err := a.run(ctx, sessionID, strings.Join(args, " "), overrides)
			if err != nil {
				return err
			}
			if raw {
				fmt.Println(env.Content)
				return nil
			}
			data, _ := json.MarshalIndent(env, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: a new uuid)")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id: default_agent, default_agent_without_routing or Chatbot")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "runtime override as key=value (repeatable)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print only the response content")
	return cmd
}

func chatCmd() *cobra.Command {
	var (
		sessionID string
		agentID   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if sessionID == "" {
				sessionID = "cli:" + uuid.NewString()
			}
			overrides := map[string]string{}
			if agentID != "" {
				overrides[config.KeyAgentID] = agentID
			}

			cli := channel.NewCLI(channel.CLIConfig{
				SessionID: sessionID,
				Run: func(ctx context.Context, sessionID, question string) (domain.ResponseEnvelope, error) {
					return a.run(ctx, sessionID, question, overrides)
				},
				Clear:   a.store.DeleteSession,
				Logger:  logger,
				Spinner: true,
			})
			return cli.Start(ctx)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to resume")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id override")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (visit counter, /v1/run, /metrics)",
		Long:  "Serves the visit counter at /, routed runs at POST /v1/run and metrics at /metrics. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			sc := a.cfg.Server
			srvCfg := server.Config{
				Host:    sc.Host,
				Port:    sc.Port,
				APIKey:  sc.APIKey,
				Version: sc.Version,
				Counter: a.store,
				Run: func(ctx context.Context, req server.RunRequest) (domain.ResponseEnvelope, error) {
					overrides := make(map[string]string, len(req.Overrides)+1)
					for k, v := range req.Overrides {
						overrides[k] = v
					}
					if req.AgentID != "" {
						overrides[config.KeyAgentID] = req.AgentID
					}
					return a.run(ctx, req.SessionID, req.Question, overrides)
				},
				Logger: logger,
			}
			if a.cfg.Metrics.Enabled {
				srvCfg.Metrics = metrics.Default.Handler()
			}
			return server.New(srvCfg).Start(ctx)
		},
	}
}

func telegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			tc := a.cfg.Telegram
			if tc.Token == "" {
				return fmt.Errorf("telegram.token: %w", config.ErrMissing)
			}
			tg := channel.NewTelegram(channel.TelegramConfig{
				Token:     tc.Token,
				AllowFrom: tc.AllowFrom,
				ParseMode: tc.ParseMode,
				Run: func(ctx context.Context, sessionID, question string) (domain.ResponseEnvelope, error) {
					return a.run(ctx, sessionID, question, nil)
				},
				Clear:  a.store.DeleteSession,
				Logger: logger,
			})
			logger.Info("telegram bot starting. Press Ctrl+C to stop.")
			return tg.Start(ctx)
		},
	}
}

func kbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge-base indexes",
	}

	var embedding string
	cmd.PersistentFlags().StringVar(&embedding, "embedding", "", "embedding model name used in the index id (default: palette.embeddingModel)")

	indexFor := func(a *app, kb string) string {
		model := embedding
		if model == "" {
			model = a.cfg.Palette.EmbeddingModel
		}
		return knowledge.IndexName(kb, model)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [base] [file...]",
		Short: "Add documents to a knowledge base (e.g. kb add cei handbook.md)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			indexID := indexFor(a, args[0])
			for _, path := range args[1:] {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				mimeType := mime.TypeByExtension(filepath.Ext(path))
				if mimeType == "" {
					mimeType = "text/plain"
				}
				doc, err := a.engine.AddDocument(ctx, indexID, filepath.Base(path), mimeType, string(data))
				if err != nil {
					return fmt.Errorf("index %s: %w", path, err)
				}
				logger.Info("document indexed", "index", indexID, "name", doc.Name, "chunks", doc.ChunkCount)
			}
			return nil
		},
	})

	var k int
	search := &cobra.Command{
		Use:   "search [base] [query]",
		Short: "Search a knowledge base",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if k <= 0 {
				k = a.cfg.Palette.K
			}
			docs, err := a.engine.Search(ctx, indexFor(a, args[0]), strings.Join(args[1:], " "), k)
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(docs, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	search.Flags().IntVarP(&k, "k", "k", 0, "number of passages (default: palette.k)")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "list [base]",
		Short: "List the documents in a knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			docs, err := a.engine.ListDocuments(ctx, indexFor(a, args[0]))
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(docs, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, cleanup, err := setup(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Info("config", "path", resolveConfigPath(), "agent", a.cfg.Palette.AgentID, "model", a.cfg.Palette.Text2TextModel)
			if prov := a.providers.HealthyProvider(ctx); prov != nil {
				logger.Info("provider", "name", prov.Name(), "healthy", true)
			} else {
				logger.Info("provider", "healthy", false)
			}
			logger.Info("memory", "backend", a.cfg.Memory.Backend)
			for _, kb := range a.cfg.Knowledge.Bases {
				indexID := knowledge.IndexName(kb, a.cfg.Palette.EmbeddingModel)
				docs, err := a.engine.ListDocuments(ctx, indexID)
				if err != nil {
					logger.Warn("knowledge base", "name", kb, "err", err)
					continue
				}
				logger.Info("knowledge base", "name", kb, "index", indexID, "documents", len(docs))
			}
			logger.Info("routes", "image", a.deps.Images != nil, "arithmetic", a.deps.Peer != nil)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. palette.temperature)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. palette.chatHistoryWindow 5)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every config path with its value, secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			safe := config.Sanitize(cfg)
			for _, path := range config.Paths(safe) {
				val, _ := config.GetByPath(safe, path)
				data, _ := json.Marshal(val)
				fmt.Printf("%s = %s\n", path, data)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
