package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"palette/internal/awsclient"
	"palette/internal/config"
	"palette/internal/memory"
	"palette/internal/provider"
)

type checkStatus int

const (
	checkPass checkStatus = iota
	checkWarn
	checkFail
)

// doctorReport tallies check results and prints them as they arrive.
type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) add(status checkStatus, check, detail string) {
	tag := "PASS"
	switch status {
	case checkPass:
		r.passed++
	case checkWarn:
		tag = "WARN"
		r.warned++
	case checkFail:
		tag = "FAIL"
		r.failed++
	}
	fmt.Printf("  [%s] %-22s %s\n", tag, check, detail)
}

func (r *doctorReport) check(check, detail string, err error, failStatus checkStatus) {
	if err != nil {
		r.add(failStatus, check, err.Error())
		return
	}
	r.add(checkPass, check, detail)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Palette installation",
		Long: `Verifies that the configuration, databases, model providers and peer
credentials are set up. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Palette Doctor v%s\n\n", version)

			r := &doctorReport{}
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				r.add(checkFail, "Config file", "not found at "+cfgPath)
				fmt.Printf("\nRun 'palette init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			r.add(checkPass, "Config file", cfgPath)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				r.add(checkFail, "Config validation", err.Error())
				return fmt.Errorf("config invalid")
			}
			r.add(checkPass, "Config validation", "valid")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			switch cfg.Memory.Backend {
			case "redis":
				store, err := memory.NewRedisStore(ctx, memory.RedisConfig{
					Addr:     cfg.Memory.RedisAddr,
					Password: cfg.Memory.RedisPassword,
					DB:       cfg.Memory.RedisDB,
					Logger:   logger,
				})
				if err == nil {
					store.Close()
				}
				r.check("Memory (redis)", cfg.Memory.RedisAddr, err, checkFail)
			default:
				r.check("Memory (sqlite)", cfg.Memory.DBPath, checkDatabase(ctx, cfg.Memory.DBPath), checkFail)
			}
			r.check("Knowledge index", cfg.Knowledge.DBPath, checkDatabase(ctx, cfg.Knowledge.DBPath), checkFail)
			r.check("Attachments", cfg.Tools.AttachmentsDir, os.MkdirAll(cfg.Tools.AttachmentsDir, 0o755), checkWarn)

			factory := provider.NewFactory(cfg, logger)
			for _, model := range []string{cfg.Palette.Text2TextModel, cfg.Palette.HighCapacityModel} {
				if model == "" {
					continue
				}
				p, err := factory.ForModel(model)
				detail := ""
				if err == nil {
					detail = "provider " + p.Name()
				}
				r.check("Model: "+model, detail, err, checkFail)
			}

			if cfg.Peer.APIKey == "" && os.Getenv(config.KeyPeerAPIKey) == "" {
				r.add(checkWarn, "Peer credentials", config.KeyPeerAPIKey+" not set, arithmetic puzzles will fail")
			} else {
				r.add(checkPass, "Peer credentials", "set")
			}
			if cfg.Peer.Transport == "" || cfg.Peer.Transport == "lambda" || cfg.Providers["bedrock"].Enabled {
				awsCfg, err := awsclient.Load(ctx, cfg.Tools.AWSRegion)
				if err == nil {
					err = awsclient.CheckCredentials(ctx, awsCfg)
				}
				r.check("AWS credentials", "region "+awsCfg.Region, err, checkWarn)
			}

			if cfg.Images.Enabled {
				r.add(checkPass, "Image generation", cfg.Images.Model)
			} else {
				r.add(checkWarn, "Image generation", "disabled, image requests will fail")
			}

			if cfg.Server.Enabled {
				err := checkPort(cfg.Server.Host, cfg.Server.Port)
				r.check("Server port", fmt.Sprintf("%s:%d available", cfg.Server.Host, cfg.Server.Port), err, checkWarn)
			}
			if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
				r.add(checkFail, "Telegram", "enabled but no token configured")
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
}

// checkDatabase opens the SQLite file and performs a throwaway write.
func checkDatabase(ctx context.Context, dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}
	db, err := memory.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_check (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_check")
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("port %d may be in use: %w", port, err)
	}
	return ln.Close()
}
