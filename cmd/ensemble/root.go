package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ensemble "github.com/ensemble-dev/ensemble"
	"github.com/ensemble-dev/ensemble/internal/config"
	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/adapters/file"
	"github.com/ensemble-dev/ensemble/pkg/adapters/memory"
	"github.com/ensemble-dev/ensemble/pkg/adapters/redis"
	"github.com/ensemble-dev/ensemble/pkg/adapters/sqlite"
	"github.com/ensemble-dev/ensemble/pkg/adapters/ws"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Ensemble coordinates command sequences across connected devices",
	Long: `Ensemble connects to peripheral devices over a fragment-limited
transport, discovers their capabilities, and runs user-authored multi-step
actions against all of them at once.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// loadConfig resolves the effective configuration from the file flag plus
// any command-line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using info\n", err)
	}
	return logging.New(level)
}

// openStore builds the configured action store. The returned closer is a
// no-op for backends without a handle to release.
func openStore(ctx context.Context, cfg config.Config) (ports.ActionStore, func() error, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "file":
		return file.New(cfg.Store.Path), func() error { return nil }, nil
	case "redis":
		opts := []redis.Option{}
		if cfg.Store.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Store.Redis.Prefix))
		}
		store := redis.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, opts...)
		return store, store.Close, nil
	case "memory":
		return memory.NewStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newOrchestrator assembles the composition root from configuration.
func newOrchestrator(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...ensemble.Option) (*ensemble.Orchestrator, func() error, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	base := []ensemble.Option{ensemble.WithLogger(logger)}
	if cfg.FrameLimit > 0 {
		base = append(base, ensemble.WithFrameLimit(cfg.FrameLimit))
	}
	if cfg.IdleTTL > 0 {
		base = append(base, ensemble.WithIdleTTL(cfg.IdleTTL))
	}
	base = append(base, opts...)

	orc := ensemble.New(store, ws.NewDialer(cfg.Devices), base...)
	cleanup := func() error {
		orc.Close()
		return closeStore()
	}
	return orc, cleanup, nil
}
