// Package main is the entry point for the loom CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/loom/internal/config"
	ctxengine "github.com/flemzord/loom/internal/context"
	"github.com/flemzord/loom/internal/gateway"
	"github.com/flemzord/loom/internal/graph"
	"github.com/flemzord/loom/internal/janitor"
	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/internal/token"
	sqlitestore "github.com/flemzord/loom/modules/store/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loom",
		Short:         "A self-hosted conversation archive with linked threads and budgeted context assembly",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), serveCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("loom %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the archive gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))

			return serve(cfg, logger)
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	var (
		conversations store.ConversationStore
		links         store.LinkStore
		configs       store.ContextConfigStore
		atomic        graph.AtomicPairWriter
		closeStores   func() error
	)

	switch cfg.Store.Backend {
	case config.BackendMemory:
		conversations = store.NewInMemoryConversationStore()
		links = store.NewInMemoryLinkStore()
		configs = store.NewInMemoryContextConfigStore()
		closeStores = func() error { return nil }
		logger.Info("using in-memory store (data is not persisted)")
	case config.BackendSQLite:
		stores, err := sqlitestore.Open(cfg.Store.SQLite, logger)
		if err != nil {
			return err
		}
		conversations = stores.Conversations()
		links = stores.Links()
		configs = stores.Configs()
		atomic = stores
		closeStores = stores.Close
		logger.Info("using sqlite store", "path", cfg.Store.SQLite.Path)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	defer func() {
		if err := closeStores(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	graphSvc := graph.NewService(conversations, links, logger)
	if atomic != nil {
		graphSvc.SetAtomicWriter(atomic)
	}

	assembler := ctxengine.NewAssembler(graphSvc, conversations, configs, token.NewHeuristicEstimator(), logger)

	gw := gateway.New(cfg.Gateway, gateway.Deps{
		Graph:         graphSvc,
		Assembler:     assembler,
		Conversations: conversations,
		Configs:       configs,
	}, logger)
	if err := gw.Validate(); err != nil {
		return err
	}
	if err := gw.Start(); err != nil {
		return err
	}

	jan := janitor.New(cfg.Janitor, conversations, links, configs, logger)
	if err := jan.Start(); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = gw.Stop(stopCtx)
		return err
	}

	logger.Info("loom started", "version", version, "bind", cfg.Gateway.Bind)

	// Block until SIGINT or SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := jan.Stop(stopCtx); err != nil {
		logger.Error("stopping janitor", "error", err)
	}
	if err := gw.Stop(stopCtx); err != nil {
		logger.Error("stopping gateway", "error", err)
	}
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (store: %s, bind: %s)\n", cfg.Store.Backend, cfg.Gateway.Bind)
			return nil
		},
	})
	return cmd
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/loom/loom.yaml → ./loom.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "loom", "loom.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "loom", "loom.yaml"))
	}

	candidates = append(candidates, "loom.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
