package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sehetyar/sync-agent/internal/agent"
	"github.com/sehetyar/sync-agent/internal/collections"
	"github.com/sehetyar/sync-agent/internal/config"
	"github.com/sehetyar/sync-agent/internal/platform/api"
	"github.com/sehetyar/sync-agent/internal/platform/cachewarm"
	"github.com/sehetyar/sync-agent/internal/platform/localstore"
	"github.com/sehetyar/sync-agent/internal/sync"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sync-agent",
		Short: "Offline-first sync agent for the Sehetyar dashboard",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(warmCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the local sync agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	srv, err := agent.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build agent")
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("agent error")
		}
		return nil
	case <-quit:
	}

	logger.Info().Msg("shutting down agent")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("agent shutdown failed")
	}
	logger.Info().Msg("agent stopped")
	return nil
}

// openStore opens the local database the same way the server does.
func openStore(cfg *config.Config, logger zerolog.Logger) (*localstore.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return localstore.Open(filepath.Join(cfg.DataDir, "sehetyar.db"), collections.All(), logger)
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			client := api.New(cfg.APIBaseURL, cfg.AuthToken, cfg.HTTPTimeout(), logger)
			engine, err := sync.NewEngine(store, client, cfg.PollInterval(), logger)
			if err != nil {
				return err
			}

			report, err := engine.Reconciler.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("replayed %d, failed %d, remaining %d\n",
				report.Replayed, report.Failed, report.Remaining)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			client := api.New(cfg.APIBaseURL, cfg.AuthToken, cfg.HTTPTimeout(), logger)
			engine, err := sync.NewEngine(store, client, cfg.PollInterval(), logger)
			if err != nil {
				return err
			}

			online := engine.Monitor.Probe(cmd.Context())
			counts, err := engine.Queue.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]interface{}{
				"online":      online,
				"collections": counts,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func warmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Run one cache warming pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			routeStore, err := cachewarm.NewStore(store.DB())
			if err != nil {
				return err
			}
			client := api.New(cfg.APIBaseURL, cfg.AuthToken, cfg.HTTPTimeout(), logger)
			warmer := cachewarm.NewWarmer(routeStore, client, cfg.WarmRouteList(), cfg.WarmDelay(), logger)

			rep := warmer.Warm(cmd.Context(), nil)
			fmt.Printf("purged %d, warmed %d, failed %d\n", rep.Purged, rep.Warmed, len(rep.Failed))
			return nil
		},
	}
}
