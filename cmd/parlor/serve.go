package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zulandar/parlor/internal/admin"
	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/db"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/registry"
	"github.com/zulandar/parlor/internal/store"
	"github.com/zulandar/parlor/internal/transport"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run every enabled tenant bot and the admin API",
		Long: `Connects to the database, applies migrations, starts a bot worker for each
tenant with notifications enabled and a token configured, and serves the
administration API. SIGINT or SIGTERM stops all workers and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), cfg.Log.Level)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newAdapter)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parlor.yaml", "path to Parlor config file")
	return cmd
}

// runServe blocks until ctx is cancelled or the admin API fails, then stops
// every worker.
func runServe(ctx context.Context, cfg *config.Config, factory transport.Factory) error {
	log.Info().Str("config", cfg.String()).Str("version", Version).Msg("parlor starting")

	gormDB, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	metrics.Init()

	st := store.New(gormDB)
	reg, err := registry.New(registry.Opts{
		Store:     st,
		Factory:   factory,
		Bot:       cfg.Bot,
		Reminders: cfg.Reminders,
	})
	if err != nil {
		return err
	}

	n, err := reg.StartEnabled(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("some tenant bots failed to launch")
	}
	log.Info().Int("tenants", n).Msg("tenant bots launched")

	serveErr := admin.Serve(ctx, cfg.HTTP.Addr, admin.Opts{
		Store:           st,
		Bots:            reg,
		JWTSecret:       cfg.HTTP.JWTSecret,
		DefaultPlatform: cfg.Bot.Platform,
		SlotStep:        cfg.Bot.SlotStepMinutes,
	})

	log.Info().Msg("stopping tenant bots")
	results := reg.StopAll(context.WithoutCancel(ctx))
	abandoned := 0
	for id, res := range results {
		if res == registry.Abandoned {
			abandoned++
			log.Warn().Str("tenant", id).Msg("bot did not stop in time")
		}
	}
	log.Info().Int("stopped", len(results)-abandoned).Int("abandoned", abandoned).Msg("parlor stopped")

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
