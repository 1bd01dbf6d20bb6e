package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/db"
	"github.com/zulandar/parlor/internal/store"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	var (
		configPath string
		tenants    []string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Applies the schema for tenants, services, clients, schedules and
appointments. With --tenant, also creates each named tenant with a
closed seven-day schedule. Safe to run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), cfg.Log.Level)
			gormDB, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), gormDB, cfg.Bot.Platform, tenants)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parlor.yaml", "path to Parlor config file")
	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant ID to create (repeatable)")
	return cmd
}

func runMigrate(ctx context.Context, out io.Writer, gormDB *gorm.DB, platform string, tenants []string) error {
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	st := store.New(gormDB)
	for _, id := range tenants {
		t, err := st.EnsureTenant(ctx, id, platform)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Tenant %s ready (platform %s)\n", t.ID, t.Platform)
	}
	return nil
}
