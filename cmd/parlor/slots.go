package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/db"
	"github.com/zulandar/parlor/internal/schedule"
	"github.com/zulandar/parlor/internal/store"
)

func newSlotsCmd() *cobra.Command {
	var (
		configPath string
		tenantID   string
		date       string
		serviceID  uint
	)

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the open booking slots for a service on a day",
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
			return runSlots(cmd.Context(), cmd.OutOrStdout(), store.New(gormDB),
				tenantID, date, serviceID, cfg.Bot.SlotStepMinutes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parlor.yaml", "path to Parlor config file")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID (required)")
	cmd.Flags().StringVar(&date, "date", "", "day to check, YYYY-MM-DD (required)")
	cmd.Flags().UintVar(&serviceID, "service", 0, "service ID (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("service")
	return cmd
}

func runSlots(ctx context.Context, out io.Writer, st *store.Store, tenantID, date string, serviceID uint, step int) error {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return err
	}
	av, err := st.Availability(ctx, tenantID, day, serviceID, step)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  %s (%d min)\n", av.Date, av.Service.Name, av.Service.Duration)
	switch {
	case !av.Working:
		fmt.Fprintln(out, "  day off")
	case len(av.Slots) == 0:
		fmt.Fprintln(out, "  fully booked")
	default:
		for _, s := range av.Slots {
			fmt.Fprintf(out, "  %s\n", s)
		}
	}
	return nil
}
