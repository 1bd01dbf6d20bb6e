package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/transport"
)

func newNotifyTestCmd() *cobra.Command {
	var (
		platform string
		token    string
		contact  string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test notification to an admin contact",
		Long: `Connects with the given bot credential, sends the test notification to
the contact and disconnects. Running workers are not involved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotifyTest(cmd.Context(), cmd.OutOrStdout(), newAdapter, platform, token, contact, timeout)
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "telegram", "messaging platform: telegram, discord or slack")
	cmd.Flags().StringVar(&token, "token", "", "bot credential (required)")
	cmd.Flags().StringVar(&contact, "contact", "", "admin user or chat ID (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", notify.DefaultTimeout, "send timeout")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("contact")
	return cmd
}

func runNotifyTest(ctx context.Context, out io.Writer, factory transport.Factory, platform, token, contact string, timeout time.Duration) error {
	adapter, err := factory(platform, token)
	if err != nil {
		return fmt.Errorf("notify-test: %w", err)
	}
	defer adapter.Close()
	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("notify-test: connect: %w", err)
	}
	if err := notify.SendOnce(ctx, adapter, contact, notify.Test(), timeout); err != nil {
		return fmt.Errorf("notify-test: %w", err)
	}
	fmt.Fprintf(out, "Test notification sent to %s via %s\n", contact, platform)
	return nil
}
