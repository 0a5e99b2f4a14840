package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/reminder"
)

func newRemindCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send reminders for steps waiting on a decision",
		Long:  "Runs one reminder scan, or with --daemon keeps running on reminders.schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			staleAfter := time.Duration(e.cfg.Reminders.StaleAfterHours) * time.Hour
			if daemon {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				fmt.Fprintf(cmd.OutOrStdout(), "Reminders scheduled (%s)\n", e.cfg.Reminders.Schedule)
				return reminder.Run(ctx, e.db, e.notifier, e.cfg.Reminders.Schedule, staleAfter)
			}
			n, err := reminder.Remind(cmd.Context(), e.db, e.notifier, staleAfter, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d reminder(s)\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "keep running on the configured schedule")
	return cmd
}
