package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/api"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/reminder"
)

func newServeCmd() *cobra.Command {
	var (
		port      int
		reminders bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serves the JSON API and, unless disabled, the stale-step reminder schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port, reminders)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&reminders, "reminders", true, "run the reminder schedule alongside the API")
	return cmd
}

func runServe(cmd *cobra.Command, port int, reminders bool) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if err := e.cfg.RequireServing(); err != nil {
		return err
	}
	if port == 0 {
		port = e.cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if reminders {
		staleAfter := time.Duration(e.cfg.Reminders.StaleAfterHours) * time.Hour
		go func() {
			if err := reminder.Run(ctx, e.db, e.notifier, e.cfg.Reminders.Schedule, staleAfter); err != nil {
				logging.FromContext(ctx).Error("reminder scheduler", "error", err)
			}
		}()
	}

	return api.Start(ctx, api.StartOpts{
		DB:       e.db,
		Port:     port,
		Secret:   e.cfg.Auth.JWTSecret,
		Notifier: e.notifier,
		Verifier: e.verifier,
		Out:      cmd.OutOrStdout(),
	})
}
