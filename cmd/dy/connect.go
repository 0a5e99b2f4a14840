package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/config"
	"github.com/zulandar/dealyard/internal/db"
	"github.com/zulandar/dealyard/internal/identity"
	"github.com/zulandar/dealyard/internal/logging"
	"github.com/zulandar/dealyard/internal/notify"
	"github.com/zulandar/dealyard/internal/notify/discord"
	"github.com/zulandar/dealyard/internal/notify/slack"
	"github.com/zulandar/dealyard/internal/storage"
	"gorm.io/gorm"
)

// loadConfig reads the file named by --config and configures logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func connectFromConfig(cmd *cobra.Command) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// actorContext returns the command context carrying the --as user.
func actorContext(cmd *cobra.Command) context.Context {
	as, _ := cmd.Flags().GetString("as")
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return identity.WithUser(ctx, as)
}

// buildNotifier assembles the sinks enabled in cfg. Events are always logged.
func buildNotifier(cfg *config.Config, gormDB *gorm.DB) (*notify.Hub, error) {
	hub := notify.NewHub(notify.LogSink{})
	if cfg.Notify.OutboxEnabled() {
		hub.Add(notify.OutboxSink{DB: gormDB})
	}
	if cfg.Notify.Command != "" {
		hub.Add(notify.CommandSink{Command: cfg.Notify.Command})
	}
	if cfg.Notify.Slack.Enabled() {
		s, err := slack.New(slack.SinkOpts{BotToken: cfg.Notify.Slack.BotToken, ChannelID: cfg.Notify.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		hub.Add(s)
	}
	if cfg.Notify.Discord.Enabled() {
		s, err := discord.New(discord.SinkOpts{BotToken: cfg.Notify.Discord.BotToken, ChannelID: cfg.Notify.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		hub.Add(s)
	}
	return hub, nil
}

// buildVerifier returns the object store checker, or nil when storage is
// not configured.
func buildVerifier(cfg *config.Config) (storage.Verifier, error) {
	if !cfg.Storage.Enabled() {
		return nil, nil
	}
	s, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type env struct {
	cfg      *config.Config
	db       *gorm.DB
	notifier *notify.Hub
	verifier storage.Verifier
}

// setup loads config, connects, and wires the notifier and verifier that
// mutating commands share.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, gormDB, err := connectFromConfig(cmd)
	if err != nil {
		return nil, err
	}
	hub, err := buildNotifier(cfg, gormDB)
	if err != nil {
		return nil, err
	}
	v, err := buildVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: gormDB, notifier: hub, verifier: v}, nil
}
