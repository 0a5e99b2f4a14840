package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dealyard/internal/identity"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token for the --as user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireServing(); err != nil {
				return err
			}
			as, _ := cmd.Flags().GetString("as")
			ttl := time.Duration(cfg.Auth.TokenExpireHours) * time.Hour
			token, expiresAt, err := identity.IssueToken(as, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "Expires: %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
}
