// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/auth/postgres"
	"github.com/holomush/codeauth/internal/store"
)

// NewSessionsCmd creates the sessions subcommand.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain server-side sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete sessions whose refresh token has expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := store.Connect(ctx, cfg.Database.URL, store.PoolOptions{
				ConnectAttempts: cfg.Connect.MaxRetries,
				RetryBase:       cfg.Connect.InitialBackoff,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := pruneSessions(ctx, postgres.NewSessionRepository(pool), time.Now())
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d expired session(s)\n", n)
			return nil
		},
	})

	return cmd
}

func pruneSessions(ctx context.Context, repo auth.SessionRepository, now time.Time) (int64, error) {
	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}
