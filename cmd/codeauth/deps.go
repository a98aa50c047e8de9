// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/config"
	"github.com/holomush/codeauth/internal/notify"
	"github.com/holomush/codeauth/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConnectDatabase opens the PostgreSQL pool.
	// Default: store.Connect with the connect retry settings
	ConnectDatabase func(ctx context.Context, cfg *config.Config) (Database, error)

	// ConnectRedis opens the Redis client.
	// Default: redis.NewClient, pinged with the connect retry settings
	ConnectRedis func(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error)

	// NewNotifier creates the verification code notifier.
	// Default: notify.NewSMTPNotifier or notify.NewLogNotifier per cfg.Notifier
	NewNotifier func(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error)
}

// Database wraps the methods used from *pgxpool.Pool.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.ConnectDatabase == nil {
		out.ConnectDatabase = func(ctx context.Context, cfg *config.Config) (Database, error) {
			pool, err := connectDatabase(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.ConnectRedis == nil {
		out.ConnectRedis = connectRedis
	}
	if out.NewNotifier == nil {
		out.NewNotifier = newNotifier
	}
	return &out
}

func connectDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return store.Connect(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		ConnectAttempts: cfg.Connect.MaxRetries,
		RetryBase:       cfg.Connect.InitialBackoff,
	})
}

func connectRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := store.WaitReady(ctx, cfg.Connect.MaxRetries, cfg.Connect.InitialBackoff, ping); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").
			With("addr", cfg.Redis.Addr).
			With("attempts", cfg.Connect.MaxRetries).
			Wrap(err)
	}
	return client, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.Notifier == config.NotifierLog {
		logger.Warn("verification codes are written to the log, not sent")
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	}, logger)
}
