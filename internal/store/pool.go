// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store connects to PostgreSQL and manages the schema.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default startup retry policy.
const (
	DefaultConnectAttempts  = 5
	DefaultConnectRetryBase = 500 * time.Millisecond
)

// PoolOptions tunes the connection pool and the startup ping.
type PoolOptions struct {
	MaxConns int32

	// ConnectAttempts bounds the pings made before giving up. Zero uses
	// DefaultConnectAttempts.
	ConnectAttempts uint64

	// RetryBase is the first backoff interval, doubled on each attempt.
	RetryBase time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.ConnectAttempts == 0 {
		o.ConnectAttempts = DefaultConnectAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultConnectRetryBase
	}
	return o
}

// Connect opens a pool for databaseURL and waits until the server answers.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := WaitReady(ctx, opts.ConnectAttempts, opts.RetryBase, pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", opts.ConnectAttempts).
			Wrap(err)
	}
	return pool, nil
}

// WaitReady calls ping with exponential backoff until it succeeds, attempts
// are used up, or ctx ends. The last ping error is returned.
func WaitReady(ctx context.Context, attempts uint64, base time.Duration, ping func(context.Context) error) error {
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(base))

	//nolint:wrapcheck // callers attach their own code
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
