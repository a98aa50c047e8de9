// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/auth/postgres"
	"github.com/holomush/codeauth/internal/auth/redisstore"
	"github.com/holomush/codeauth/internal/config"
	"github.com/holomush/codeauth/internal/control"
	"github.com/holomush/codeauth/internal/httpapi"
	"github.com/holomush/codeauth/internal/observability"
	"github.com/holomush/codeauth/internal/token"
	"github.com/holomush/codeauth/pkg/errutil"
)

// shutdownTimeout bounds the graceful stop of every server.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authentication API",
		Long: `Run the HTTP authentication API together with the metrics/health
listener, the gRPC health service and the expired-session pruner.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, nil)
		},
	}

	flags := cmd.Flags()
	flags.String("http-addr", "", "API listen address")
	config.FlagKey(flags, "http-addr", "http.addr")
	flags.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	config.FlagKey(flags, "metrics-addr", "metrics_addr")
	flags.String("control-addr", "", "gRPC health listen address (empty = disabled)")
	config.FlagKey(flags, "control-addr", "control_addr")
	flags.String("log-format", "", "log format (json or text)")
	config.FlagKey(flags, "log-format", "log_format")
	flags.String("log-level", "", "log level (debug, info, warn or error)")
	config.FlagKey(flags, "log-level", "log_level")

	return cmd
}

// app is the wired service graph.
type app struct {
	service  *auth.Service
	sessions *auth.Sessions
}

// buildApp wires the auth engines over the given stores.
func buildApp(cfg *config.Config, db Database, rdb redis.UniversalClient, notifier auth.Notifier, logger *slog.Logger) (*app, error) {
	tokenCfg, err := token.ConfigFromFiles(cfg.JWT.Algorithm, cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath, cfg.JWT.Secret)
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(tokenCfg)
	if err != nil {
		return nil, err
	}

	users := postgres.NewUserRepository(db)
	sessions, err := auth.NewSessions(users, postgres.NewSessionRepository(db), redisstore.NewDenylist(rdb), codec,
		auth.SessionConfig{
			AccessTokenTTL:  cfg.JWT.AccessTokenTTL,
			RefreshTokenTTL: cfg.JWT.RefreshTokenTTL,
		})
	if err != nil {
		return nil, oops.Code("APP_WIRING_FAILED").Wrap(err)
	}

	verifier, err := auth.NewVerifier(users, redisstore.NewCodeStore(rdb), notifier, sessions, auth.VerifierConfig{
		CodeLength: cfg.Verification.CodeLength,
		CodeTTL:    cfg.Verification.CodeTTL,
	})
	if err != nil {
		return nil, oops.Code("APP_WIRING_FAILED").Wrap(err)
	}

	service, err := auth.NewServiceWithLogger(users, verifier, sessions, auth.NewArgon2idHasher(), logger)
	if err != nil {
		return nil, oops.Code("APP_WIRING_FAILED").Wrap(err)
	}
	return &app{service: service, sessions: sessions}, nil
}

// runServe starts every server and blocks until ctx ends, a signal arrives
// or a server fails. If deps is nil, default implementations are used.
func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	logger := newLogger(cfg)

	logger.Info("starting codeauth",
		"http_addr", cfg.HTTP.Addr,
		"jwt_algorithm", cfg.JWT.Algorithm,
		"notifier", cfg.Notifier,
	)

	db, err := deps.ConnectDatabase(ctx, cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	rdb, err := deps.ConnectRedis(ctx, cfg)
	if err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
	}
	defer func() {
		if closeErr := rdb.Close(); closeErr != nil {
			logger.Debug("error closing redis client", "error", closeErr)
		}
	}()
	logger.Info("connected to redis")

	notifier, err := deps.NewNotifier(cfg, logger)
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, db, rdb, notifier, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	health := control.NewHealthServer(map[string]control.Check{
		"postgres": db.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, control.DefaultCheckInterval, logger)

	var stops []func(context.Context) error

	if cfg.ControlAddr != "" {
		controlErrCh, err := health.Start(cfg.ControlAddr)
		if err != nil {
			return err
		}
		stops = append(stops, health.Stop)
		go monitorServerErrors(ctx, cancel, controlErrCh, "control-grpc")
	} else {
		go health.Poll(ctx)
	}

	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer := observability.NewServer(cfg.MetricsAddr, health.Ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopAll(logger, stops)
			return err
		}
		stops = append(stops, obsServer.Stop)
		metrics = obsServer.Metrics()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.Options{
		Service: a.service,
		Metrics: metrics,
		Logger:  logger,
	})
	apiServer := httpapi.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ReadHeaderTimeout, logger)
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopAll(logger, stops)
		return err
	}
	// The API stops first so in-flight requests finish while probes still answer.
	stops = append([]func(context.Context) error{apiServer.Stop}, stops...)
	go monitorServerErrors(ctx, cancel, apiErrCh, "http")

	if cfg.Sessions.PruneInterval > 0 {
		go runPruner(ctx, a.sessions, cfg.Sessions.PruneInterval, metrics, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("codeauth started")
	logger.Info("codeauth ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	stopAll(logger, stops)
	logger.Info("shutdown complete")
	return nil
}

func stopAll(logger *slog.Logger, stops []func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, stop := range stops {
		if err := stop(ctx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
}

// runPruner deletes expired sessions every interval until ctx ends.
func runPruner(ctx context.Context, sessions *auth.Sessions, interval time.Duration, metrics *observability.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PruneExpired(ctx)
			if err != nil {
				errutil.LogError(logger, "session prune failed", err)
				continue
			}
			if metrics != nil {
				metrics.RecordSessionsPruned(n)
			}
			if n > 0 {
				logger.Info("pruned expired sessions", "count", n)
			}
		}
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
