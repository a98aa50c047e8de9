// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control serves the gRPC health protocol for orchestrators and
// load balancers.
package control

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCheckInterval is how often dependency checks are re-run.
const DefaultCheckInterval = 10 * time.Second

// checkTimeout bounds a single dependency check.
const checkTimeout = 2 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthServer reports SERVING for each named check that passes and for the
// overall service ("") only when every check passes.
type HealthServer struct {
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	logger   *slog.Logger

	listener   net.Listener
	grpcServer *grpc.Server
	running    atomic.Bool
	ready      atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewHealthServer creates a HealthServer over checks. Every service starts
// NOT_SERVING until the first Refresh.
func NewHealthServer(checks map[string]Check, interval time.Duration, logger *slog.Logger) *HealthServer {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &HealthServer{
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		logger:   logger,
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range checks {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Refresh runs every check once and publishes the results. It reports
// whether all checks passed.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			healthy = false
			status = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.WarnContext(ctx, "dependency check failed", "dependency", name, "error", err)
		}
		s.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	s.ready.Store(healthy)
	return healthy
}

// Ready reports the result of the last Refresh.
func (s *HealthServer) Ready() bool {
	return s.ready.Load()
}

// Poll runs Refresh immediately and then every interval until ctx ends.
func (s *HealthServer) Poll(ctx context.Context) {
	s.Refresh(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Start listens on addr, serves the health protocol and re-runs the checks
// every interval. The returned channel receives the serve error, if any, and
// is closed when the server stops.
func (s *HealthServer) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("CONTROL_ALREADY_RUNNING").Errorf("control server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.Refresh(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Poll(ctx)
	}()

	errCh := make(chan error, 1)
	srv := s.grpcServer
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil {
			s.logger.Error("control gRPC server error", "error", err)
			errCh <- err
		}
	}()

	s.logger.Info("control server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop marks every service NOT_SERVING and shuts the server down, waiting
// for in-flight RPCs until ctx ends.
func (s *HealthServer) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.health.Shutdown()
	s.cancel()
	s.wg.Wait()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}

	s.logger.Info("control server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *HealthServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
