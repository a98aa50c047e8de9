// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth service over HTTP with gin.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/observability"
	"github.com/holomush/codeauth/internal/token"
)

// AuthService is the set of operations served under /v1/auth.
type AuthService interface {
	CheckEmailAvailability(ctx context.Context, email string) (bool, error)
	RequestSignup(ctx context.Context, data auth.SignupData) error
	RequestSignin(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (*auth.TokenPair, error)
	ValidateToken(ctx context.Context, accessToken string) (*token.Payload, error)
	RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Signout(ctx context.Context, sessionID string) (bool, error)
	SigninWithPassword(ctx context.Context, email, password string) (*auth.TokenPair, error)
}

// Options configures the router. Metrics and Tracer are optional.
type Options struct {
	Service AuthService
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// unmatchedRoute labels requests that hit no route.
const unmatchedRoute = "unmatched"

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("codeauth/httpapi")
	}

	r := gin.New()
	r.Use(
		tracing(opts.Tracer),
		requestLog(opts.Logger, opts.Metrics),
		recovery(opts.Logger),
	)

	h := &handler{svc: opts.Service, metrics: opts.Metrics, logger: opts.Logger}

	r.GET("/v1/healthcheck", healthcheck)

	v1 := r.Group("/v1/auth")
	v1.GET("/check_email", h.checkEmail)
	v1.POST("/signup", h.signup)
	v1.POST("/signin", h.signin)
	v1.POST("/signin/password", h.signinWithPassword)
	v1.POST("/verify-code", h.verifyCode)
	v1.POST("/validate", h.validate)
	v1.POST("/refresh", h.refresh)
	v1.POST("/signout", h.signout)

	return r
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

func tracing(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := routeOf(c)
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// requestLog writes one record per request and feeds the request metrics.
func requestLog(logger *slog.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := routeOf(c)
		status := c.Writer.Status()
		if metrics != nil {
			metrics.ObserveRequest(route, c.Request.Method, status, elapsed)
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

func recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		logger.ErrorContext(c.Request.Context(), "panic in handler",
			"route", routeOf(c),
			"panic", rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Detail: auth.ErrInternal.Detail})
	})
}
