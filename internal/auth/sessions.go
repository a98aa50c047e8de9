// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/token"
)

// Default token lifetimes.
const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 3600 * time.Minute
)

// TokenCodec signs and verifies token payloads.
type TokenCodec interface {
	Encode(p token.Payload, ttl time.Duration) (string, error)
	Decode(raw string) (*token.Payload, error)
}

// TokenPair is the result of opening or refreshing a session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionConfig tunes token lifetimes and the clock.
type SessionConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Now             func() time.Time
}

// Sessions opens, rotates, validates and revokes sessions.
type Sessions struct {
	users      UserRepository
	sessions   SessionRepository
	denylist   Denylist
	codec      TokenCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessions creates the session lifecycle engine. Zero TTLs take the defaults.
func NewSessions(users UserRepository, sessions SessionRepository, denylist Denylist, codec TokenCodec, cfg SessionConfig) (*Sessions, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if denylist == nil {
		return nil, oops.Errorf("denylist is required")
	}
	if codec == nil {
		return nil, oops.Errorf("token codec is required")
	}

	s := &Sessions{
		users:      users,
		sessions:   sessions,
		denylist:   denylist,
		codec:      codec,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        cfg.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTokenTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// AccessTokenTTL returns the lifetime of access tokens.
func (s *Sessions) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

// Open mints a token pair for user and persists a new session bound to its
// refresh token. It is the only way a session row is created.
func (s *Sessions) Open(ctx context.Context, user *User) (*TokenPair, error) {
	if !user.CanOpenSession() {
		return nil, fail(ErrInactiveUser, "open session")
	}

	id := NewSessionID()
	pair, err := s.mint(user.ID, id, user.Role)
	if err != nil {
		return nil, internal("open session", err)
	}

	now := s.now()
	session, err := NewSession(id, user.ID, pair.RefreshToken, now, now.Add(s.refreshTTL))
	if err != nil {
		return nil, internal("open session", err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, internal("persist session", err)
	}
	return pair, nil
}

// Refresh exchanges the current refresh token of a session for a new pair.
// The presented token stops working as soon as the rotation is stored.
func (s *Sessions) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "refresh session"

	payload, err := s.decode(refreshToken, true, op)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, payload.SessionID, op); err != nil {
		return nil, err
	}

	userID, err := strconv.ParseInt(payload.Subject, 10, 64)
	if err != nil {
		return nil, fail(ErrInvalidToken, op)
	}
	user, err := s.users.Find(ctx, ByID(userID))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fail(ErrInvalidToken, op)
	case err != nil:
		return nil, internal("find session user", err)
	case !user.CanOpenSession():
		return nil, fail(ErrInvalidToken, op)
	}

	session, err := s.sessions.Get(ctx, payload.SessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fail(ErrInvalidToken, op)
	case err != nil:
		return nil, internal("get session", err)
	}

	now := s.now()
	if session.UserID != user.ID || !session.Holds(refreshToken) || session.IsExpiredAt(now) {
		return nil, fail(ErrInvalidToken, op)
	}

	pair, err := s.mint(user.ID, session.ID, user.Role)
	if err != nil {
		return nil, internal(op, err)
	}
	err = s.sessions.Rotate(ctx, session.ID, session.RefreshTokenHash, HashRefreshToken(pair.RefreshToken), now.Add(s.refreshTTL))
	switch {
	case errors.Is(err, ErrNotFound):
		// Deleted or rotated by a concurrent request since it was read.
		return nil, fail(ErrInvalidToken, op)
	case err != nil:
		return nil, internal("rotate session", err)
	}
	return pair, nil
}

// Validate decodes raw and checks its class and revocation status.
func (s *Sessions) Validate(ctx context.Context, raw string, expectRefresh bool) (*token.Payload, error) {
	const op = "validate token"

	payload, err := s.decode(raw, expectRefresh, op)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, payload.SessionID, op); err != nil {
		return nil, err
	}
	return payload, nil
}

// Signout denylists the session ID for the access token lifetime, then
// deletes the session. Returns false when the session did not exist. The row
// outlives a failed denylist write so that a retry can still revoke it.
func (s *Sessions) Signout(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internal("find session", err)
	}

	if err := s.denylist.Add(ctx, sessionID, s.accessTTL); err != nil {
		return false, internal("denylist session", err)
	}

	// A concurrent signout may have removed the row already.
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return false, internal("delete session", err)
	}
	return true, nil
}

// PruneExpired deletes sessions whose refresh tokens have expired.
func (s *Sessions) PruneExpired(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, internal("prune sessions", err)
	}
	return n, nil
}

func (s *Sessions) mint(userID int64, sessionID, role string) (*TokenPair, error) {
	p := token.Payload{
		Subject:   strconv.FormatInt(userID, 10),
		SessionID: sessionID,
		Role:      role,
	}
	access, err := s.codec.Encode(p, s.accessTTL)
	if err != nil {
		return nil, err
	}

	p.IsRefresh = true
	refresh, err := s.codec.Encode(p, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Sessions) decode(raw string, expectRefresh bool, op string) (*token.Payload, error) {
	payload, err := s.codec.Decode(raw)
	if errors.Is(err, token.ErrExpired) {
		return nil, fail(ErrTokenExpired, op)
	}
	if err != nil {
		return nil, fail(ErrInvalidToken, op)
	}
	if payload.IsRefresh != expectRefresh {
		return nil, fail(ErrInvalidToken, op)
	}
	return payload, nil
}

func (s *Sessions) checkRevoked(ctx context.Context, sessionID, op string) error {
	revoked, err := s.denylist.Contains(ctx, sessionID)
	if err != nil {
		return internal("check denylist", err)
	}
	if revoked {
		return fail(ErrInvalidToken, op)
	}
	return nil
}
