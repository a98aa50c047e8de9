// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session binds a session ID to its user and the one refresh token that is
// currently valid for it.
type Session struct {
	ID               string
	UserID           int64
	RefreshTokenHash string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// NewSession creates a validated Session. The ID comes from NewSessionID so
// that it can be embedded in the tokens before the row is written.
func NewSession(id string, userID int64, refreshToken string, createdAt, expiresAt time.Time) (*Session, error) {
	if id == "" {
		return nil, oops.Code("SESSION_INVALID_ID").Errorf("session ID cannot be empty")
	}
	if userID <= 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID must be positive")
	}
	if refreshToken == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("refresh token cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}

	return &Session{
		ID:               id,
		UserID:           userID,
		RefreshTokenHash: HashRefreshToken(refreshToken),
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
	}, nil
}

// NewSessionID returns a new unique session ID.
func NewSessionID() string {
	return ulid.Make().String()
}

// IsExpiredAt reports whether the session would be expired at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Holds reports whether refreshToken is the session's current refresh token.
// Uses constant-time comparison of the digests.
func (s *Session) Holds(refreshToken string) bool {
	if refreshToken == "" || s.RefreshTokenHash == "" {
		return false
	}
	computed := HashRefreshToken(refreshToken)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(s.RefreshTokenHash)) == 1
}

// HashRefreshToken computes the SHA256 hex digest stored in place of a
// refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by its ID.
	// Returns ErrNotFound if the session does not exist.
	Get(ctx context.Context, id string) (*Session, error)

	// Rotate replaces the refresh token hash and expiry of a session, but only
	// while the stored hash still equals oldHash.
	// Returns ErrNotFound if the session is gone or was rotated concurrently.
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error

	// Delete removes a session by ID.
	// Returns ErrNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions whose expiry is before now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
