// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/token"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service provides the authentication operations offered to clients.
type Service struct {
	users    UserRepository
	verifier *Verifier
	sessions *Sessions
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a new Service that logs to slog.Default().
func NewService(users UserRepository, verifier *Verifier, sessions *Sessions, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, verifier, sessions, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, verifier *Verifier, sessions *Sessions, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("verifier is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session engine is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{
		users:    users,
		verifier: verifier,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// CheckEmailAvailability reports whether no account uses email.
func (s *Service) CheckEmailAvailability(ctx context.Context, email string) (bool, error) {
	_, err := s.users.Find(ctx, ByEmail(NormalizeEmail(email)))
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, internal("find user by email", err)
	}
	return false, nil
}

// RequestSignup sends a code that, once verified, creates the account
// described by data.
func (s *Service) RequestSignup(ctx context.Context, data SignupData) error {
	return s.verifier.RequestCode(ctx, data.Email, &data)
}

// RequestSignin sends a sign-in code to an existing account.
func (s *Service) RequestSignin(ctx context.Context, email string) error {
	return s.verifier.RequestCode(ctx, email, nil)
}

// VerifyCode exchanges a verification code for a token pair.
func (s *Service) VerifyCode(ctx context.Context, email, code string) (*TokenPair, error) {
	return s.verifier.VerifyCode(ctx, email, code)
}

// ValidateToken checks an access token and returns its payload.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (*token.Payload, error) {
	return s.sessions.Validate(ctx, accessToken, false)
}

// RefreshToken rotates the session of refreshToken.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.sessions.Refresh(ctx, refreshToken)
}

// Signout revokes a session. Returns false when it did not exist.
func (s *Service) Signout(ctx context.Context, sessionID string) (bool, error) {
	return s.sessions.Signout(ctx, sessionID)
}

// SigninWithPassword authenticates an account that has a password and opens
// a session. Uses constant-time operations to prevent timing-based email
// enumeration.
func (s *Service) SigninWithPassword(ctx context.Context, email, password string) (*TokenPair, error) {
	const op = "signin with password"

	user, lookupErr := s.users.Find(ctx, ByEmail(NormalizeEmail(email)))
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, internal("find user by email", lookupErr)
	}

	// Accounts without a password are verified against the dummy hash too.
	targetHash := dummyPasswordHash
	hasPassword := lookupErr == nil && user.PasswordHash != nil && *user.PasswordHash != ""
	if hasPassword {
		targetHash = *user.PasswordHash
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !hasPassword {
			return nil, fail(ErrUnauthorizedUser, op)
		}
		return nil, internal("verify password", verifyErr)
	}
	if !hasPassword || !valid {
		return nil, fail(ErrUnauthorizedUser, op)
	}

	if s.hasher.NeedsUpgrade(targetHash) {
		s.upgradePasswordHash(ctx, user.ID, password)
	}

	return s.sessions.Open(ctx, user)
}

func (s *Service) upgradePasswordHash(ctx context.Context, userID int64, password string) {
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.SetPasswordHash(ctx, userID, newHash)
	}
	if err != nil {
		s.logger.Warn("best-effort password hash upgrade failed",
			"operation", "upgrade_password_hash",
			"user_id", userID,
			"error", err.Error())
	}
}
