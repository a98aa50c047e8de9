// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// VerifierConfig tunes verification codes. Zero values take the defaults.
type VerifierConfig struct {
	CodeLength int
	CodeTTL    time.Duration
}

// Verifier issues one-time email codes and exchanges them for sessions.
type Verifier struct {
	users      UserRepository
	codes      CodeStore
	notifier   Notifier
	sessions   *Sessions
	codeLength int
	codeTTL    time.Duration
}

// NewVerifier creates the verification engine.
func NewVerifier(users UserRepository, codes CodeStore, notifier Notifier, sessions *Sessions, cfg VerifierConfig) (*Verifier, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if codes == nil {
		return nil, oops.Errorf("code store is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session engine is required")
	}

	v := &Verifier{
		users:      users,
		codes:      codes,
		notifier:   notifier,
		sessions:   sessions,
		codeLength: cfg.CodeLength,
		codeTTL:    cfg.CodeTTL,
	}
	if v.codeLength == 0 {
		v.codeLength = DefaultCodeLength
	}
	if v.codeLength < 0 || v.codeLength > MaxCodeLength {
		return nil, oops.Code("AUTH_INVALID_CODE_LENGTH").
			With("length", v.codeLength).
			Errorf("code length must be between 1 and %d", MaxCodeLength)
	}
	if v.codeTTL <= 0 {
		v.codeTTL = DefaultCodeTTL
	}
	return v, nil
}

// RequestCode issues a code for email and sends it. A non-nil signup asks
// for a new account; nil asks to sign in to an existing one.
func (v *Verifier) RequestCode(ctx context.Context, email string, signup *SignupData) error {
	email = NormalizeEmail(email)
	user, err := v.users.Find(ctx, ByEmail(email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return internal("find user by email", err)
	}
	exists := err == nil

	if signup != nil && exists && user.IsActive {
		return fail(ErrEmailAlreadyExists, "request signup code")
	}
	if signup == nil && !exists {
		return fail(ErrEmailNotFound, "request signin code")
	}

	code, err := GenerateCode(v.codeLength)
	if err != nil {
		return internal("generate code", err)
	}

	record := &VerificationRecord{Code: code}
	if signup != nil {
		pending := *signup
		pending.Email = email
		record.Signup = &pending
	}
	if err := v.codes.Save(ctx, email, record, v.codeTTL); err != nil {
		return internal("save verification code", err)
	}

	if err := v.notifier.SendVerificationCode(ctx, email, code); err != nil {
		return internal("send verification code", err)
	}
	return nil
}

// VerifyCode consumes the pending code for email, completes a pending signup
// and opens a session.
func (v *Verifier) VerifyCode(ctx context.Context, email, code string) (*TokenPair, error) {
	email = NormalizeEmail(email)
	record, err := v.codes.Consume(ctx, email, code)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCodeMismatch) {
		return nil, fail(ErrVerificationCodeIncorrect, "verify code")
	}
	if err != nil {
		return nil, internal("consume verification code", err)
	}

	if record.Signup != nil {
		if _, err := v.users.Create(ctx, NewUserFromSignup(record.Signup)); err != nil {
			return nil, oops.Code(ErrUserNotCreated.Code).
				With("operation", "create user").
				With("cause", err.Error()).
				Wrap(ErrUserNotCreated)
		}
	}

	user, err := v.users.Find(ctx, ByEmail(email))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fail(ErrEmailNotFound, "verify code")
	case err != nil:
		return nil, internal("find user by email", err)
	case !user.IsActive:
		return nil, fail(ErrEmailNotFound, "verify code")
	}

	return v.sessions.Open(ctx, user)
}
