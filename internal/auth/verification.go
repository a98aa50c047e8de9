// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/samber/oops"
)

// Verification code defaults.
const (
	DefaultCodeLength = 6
	DefaultCodeTTL    = 5 * time.Minute
	MaxCodeLength     = 12
)

// ErrCodeMismatch is returned by a CodeStore when a record exists but the
// submitted code does not match it. The record is left in place.
var ErrCodeMismatch = errors.New("verification code mismatch")

// VerificationRecord is the pending one-time code for an email address.
// Signup is set when the code was requested to register a new account.
type VerificationRecord struct {
	Code   string      `json:"verification_code"`
	Signup *SignupData `json:"signup_data,omitempty"`
}

// CodeStore keeps at most one live verification record per email.
type CodeStore interface {
	// Save stores the record for email with the given TTL, replacing any
	// earlier record.
	Save(ctx context.Context, email string, record *VerificationRecord, ttl time.Duration) error

	// Consume deletes and returns the record for email if its code equals
	// code. Returns ErrNotFound if there is no live record and
	// ErrCodeMismatch if the code differs.
	Consume(ctx context.Context, email, code string) (*VerificationRecord, error)
}

// Denylist holds revoked session IDs until their access tokens expire.
type Denylist interface {
	// Add revokes sessionID for ttl.
	Add(ctx context.Context, sessionID string, ttl time.Duration) error

	// Contains reports whether sessionID is revoked.
	Contains(ctx context.Context, sessionID string) (bool, error)
}

// Notifier delivers verification codes to users.
type Notifier interface {
	SendVerificationCode(ctx context.Context, recipient, code string) error
}

// GenerateCode returns a numeric code of the given length drawn from
// crypto/rand. Leading zeros are kept.
func GenerateCode(length int) (string, error) {
	if length <= 0 || length > MaxCodeLength {
		return "", oops.Code("AUTH_INVALID_CODE_LENGTH").
			With("length", length).
			Errorf("code length must be between 1 and %d", MaxCodeLength)
	}

	digits := make([]byte, length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", oops.Code("AUTH_CODE_GENERATE_FAILED").
				With("operation", "crypto/rand.Int").
				Wrap(err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
