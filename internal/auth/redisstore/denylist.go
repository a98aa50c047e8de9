// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/auth"
)

// Denylist marks revoked session IDs under session_blacklist:{id}.
type Denylist struct {
	redis redis.UniversalClient
}

// NewDenylist creates a Denylist.
func NewDenylist(client redis.UniversalClient) *Denylist {
	return &Denylist{redis: client}
}

// Add revokes sessionID for ttl.
func (d *Denylist) Add(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("DENYLIST_INVALID_TTL").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}
	if err := d.redis.Set(ctx, DenylistKeyPrefix+sessionID, 1, ttl).Err(); err != nil {
		return oops.Code("DENYLIST_ADD_FAILED").With("session_id", sessionID).Wrap(err)
	}
	return nil
}

// Contains reports whether sessionID is revoked.
func (d *Denylist) Contains(ctx context.Context, sessionID string) (bool, error) {
	n, err := d.redis.Exists(ctx, DenylistKeyPrefix+sessionID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, oops.Code("DENYLIST_CHECK_FAILED").With("session_id", sessionID).Wrap(err)
	}
	return n > 0, nil
}

// Compile-time interface check.
var _ auth.Denylist = (*Denylist)(nil)
