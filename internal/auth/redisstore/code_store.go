// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redisstore implements the expiring auth stores on Redis.
package redisstore

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/auth"
)

// Key prefixes.
const (
	CodeKeyPrefix     = "verification_code:"
	DenylistKeyPrefix = "session_blacklist:"
)

// consumeCodeLua deletes a verification record only when its code matches.
// KEYS[1] = record key
// ARGV[1] = submitted code
//
// Returns the record JSON on success, or the error string "not_found" or
// "code_mismatch". A record that cannot be decoded is deleted and reported
// as not found.
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local ok, record = pcall(cjson.decode, data)
if not ok or type(record) ~= 'table' then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

if tostring(record['verification_code']) ~= ARGV[1] then
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// CodeStore keeps verification records as JSON under verification_code:{email}.
type CodeStore struct {
	redis redis.UniversalClient
}

// NewCodeStore creates a CodeStore.
func NewCodeStore(client redis.UniversalClient) *CodeStore {
	return &CodeStore{redis: client}
}

func codeKey(email string) string {
	return CodeKeyPrefix + email
}

// Save stores record for email with ttl, replacing any earlier record.
func (s *CodeStore) Save(ctx context.Context, email string, record *auth.VerificationRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return oops.Code("CODE_STORE_INVALID_TTL").With("ttl", ttl.String()).Errorf("ttl must be positive")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return oops.Code("CODE_STORE_ENCODE_FAILED").Wrap(err)
	}
	if err := s.redis.Set(ctx, codeKey(email), data, ttl).Err(); err != nil {
		return oops.Code("CODE_STORE_SAVE_FAILED").With("email", email).Wrap(err)
	}
	return nil
}

// Consume atomically deletes and returns the record for email if its code
// equals code. A mismatching code leaves the record in place.
func (s *CodeStore) Consume(ctx context.Context, email, code string) (*auth.VerificationRecord, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis, []string{codeKey(email)}, code).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
		case "code_mismatch":
			return nil, oops.Code("VERIFICATION_CODE_MISMATCH").With("email", email).Wrap(auth.ErrCodeMismatch)
		default:
			return nil, oops.Code("CODE_STORE_CONSUME_FAILED").With("email", email).Wrap(err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, oops.Code("CODE_STORE_CONSUME_FAILED").Errorf("unexpected lua result type %T", result)
	}

	var record auth.VerificationRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, oops.Code("CODE_STORE_DECODE_FAILED").With("email", email).Wrap(err)
	}

	// Lua string comparison is not constant-time.
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return nil, oops.Code("VERIFICATION_CODE_MISMATCH").With("email", email).Wrap(auth.ErrCodeMismatch)
	}
	return &record, nil
}

// Compile-time interface check.
var _ auth.CodeStore = (*CodeStore)(nil)
