// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/token"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCodec(t *testing.T, clock *testClock) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec(token.Config{
		Algorithm: token.AlgHS256,
		Secret:    []byte(testSecret),
		Now:       clock.Now,
	})
	require.NoError(t, err)
	return codec
}

// memUsers is an in-memory UserRepository.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*auth.User)}
}

func (r *memUsers) add(u auth.User) *auth.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if u.ID == 0 {
		u.ID = r.nextID
	}
	r.byID[u.ID] = &u
	return &u
}

func (r *memUsers) Find(_ context.Context, lookup auth.UserLookup) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if (lookup.Kind == auth.LookupByID && u.ID == lookup.ID) ||
			(lookup.Kind == auth.LookupByEmail && u.Email == lookup.Email) {
			c := *u
			return &c, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memUsers) Create(_ context.Context, nu *auth.NewUser) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == nu.Email {
			return 0, auth.ErrConflict
		}
	}
	r.nextID++
	r.byID[r.nextID] = &auth.User{
		ID:           r.nextID,
		Email:        nu.Email,
		FirstName:    nu.FirstName,
		LastName:     nu.LastName,
		Phone:        nu.Phone,
		Role:         nu.Role,
		PasswordHash: nu.PasswordHash,
		IsActive:     true,
	}
	return r.nextID, nil
}

func (r *memUsers) SetPasswordHash(_ context.Context, id int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = &hash
	return nil
}

// memSessions is an in-memory SessionRepository with conditional rotation.
type memSessions struct {
	mu   sync.Mutex
	rows map[string]auth.Session
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]auth.Session)}
}

func (r *memSessions) Create(_ context.Context, s *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = *s
	return nil
}

func (r *memSessions) Get(_ context.Context, id string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &s, nil
}

func (r *memSessions) Rotate(_ context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok || s.RefreshTokenHash != oldHash {
		return auth.ErrNotFound
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	r.rows[id] = s
	return nil
}

func (r *memSessions) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.rows {
		if s.ExpiresAt.Before(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessions) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// memDenylist is an in-memory Denylist that records TTLs.
type memDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Duration
	// failNext is returned by the next Add, which then records nothing.
	failNext error
}

func newMemDenylist() *memDenylist {
	return &memDenylist{entries: make(map[string]time.Duration)}
}

func (d *memDenylist) Add(_ context.Context, sessionID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failNext; err != nil {
		d.failNext = nil
		return err
	}
	d.entries[sessionID] = ttl
	return nil
}

func (d *memDenylist) Contains(_ context.Context, sessionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[sessionID]
	return ok, nil
}

// memCodes is an in-memory CodeStore ignoring TTLs.
type memCodes struct {
	mu      sync.Mutex
	records map[string]auth.VerificationRecord
}

func newMemCodes() *memCodes {
	return &memCodes{records: make(map[string]auth.VerificationRecord)}
}

func (s *memCodes) Save(_ context.Context, email string, record *auth.VerificationRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = *record
	return nil
}

func (s *memCodes) Consume(_ context.Context, email, code string) (*auth.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if rec.Code != code {
		return nil, auth.ErrCodeMismatch
	}
	delete(s.records, email)
	return &rec, nil
}

// captureNotifier records the last code sent to each recipient.
type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{codes: make(map[string]string)}
}

func (n *captureNotifier) SendVerificationCode(_ context.Context, recipient, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[recipient] = code
	return nil
}

func (n *captureNotifier) last(recipient string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[recipient]
}

type sessionFixture struct {
	clock    *testClock
	codec    *token.Codec
	users    *memUsers
	store    *memSessions
	denylist *memDenylist
	sessions *auth.Sessions
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		clock:    newTestClock(),
		users:    newMemUsers(),
		store:    newMemSessions(),
		denylist: newMemDenylist(),
	}
	f.codec = newTestCodec(t, f.clock)

	var err error
	f.sessions, err = auth.NewSessions(f.users, f.store, f.denylist, f.codec, auth.SessionConfig{
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 3600 * time.Minute,
		Now:             f.clock.Now,
	})
	require.NoError(t, err)
	return f
}

func (f *sessionFixture) activeUser(email string) *auth.User {
	return f.users.add(auth.User{Email: email, FirstName: "Ada", LastName: "Lovelace", Role: auth.RoleUser, IsActive: true})
}
