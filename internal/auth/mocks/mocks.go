// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks of the auth collaborators.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/token"
)

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository whose expectations are
// asserted when the test ends.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Find provides a mock function.
func (m *MockUserRepository) Find(ctx context.Context, lookup auth.UserLookup) (*auth.User, error) {
	args := m.Called(ctx, lookup)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// Create provides a mock function.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.NewUser) (int64, error) {
	args := m.Called(ctx, user)
	id, _ := args.Get(0).(int64)
	return id, args.Error(1)
}

// SetPasswordHash provides a mock function.
func (m *MockUserRepository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

// MockSessionRepository is a mock of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a MockSessionRepository.
func NewMockSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create provides a mock function.
func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// Get provides a mock function.
func (m *MockSessionRepository) Get(ctx context.Context, id string) (*auth.Session, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

// Rotate provides a mock function.
func (m *MockSessionRepository) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, oldHash, newHash, expiresAt)
	return args.Error(0)
}

// Delete provides a mock function.
func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// DeleteExpired provides a mock function.
func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// MockCodeStore is a mock of auth.CodeStore.
type MockCodeStore struct {
	mock.Mock
}

// NewMockCodeStore creates a MockCodeStore.
func NewMockCodeStore(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockCodeStore {
	m := &MockCodeStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Save provides a mock function.
func (m *MockCodeStore) Save(ctx context.Context, email string, record *auth.VerificationRecord, ttl time.Duration) error {
	args := m.Called(ctx, email, record, ttl)
	return args.Error(0)
}

// Consume provides a mock function.
func (m *MockCodeStore) Consume(ctx context.Context, email, code string) (*auth.VerificationRecord, error) {
	args := m.Called(ctx, email, code)
	record, _ := args.Get(0).(*auth.VerificationRecord)
	return record, args.Error(1)
}

// MockDenylist is a mock of auth.Denylist.
type MockDenylist struct {
	mock.Mock
}

// NewMockDenylist creates a MockDenylist.
func NewMockDenylist(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockDenylist {
	m := &MockDenylist{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Add provides a mock function.
func (m *MockDenylist) Add(ctx context.Context, sessionID string, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, ttl)
	return args.Error(0)
}

// Contains provides a mock function.
func (m *MockDenylist) Contains(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

// MockNotifier is a mock of auth.Notifier.
type MockNotifier struct {
	mock.Mock
}

// NewMockNotifier creates a MockNotifier.
func NewMockNotifier(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockNotifier {
	m := &MockNotifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// SendVerificationCode provides a mock function.
func (m *MockNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	args := m.Called(ctx, recipient, code)
	return args.Error(0)
}

// MockTokenCodec is a mock of auth.TokenCodec.
type MockTokenCodec struct {
	mock.Mock
}

// NewMockTokenCodec creates a MockTokenCodec.
func NewMockTokenCodec(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockTokenCodec {
	m := &MockTokenCodec{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Encode provides a mock function.
func (m *MockTokenCodec) Encode(p token.Payload, ttl time.Duration) (string, error) {
	args := m.Called(p, ttl)
	return args.String(0), args.Error(1)
}

// Decode provides a mock function.
func (m *MockTokenCodec) Decode(raw string) (*token.Payload, error) {
	args := m.Called(raw)
	p, _ := args.Get(0).(*token.Payload)
	return p, args.Error(1)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify provides a mock function.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade provides a mock function.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

var (
	_ auth.UserRepository    = (*MockUserRepository)(nil)
	_ auth.SessionRepository = (*MockSessionRepository)(nil)
	_ auth.CodeStore         = (*MockCodeStore)(nil)
	_ auth.Denylist          = (*MockDenylist)(nil)
	_ auth.Notifier          = (*MockNotifier)(nil)
	_ auth.TokenCodec        = (*MockTokenCodec)(nil)
	_ auth.PasswordHasher    = (*MockPasswordHasher)(nil)
)
