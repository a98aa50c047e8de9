// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Roles carried in tokens.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

// Field limits, matching the users table.
const (
	MaxNameLength  = 50
	MaxRoleLength  = 8
	MaxPhoneLength = 30
)

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	FirstName    string
	LastName     string
	Phone        *string
	Role         string
	PasswordHash *string // nil for passwordless accounts
	IsActive     bool
	CreatedAt    time.Time
}

// CanOpenSession reports whether a new session may be opened for u.
func (u *User) CanOpenSession() bool {
	return u != nil && u.IsActive
}

// SignupData is the pending registration carried by a signup code until the
// code is verified.
type SignupData struct {
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone,omitempty"`
}

// Validate checks the signup fields against the users table limits.
func (d *SignupData) Validate() error {
	if err := ValidateEmail(d.Email); err != nil {
		return err
	}
	if strings.TrimSpace(d.FirstName) == "" || len(d.FirstName) > MaxNameLength {
		return oops.Code("AUTH_INVALID_SIGNUP").
			With("max", MaxNameLength).
			Errorf("first name must be 1 to %d characters", MaxNameLength)
	}
	if strings.TrimSpace(d.LastName) == "" || len(d.LastName) > MaxNameLength {
		return oops.Code("AUTH_INVALID_SIGNUP").
			With("max", MaxNameLength).
			Errorf("last name must be 1 to %d characters", MaxNameLength)
	}
	if d.Phone != nil && len(*d.Phone) > MaxPhoneLength {
		return oops.Code("AUTH_INVALID_SIGNUP").
			With("max", MaxPhoneLength).
			Errorf("phone must be at most %d characters", MaxPhoneLength)
	}
	return nil
}

// ValidateEmail checks that email is a bare RFC 5322 address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return oops.Code("AUTH_INVALID_EMAIL").With("email", email).Errorf("invalid email address")
	}
	return nil
}

// NormalizeEmail lowercases the domain part of email. The local part is
// kept as given.
func NormalizeEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

// NewUser holds the fields for inserting a user.
type NewUser struct {
	Email        string
	FirstName    string
	LastName     string
	Phone        *string
	Role         string
	PasswordHash *string
}

// NewUserFromSignup builds the insert fields for a verified signup.
func NewUserFromSignup(d *SignupData) *NewUser {
	return &NewUser{
		Email:     NormalizeEmail(d.Email),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Phone:     d.Phone,
		Role:      RoleUser,
	}
}

// LookupKind selects the key a user is looked up by.
type LookupKind int

// Supported user lookup keys.
const (
	LookupByID LookupKind = iota + 1
	LookupByEmail
)

func (k LookupKind) String() string {
	switch k {
	case LookupByID:
		return "id"
	case LookupByEmail:
		return "email"
	default:
		return "unknown"
	}
}

// UserLookup is a typed user query. Build it with ByID or ByEmail.
type UserLookup struct {
	Kind  LookupKind
	ID    int64
	Email string
}

// ByID looks a user up by primary key.
func ByID(id int64) UserLookup {
	return UserLookup{Kind: LookupByID, ID: id}
}

// ByEmail looks a user up by email address.
func ByEmail(email string) UserLookup {
	return UserLookup{Kind: LookupByEmail, Email: email}
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Find retrieves a user by the given lookup.
	// Returns ErrNotFound if no user matches.
	Find(ctx context.Context, lookup UserLookup) (*User, error)

	// Create inserts a user and returns its ID.
	// Returns ErrConflict if the email is already registered.
	Create(ctx context.Context, user *NewUser) (int64, error)

	// SetPasswordHash replaces the stored password hash.
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}
