// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/auth"
)

const userColumns = `id, email, first_name, last_name, phone, role, password_hash, is_active, created_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Find retrieves a user by ID or email.
func (r *UserRepository) Find(ctx context.Context, lookup auth.UserLookup) (*auth.User, error) {
	var (
		query string
		arg   any
	)
	switch lookup.Kind {
	case auth.LookupByID:
		query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
		arg = lookup.ID
	case auth.LookupByEmail:
		query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
		arg = lookup.Email
	default:
		return nil, oops.Code("USER_INVALID_LOOKUP").
			With("kind", int(lookup.Kind)).
			Errorf("unsupported user lookup")
	}

	user, err := scanUser(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("by", lookup.Kind.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_FIND_FAILED").
			With("operation", "find user").
			With("by", lookup.Kind.String()).
			Wrap(err)
	}
	return user, nil
}

// Create inserts a user and returns its ID. A duplicate email returns
// auth.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *auth.NewUser) (int64, error) {
	role := user.Role
	if role == "" {
		role = auth.RoleUser
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, first_name, last_name, phone, role, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, user.Email, user.FirstName, user.LastName, user.Phone, role, user.PasswordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				Wrap(auth.ErrConflict)
		}
		return 0, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return id, nil
}

// SetPasswordHash replaces the stored password hash.
func (r *UserRepository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	result, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password_hash").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Role, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}
	return &u, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
