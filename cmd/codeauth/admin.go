// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/auth/postgres"
	"github.com/holomush/codeauth/internal/store"
)

// adminPasswordEnv supplies the password when neither flag is given.
const adminPasswordEnv = "CODEAUTH_ADMIN_PASSWORD"

// minAdminPasswordLength is the shortest password admin create accepts.
const minAdminPasswordLength = 12

type adminCreateConfig struct {
	email         string
	firstName     string
	lastName      string
	phone         string
	password      string
	passwordStdin bool
}

// NewAdminCmd creates the admin subcommand.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage password-login accounts",
	}

	cfg := &adminCreateConfig{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an Admin account that signs in with a password",
		Long: `Create an account with the Admin role and an argon2id password hash.
The password is read from --password-stdin, --password or the
CODEAUTH_ADMIN_PASSWORD environment variable, in that order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := cfg.newUser(cmd.InOrStdin(), auth.NewArgon2idHasher())
			if err != nil {
				return err
			}

			appCfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			if appCfg.Database.URL == "" {
				return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := store.Connect(ctx, appCfg.Database.URL, store.PoolOptions{
				ConnectAttempts: appCfg.Connect.MaxRetries,
				RetryBase:       appCfg.Connect.InitialBackoff,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			id, err := postgres.NewUserRepository(pool).Create(ctx, user)
			if errors.Is(err, auth.ErrConflict) {
				return oops.Code("ADMIN_EXISTS").With("email", user.Email).Errorf("an account with email %s already exists", user.Email)
			}
			if err != nil {
				return err
			}
			cmd.Printf("Created admin %s (id %d)\n", user.Email, id)
			return nil
		},
	}
	flags := create.Flags()
	flags.StringVar(&cfg.email, "email", "", "account email (required)")
	flags.StringVar(&cfg.firstName, "first-name", "Admin", "first name")
	flags.StringVar(&cfg.lastName, "last-name", "Admin", "last name")
	flags.StringVar(&cfg.phone, "phone", "", "phone number")
	flags.StringVar(&cfg.password, "password", "", "password (visible in the process list; prefer --password-stdin)")
	flags.BoolVar(&cfg.passwordStdin, "password-stdin", false, "read the password from standard input")
	cmd.AddCommand(create)

	return cmd
}

// newUser validates the flags and hashes the password.
func (c *adminCreateConfig) newUser(stdin io.Reader, hasher auth.PasswordHasher) (*auth.NewUser, error) {
	data := auth.SignupData{Email: c.email, FirstName: c.firstName, LastName: c.lastName}
	if c.phone != "" {
		data.Phone = &c.phone
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	password, err := c.readPassword(stdin)
	if err != nil {
		return nil, err
	}
	if len(password) < minAdminPasswordLength {
		return nil, oops.Code("ADMIN_PASSWORD_TOO_SHORT").
			With("min", minAdminPasswordLength).
			Errorf("password must be at least %d characters", minAdminPasswordLength)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("ADMIN_HASH_FAILED").Wrap(err)
	}

	user := auth.NewUserFromSignup(&data)
	user.Role = auth.RoleAdmin
	user.PasswordHash = &hash
	return user, nil
}

func (c *adminCreateConfig) readPassword(stdin io.Reader) (string, error) {
	if c.passwordStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", oops.Code("ADMIN_PASSWORD_READ_FAILED").Wrap(err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if c.password != "" {
		return c.password, nil
	}
	return os.Getenv(adminPasswordEnv), nil
}
