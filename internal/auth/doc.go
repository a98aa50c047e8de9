// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements passwordless email-code authentication with
// server-side sessions.
//
// # Domain Types
//
// Sessions should be created with NewSession, which validates the owner,
// refresh token and expiry and stores only the refresh token digest.
// Users are inserted from a NewUser; NewUserFromSignup builds one from a
// verified SignupData. Lookups use ByID or ByEmail.
//
// # Engines
//
//   - Verifier - issues one-time codes and exchanges them for sessions
//   - Sessions - opens, refreshes, validates and revokes sessions
//   - Service - the client-facing operations built on both
//
// Engines are created with New* constructors that validate dependencies.
//
// # Errors
//
// Expected failures are *Error kinds (ErrInvalidToken, ErrEmailNotFound and
// so on) wrapped with oops context. Use errors.Is to test for a kind and
// KindOf to map an error to its status. Store faults wrap ErrInternal.
package auth
