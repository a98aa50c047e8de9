// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint.
var ErrConflict = errors.New("conflict")

// Error is an expected authentication failure. It carries the HTTP status and
// the client-facing detail the API layer answers with.
type Error struct {
	Code   string
	Status int
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

// Error kinds returned by the verification and session engines.
var (
	ErrEmailAlreadyExists = &Error{Code: "EMAIL_ALREADY_EXISTS", Status: http.StatusBadRequest, Detail: "Email already exists."}
	ErrUserNotCreated     = &Error{Code: "USER_NOT_CREATED", Status: http.StatusBadRequest, Detail: "User not created"}
	ErrInvalidToken       = &Error{Code: "INVALID_TOKEN", Status: http.StatusUnauthorized, Detail: "Invalid token"}
	ErrTokenExpired       = &Error{Code: "TOKEN_EXPIRED", Status: http.StatusUnauthorized, Detail: "Token expired"}
	ErrUnauthorizedUser   = &Error{Code: "UNAUTHORIZED_USER", Status: http.StatusUnauthorized, Detail: "Invalid email or password"}
	ErrInactiveUser       = &Error{Code: "INACTIVE_USER", Status: http.StatusForbidden, Detail: "User is inactive or unknown"}
	ErrEmailNotFound      = &Error{Code: "EMAIL_NOT_FOUND", Status: http.StatusNotFound, Detail: "Email not found"}

	ErrVerificationCodeIncorrect = &Error{
		Code:   "VERIFICATION_CODE_INCORRECT",
		Status: http.StatusNotAcceptable,
		Detail: "Verification code is incorrect",
	}

	// ErrExceedingNumberOfRequests is reserved for throttling done in front of the service.
	ErrExceedingNumberOfRequests = &Error{
		Code:   "EXCEEDING_NUMBER_OF_REQUESTS",
		Status: http.StatusTooManyRequests,
		Detail: "Exceeded number of requests",
	}

	// ErrInternal marks store, codec and transport faults. It is never
	// answered to clients with its cause.
	ErrInternal = &Error{Code: "AUTH_INTERNAL", Status: http.StatusInternalServerError, Detail: "Internal server error"}
)

// fail wraps an error kind with oops context so that logs keep the
// operation while errors.Is and errors.As still find the kind.
func fail(kind *Error, operation string) error {
	return oops.Code(kind.Code).With("operation", operation).Wrap(kind)
}

// internal wraps an unexpected fault as ErrInternal, keeping the cause.
func internal(operation string, err error) error {
	return oops.Code(ErrInternal.Code).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrInternal, err))
}

// KindOf returns the error kind carried by err, or ErrInternal when err is
// not one of the known kinds.
func KindOf(err error) *Error {
	var kind *Error
	if errors.As(err, &kind) {
		return kind
	}
	return ErrInternal
}
