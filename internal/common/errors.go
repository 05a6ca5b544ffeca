// Package common defines shared constants and sentinel errors used across
// client and server layers of cyclesync. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorPermission   = errors.New("permission denied")
	ErrNoUser         = errors.New("no user id: sync requires an authenticated user")

	// Validation errors.
	ErrorValidation = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Local storage failures. These are fatal to the write that hit them.
	ErrStorageFull    = errors.New("local storage is full")
	ErrStorageCorrupt = errors.New("local storage is corrupt")
)

// LocalStorageError reports that a local write or read did not durably
// succeed. Op names the store operation; Err is the underlying cause and
// usually wraps ErrStorageFull or ErrStorageCorrupt.
type LocalStorageError struct {
	Op  string
	Err error
}

func (e *LocalStorageError) Error() string {
	return fmt.Sprintf("local storage %s: %v", e.Op, e.Err)
}

func (e *LocalStorageError) Unwrap() error { return e.Err }
