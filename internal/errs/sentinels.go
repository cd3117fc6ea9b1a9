// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across storage/transport/workflow layers.
var (
	// ErrNotFound indicates the requested entity does not exist (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the backend rejected the credential (HTTP 401/403).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBackend indicates any other non-2xx answer from the backend.
	ErrBackend = errors.New("backend error")

	// ErrTransport indicates that no response was received at all.
	ErrTransport = errors.New("transport error")

	// ErrValidation indicates local input validation failed before any request was made.
	ErrValidation = errors.New("validation")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotConfirmed indicates a destructive action was invoked without confirmation.
	ErrNotConfirmed = errors.New("not confirmed")
)

type validationError string

func (e validationError) Error() string { return string(e) }

func (e validationError) Is(target error) bool { return target == ErrValidation }

// Validation returns a local validation error whose text is msg and which matches ErrValidation.
func Validation(msg string) error { return validationError(msg) }
