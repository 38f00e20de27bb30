package domain

import "errors"

var (
	// ErrUnauthorized indicates that no valid identity is present on the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates that a record is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrExternalService indicates a failure in an external collaborator (AI model, mailer).
	ErrExternalService = errors.New("external service failure")
	// ErrConflict is reserved for future optimistic-concurrency checks.
	ErrConflict = errors.New("conflict")
)
