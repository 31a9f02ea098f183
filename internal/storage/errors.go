package storage

import "errors"

// Errors shared by all store implementations. Stores are append-only:
// a key is written once and never updated.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned on an insert whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when a record fails validation before
	// it reaches the backend.
	ErrInvalidInput = errors.New("invalid input")
)
