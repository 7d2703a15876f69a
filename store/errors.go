package store

import "errors"

var (
	// ErrNotFound is returned when a registry doesn't exist.
	ErrNotFound = errors.New("store: record not found")

	// ErrAlreadyExists is returned when a new record collides with a stored one.
	ErrAlreadyExists = errors.New("store: record already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("store: record was modified concurrently")

	// ErrTransactionTooLarge is returned when a change set needs more writes
	// than a single DynamoDB transaction allows.
	ErrTransactionTooLarge = errors.New("store: change set exceeds transaction limit")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("store: corrupt record")
)
