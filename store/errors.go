package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a record cannot be found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidID is returned when an invalid ID is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrDuplicateEntry is returned when a record with the same ID already exists.
	ErrDuplicateEntry = errors.New("store: duplicate entry")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")

	// ErrFilterInvalid is returned when a filter is invalid.
	ErrFilterInvalid = errors.New("store: invalid filter")

	// ErrEmptyUpdate is returned when a receipt update sets no fields.
	ErrEmptyUpdate = errors.New("store: empty update")

	// ErrTransactionFailed is returned when a database transaction fails.
	// No changes from the failed transaction were applied.
	ErrTransactionFailed = errors.New("store: transaction failed")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
