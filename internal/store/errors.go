package store

import "errors"

var (
	// ErrNotFound is returned when a lookup or update matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique column already holds the value.
	ErrDuplicate = errors.New("already exists")
	// ErrNotPending is returned when settling an image that is no longer pending.
	ErrNotPending = errors.New("image is not pending")
)
