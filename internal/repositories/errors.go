package repositories

import "errors"

var (
	// ErrNotFound is wrapped by every lookup that finds no row.
	ErrNotFound = errors.New("record not found")
	// ErrLockTimeout means a row lock could not be acquired within the configured bound.
	ErrLockTimeout = errors.New("lock wait timeout exceeded")
)
