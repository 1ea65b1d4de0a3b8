package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("vault persistence failure")
	// ErrStoreNotFound is returned by Store.Load when no state exists yet.
	ErrStoreNotFound = errors.New("vault store not found")
	// ErrInvalidState is returned when a persisted document fails to parse.
	ErrInvalidState = errors.New("invalid vault state")
)

// PersistenceError wraps a failed durable write (or an unusable store).
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("vault %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
