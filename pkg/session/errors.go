package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")
	// ErrNotFound is returned by Load for an unknown session id.
	ErrNotFound = errors.New("session not found")
)

// PersistenceError reports a failed save, load or list.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("PersistenceError: failed to %s session %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("PersistenceError: failed to %s session: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
