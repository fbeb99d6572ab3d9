package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotEntitled      = errors.New("holder has no active subscription")
	ErrAlreadyReserved  = errors.New("holder already has an active reservation for this session")
	ErrSessionFull      = errors.New("session is full")
	ErrSessionCancelled = errors.New("session is cancelled")
	ErrSessionEnded     = errors.New("session has ended")
	ErrForbidden        = errors.New("reservation belongs to another holder")
	ErrInvalidSession   = errors.New("invalid session")
	ErrStorage          = errors.New("storage unavailable")
)

// StorageError wraps a failure of the store or another backend. Callers may
// retry the whole operation; the engine never does.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
