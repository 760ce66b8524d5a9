package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by the storage backends and the task operations.
var (
	// ErrInvalidArgument is returned for bad caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when the targeted task id does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrMalformedRecord is returned when a stored record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrStorageUnavailable is returned when a lock or connection could not be acquired in time.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCorruptStore is returned when the task document is unreadable as a whole.
	ErrCorruptStore = errors.New("corrupt store")
)

// MalformedRecordError describes a single record that failed to decode.
type MalformedRecordError struct {
	ID    int64
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record %d: field %s: %v", e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed record %d: field %s", e.ID, e.Field)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// NotFound wraps ErrNotFound with the missing id.
func NotFound(id int64) error {
	return fmt.Errorf("%w: %d", ErrNotFound, id)
}
