package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrNotFound indicates no value is stored at the given key.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey indicates a key that is empty or contains unsafe segments.
	ErrInvalidKey = errors.New("invalid key")
)

// KeyError wraps storage errors with the operation and key involved.
type KeyError struct {
	Op  string // Operation being performed (e.g., "Get", "Set", "Delete")
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s operation failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for key errors.
func (e *KeyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewKeyError creates a new key error with context.
func NewKeyError(op, key string, err error) *KeyError {
	return &KeyError{
		Op:  op,
		Key: key,
		Err: err,
	}
}

// IsNotFound checks if an error indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
