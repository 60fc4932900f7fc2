package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCollection is returned when a collection name is empty.
	ErrEmptyCollection = errors.New("collection name must not be empty")

	// ErrNotJSON is returned when metadata cannot be encoded as JSON.
	ErrNotJSON = errors.New("metadata is not JSON-serializable")

	// ErrNonFiniteEmbedding is returned when an embedding holds NaN or an
	// infinity.
	ErrNonFiniteEmbedding = errors.New("embedding contains non-finite values")

	// ErrSaveFailed is returned by SimpleManager when the store reports
	// that a save did not persist.
	ErrSaveFailed = errors.New("store did not save record")
)

// DecodeError indicates a stored field that could not be decoded.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DecodeError struct {
	Key   string
	Field string
	cause error
}

// NewDecodeError wraps cause as a DecodeError for the given key and field.
func NewDecodeError(key, field string, cause error) *DecodeError {
	return &DecodeError{Key: key, Field: field, cause: cause}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s field %q: %v", e.Key, e.Field, e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }
