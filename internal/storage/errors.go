package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrPersistence marks a storage-layer failure. Callers may retry; no partial
// aggregate state is left behind by the operation that returned it.
var ErrPersistence = errors.New("persistence failure")

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *opError) Unwrap() []error { return []error{ErrPersistence, e.err} }

// Wrap tags err as a persistence failure of op. nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *opError
	if errors.As(err, &oe) {
		return err
	}
	return &opError{op: op, err: err}
}

// IsTimeout reports whether err came from a cancelled or expired context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
