// Package blob provides device-local key-value stores for binary attachments.
// Stores open their underlying handle lazily on first use; concurrent first calls
// share one open attempt and its outcome.
package blob

import (
	"errors"
	"fmt"
)

// ErrStorageIO is matched by every failure reported by a blob store.
var ErrStorageIO = errors.New("blob storage unavailable")

// IOError describes a failed blob store operation.
// Matches ErrStorageIO via errors.Is(); supports Unwrap().
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("blob: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blob: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrStorageIO }

func ioErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Key: key, Err: err}
}
