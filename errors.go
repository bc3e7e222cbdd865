package setaside

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/setaside/internal/blob"
	"github.com/hyperengineering/setaside/internal/metadata"
)

// Common errors returned by the coordinator.
var (
	// ErrNotFound is returned when a collection or item id is not known.
	ErrNotFound = errors.New("collection not found")

	// ErrQuotaExceeded is returned when a metadata write exceeds the store's capacity.
	ErrQuotaExceeded = metadata.ErrQuotaExceeded

	// ErrStorageIO is returned when the blob store cannot be used.
	ErrStorageIO = blob.ErrStorageIO

	// ErrCaptureFailed is returned by a Capturer that could not produce attachments.
	ErrCaptureFailed = errors.New("tab capture failed")

	// ErrMalformedRecord is returned when a stored record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("coordinator already initialized")

	// ErrNotReady is returned when the coordinator is used before Init.
	ErrNotReady = errors.New("coordinator not initialized")

	// ErrEmptyCollection is returned when asked to persist a collection without items.
	ErrEmptyCollection = errors.New("collection has no items")

	// ErrOpenUnavailable is returned when restoring without a tab opener.
	ErrOpenUnavailable = errors.New("no tab opener configured")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// RecordError describes a record that failed to decode.
// Matches ErrMalformedRecord via errors.Is(); supports Unwrap().
type RecordError struct {
	Key string
	Err error
}

func (e *RecordError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("record: %v", e.Err)
	}
	return fmt.Sprintf("record %s: %v", e.Key, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func (e *RecordError) Is(target error) bool { return target == ErrMalformedRecord }
