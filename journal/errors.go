package journal

import (
	"errors"
	"fmt"
)

// Sentinel errors, checkable with errors.Is()

var (
	// ErrEmptyRunID is returned when a run ID parameter is empty or missing
	ErrEmptyRunID = fmt.Errorf("run ID cannot be empty")

	// ErrRecordNotFound is returned when a run record doesn't exist in the journal
	ErrRecordNotFound = fmt.Errorf("journal record not found")

	// ErrBucketNotFound is returned when a required journal bucket doesn't exist
	ErrBucketNotFound = fmt.Errorf("journal bucket not found")
)

// DatabaseError wraps journal database operation errors with context about
// the operation and bucket involved.
type DatabaseError struct {
	// Op is the operation that failed (e.g., "open", "create bucket")
	Op string

	// Bucket is the bucket name involved in the operation (empty if not applicable)
	Bucket string

	// Err is the underlying error that caused the failure
	Err error
}

func (e *DatabaseError) Error() string {
	if e.Bucket != "" {
		return fmt.Sprintf("journal %s [bucket: %s]: %v", e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("journal %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// RecordError wraps run record operation errors with context about which
// record was involved and what operation failed.
type RecordError struct {
	// Op is the operation that failed (e.g., "save", "get", "update")
	Op string

	// RunID is the run identifier involved in the operation
	RunID string

	// Err is the underlying error that caused the failure
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("journal record %s [run: %s]: %v", e.Op, e.RunID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// IsRecordNotFound checks if the error indicates a run record was not found.
func IsRecordNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
