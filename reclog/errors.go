package reclog

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMagic is returned when a file does not start with the
	// record log magic number.
	ErrInvalidMagic = errors.New("invalid magic number")

	// ErrInvalidVersion is returned for an unsupported format version.
	ErrInvalidVersion = errors.New("unsupported format version")

	// ErrClosed is returned for operations on a closed log.
	ErrClosed = errors.New("record log is closed")
)

// CorruptError indicates that a record's declared length is inconsistent
// with the file contents at the given offset.
type CorruptError struct {
	Offset int64
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt record at offset %d: %s", e.Offset, e.Reason)
}

// StoredDimensionError indicates that an existing file was created with a
// different vector dimension than the one requested on open.
type StoredDimensionError struct {
	Requested int
	Stored    int
}

func (e *StoredDimensionError) Error() string {
	return fmt.Sprintf("stored dimension mismatch: requested %d, file has %d", e.Requested, e.Stored)
}

// SnapshotError indicates that the index snapshot section could not be
// used. It is always recoverable: the caller falls back to a full replay.
type SnapshotError struct {
	Reason string
	cause  error
}

func (e *SnapshotError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("unusable index snapshot: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("unusable index snapshot: %s", e.Reason)
}

func (e *SnapshotError) Unwrap() error { return e.cause }
