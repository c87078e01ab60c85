package embedcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/embedcache/reclog"
)

var (
	// ErrNotFound is returned when a key or similarity match is not found.
	// It signals an empty result, not a fault.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidHandle is returned when a handle does not resolve to an
	// open store (never opened, or already closed).
	ErrInvalidHandle = errors.New("invalid handle")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrCorrupt indicates an inconsistency between a record's declared
// length and the file contents. It only fails the single operation that
// hit it; the store stays usable.
type ErrCorrupt struct {
	Offset int64
	cause  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("corrupt record at offset %d: %v", e.Offset, e.cause)
}

func (e *ErrCorrupt) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, reclog.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	var sde *reclog.StoredDimensionError
	if errors.As(err, &sde) {
		return &ErrDimensionMismatch{Expected: sde.Stored, Actual: sde.Requested, cause: err}
	}

	var ce *reclog.CorruptError
	if errors.As(err, &ce) {
		return &ErrCorrupt{Offset: ce.Offset, cause: err}
	}

	return err
}
