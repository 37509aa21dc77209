package lsmkv

import (
	"errors"
	"fmt"

	"github.com/aalhour/lsmkv/internal/bloom"
	"github.com/aalhour/lsmkv/internal/page"
	"github.com/aalhour/lsmkv/internal/run"
)

// The three-tier error taxonomy — usage, I/O, and corruption — tested
// with errors.Is. I/O errors are not a sentinel here: they are surfaced
// unwrapped from the underlying internal/vfs call, so callers use
// errors.Is against the standard io/fs sentinels (fs.ErrNotExist, etc.)
// where relevant.
var (
	// ErrUsage wraps every invalid-configuration or invalid-call error:
	// no state is mutated when one of these is returned.
	ErrUsage = errors.New("lsmkv: usage error")

	// ErrTombstoneValue is returned by Put when the caller attempts to
	// store dbformat.ValueMin, the reserved tombstone sentinel.
	ErrTombstoneValue = fmt.Errorf("%w: VALUE_MIN is reserved as the tombstone sentinel and cannot be stored", ErrUsage)

	// ErrInvalidDBName is returned by Open when name contains whitespace.
	ErrInvalidDBName = fmt.Errorf("%w: database name must not contain whitespace", ErrUsage)

	// ErrInvalidOption is returned by an Options setter whose argument
	// fails validation; values are validated at call time rather than
	// deferred to Open.
	ErrInvalidOption = fmt.Errorf("%w: invalid option value", ErrUsage)

	// ErrClosed is returned by any operation called after Close.
	ErrClosed = fmt.Errorf("%w: database is closed", ErrUsage)

	// ErrCorruption wraps a page, run, or filter whose on-disk layout is
	// invalid: fatal for the operation that hit it, the engine refuses to
	// use the offending run rather than guessing.
	ErrCorruption = errors.New("lsmkv: corruption")
)

// wrapErr promotes a corruption-flavored error from an internal package
// into one that errors.Is(_, ErrCorruption) recognizes, leaving every
// other error (including I/O errors from internal/vfs) untouched.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, page.ErrBadPage),
		errors.Is(err, run.ErrCorruptRun),
		errors.Is(err, bloom.ErrCorruptFilter),
		errors.Is(err, bloom.ErrFilterSizeMismatch):
		return fmt.Errorf("%w: %v", ErrCorruption, err)
	default:
		return err
	}
}
