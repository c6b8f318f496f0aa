// Package fiascoerr defines the typed error kinds shared across the
// codec core.
package fiascoerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a core error so callers can decide whether a failure is
// fatal to the whole operation or merely to the current frame/range.
type Kind int

const (
	// IO covers files that cannot be opened, are truncated, or were
	// short-written. Fatal to the frame.
	IO Kind = iota
	// FormatInvalid covers magic mismatches, unsupported release numbers,
	// and Rice codes that exceed their declared bounds. Fatal.
	FormatInvalid
	// ParameterOutOfRange covers invalid quality, mantissa bits, tiling
	// method or frame-type letters. Some parameters are clamped with a
	// warning instead of failing; see Clamped.
	ParameterOutOfRange
	// Numerical covers negative image norms and coefficient over/underflow
	// detected during matching pursuit. Usually recoverable by the caller
	// (discard the candidate, retry).
	Numerical
	// StateLimit covers exceeding MAXSTATES or MAXEDGES. Fatal for the
	// frame.
	StateLimit
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case FormatInvalid:
		return "format-invalid"
	case ParameterOutOfRange:
		return "parameter-out-of-range"
	case Numerical:
		return "numerical"
	case StateLimit:
		return "state-limit"
	default:
		return "unknown"
	}
}

// Error is the structured error value returned by core packages. Op names
// the failing operation (e.g. "rpf.Quantize", "bitstream.ReadHeader") so a
// caller can log a precise trail without parsing message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fiasco: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("fiasco: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error, wrapping err with errors.WithStack when non-nil so
// the original call site survives across package boundaries.
func New(kind Kind, op string, err error) *Error {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
