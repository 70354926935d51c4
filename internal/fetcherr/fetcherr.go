// Package fetcherr defines the error taxonomy shared by every fetchengine
// component: a small Kind enum plus a wrapping *Error that satisfies
// errors.Is/errors.As against both Kind and the underlying cause.
package fetcherr

import "fmt"

// Kind classifies the broad category a failure falls into. It is a
// classification, not a distinct Go type per error — every *Error carries one.
type Kind int

const (
	// Unknown is the zero value; it should never appear on a returned error.
	Unknown Kind = iota
	// InputError covers invalid ranges, invalid paths, AppendStrict collisions
	// and disallowed extensions. Reported before any chunk is fetched.
	InputError
	// ProbeError covers HEAD/headers-only-GET probe failures. Non-fatal.
	ProbeError
	// TransientNetworkError covers retriable network resets, 5xx and 408/429.
	TransientNetworkError
	// FatalNetworkError covers non-retriable 4xx and DNS/TLS misconfiguration.
	FatalNetworkError
	// IntegrityError covers response-length mismatches and bad Content-Range.
	IntegrityError
	// LocalIOError covers disk-full, permission-denied and rename conflicts.
	LocalIOError
	// CancellationError marks an explicit, user-requested cancel.
	CancellationError
	// TimeoutError marks a per-attempt deadline expiry; counts as transient.
	TimeoutError
)

func (k Kind) String() string {
	switch k {
	case InputError:
		return "InputError"
	case ProbeError:
		return "ProbeError"
	case TransientNetworkError:
		return "TransientNetworkError"
	case FatalNetworkError:
		return "FatalNetworkError"
	case IntegrityError:
		return "IntegrityError"
	case LocalIOError:
		return "LocalIOError"
	case CancellationError:
		return "CancellationError"
	case TimeoutError:
		return "TimeoutError"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind, an optional chunk index (-1 when not chunk-specific)
// and the underlying cause.
type Error struct {
	Kind       Kind
	ChunkIndex int
	Cause      error
	msg        string
}

func (e *Error) Error() string {
	if e.ChunkIndex >= 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s (chunk %d): %s: %v", e.Kind, e.ChunkIndex, e.msg, e.Cause)
		}
		return fmt.Sprintf("%s (chunk %d): %s", e.Kind, e.ChunkIndex, e.msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, fetcherr.New(SomeKind, "")) match purely on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a chunk-agnostic error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, ChunkIndex: -1, msg: msg}
}

// Wrap builds a chunk-agnostic error of the given kind around cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, ChunkIndex: -1, msg: msg, Cause: cause}
}

// WrapChunk builds a chunk-specific error of the given kind around cause.
func WrapChunk(kind Kind, chunkIndex int, msg string, cause error) *Error {
	return &Error{Kind: kind, ChunkIndex: chunkIndex, msg: msg, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, reporting Unknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Unknown
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
