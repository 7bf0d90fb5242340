// Package process_error defines the error taxonomy shared by every layer of
// the library: launch failures, stream failures and lifecycle failures all
// surface as an *Error carrying a Kind, the OS error number where one exists,
// and any secondary errors suppressed during cleanup.
package process_error

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Kind classifies an Error.
type Kind int

const (
	// Invalid indicates builder misuse (blank command, out-of-range offsets).
	Invalid Kind = iota + 1

	// FileNotFound indicates an absolute command path that does not exist,
	// a missing working directory, or exec returning ENOENT.
	FileNotFound

	// IO indicates an OS call failure not otherwise classified.
	IO

	// Interrupted indicates a blocking call interrupted without progress.
	Interrupted

	// Closed indicates an operation on a closed stream or handle.
	Closed

	// Unsupported indicates a missing platform or libc capability. It is
	// mostly an internal signal from the fast launch path to the fallback
	// path, and reaches callers only when no fallback exists.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case FileNotFound:
		return "file not found"
	case IO:
		return "io"
	case Interrupted:
		return "interrupted"
	case Closed:
		return "closed"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the library's error type.
type Error struct {
	Kind  Kind
	Errno unix.Errno // 0 when no OS error number applies

	msg        string
	cause      error
	suppressed []error
}

// New returns an *Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf returns an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// FromErrno returns an *Error classified from an OS error number. ENOENT
// maps to FileNotFound, EINTR to Interrupted, everything else to IO.
func FromErrno(errno unix.Errno, msg string) *Error {
	kind := IO
	switch errno {
	case unix.ENOENT:
		kind = FileNotFound
	case unix.EINTR:
		kind = Interrupted
	}

	return &Error{Kind: kind, Errno: errno, msg: msg}
}

// Wrap returns an *Error wrapping cause. Unwrap exposes the cause to
// errors.Is / errors.As.
func Wrap(kind Kind, msg string, cause error) *Error {
	e := &Error{Kind: kind, msg: msg, cause: cause}

	var errno unix.Errno
	if errors.As(cause, &errno) {
		e.Errno = errno
	}

	return e
}

// Suppress attaches a secondary error encountered while unwinding from the
// primary failure (e.g. a close failure during error cleanup). Nil errors
// are ignored. Returns the receiver for chaining.
func (e *Error) Suppress(err error) *Error {
	if err != nil {
		e.suppressed = append(e.suppressed, err)
	}
	return e
}

// Suppressed returns the secondary errors attached via Suppress.
func (e *Error) Suppressed() []error {
	return e.suppressed
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)

	if e.Errno != 0 {
		fmt.Fprintf(&b, " (errno %d: %s)", int(e.Errno), e.Errno.Error())
	}

	if e.cause != nil {
		fmt.Fprintf(&b, ": %s", e.cause.Error())
	}

	if len(e.suppressed) > 0 {
		fmt.Fprintf(&b, " [suppressed: ")
		for i, s := range e.suppressed {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(s.Error())
		}
		b.WriteString("]")
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports kind equality so callers can use errors.Is with a bare
// kind-only *Error as the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && (t.msg == "" || t.msg == e.msg)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Kind == kind
}
