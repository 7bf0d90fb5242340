package process_error

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestFromErrnoClassification(t *testing.T) {
	assert.Equal(t, FileNotFound, FromErrno(unix.ENOENT, "open").Kind)
	assert.Equal(t, Interrupted, FromErrno(unix.EINTR, "read").Kind)
	assert.Equal(t, IO, FromErrno(unix.EPIPE, "write").Kind)
}

func TestIsKind(t *testing.T) {
	err := New(Closed, "stream is closed")
	assert.True(t, IsKind(err, Closed))
	assert.False(t, IsKind(err, IO))
	assert.False(t, IsKind(errors.New("plain"), Closed))
	assert.False(t, IsKind(nil, Closed))
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := New(FileNotFound, "missing")
	outer := Wrap(IO, "launch failed", inner)

	// The outer kind wins for the wrapper itself...
	assert.True(t, IsKind(outer, IO))
	// ...but the inner error stays reachable through the chain.
	assert.True(t, errors.Is(outer, inner))
}

func TestWrapExtractsErrno(t *testing.T) {
	err := Wrap(IO, "pipe", unix.EMFILE)
	assert.Equal(t, unix.EMFILE, err.Errno)
	assert.Contains(t, err.Error(), "too many open files")
}

func TestSuppressedErrorsAppearInMessage(t *testing.T) {
	err := New(IO, "primary failure")
	err.Suppress(errors.New("close also failed"))
	err.Suppress(nil)

	assert.Len(t, err.Suppressed(), 1)
	assert.Contains(t, err.Error(), "primary failure")
	assert.Contains(t, err.Error(), "close also failed")
}

func TestProcessExceptionWrapsInnerError(t *testing.T) {
	inner := New(IO, "kill failed")
	exception := &ProcessException{Context: ContextDestroy, Err: inner}

	assert.Contains(t, exception.Error(), "DESTROY")
	assert.True(t, errors.Is(exception, inner))
}
