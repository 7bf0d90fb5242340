// Package descriptor provides ownership of raw OS file descriptors: each
// Descriptor closes exactly once, and the three standard descriptors are
// never closed through it.
package descriptor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/process_error"
)

// Descriptor owns one OS file descriptor.
type Descriptor struct {
	mu     sync.Mutex
	fd     int
	closed bool
}

// New wraps an already-open file descriptor.
func New(fd int) *Descriptor {
	return &Descriptor{fd: fd}
}

// Fd returns the raw descriptor number. The result is only meaningful while
// the Descriptor is open.
func (d *Descriptor) Fd() int {
	return d.fd
}

// IsClosed reports whether Close has been called.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close releases the descriptor. It is idempotent: the second and later
// calls return nil. Closing one of the standard descriptors (0, 1, 2) is
// forbidden and returns an Invalid error without touching the fd.
func (d *Descriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	if d.fd >= 0 && d.fd <= 2 {
		return process_error.Newf(process_error.Invalid, "refusing to close standard descriptor %d", d.fd)
	}

	d.closed = true

	if err := unix.Close(d.fd); err != nil {
		return process_error.Wrap(process_error.IO, "close", err)
	}

	return nil
}

// SetCloexec sets or clears FD_CLOEXEC on the descriptor.
func (d *Descriptor) SetCloexec(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return process_error.New(process_error.Closed, "descriptor is closed")
	}

	flags, err := unix.FcntlInt(uintptr(d.fd), unix.F_GETFD, 0)
	if err != nil {
		return process_error.Wrap(process_error.IO, "fcntl(F_GETFD)", err)
	}

	if enabled {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}

	if _, err := unix.FcntlInt(uintptr(d.fd), unix.F_SETFD, flags); err != nil {
		return process_error.Wrap(process_error.IO, "fcntl(F_SETFD)", err)
	}

	return nil
}

// SetNonblock sets or clears O_NONBLOCK on the descriptor.
func (d *Descriptor) SetNonblock(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return process_error.New(process_error.Closed, "descriptor is closed")
	}

	if err := unix.SetNonblock(d.fd, enabled); err != nil {
		return process_error.Wrap(process_error.IO, "fcntl(O_NONBLOCK)", err)
	}

	return nil
}

// CloseAll makes a best-effort pass over descriptors, closing each one and
// returning the first error encountered. Nil entries are skipped.
func CloseAll(descriptors ...*Descriptor) error {
	var firstError error
	for _, d := range descriptors {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}
