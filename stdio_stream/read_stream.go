// Package stdio_stream implements byte-level I/O over pipe descriptors with
// EINTR retry and short-write handling.
package stdio_stream

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/descriptor"
	"github.com/spawnio/spawn-utils/process_error"
)

// maxConsecutiveInterrupts is how many EINTRs with no progress a stream
// tolerates before surfacing Interrupted.
const maxConsecutiveInterrupts = 3

// ReadStream reads from the parent-side end of a stdout/stderr pipe.
type ReadStream struct {
	fd *descriptor.Descriptor
}

// NewReadStream wraps a descriptor. The stream shares ownership with the
// Child holding the same descriptor; Close on either side is safe.
func NewReadStream(fd *descriptor.Descriptor) *ReadStream {
	return &ReadStream{fd: fd}
}

// Read reads up to len(p) bytes, returning the count read. End of stream
// is reported as a zero count with ErrEndOfStream (io.EOF, for io.Reader
// compatibility); a zero count with a nil error is returned only for an
// empty p. EINTR retries until data arrives or the interrupt budget runs
// out.
func (r *ReadStream) Read(p []byte) (int, error) {
	if r.fd.IsClosed() {
		return 0, process_error.New(process_error.Closed, "read stream is closed")
	}

	if len(p) == 0 {
		return 0, nil
	}

	interrupts := 0
	for {
		n, err := unix.Read(r.fd.Fd(), p)
		if err == nil {
			if n == 0 {
				return 0, ErrEndOfStream
			}
			return n, nil
		}

		if errors.Is(err, unix.EINTR) {
			interrupts++
			if interrupts >= maxConsecutiveInterrupts {
				return 0, process_error.New(process_error.Interrupted, "read interrupted repeatedly with no progress")
			}
			continue
		}

		if r.fd.IsClosed() || errors.Is(err, unix.EBADF) {
			return 0, process_error.New(process_error.Closed, "read stream is closed")
		}

		return 0, process_error.Wrap(process_error.IO, "read", err)
	}
}

// Close releases the underlying descriptor. Subsequent reads fail Closed.
func (r *ReadStream) Close() error {
	return r.fd.Close()
}

// Fd exposes the raw descriptor number for handle bookkeeping.
func (r *ReadStream) Fd() int {
	return r.fd.Fd()
}
