package stdio_stream

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/descriptor"
	"github.com/spawnio/spawn-utils/process_error"
)

// WriteStream writes to the parent-side end of a stdin pipe.
type WriteStream struct {
	fd *descriptor.Descriptor
}

// NewWriteStream wraps a descriptor. Ownership is shared with the Child
// holding the same descriptor.
func NewWriteStream(fd *descriptor.Descriptor) *WriteStream {
	return &WriteStream{fd: fd}
}

// Write writes all of p, looping over short writes and retrying EINTR.
// Three consecutive interrupts with no forward progress surface
// Interrupted; the returned count is the bytes written before the failure.
func (w *WriteStream) Write(p []byte) (int, error) {
	if w.fd.IsClosed() {
		return 0, process_error.New(process_error.Closed, "write stream is closed")
	}

	written := 0
	interrupts := 0

	for written < len(p) {
		n, err := unix.Write(w.fd.Fd(), p[written:])
		if n > 0 {
			written += n
			interrupts = 0
		}

		if err == nil {
			continue
		}

		if errors.Is(err, unix.EINTR) {
			interrupts++
			if interrupts >= maxConsecutiveInterrupts {
				return written, process_error.New(process_error.Interrupted, "write interrupted repeatedly with no progress")
			}
			continue
		}

		if w.fd.IsClosed() || errors.Is(err, unix.EBADF) {
			return written, process_error.New(process_error.Closed, "write stream is closed")
		}

		return written, process_error.Wrap(process_error.IO, "write", err)
	}

	return written, nil
}

// Close releases the underlying descriptor. For a stdin pipe this delivers
// EOF to the child. Subsequent writes fail Closed.
func (w *WriteStream) Close() error {
	return w.fd.Close()
}

// Fd exposes the raw descriptor number for handle bookkeeping.
func (w *WriteStream) Fd() int {
	return w.fd.Fd()
}
