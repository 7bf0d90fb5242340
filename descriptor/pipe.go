package descriptor

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/process_error"
)

// Pipe is a unidirectional OS pipe with close-on-exec applied to both ends.
type Pipe struct {
	Read  *Descriptor
	Write *Descriptor

	// CreatedAtomically is false when the platform refused the atomic
	// CLOEXEC variant and the flag was applied via fcntl afterwards. In
	// that window a concurrent fork can leak the descriptors; the fork
	// launch path compensates by re-sweeping the child's fd table.
	CreatedAtomically bool
}

// NewPipe creates a pipe with O_CLOEXEC on both ends. pipe2 is preferred;
// when it is unavailable the flags are set via fcntl after the fact and
// CreatedAtomically reports false.
func NewPipe() (*Pipe, error) {
	var fds [2]int

	err := unix.Pipe2(fds[:], unix.O_CLOEXEC)
	if err == nil {
		return &Pipe{
			Read:              New(fds[0]),
			Write:             New(fds[1]),
			CreatedAtomically: true,
		}, nil
	}

	if !errors.Is(err, unix.ENOSYS) {
		return nil, process_error.Wrap(process_error.IO, "pipe2", err)
	}

	if err := unix.Pipe(fds[:]); err != nil {
		return nil, process_error.Wrap(process_error.IO, "pipe", err)
	}

	p := &Pipe{
		Read:  New(fds[0]),
		Write: New(fds[1]),
	}

	for _, d := range []*Descriptor{p.Read, p.Write} {
		if err := d.SetCloexec(true); err != nil {
			primary := process_error.Wrap(process_error.IO, "set FD_CLOEXEC on pipe", err)
			primary.Suppress(p.Close())
			return nil, primary
		}
	}

	return p, nil
}

// Close closes both ends and returns the first error encountered; when
// both ends fail, the write end's error is dropped.
func (p *Pipe) Close() error {
	return CloseAll(p.Read, p.Write)
}
