package descriptor

import (
	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/process_error"
)

// OpenForRead opens path read-only with O_CLOEXEC, for wiring into a
// child's stdin slot.
func OpenForRead(path string) (*Descriptor, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(path, "reading", err)
	}

	return New(fd), nil
}

// OpenForWrite opens (creating if needed, mode 0644) path write-only with
// O_CLOEXEC, for wiring into a child's stdout or stderr slot. With append
// set the file is opened O_APPEND, otherwise it is truncated.
func OpenForWrite(path string, append bool) (*Descriptor, error) {
	flags := unix.O_WRONLY | unix.O_CREAT | unix.O_CLOEXEC
	if append {
		flags |= unix.O_APPEND
	} else {
		flags |= unix.O_TRUNC
	}

	fd, err := unix.Open(path, flags, 0o644)
	if err != nil {
		return nil, openError(path, "writing", err)
	}

	return New(fd), nil
}

// openError classifies an open failure: ENOENT surfaces as FileNotFound,
// EINTR as Interrupted, anything else as IO.
func openError(path, purpose string, err error) error {
	if errno, ok := err.(unix.Errno); ok {
		return process_error.FromErrno(errno, "open "+path+" for "+purpose)
	}

	return process_error.Wrap(process_error.IO, "open "+path+" for "+purpose, err)
}
