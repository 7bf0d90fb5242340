package launcher

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/process_error"
)

// Child-failure tags. When the forked child fails between fork and exec it
// writes exactly five bytes to the error pipe: a big-endian 32-bit errno
// followed by one of these tags. Tag 0 is never written; observing it means
// the pipe carried garbage.
const (
	tagDup2      byte = 1
	tagFdCloexec byte = 2
	tagChdir     byte = 3
	tagSigMask   byte = 4
	tagExec      byte = 5
)

// childFailureRecordSize is the exact on-wire size of a failure record.
const childFailureRecordSize = 5

type childFailure struct {
	errno unix.Errno
	tag   byte
}

func encodeChildFailure(errno unix.Errno, tag byte) [childFailureRecordSize]byte {
	var buf [childFailureRecordSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(errno))
	buf[4] = tag
	return buf
}

func decodeChildFailure(buf []byte) (childFailure, error) {
	if len(buf) != childFailureRecordSize {
		return childFailure{}, process_error.Newf(process_error.IO, "error pipe protocol violation: read %d bytes, want %d", len(buf), childFailureRecordSize)
	}

	tag := buf[4]
	if tag < tagDup2 || tag > tagExec {
		return childFailure{}, process_error.Newf(process_error.IO, "error pipe protocol violation: unknown tag %d", tag)
	}

	return childFailure{
		errno: unix.Errno(binary.BigEndian.Uint32(buf[0:4])),
		tag:   tag,
	}, nil
}

// toError maps a decoded failure record to the caller-facing error. ENOENT
// surfaces as FileNotFound regardless of the failing step.
func (f childFailure) toError() *process_error.Error {
	var step string
	switch f.tag {
	case tagDup2:
		step = "dup2"
	case tagFdCloexec:
		step = "FD_CLOEXEC"
	case tagChdir:
		step = "chdir"
	case tagSigMask:
		step = "signal mask"
	case tagExec:
		step = "exec"
	}

	msg := "Child process " + step + " failure before exec"

	if f.errno == unix.ENOENT {
		e := process_error.New(process_error.FileNotFound, msg)
		e.Errno = f.errno
		return e
	}

	return process_error.FromErrno(f.errno, msg)
}
