package launcher

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/descriptor"
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/spawn_context"
	"github.com/spawnio/spawn-utils/stdio_handler"
)

// childLaunchState is assembled entirely in the parent so the child branch
// between fork and exec allocates nothing and runs no user code.
type childLaunchState struct {
	errPipeReadFd  int
	errPipeWriteFd int

	plan []stdio_handler.DupAction

	// NUL-terminated C strings and pointer vectors, marshalled pre-fork.
	chdirPtr      *byte // nil when the cwd is inherited
	candidatePtrs []*byte
	argvPtrs      []*byte
	envPtrs       []*byte

	setpgid bool
}

// launchForkExec is the fallback launch strategy: fork, perform the stdio
// plan and hygiene steps in the child, exec, and report any child-side
// failure through the error pipe. On error the handle is fully released
// before returning.
func launchForkExec(opts Options, handle *stdio_handler.Handle) (int, error) {
	fail := func(err *process_error.Error) (int, error) {
		err.Suppress(handle.Close())
		return 0, err
	}

	errPipe, err := descriptor.NewPipe()
	if err != nil {
		return fail(process_error.Wrap(process_error.IO, "creating launch error pipe", err))
	}

	if !errPipe.CreatedAtomically {
		// The capped read loop below depends on a non-blocking read end.
		if err := errPipe.Read.SetNonblock(true); err != nil {
			primary := process_error.Wrap(process_error.IO, "configuring launch error pipe", err)
			primary.Suppress(errPipe.Close())
			return fail(primary)
		}
	}

	state, err := buildChildLaunchState(opts, handle, errPipe)
	if err != nil {
		pe, ok := err.(*process_error.Error)
		if !ok {
			pe = process_error.Wrap(process_error.Invalid, "marshalling exec arguments", err)
		}
		pe.Suppress(errPipe.Close())
		return fail(pe)
	}

	pid, errno := forkProcess()
	if errno != 0 {
		primary := process_error.FromErrno(errno, "fork")
		primary.Suppress(errPipe.Close())
		return fail(primary)
	}

	if pid == 0 {
		// Child. Never returns; on any failure it writes a tagged errno
		// to the error pipe and _exits 127.
		runChild(state)
	}

	// Parent: give up the write end so EOF means "exec happened".
	if err := errPipe.Write.Close(); err != nil {
		reapAbandonedChild(pid)
		primary := process_error.Wrap(process_error.IO, "closing error pipe write end", err)
		primary.Suppress(errPipe.Read.Close())
		return fail(primary)
	}

	record, n, readErr := readErrorPipe(errPipe.Read, errPipe.CreatedAtomically, opts.Tunables)
	closeErr := errPipe.Read.Close()

	switch {
	case readErr != nil:
		reapAbandonedChild(pid)
		pe, ok := readErr.(*process_error.Error)
		if !ok {
			pe = process_error.Wrap(process_error.IO, "reading launch error pipe", readErr)
		}
		pe.Suppress(closeErr)
		return fail(pe)

	case n == 0:
		// exec succeeded; CLOEXEC closed the pipe.
		return pid, nil

	case n == childFailureRecordSize:
		failure, decodeErr := decodeChildFailure(record[:n])
		reapAbandonedChild(pid)
		if decodeErr != nil {
			pe := decodeErr.(*process_error.Error)
			pe.Suppress(closeErr)
			return fail(pe)
		}
		primary := failure.toError()
		primary.Suppress(closeErr)
		return fail(primary)

	default:
		reapAbandonedChild(pid)
		primary := process_error.Newf(process_error.IO, "error pipe protocol violation: short read of %d bytes", n)
		primary.Suppress(closeErr)
		return fail(primary)
	}
}

func buildChildLaunchState(opts Options, handle *stdio_handler.Handle, errPipe *descriptor.Pipe) (*childLaunchState, error) {
	state := &childLaunchState{
		errPipeReadFd:  errPipe.Read.Fd(),
		errPipeWriteFd: errPipe.Write.Fd(),
		plan:           handle.Plan(),
		setpgid:        opts.DetachGroup,
	}

	if opts.Cwd != "" {
		ptr, err := unix.BytePtrFromString(opts.Cwd)
		if err != nil {
			return nil, process_error.New(process_error.Invalid, "cwd contains a NUL byte")
		}
		state.chdirPtr = ptr
	}

	for _, candidate := range execCandidates(opts.Command, opts.Env) {
		ptr, err := unix.BytePtrFromString(candidate)
		if err != nil {
			return nil, process_error.New(process_error.Invalid, "command path contains a NUL byte")
		}
		state.candidatePtrs = append(state.candidatePtrs, ptr)
	}

	argv := append([]string{opts.Command}, opts.Args...)
	argvPtrs, err := unix.SlicePtrFromStrings(argv)
	if err != nil {
		return nil, process_error.New(process_error.Invalid, "argument contains a NUL byte")
	}
	state.argvPtrs = argvPtrs

	envPtrs, err := unix.SlicePtrFromStrings(opts.Env)
	if err != nil {
		return nil, process_error.New(process_error.Invalid, "environment entry contains a NUL byte")
	}
	state.envPtrs = envPtrs

	return state, nil
}

// runChild executes the child side of the fork protocol: close the error
// pipe read end, apply the dup2 plan, sweep FD_CLOEXEC over the open
// descriptor table, chdir, clear the signal mask, then exec. Each step that
// fails writes (errno, tag) to the error pipe and _exits 127. No unwinding,
// no user code.
func runChild(s *childLaunchState) {
	rawClose(s.errPipeReadFd)

	for _, action := range s.plan {
		if errno := rawDup2(action.Source, action.Target); errno != 0 {
			childFailExit(s, errno, tagDup2)
		}
	}

	if errno := childCloexecSweep(); errno != 0 {
		childFailExit(s, errno, tagFdCloexec)
	}

	if s.chdirPtr != nil {
		if errno := rawChdir(s.chdirPtr); errno != 0 {
			childFailExit(s, errno, tagChdir)
		}
	}

	if errno := rawResetSignalMask(); errno != 0 {
		childFailExit(s, errno, tagSigMask)
	}

	if s.setpgid {
		// Best effort; a child that cannot lead a group is still viable.
		rawSetpgid()
	}

	lastErrno := unix.ENOENT
	for _, candidate := range s.candidatePtrs {
		errno := rawExecve(candidate, s.argvPtrs, s.envPtrs)
		if errno == unix.ETXTBSY {
			// A writer may still be closing the binary; give it a moment.
			childSleepBrief()
			errno = rawExecve(candidate, s.argvPtrs, s.envPtrs)
		}
		lastErrno = errno
	}

	childFailExit(s, lastErrno, tagExec)
}

func childFailExit(s *childLaunchState, errno unix.Errno, tag byte) {
	buf := encodeChildFailure(errno, tag)
	rawWrite(s.errPipeWriteFd, buf[:])
	rawExit(127)
}

// readErrorPipe reads up to one failure record from the error pipe's read
// end. With an atomically-created pipe the read blocks until the child
// execs or dies. With the fcntl fallback the read end is non-blocking and
// the loop is capped: a descriptor leaked into an unrelated fork would
// otherwise keep the pipe open forever. Hitting the cap is treated as a
// successful exec; the cap is tunable via spawn_context.
func readErrorPipe(read *descriptor.Descriptor, atomic bool, tunables spawn_context.Tunables) ([childFailureRecordSize]byte, int, error) {
	var record [childFailureRecordSize]byte
	total := 0
	attempts := 0

	for total < childFailureRecordSize {
		n, err := unix.Read(read.Fd(), record[total:])
		if err == nil {
			if n == 0 {
				return record, total, nil // EOF
			}
			total += n
			continue
		}

		if errors.Is(err, unix.EINTR) {
			continue
		}

		if !atomic && errors.Is(err, unix.EAGAIN) {
			attempts++
			if attempts >= tunables.ErrorPipeReadAttempts {
				return record, 0, nil
			}
			time.Sleep(time.Millisecond)
			continue
		}

		return record, total, process_error.Wrap(process_error.IO, "reading launch error pipe", err)
	}

	return record, total, nil
}
