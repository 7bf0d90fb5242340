// Package launcher turns a fully-assembled command description into a
// running Child. Two strategies exist with identical observable semantics:
// a posix_spawn fast path (Darwin) and a fork+exec fallback. Child-side
// failures on the fallback path travel back to the parent over a dedicated
// error pipe; see error_pipe.go for the wire format.
package launcher

import (
	"errors"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/child"
	"github.com/spawnio/spawn-utils/logger"
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/spawn_context"
	"github.com/spawnio/spawn-utils/stdio_config"
	"github.com/spawnio/spawn-utils/stdio_handler"
)

// Options is the launcher's input: a command description plus the lifecycle
// policy the resulting Child inherits.
type Options struct {
	// Command is the program to execute. A value containing a path
	// separator is executed directly; a bare name is resolved against
	// PATH.
	Command string

	// Args is the argument vector, not including the command itself.
	Args []string

	// Env is the complete child environment as "key=value" entries. It
	// must be the owned snapshot assembled by the builder; the launcher
	// never consults the process environment.
	Env []string

	// Cwd is the child's working directory; empty inherits the parent's.
	Cwd string

	// Stdio configures the three standard slots.
	Stdio stdio_config.Config

	// DestroySignal is sent by Child.Destroy. SIGTERM or SIGKILL.
	DestroySignal unix.Signal

	// DetachGroup places the child in its own process group so Destroy
	// can signal the whole group.
	DetachGroup bool

	// MemoryLimitBytes enables the cgroup memory monitor when positive
	// (Linux only).
	MemoryLimitBytes int64

	// OnError receives ProcessExceptions raised outside the launch
	// critical path.
	OnError process_error.Handler

	// Tunables carries the resolved library tunables.
	Tunables spawn_context.Tunables

	// Log, when non-nil, receives debug traces of path selection and pid.
	Log *logger.Logger
}

// Launch validates the options, realizes the stdio handle, and starts the
// child via the fast path when available, falling back to fork+exec. On
// failure no child process remains and no descriptors stay open.
func Launch(opts Options) (*child.Child, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, process_error.New(process_error.Invalid, "command must not be blank")
	}

	if strings.HasPrefix(opts.Command, "/") {
		if _, err := os.Stat(opts.Command); err != nil {
			return nil, process_error.Newf(process_error.FileNotFound, "%s not found", opts.Command)
		}
	}

	if opts.Cwd != "" {
		info, err := os.Stat(opts.Cwd)
		if err != nil || !info.IsDir() {
			return nil, process_error.Newf(process_error.FileNotFound, "chdir target %s does not exist", opts.Cwd)
		}
	}

	handle, err := stdio_handler.Realize(opts.Stdio)
	if err != nil {
		return nil, err
	}

	pid, err := launchSpawnFast(opts, handle)
	if err != nil {
		if !process_error.IsKind(err, process_error.Unsupported) {
			if pe, ok := err.(*process_error.Error); ok {
				pe.Suppress(handle.Close())
			} else {
				handle.Close()
			}
			return nil, err
		}

		if opts.Log != nil {
			opts.Log.Debugf("spawn fast path declined (%v), using fork+exec", err)
		}

		pid, err = launchForkExec(opts, handle)
		if err != nil {
			// launchForkExec already released the handle.
			return nil, err
		}
	} else if opts.Log != nil {
		opts.Log.Debugf("spawned pid %d via posix_spawn", pid)
	}

	if err := handle.PruneChildEnds(); err != nil {
		reapAbandonedChild(pid)
		primary := process_error.Wrap(process_error.IO, "closing child-side descriptors after launch", err)
		primary.Suppress(handle.Close())
		return nil, primary
	}

	return child.New(child.Params{
		Pid:              pid,
		Command:          opts.Command,
		Args:             opts.Args,
		Env:              opts.Env,
		Cwd:              opts.Cwd,
		Handle:           handle,
		DestroySignal:    opts.DestroySignal,
		DetachGroup:      opts.DetachGroup,
		MemoryLimitBytes: opts.MemoryLimitBytes,
		OnError:          opts.OnError,
		Tunables:         opts.Tunables,
		Log:              opts.Log,
	}), nil
}

// reapAbandonedChild force-kills and reaps a child that failed launch-side
// validation after the process itself already existed.
func reapAbandonedChild(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)

	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		if !errors.Is(err, unix.EINTR) {
			return
		}
	}
}

// execCandidates returns the absolute-exec candidates for command: the
// command itself when it carries a path separator, otherwise one candidate
// per PATH component. PATH is taken from the child environment snapshot so
// resolution matches what the child would see.
func execCandidates(command string, env []string) []string {
	if strings.Contains(command, "/") {
		return []string{command}
	}

	pathValue := ""
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			pathValue = v
		}
	}
	if pathValue == "" {
		pathValue = "/usr/local/bin:/usr/bin:/bin"
	}

	components := strings.Split(pathValue, ":")
	candidates := make([]string, 0, len(components))
	for _, dir := range components {
		if dir == "" {
			dir = "."
		}
		candidates = append(candidates, dir+"/"+command)
	}

	return candidates
}
