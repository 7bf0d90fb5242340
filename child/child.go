// Package child tracks a launched process: its pid, latched exit status,
// parent-side stdio endpoints, line-feed dispatch, and the one-shot destroy
// that releases every resource.
package child

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/line_feed"
	"github.com/spawnio/spawn-utils/logger"
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/spawn_context"
	"github.com/spawnio/spawn-utils/stdio_handler"
	"github.com/spawnio/spawn-utils/stdio_stream"
)

// Params carries everything the launcher hands over when constructing a
// Child. Ownership of the Handle transfers to the Child.
type Params struct {
	Pid              int
	Command          string
	Args             []string
	Env              []string
	Cwd              string
	Handle           *stdio_handler.Handle
	DestroySignal    unix.Signal
	DetachGroup      bool
	MemoryLimitBytes int64
	OnError          process_error.Handler
	Tunables         spawn_context.Tunables
	Log              *logger.Logger
}

// Child is a running or exited process. All methods are safe for
// concurrent use.
type Child struct {
	pid           int
	command       string
	args          []string
	env           []string
	cwd           string
	handle        *stdio_handler.Handle
	destroySignal unix.Signal
	detachGroup   bool
	onError       process_error.Handler
	tunables      spawn_context.Tunables
	log           *logger.Logger

	mu        sync.Mutex
	exitCode  *int
	destroyed bool

	destroyOnce sync.Once

	stdoutEngine *line_feed.Engine
	stderrEngine *line_feed.Engine
	stdoutReader sync.Once
	stderrReader sync.Once

	memoryMonitor *memoryMonitor
}

// New constructs a Child for an already-launched pid and starts the memory
// monitor when a limit was requested.
func New(params Params) *Child {
	c := &Child{
		pid:           params.Pid,
		command:       params.Command,
		args:          params.Args,
		env:           params.Env,
		cwd:           params.Cwd,
		handle:        params.Handle,
		destroySignal: params.DestroySignal,
		detachGroup:   params.DetachGroup,
		onError:       params.OnError,
		tunables:      params.Tunables,
		log:           params.Log,
		stdoutEngine:  line_feed.New(),
		stderrEngine:  line_feed.New(),
	}

	c.memoryMonitor = newMemoryMonitor(params.MemoryLimitBytes)
	c.memoryMonitor.start(params.Pid)

	return c
}

// Pid returns the child's process id. Valid in every state.
func (c *Child) Pid() int {
	return c.pid
}

// Command returns the launched program.
func (c *Child) Command() string {
	return c.command
}

// DestroySignal returns the signal Destroy sends.
func (c *Child) DestroySignal() unix.Signal {
	return c.destroySignal
}

// IsAlive reports whether no exit status has been latched yet. It performs
// a non-blocking wait and caches any status obtained.
func (c *Child) IsAlive() bool {
	return c.ExitCode() == nil
}

// ExitCode polls non-blockingly for the child's exit status. Once a status
// is obtained it is latched: every later call returns the same value. For
// normal termination the code is the low 8 bits of the exit status; for
// signal termination it is the signal number.
func (c *Child) ExitCode() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollExitCodeLocked()
}

func (c *Child) pollExitCodeLocked() *int {
	if c.exitCode != nil {
		return c.exitCode
	}

	var status unix.WaitStatus
	for {
		wpid, err := unix.Wait4(c.pid, &status, unix.WNOHANG, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ECHILD) {
				// Reaped elsewhere; the real status is unrecoverable.
				code := 127
				c.exitCode = &code
				return c.exitCode
			}
			return nil
		}

		if wpid != c.pid {
			return nil // still running
		}

		code := decodeWaitStatus(status)
		c.exitCode = &code

		if c.log != nil {
			c.log.Debugf("pid %d exited with code %d", c.pid, code)
		}

		return c.exitCode
	}
}

// decodeWaitStatus maps a wait status to the latched exit code: the exit
// status for normal termination, the signal number for signal termination.
func decodeWaitStatus(status unix.WaitStatus) int {
	if status.Signaled() {
		return int(status.Signal())
	}
	return status.ExitStatus() & 0xff
}

// Wait blocks until the exit code is latched and returns it.
func (c *Child) Wait() int {
	code, _ := c.waitDeadline(time.Time{})
	return code
}

// WaitTimeout blocks until the exit code is latched or the timeout
// elapses. Returns nil on timeout; the child keeps running.
func (c *Child) WaitTimeout(timeout time.Duration) *int {
	code, ok := c.waitDeadline(time.Now().Add(timeout))
	if !ok {
		return nil
	}
	return &code
}

// waitDeadline polls with an adaptive sleep, doubling from 1ms up to the
// configured cap. A zero deadline means wait forever.
func (c *Child) waitDeadline(deadline time.Time) (int, bool) {
	pollCap := time.Duration(c.tunables.WaitPollCapMillis) * time.Millisecond
	if pollCap <= 0 {
		pollCap = 100 * time.Millisecond
	}

	sleep := time.Millisecond
	for {
		if code := c.ExitCode(); code != nil {
			return *code, true
		}

		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, false
			}
			if sleep > remaining {
				sleep = remaining
			}
		}

		time.Sleep(sleep)

		sleep *= 2
		if sleep > pollCap {
			sleep = pollCap
		}
	}
}

// Destroy sends the configured destroy signal to the child (or its process
// group when detached placement was requested) if it is still alive, then
// closes the stdio handle. It is idempotent and never returns an error;
// failures are reported through the error handler.
func (c *Child) Destroy() {
	c.destroyOnce.Do(func() {
		c.mu.Lock()
		alive := c.pollExitCodeLocked() == nil
		c.destroyed = true
		c.mu.Unlock()

		if alive {
			target := c.pid
			if c.detachGroup {
				target = -c.pid
			}

			if err := unix.Kill(target, c.destroySignal); err != nil && !errors.Is(err, unix.ESRCH) {
				c.reportError(process_error.ContextDestroy, process_error.Wrap(process_error.IO, "sending destroy signal", err))
			}

			if c.log != nil {
				c.log.Debugf("sent %s to pid %d", unix.SignalName(c.destroySignal), c.pid)
			}
		}

		c.memoryMonitor.stop()

		// Readers blocked on the pipes observe EOF once the handle closes.
		if err := c.handle.Close(); err != nil {
			c.reportError(process_error.ContextDestroy, err)
		}
	})
}

// IsDestroyed reports whether Destroy has run.
func (c *Child) IsDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// WasOOMKilled reports whether the memory monitor observed an OOM kill of
// the child. Always false off Linux or without a configured limit.
func (c *Child) WasOOMKilled() bool {
	return c.memoryMonitor.wasOOMKilled()
}

// StdinWriter returns the parent-side write stream for a piped stdin slot,
// nil for Inherit and File slots.
func (c *Child) StdinWriter() *stdio_stream.WriteStream {
	return c.handle.ParentStdin()
}

// StdoutReader returns the parent-side read stream for a piped stdout
// slot, nil otherwise.
func (c *Child) StdoutReader() *stdio_stream.ReadStream {
	return c.handle.ParentStdout()
}

// StderrReader returns the parent-side read stream for a piped stderr
// slot, nil otherwise.
func (c *Child) StderrReader() *stdio_stream.ReadStream {
	return c.handle.ParentStderr()
}

// reportError delivers a ProcessException to the user handler. A handler
// that panics gets the child destroyed before the panic propagates; with
// no handler configured the error is dropped after a debug trace.
func (c *Child) reportError(context process_error.ExceptionContext, err error) {
	if c.onError == nil {
		if c.log != nil {
			c.log.Debugf("unhandled %s error: %v", context, err)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			// Re-entering Destroy from inside Destroy would deadlock the
			// once guard; the teardown is already underway in that case.
			if context != process_error.ContextDestroy {
				c.Destroy()
			}
			panic(r)
		}
	}()

	c.onError(&process_error.ProcessException{Context: context, Err: err})
}
