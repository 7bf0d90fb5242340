// Package spawn_utils is a POSIX child-process spawning and lifecycle
// library: describe a command with a Builder, launch it, exchange data over
// pipes, observe termination, and destroy it deterministically.
package spawn_utils

import (
	"os"

	"go.chromium.org/luci/common/system/environ"
	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/child"
	"github.com/spawnio/spawn-utils/launcher"
	"github.com/spawnio/spawn-utils/logger"
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/spawn_context"
	"github.com/spawnio/spawn-utils/stdio_config"
)

// Destroy signals accepted by DestroySignal.
const (
	SIGTERM = unix.SIGTERM
	SIGKILL = unix.SIGKILL
)

// Builder assembles a command description. It exclusively owns its fields
// until Spawn hands them to the launcher; a Builder may be reused to spawn
// several children with the same configuration.
type Builder struct {
	command          string
	args             []string
	env              environ.Env
	cwd              string
	destroySignal    unix.Signal
	detachGroup      bool
	stdio            stdio_config.Config
	memoryLimitBytes int64
	onError          process_error.Handler
	log              *logger.Logger
}

// NewBuilder returns a Builder for the given command. The environment is
// seeded from the current process, all three stdio slots default to pipes,
// and the destroy signal defaults to SIGTERM.
func NewBuilder(command string, args ...string) *Builder {
	return &Builder{
		command:       command,
		args:          args,
		env:           environ.New(os.Environ()),
		destroySignal: unix.SIGTERM,
		stdio:         stdio_config.DefaultConfig(),
	}
}

// Args appends arguments to the argv passed to exec.
func (b *Builder) Args(args ...string) *Builder {
	b.args = append(b.args, args...)
	return b
}

// Environment sets one environment entry for the child.
func (b *Builder) Environment(key, value string) *Builder {
	b.env.Set(key, value)
	return b
}

// EnvironmentRemove removes one entry from the child environment.
func (b *Builder) EnvironmentRemove(key string) *Builder {
	b.env.Remove(key)
	return b
}

// EnvironmentFunc lets block edit the child environment in place.
func (b *Builder) EnvironmentFunc(block func(env environ.Env)) *Builder {
	block(b.env)
	return b
}

// ChangeDir sets the child's working directory. On platforms whose spawn
// fast path cannot express chdir the launcher falls back to fork+exec.
func (b *Builder) ChangeDir(path string) *Builder {
	b.cwd = path
	return b
}

// DestroySignal configures the signal Destroy sends: SIGTERM or SIGKILL.
// Other values fail Spawn with Invalid.
func (b *Builder) DestroySignal(sig unix.Signal) *Builder {
	b.destroySignal = sig
	return b
}

// DetachGroup places the child in its own process group, so Destroy
// signals the whole group.
func (b *Builder) DetachGroup() *Builder {
	b.detachGroup = true
	return b
}

// Stdin configures the stdin slot.
func (b *Builder) Stdin(slot stdio_config.Stdio) *Builder {
	b.stdio.Stdin = slot
	return b
}

// Stdout configures the stdout slot.
func (b *Builder) Stdout(slot stdio_config.Stdio) *Builder {
	b.stdio.Stdout = slot
	return b
}

// Stderr configures the stderr slot.
func (b *Builder) Stderr(slot stdio_config.Stdio) *Builder {
	b.stdio.Stderr = slot
	return b
}

// MemoryLimit enables cgroup-based memory limiting (Linux only) for the
// child. Zero disables.
func (b *Builder) MemoryLimit(bytes int64) *Builder {
	b.memoryLimitBytes = bytes
	return b
}

// OnError installs the handler receiving ProcessExceptions raised outside
// the launch critical path (destroy failures, feed dispatch failures).
func (b *Builder) OnError(handler process_error.Handler) *Builder {
	b.onError = handler
	return b
}

// Logger installs a logger for lifecycle debug traces.
func (b *Builder) Logger(l *logger.Logger) *Builder {
	b.log = l
	return b
}

// Spawn launches the described command and returns the running Child. A
// failed spawn leaves no child process alive and no library-owned
// descriptors open.
func (b *Builder) Spawn() (*child.Child, error) {
	if b.destroySignal != unix.SIGTERM && b.destroySignal != unix.SIGKILL {
		return nil, process_error.Newf(process_error.Invalid, "destroy signal must be SIGTERM or SIGKILL, got %d", int(b.destroySignal))
	}

	tunables, err := spawn_context.FromProcessEnv()
	if err != nil {
		return nil, process_error.Wrap(process_error.Invalid, "resolving tunables", err)
	}

	log := b.log
	if log == nil && tunables.Debug {
		log = logger.GetLogger(true, "[spawn] ")
	}

	return launcher.Launch(launcher.Options{
		Command:          b.command,
		Args:             b.args,
		Env:              b.env.Sorted(),
		Cwd:              b.cwd,
		Stdio:            b.stdio,
		DestroySignal:    b.destroySignal,
		DetachGroup:      b.detachGroup,
		MemoryLimitBytes: b.memoryLimitBytes,
		OnError:          b.onError,
		Tunables:         tunables,
		Log:              log,
	})
}
