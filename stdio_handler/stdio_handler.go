// Package stdio_handler realizes a stdio configuration into concrete file
// descriptors for the child's three standard slots, computes the dup2 plan
// both launch paths consume, and owns parent/child descriptor cleanup.
package stdio_handler

import (
	"sync"

	"github.com/spawnio/spawn-utils/descriptor"
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/stdio_config"
	"github.com/spawnio/spawn-utils/stdio_stream"
)

// DupAction is one entry of the dup2 plan: duplicate Source onto Target.
// Both launch paths supply their own duplicate primitive (a posix_spawn
// file action, or a direct dup2 call in the forked child).
type DupAction struct {
	Source int
	Target int
}

// Handle bundles the descriptors a child will receive on slots 0/1/2 and
// the parent-side streams for pipe slots. It is created before launch,
// consumed by the launcher, handed to the Child, and closed exactly once.
type Handle struct {
	config stdio_config.Config

	// Child-side fds for the dup2 plan. Inherit slots alias the parent's
	// own standard descriptors.
	inFd  int
	outFd int
	errFd int

	// Descriptors destined for the child: pipe child-ends and opened
	// files. The parent closes these as soon as the child exists.
	childOwned []*descriptor.Descriptor

	parentStdin  *stdio_stream.WriteStream
	parentStdout *stdio_stream.ReadStream
	parentStderr *stdio_stream.ReadStream

	// Parent-retained descriptors backing the streams above.
	parentOwned []*descriptor.Descriptor

	mu     sync.Mutex
	pruned bool
	closed bool
}

// Realize opens every descriptor the config calls for. On any failure all
// partially-opened descriptors are closed, with secondary close errors
// suppressed into the returned error.
func Realize(config stdio_config.Config) (*Handle, error) {
	h := &Handle{config: config}

	fail := func(err error) (*Handle, error) {
		if pe, ok := err.(*process_error.Error); ok {
			pe.Suppress(h.Close())
		} else {
			h.Close()
		}
		return nil, err
	}

	// stdin: the child reads, the parent writes.
	switch config.Stdin.Mode() {
	case stdio_config.ModeInherit:
		h.inFd = 0
	case stdio_config.ModePipe:
		p, err := descriptor.NewPipe()
		if err != nil {
			return fail(err)
		}
		h.inFd = p.Read.Fd()
		h.childOwned = append(h.childOwned, p.Read)
		h.parentOwned = append(h.parentOwned, p.Write)
		h.parentStdin = stdio_stream.NewWriteStream(p.Write)
	case stdio_config.ModeFile:
		d, err := descriptor.OpenForRead(config.Stdin.Path())
		if err != nil {
			return fail(err)
		}
		h.inFd = d.Fd()
		h.childOwned = append(h.childOwned, d)
	}

	// stdout and stderr: the child writes, the parent reads.
	outFd, outStream, err := h.realizeOutputSlot(config.Stdout, 1)
	if err != nil {
		return fail(err)
	}
	h.outFd = outFd
	h.parentStdout = outStream

	errFd, errStream, err := h.realizeOutputSlot(config.Stderr, 2)
	if err != nil {
		return fail(err)
	}
	h.errFd = errFd
	h.parentStderr = errStream

	return h, nil
}

func (h *Handle) realizeOutputSlot(slot stdio_config.Stdio, target int) (int, *stdio_stream.ReadStream, error) {
	switch slot.Mode() {
	case stdio_config.ModeInherit:
		return target, nil, nil

	case stdio_config.ModePipe:
		p, err := descriptor.NewPipe()
		if err != nil {
			return -1, nil, err
		}
		h.childOwned = append(h.childOwned, p.Write)
		h.parentOwned = append(h.parentOwned, p.Read)
		return p.Write.Fd(), stdio_stream.NewReadStream(p.Read), nil

	case stdio_config.ModeFile:
		d, err := descriptor.OpenForWrite(slot.Path(), slot.Append())
		if err != nil {
			return -1, nil, err
		}
		h.childOwned = append(h.childOwned, d)
		return d.Fd(), nil, nil
	}

	return -1, nil, process_error.Newf(process_error.Invalid, "unknown stdio mode %d", slot.Mode())
}

// Config returns the configuration the handle was realized from.
func (h *Handle) Config() stdio_config.Config {
	return h.config
}

// Plan returns the dup2 actions wiring the handle's descriptors onto slots
// 0, 1 and 2. Actions whose source already equals the target are omitted.
func (h *Handle) Plan() []DupAction {
	plan := make([]DupAction, 0, 3)
	for _, a := range []DupAction{
		{Source: h.inFd, Target: 0},
		{Source: h.outFd, Target: 1},
		{Source: h.errFd, Target: 2},
	} {
		if a.Source != a.Target {
			plan = append(plan, a)
		}
	}
	return plan
}

// ChildFds returns the child-side descriptors destined for slots 0, 1 and
// 2. Inherit slots alias the slot number itself. The spawn fast path needs
// all three (a dup2 of a descriptor onto itself is how posix_spawn marks it
// inherited under close-all-default); the fork path uses Plan instead.
func (h *Handle) ChildFds() (in, out, err int) {
	return h.inFd, h.outFd, h.errFd
}

// ParentStdin returns the write stream for a piped stdin slot, nil for
// Inherit and File slots.
func (h *Handle) ParentStdin() *stdio_stream.WriteStream {
	return h.parentStdin
}

// ParentStdout returns the read stream for a piped stdout slot, nil
// otherwise.
func (h *Handle) ParentStdout() *stdio_stream.ReadStream {
	return h.parentStdout
}

// ParentStderr returns the read stream for a piped stderr slot, nil
// otherwise.
func (h *Handle) ParentStderr() *stdio_stream.ReadStream {
	return h.parentStderr
}

// PruneChildEnds closes the descriptors the child now owns: pipe child-ends
// and redirected files. Called once the child exists; idempotent.
func (h *Handle) PruneChildEnds() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pruned {
		return nil
	}
	h.pruned = true

	return descriptor.CloseAll(h.childOwned...)
}

// Close releases every descriptor the handle still owns. Safe to call from
// multiple goroutines; only the first call does work.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var firstError error
	if !h.pruned {
		h.pruned = true
		firstError = descriptor.CloseAll(h.childOwned...)
	}

	if err := descriptor.CloseAll(h.parentOwned...); err != nil && firstError == nil {
		firstError = err
	}

	return firstError
}
