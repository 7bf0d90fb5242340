package spawn_utils

import (
	"io"
	"sync"
	"time"

	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/stdio_config"
)

// Output holds the collected result of a spawn-collect-wait run.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Output spawns the command with stdout and stderr piped, collects both
// streams to completion, waits for the child and returns the result. A
// zero timeout waits forever. On timeout the child is destroyed and an IO
// error is returned.
func (b *Builder) Output(timeout time.Duration) (Output, error) {
	// Collection needs pipes regardless of how the builder was otherwise
	// configured; stdin stays as configured.
	saved := b.stdio
	b.stdio.Stdout = stdio_config.Pipe()
	b.stdio.Stderr = stdio_config.Pipe()
	c, err := b.Spawn()
	b.stdio = saved

	if err != nil {
		return Output{}, err
	}
	defer c.Destroy()

	// A piped stdin with no writer would hold the child open forever.
	if stdin := c.StdinWriter(); stdin != nil {
		stdin.Close()
	}

	var wg sync.WaitGroup
	var stdout, stderr []byte

	wg.Add(2)
	go func() {
		defer wg.Done()
		stdout, _ = io.ReadAll(c.StdoutReader())
	}()
	go func() {
		defer wg.Done()
		stderr, _ = io.ReadAll(c.StderrReader())
	}()

	var exitCode int
	if timeout > 0 {
		code := c.WaitTimeout(timeout)
		if code == nil {
			c.Destroy()
			c.Wait()
			wg.Wait()
			return Output{}, process_error.Newf(process_error.IO, "execution timed out after %s", timeout)
		}
		exitCode = *code
	} else {
		exitCode = c.Wait()
	}

	wg.Wait()

	return Output{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}, nil
}
