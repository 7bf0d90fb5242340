package child_test

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/launcher"
	"github.com/spawnio/spawn-utils/line_feed"
	"github.com/spawnio/spawn-utils/spawn_context"
	"github.com/spawnio/spawn-utils/stdio_config"
	"github.com/spawnio/spawn-utils/testing_support"
)

func shell(script string) launcher.Options {
	return launcher.Options{
		Command:       "/bin/sh",
		Args:          []string{"-c", script},
		Env:           os.Environ(),
		Stdio:         stdio_config.DefaultConfig(),
		DestroySignal: unix.SIGKILL,
		Tunables:      spawn_context.Default(),
	}
}

func TestExitCodePassThrough(t *testing.T) {
	c, err := launcher.Launch(shell("sleep 0.25; exit 42"))
	assert.NoError(t, err)
	defer c.Destroy()

	code := c.WaitTimeout(1000 * time.Millisecond)
	if assert.NotNil(t, code) {
		assert.Equal(t, 42, *code)
	}

	assert.False(t, c.IsAlive())
}

func TestWaitTimeoutThenDestroyLatchesSignalCode(t *testing.T) {
	c, err := launcher.Launch(shell("sleep 1; exit 42"))
	assert.NoError(t, err)

	code := c.WaitTimeout(250 * time.Millisecond)
	assert.Nil(t, code)
	assert.True(t, c.IsAlive())

	c.Destroy()

	latched := c.Wait()
	assert.Equal(t, int(unix.SIGKILL), latched)
}

func TestExitCodeLatches(t *testing.T) {
	c, err := launcher.Launch(shell("exit 3"))
	assert.NoError(t, err)
	defer c.Destroy()

	assert.Equal(t, 3, c.Wait())

	for range 10 {
		code := c.ExitCode()
		if assert.NotNil(t, code) {
			assert.Equal(t, 3, *code)
		}
	}
}

func TestPidIsStable(t *testing.T) {
	c, err := launcher.Launch(shell("exit 0"))
	assert.NoError(t, err)
	defer c.Destroy()

	pid := c.Pid()
	assert.Greater(t, pid, 0)

	c.Wait()
	assert.Equal(t, pid, c.Pid())
}

func TestDestroyIsIdempotent(t *testing.T) {
	c, err := launcher.Launch(shell("sleep 5"))
	assert.NoError(t, err)

	c.Destroy()
	c.Destroy()

	assert.True(t, c.IsDestroyed())
	assert.Equal(t, int(unix.SIGKILL), c.Wait())
}

func TestDestroyClosesPipes(t *testing.T) {
	c, err := launcher.Launch(shell("sleep 5"))
	assert.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 16)
		for {
			if _, err := c.StdoutReader().Read(buf); err != nil {
				return
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	c.Destroy()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not observe EOF after destroy")
	}

	c.Wait()
}

func TestStdinWriterFeedsChild(t *testing.T) {
	c, err := launcher.Launch(shell("cat -"))
	assert.NoError(t, err)
	defer c.Destroy()

	_, err = c.StdinWriter().Write([]byte("abc\n123\n"))
	assert.NoError(t, err)
	assert.NoError(t, c.StdinWriter().Close())

	collected := make([]byte, 0, 16)
	buf := make([]byte, 16)
	for {
		n, err := c.StdoutReader().Read(buf)
		collected = append(collected, buf[:n]...)
		if err != nil {
			break
		}
	}

	assert.Equal(t, "abc\n123\n", string(collected))
	assert.Equal(t, 0, c.Wait())
}

func TestStreamsAreNilForNonPipeSlots(t *testing.T) {
	opts := shell("exit 0")
	opts.Stdio = stdio_config.NewConfig(
		stdio_config.Null(),
		stdio_config.Inherit(),
		stdio_config.Pipe(),
	)

	c, err := launcher.Launch(opts)
	assert.NoError(t, err)
	defer c.Destroy()

	assert.Nil(t, c.StdinWriter())
	assert.Nil(t, c.StdoutReader())
	assert.NotNil(t, c.StderrReader())

	c.Wait()
}

func TestStdoutFeedDispatchesLines(t *testing.T) {
	c, err := launcher.Launch(shell(`printf "Hello\r\nWorld\nHello\nWorld\r\n"`))
	assert.NoError(t, err)
	defer c.Destroy()

	var mu sync.Mutex
	var events []string
	eos := make(chan struct{})

	err = c.StdoutFeed(line_feed.FuncSink{
		Line: func(l string) {
			mu.Lock()
			events = append(events, l)
			mu.Unlock()
		},
		EOS: func() { close(eos) },
	})
	assert.NoError(t, err)

	select {
	case <-eos:
	case <-time.After(5 * time.Second):
		t.Fatal("end-of-stream sentinel never arrived")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Hello", "World", "Hello", "World"}, events)

	c.Wait()
}

func TestStderrFeedIsIndependentOfStdout(t *testing.T) {
	c, err := launcher.Launch(shell(`echo out; echo err 1>&2`))
	assert.NoError(t, err)
	defer c.Destroy()

	outLines := make(chan string, 8)
	errLines := make(chan string, 8)

	assert.NoError(t, c.StdoutFeed(line_feed.FuncSink{Line: func(l string) { outLines <- l }}))
	assert.NoError(t, c.StderrFeed(line_feed.FuncSink{Line: func(l string) { errLines <- l }}))

	assert.Equal(t, "out", <-outLines)
	assert.Equal(t, "err", <-errLines)

	c.Wait()
}

func TestFeedOnNonPipeSlotFails(t *testing.T) {
	opts := shell("exit 0")
	opts.Stdio = stdio_config.NewConfig(
		stdio_config.Pipe(),
		stdio_config.Null(),
		stdio_config.Pipe(),
	)

	c, err := launcher.Launch(opts)
	assert.NoError(t, err)
	defer c.Destroy()

	err = c.StdoutFeed(line_feed.FuncSink{})
	assert.Error(t, err)

	c.Wait()
}

func TestSpawnDestroyCycleLeavesNoDescriptors(t *testing.T) {
	// Warm up any lazily-created runtime descriptors before measuring.
	if c, err := launcher.Launch(shell("exit 0")); assert.NoError(t, err) {
		c.Wait()
		c.Destroy()
	}

	testing_support.RequireNoDescriptorLeak(t, func() {
		for range 5 {
			c, err := launcher.Launch(shell("exit 0"))
			assert.NoError(t, err)
			c.Wait()
			c.Destroy()
		}
	})
}

func TestDestroySignalTermination(t *testing.T) {
	opts := shell("sleep 5")
	opts.DestroySignal = unix.SIGTERM

	c, err := launcher.Launch(opts)
	assert.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	c.Destroy()

	assert.Equal(t, int(unix.SIGTERM), c.Wait())
	assert.Equal(t, int(unix.SIGTERM), int(c.DestroySignal()))
}
