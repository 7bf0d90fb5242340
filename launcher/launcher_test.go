package launcher

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/spawn_context"
	"github.com/spawnio/spawn-utils/stdio_config"
	"github.com/spawnio/spawn-utils/testing_support"
)

func testOptions(command string, args ...string) Options {
	return Options{
		Command:       command,
		Args:          args,
		Env:           os.Environ(),
		Stdio:         stdio_config.DefaultConfig(),
		DestroySignal: unix.SIGKILL,
		Tunables:      spawn_context.Default(),
	}
}

func TestLaunchRejectsBlankCommand(t *testing.T) {
	_, err := Launch(testOptions("  "))
	assert.True(t, process_error.IsKind(err, process_error.Invalid))
}

func TestLaunchRejectsMissingAbsoluteCommand(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		_, err := Launch(testOptions("/invalid/path/sh", "-c", "sleep 1"))
		assert.Error(t, err)
		assert.True(t, process_error.IsKind(err, process_error.FileNotFound))
	})
}

func TestLaunchRejectsMissingCwd(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		opts := testOptions("/bin/sh", "-c", "true")
		opts.Cwd = t.TempDir() + "/nowhere"

		_, err := Launch(opts)
		assert.Error(t, err)
		assert.True(t, process_error.IsKind(err, process_error.FileNotFound))
		assert.Contains(t, err.Error(), "chdir")
	})
}

func TestLaunchMissingBareCommandFailsViaErrorPipe(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		_, err := Launch(testOptions("definitely-not-a-real-program-name"))
		assert.Error(t, err)
		assert.True(t, process_error.IsKind(err, process_error.FileNotFound))
	})
}

func TestLaunchRunsAbsoluteCommand(t *testing.T) {
	c, err := Launch(testOptions("/bin/sh", "-c", "exit 0"))
	assert.NoError(t, err)

	code := c.WaitTimeout(5 * time.Second)
	if assert.NotNil(t, code) {
		assert.Equal(t, 0, *code)
	}

	c.Destroy()
}

func TestLaunchResolvesBareCommandThroughPath(t *testing.T) {
	c, err := Launch(testOptions("sh", "-c", "exit 7"))
	assert.NoError(t, err)

	code := c.WaitTimeout(5 * time.Second)
	if assert.NotNil(t, code) {
		assert.Equal(t, 7, *code)
	}

	c.Destroy()
}

func TestLaunchHonorsCwd(t *testing.T) {
	dir := t.TempDir()

	opts := testOptions("/bin/sh", "-c", "pwd > marker")
	opts.Cwd = dir

	c, err := Launch(opts)
	assert.NoError(t, err)

	code := c.WaitTimeout(5 * time.Second)
	if assert.NotNil(t, code) {
		assert.Equal(t, 0, *code)
	}
	c.Destroy()

	contents, err := os.ReadFile(dir + "/marker")
	assert.NoError(t, err)
	assert.NotEmpty(t, contents)
}

func TestLaunchPassesExplicitEnvironmentOnly(t *testing.T) {
	opts := testOptions("/bin/sh", "-c", `printf "%s" "$LAUNCH_MARKER"`)
	opts.Env = []string{"PATH=/usr/bin:/bin", "LAUNCH_MARKER=present"}

	c, err := Launch(opts)
	assert.NoError(t, err)
	defer c.Destroy()

	buf := make([]byte, 64)
	n, _ := c.StdoutReader().Read(buf)
	assert.Equal(t, "present", string(buf[:n]))

	code := c.WaitTimeout(5 * time.Second)
	assert.NotNil(t, code)
}

func TestFailedLaunchLeavesNoDescriptorsAcrossManyAttempts(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		for range 20 {
			_, err := Launch(testOptions("/invalid/path/sh"))
			assert.Error(t, err)
		}
	})
}
