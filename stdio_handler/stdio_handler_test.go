package stdio_handler

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/stdio_config"
	"github.com/spawnio/spawn-utils/testing_support"
)

func TestRealizeAllPipes(t *testing.T) {
	h, err := Realize(stdio_config.DefaultConfig())
	assert.NoError(t, err)
	defer h.Close()

	assert.NotNil(t, h.ParentStdin())
	assert.NotNil(t, h.ParentStdout())
	assert.NotNil(t, h.ParentStderr())

	plan := h.Plan()
	assert.Len(t, plan, 3)
	assert.Equal(t, 0, plan[0].Target)
	assert.Equal(t, 1, plan[1].Target)
	assert.Equal(t, 2, plan[2].Target)

	for _, action := range plan {
		assert.Greater(t, action.Source, 2)
	}
}

func TestRealizeAllInheritHasEmptyPlan(t *testing.T) {
	config := stdio_config.NewConfig(
		stdio_config.Inherit(),
		stdio_config.Inherit(),
		stdio_config.Inherit(),
	)

	h, err := Realize(config)
	assert.NoError(t, err)
	defer h.Close()

	// Inherit slots already sit on 0/1/2, so every action is skipped.
	assert.Empty(t, h.Plan())
	assert.Nil(t, h.ParentStdin())
	assert.Nil(t, h.ParentStdout())
	assert.Nil(t, h.ParentStderr())
}

func TestRealizeFileSlots(t *testing.T) {
	dir := t.TempDir()
	inPath := dir + "/in.txt"
	outPath := dir + "/out.txt"

	assert.NoError(t, os.WriteFile(inPath, []byte("input"), 0o644))

	config := stdio_config.NewConfig(
		stdio_config.File(inPath),
		stdio_config.File(outPath),
		stdio_config.Null(),
	)

	h, err := Realize(config)
	assert.NoError(t, err)

	assert.Len(t, h.Plan(), 3)
	assert.Nil(t, h.ParentStdin())
	assert.Nil(t, h.ParentStdout())

	assert.NoError(t, h.Close())

	// The output file was created by the open.
	_, err = os.Stat(outPath)
	assert.NoError(t, err)
}

func TestRealizeMissingStdinFileCleansUp(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		config := stdio_config.NewConfig(
			stdio_config.File(t.TempDir()+"/missing"),
			stdio_config.Pipe(),
			stdio_config.Pipe(),
		)

		_, err := Realize(config)
		assert.Error(t, err)
		assert.True(t, process_error.IsKind(err, process_error.FileNotFound))
	})
}

func TestRealizeMissingStdoutFileCleansUpEarlierSlots(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		config := stdio_config.NewConfig(
			stdio_config.Pipe(),
			stdio_config.File(t.TempDir()+"/no/such/dir/out"),
			stdio_config.Pipe(),
		)

		_, err := Realize(config)
		assert.Error(t, err)
	})
}

func TestCloseReleasesEverythingOnce(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		h, err := Realize(stdio_config.DefaultConfig())
		assert.NoError(t, err)

		assert.NoError(t, h.Close())
		assert.NoError(t, h.Close())
	})
}

func TestPruneThenCloseDoesNotDoubleClose(t *testing.T) {
	testing_support.RequireNoDescriptorLeak(t, func() {
		h, err := Realize(stdio_config.DefaultConfig())
		assert.NoError(t, err)

		assert.NoError(t, h.PruneChildEnds())
		assert.NoError(t, h.PruneChildEnds())

		// After pruning, the parent streams still work between themselves:
		// stdin's write end stays open even though its read end is gone.
		assert.NoError(t, h.Close())
	})
}
