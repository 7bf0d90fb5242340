package stdio_config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullCanonicalization(t *testing.T) {
	assert.Equal(t, Null(), File("/dev/null"))
	assert.Equal(t, Null(), File("/dev/../dev/null"))
	assert.Equal(t, Null(), FileAppend("/dev/null"))
	assert.True(t, File("/dev/null").IsNull())
	assert.False(t, File("/tmp/null").IsNull())
}

func TestSlotModes(t *testing.T) {
	assert.Equal(t, ModeInherit, Inherit().Mode())
	assert.Equal(t, ModePipe, Pipe().Mode())
	assert.Equal(t, ModeFile, File("/tmp/x").Mode())
	assert.Equal(t, ModeFile, Null().Mode())
}

func TestFileAppendFlag(t *testing.T) {
	assert.False(t, File("/tmp/x").Append())
	assert.True(t, FileAppend("/tmp/x").Append())
	// Appending to the null device would break null canonical equality.
	assert.False(t, FileAppend("/dev/null").Append())
}

func TestDefaultConfigPipesAllSlots(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, ModePipe, config.Stdin.Mode())
	assert.Equal(t, ModePipe, config.Stdout.Mode())
	assert.Equal(t, ModePipe, config.Stderr.Mode())
}
