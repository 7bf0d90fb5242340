package spawn_context

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	tunables := Default()
	assert.Equal(t, 100, tunables.ErrorPipeReadAttempts)
	assert.Equal(t, 8*1024, tunables.ReaderBufferBytes)
	assert.Equal(t, 100, tunables.WaitPollCapMillis)
	assert.False(t, tunables.Debug)
}

func TestLoadWithoutEnvReturnsDefaults(t *testing.T) {
	tunables, err := Load(map[string]string{})
	assert.NoError(t, err)
	assert.Equal(t, Default(), tunables)
}

func TestLoadFromYamlFile(t *testing.T) {
	path := t.TempDir() + "/tunables.yml"
	contents := "error_pipe_read_attempts: 250\nreader_buffer_bytes: 4096\nwait_poll_cap_ms: 50\ndebug: true\n"
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	tunables, err := Load(map[string]string{ConfigPathEnvVar: path})
	assert.NoError(t, err)
	assert.Equal(t, 250, tunables.ErrorPipeReadAttempts)
	assert.Equal(t, 4096, tunables.ReaderBufferBytes)
	assert.Equal(t, 50, tunables.WaitPollCapMillis)
	assert.True(t, tunables.Debug)
}

func TestPartialYamlKeepsDefaults(t *testing.T) {
	path := t.TempDir() + "/tunables.yml"
	assert.NoError(t, os.WriteFile(path, []byte("error_pipe_read_attempts: 10\n"), 0o644))

	tunables, err := Load(map[string]string{ConfigPathEnvVar: path})
	assert.NoError(t, err)
	assert.Equal(t, 10, tunables.ErrorPipeReadAttempts)
	assert.Equal(t, Default().ReaderBufferBytes, tunables.ReaderBufferBytes)
}

func TestInvalidYamlValuesRejected(t *testing.T) {
	path := t.TempDir() + "/tunables.yml"
	assert.NoError(t, os.WriteFile(path, []byte("error_pipe_read_attempts: -1\n"), 0o644))

	_, err := Load(map[string]string{ConfigPathEnvVar: path})
	assert.Error(t, err)
}

func TestMissingFileIsAnError(t *testing.T) {
	_, err := Load(map[string]string{ConfigPathEnvVar: t.TempDir() + "/missing.yml"})
	assert.Error(t, err)
}

func TestDebugEnvVarOverrides(t *testing.T) {
	for raw, want := range map[string]bool{
		"1": true, "true": true, "yes": true,
		"0": false, "false": false, "": false,
	} {
		tunables, err := Load(map[string]string{DebugEnvVar: raw})
		assert.NoError(t, err)
		assert.Equal(t, want, tunables.Debug, "value %q", raw)
	}
}
