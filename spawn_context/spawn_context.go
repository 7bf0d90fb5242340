// Package spawn_context resolves library tunables from the environment and
// an optional YAML file. Every knob has a safe default; the file and the
// env vars exist for the rare deployment that needs to move one.
package spawn_context

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// ConfigPathEnvVar names an optional YAML tunables file.
const ConfigPathEnvVar = "SPAWN_UTILS_CONFIG"

// DebugEnvVar enables debug tracing when set to a truthy value.
const DebugEnvVar = "SPAWN_UTILS_DEBUG"

// Tunables holds the library's adjustable constants.
type Tunables struct {
	// ErrorPipeReadAttempts caps the launcher's error-pipe read loop when
	// the pipe could not be created with atomic CLOEXEC; a descriptor
	// leaked into an unrelated fork would otherwise hold the loop open
	// forever.
	ErrorPipeReadAttempts int `yaml:"error_pipe_read_attempts"`

	// ReaderBufferBytes is the read chunk size of the background stdout
	// and stderr reader threads.
	ReaderBufferBytes int `yaml:"reader_buffer_bytes"`

	// WaitPollCapMillis caps the adaptive sleep between non-blocking wait
	// polls.
	WaitPollCapMillis int `yaml:"wait_poll_cap_ms"`

	// Debug enables lifecycle tracing through the configured logger.
	Debug bool `yaml:"debug"`
}

// Default returns the built-in tunables.
func Default() Tunables {
	return Tunables{
		ErrorPipeReadAttempts: 100,
		ReaderBufferBytes:     8 * 1024,
		WaitPollCapMillis:     100,
	}
}

// Load resolves tunables from the given environment map. When
// SPAWN_UTILS_CONFIG points at a YAML file its values override the
// defaults; SPAWN_UTILS_DEBUG overrides the file.
func Load(env map[string]string) (Tunables, error) {
	t := Default()

	if path, ok := env[ConfigPathEnvVar]; ok && path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return t, fmt.Errorf("read tunables file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(contents, &t); err != nil {
			return t, fmt.Errorf("parse tunables file %s: %w", path, err)
		}

		if err := t.validate(); err != nil {
			return Default(), fmt.Errorf("tunables file %s: %w", path, err)
		}
	}

	if raw, ok := env[DebugEnvVar]; ok {
		t.Debug = isTruthy(raw)
	}

	return t, nil
}

// FromProcessEnv resolves tunables from the current process environment.
func FromProcessEnv() (Tunables, error) {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	return Load(env)
}

func (t Tunables) validate() error {
	if t.ErrorPipeReadAttempts <= 0 {
		return fmt.Errorf("error_pipe_read_attempts must be positive, got %d", t.ErrorPipeReadAttempts)
	}
	if t.ReaderBufferBytes <= 0 {
		return fmt.Errorf("reader_buffer_bytes must be positive, got %d", t.ReaderBufferBytes)
	}
	if t.WaitPollCapMillis <= 0 {
		return fmt.Errorf("wait_poll_cap_ms must be positive, got %d", t.WaitPollCapMillis)
	}
	return nil
}

func isTruthy(raw string) bool {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw == "1" || strings.EqualFold(raw, "yes")
}
