// Package stdio_config describes how each of a child's three standard
// descriptor slots should be populated: inherited from the parent, wired to
// a pipe, or redirected to a file.
package stdio_config

import "path/filepath"

// NullDevicePath is the canonical null sink on POSIX systems.
const NullDevicePath = "/dev/null"

// Mode tags a Stdio value.
type Mode int

const (
	// ModeInherit leaves the slot connected to the parent's descriptor.
	ModeInherit Mode = iota

	// ModePipe connects the slot to a pipe whose opposite end stays with
	// the parent.
	ModePipe

	// ModeFile redirects the slot to a file path.
	ModeFile
)

// Stdio configures one standard descriptor slot. Values are immutable;
// construct them with Inherit, Pipe, File, FileAppend or Null.
type Stdio struct {
	mode   Mode
	path   string
	append bool
}

// Inherit returns a slot inherited from the parent process.
func Inherit() Stdio {
	return Stdio{mode: ModeInherit}
}

// Pipe returns a slot wired to a pipe.
func Pipe() Stdio {
	return Stdio{mode: ModePipe}
}

// File returns a slot redirected to path, truncating on open when used for
// output. Paths naming the null device canonicalize to Null().
func File(path string) Stdio {
	return fileStdio(path, false)
}

// FileAppend returns a slot redirected to path, appending on open. The
// append flag is ignored for the stdin slot.
func FileAppend(path string) Stdio {
	return fileStdio(path, true)
}

// Null returns a slot redirected to the null device.
func Null() Stdio {
	return Stdio{mode: ModeFile, path: NullDevicePath}
}

func fileStdio(path string, append bool) Stdio {
	// Canonicalize so File("/dev/null") == Null(); append to the null
	// device is meaningless and would break the equality.
	if filepath.Clean(path) == NullDevicePath {
		return Null()
	}

	return Stdio{mode: ModeFile, path: path, append: append}
}

// Mode returns the slot's tag.
func (s Stdio) Mode() Mode {
	return s.mode
}

// Path returns the file path for ModeFile slots, "" otherwise.
func (s Stdio) Path() string {
	return s.path
}

// Append reports whether a ModeFile output slot opens in append mode.
func (s Stdio) Append() bool {
	return s.append
}

// IsNull reports whether the slot points at the null device.
func (s Stdio) IsNull() bool {
	return s.mode == ModeFile && s.path == NullDevicePath
}

// Config bundles the three standard slots. The zero value is not meaningful;
// use NewConfig or DefaultConfig.
type Config struct {
	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio
}

// NewConfig returns a Config with the given slots.
func NewConfig(stdin, stdout, stderr Stdio) Config {
	return Config{Stdin: stdin, Stdout: stdout, Stderr: stderr}
}

// DefaultConfig pipes all three slots.
func DefaultConfig() Config {
	return Config{Stdin: Pipe(), Stdout: Pipe(), Stderr: Pipe()}
}
