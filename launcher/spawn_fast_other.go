//go:build !darwin || !cgo

package launcher

import (
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/stdio_handler"
)

// launchSpawnFast always declines off Darwin (or without cgo); the caller
// falls back to fork+exec, which has identical observable semantics.
func launchSpawnFast(opts Options, handle *stdio_handler.Handle) (int, error) {
	return 0, process_error.New(process_error.Unsupported, "posix_spawn fast path not available on this platform")
}
