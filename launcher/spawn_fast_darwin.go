//go:build darwin && cgo

package launcher

/*
#include <spawn.h>
#include <stdlib.h>
#include <errno.h>
#include <signal.h>

// macOS 10.15+ exposes chdir as a file action via
// posix_spawn_file_actions_addchdir_np; resolve it as a weak symbol so the
// binary also loads on older systems.
#pragma clang diagnostic push
#pragma clang diagnostic ignored "-Wdeprecated-declarations"
extern int posix_spawn_file_actions_addchdir_np(posix_spawn_file_actions_t *file_actions, const char *path) __attribute__((weak_import));
#pragma clang diagnostic pop

static int spawn_utils_has_addchdir() {
	return posix_spawn_file_actions_addchdir_np != NULL;
}

static int spawn_utils_addchdir(posix_spawn_file_actions_t *actions, const char *path) {
	if (posix_spawn_file_actions_addchdir_np == NULL) {
		return ENOSYS;
	}
	#pragma clang diagnostic push
	#pragma clang diagnostic ignored "-Wdeprecated-declarations"
	return posix_spawn_file_actions_addchdir_np(actions, path);
	#pragma clang diagnostic pop
}

static void spawn_utils_sigemptyset(sigset_t *set) {
	sigemptyset(set);
}
*/
import "C"

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/stdio_handler"
)

// POSIX_SPAWN_CLOEXEC_DEFAULT closes every descriptor not named in the
// file actions when the child execs. Darwin-specific.
const posixSpawnCloexecDefault = 0x4000

// launchSpawnFast starts the child via posix_spawn. It declines (with an
// Unsupported error) when a cwd is requested but the addchdir file action
// is not available in the loaded libc; the caller falls back to fork+exec.
func launchSpawnFast(opts Options, handle *stdio_handler.Handle) (int, error) {
	if opts.Cwd != "" && C.spawn_utils_has_addchdir() == 0 {
		return 0, process_error.New(process_error.Unsupported, "posix_spawn_file_actions_addchdir_np not available")
	}

	var fileActions C.posix_spawn_file_actions_t
	if ret := C.posix_spawn_file_actions_init(&fileActions); ret != 0 {
		return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawn_file_actions_init")
	}
	defer C.posix_spawn_file_actions_destroy(&fileActions)

	if opts.Cwd != "" {
		cCwd := C.CString(opts.Cwd)
		defer C.free(unsafe.Pointer(cCwd))
		if ret := C.spawn_utils_addchdir(&fileActions, cCwd); ret != 0 {
			return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawn_file_actions_addchdir_np")
		}
	}

	// All three slots get an action even when source == target: under
	// CLOEXEC_DEFAULT a self-dup2 is what marks a descriptor inherited.
	inFd, outFd, errFd := handle.ChildFds()
	for slot, fd := range []int{inFd, outFd, errFd} {
		if ret := C.posix_spawn_file_actions_adddup2(&fileActions, C.int(fd), C.int(slot)); ret != 0 {
			return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawn_file_actions_adddup2")
		}
	}

	var attr C.posix_spawnattr_t
	if ret := C.posix_spawnattr_init(&attr); ret != 0 {
		return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawnattr_init")
	}
	defer C.posix_spawnattr_destroy(&attr)

	flags := C.short(C.POSIX_SPAWN_SETSIGMASK | posixSpawnCloexecDefault)
	if opts.DetachGroup {
		flags |= C.POSIX_SPAWN_SETPGROUP
		if ret := C.posix_spawnattr_setpgroup(&attr, 0); ret != 0 {
			return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawnattr_setpgroup")
		}
	}

	if ret := C.posix_spawnattr_setflags(&attr, flags); ret != 0 {
		return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawnattr_setflags")
	}

	var emptyMask C.sigset_t
	C.spawn_utils_sigemptyset(&emptyMask)
	if ret := C.posix_spawnattr_setsigmask(&attr, &emptyMask); ret != 0 {
		return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawnattr_setsigmask")
	}

	cCommand := C.CString(opts.Command)
	defer C.free(unsafe.Pointer(cCommand))

	argv := append([]string{opts.Command}, opts.Args...)
	cArgv, freeArgv := cStringArray(argv)
	defer freeArgv()

	cEnvp, freeEnvp := cStringArray(opts.Env)
	defer freeEnvp()

	var pid C.pid_t
	var ret C.int
	if strings.Contains(opts.Command, "/") {
		ret = C.posix_spawn(&pid, cCommand, &fileActions, &attr, &cArgv[0], &cEnvp[0])
	} else {
		ret = C.posix_spawnp(&pid, cCommand, &fileActions, &attr, &cArgv[0], &cEnvp[0])
	}

	if ret != 0 {
		return 0, process_error.FromErrno(unix.Errno(ret), "posix_spawn "+opts.Command)
	}

	return int(pid), nil
}

// cStringArray builds a NULL-terminated C string vector from Go strings.
// The returned free function releases every element.
func cStringArray(values []string) ([]*C.char, func()) {
	arr := make([]*C.char, len(values)+1)
	for i, v := range values {
		arr[i] = C.CString(v)
	}

	return arr, func() {
		for _, p := range arr {
			if p != nil {
				C.free(unsafe.Pointer(p))
			}
		}
	}
}
