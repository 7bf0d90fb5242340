//go:build linux

package launcher

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdDirPath is the kernel's view of this process's open descriptors.
const fdDirPath = "/proc/self/fd"

var fdDirPathBytes = append([]byte(fdDirPath), 0)

// forkProcess duplicates the process via clone(SIGCHLD), matching fork
// semantics on every Linux architecture (plain fork has no syscall number
// on arm64).
func forkProcess() (int, unix.Errno) {
	pid, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(pid), 0
}

// rawDup2 duplicates src onto tgt. dup3 is used since dup2 is absent on
// arm64; the plan never contains src == tgt, which dup3 rejects.
func rawDup2(src, tgt int) unix.Errno {
	_, _, errno := unix.RawSyscall(unix.SYS_DUP3, uintptr(src), uintptr(tgt), 0)
	return errno
}

func rawChdir(path *byte) unix.Errno {
	_, _, errno := unix.RawSyscall(unix.SYS_CHDIR, uintptr(unsafe.Pointer(path)), 0, 0)
	return errno
}

func rawClose(fd int) {
	unix.RawSyscall(unix.SYS_CLOSE, uintptr(fd), 0, 0)
}

func rawWrite(fd int, buf []byte) {
	unix.RawSyscall(unix.SYS_WRITE, uintptr(fd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
}

func rawExit(code int) {
	unix.RawSyscall(unix.SYS_EXIT_GROUP, uintptr(code), 0, 0)
}

func rawSetpgid() {
	unix.RawSyscall(unix.SYS_SETPGID, 0, 0, 0)
}

func rawExecve(path *byte, argv, envp []*byte) unix.Errno {
	_, _, errno := unix.RawSyscall(
		unix.SYS_EXECVE,
		uintptr(unsafe.Pointer(path)),
		uintptr(unsafe.Pointer(&argv[0])),
		uintptr(unsafe.Pointer(&envp[0])),
	)
	return errno
}

// rawResetSignalMask clears the inherited signal mask via rt_sigprocmask
// with an empty kernel sigset (8 bytes on Linux).
func rawResetSignalMask() unix.Errno {
	var emptySet uint64
	_, _, errno := unix.RawSyscall6(
		unix.SYS_RT_SIGPROCMASK,
		uintptr(unix.SIG_SETMASK),
		uintptr(unsafe.Pointer(&emptySet)),
		0,
		8,
		0, 0,
	)
	return errno
}

// childSleepBrief pauses ~3ms between ETXTBSY exec retries.
func childSleepBrief() {
	ts := unix.Timespec{Nsec: 3 * 1000 * 1000}
	unix.RawSyscall(unix.SYS_NANOSLEEP, uintptr(unsafe.Pointer(&ts)), 0, 0)
}

// childCloexecSweep walks /proc/self/fd and sets FD_CLOEXEC on every open
// descriptor except 0, 1, 2 and the directory handle itself. This closes
// the race window of descriptors created without atomic CLOEXEC before the
// fork happened.
func childCloexecSweep() unix.Errno {
	dirFd, _, errno := unix.RawSyscall6(
		unix.SYS_OPENAT,
		^uintptr(0)-99, // AT_FDCWD == -100
		uintptr(unsafe.Pointer(&fdDirPathBytes[0])),
		uintptr(unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC),
		0, 0, 0,
	)
	if errno != 0 {
		return errno
	}
	defer rawClose(int(dirFd))

	var buf [4096]byte
	for {
		n, _, errno := unix.RawSyscall(
			unix.SYS_GETDENTS64,
			dirFd,
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(len(buf)),
		)
		if errno != 0 {
			return errno
		}
		if n == 0 {
			return 0
		}

		offset := 0
		for offset < int(n) {
			// struct linux_dirent64: ino(8) off(8) reclen(2) type(1) name...
			reclen := int(buf[offset+16]) | int(buf[offset+17])<<8
			name := buf[offset+19 : offset+reclen]

			fd, ok := parseFdName(name)
			if ok && fd > 2 && fd != int(dirFd) {
				unix.RawSyscall(unix.SYS_FCNTL, uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
			}

			offset += reclen
		}
	}
}

// parseFdName decodes a NUL-terminated decimal descriptor name. Non-numeric
// entries ("." and "..") report false.
func parseFdName(name []byte) (int, bool) {
	fd := 0
	seen := false
	for _, c := range name {
		if c == 0 {
			break
		}
		if c < '0' || c > '9' {
			return 0, false
		}
		fd = fd*10 + int(c-'0')
		seen = true
	}
	return fd, seen
}
