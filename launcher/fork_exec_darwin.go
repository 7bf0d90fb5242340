//go:build darwin

package launcher

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdDirPath is the BSD view of this process's open descriptors.
const fdDirPath = "/dev/fd"

func forkProcess() (int, unix.Errno) {
	pid, _, errno := syscall.RawSyscall(syscall.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return 0, unix.Errno(errno)
	}
	return int(pid), 0
}

func rawDup2(src, tgt int) unix.Errno {
	_, _, errno := syscall.RawSyscall(syscall.SYS_DUP2, uintptr(src), uintptr(tgt), 0)
	return unix.Errno(errno)
}

func rawChdir(path *byte) unix.Errno {
	_, _, errno := syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(path)), 0, 0)
	return unix.Errno(errno)
}

func rawClose(fd int) {
	syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(fd), 0, 0)
}

func rawWrite(fd int, buf []byte) {
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(fd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
}

func rawExit(code int) {
	syscall.RawSyscall(syscall.SYS_EXIT, uintptr(code), 0, 0)
}

func rawSetpgid() {
	syscall.RawSyscall(syscall.SYS_SETPGID, 0, 0, 0)
}

func rawExecve(path *byte, argv, envp []*byte) unix.Errno {
	_, _, errno := syscall.RawSyscall(
		syscall.SYS_EXECVE,
		uintptr(unsafe.Pointer(path)),
		uintptr(unsafe.Pointer(&argv[0])),
		uintptr(unsafe.Pointer(&envp[0])),
	)
	return unix.Errno(errno)
}

// rawResetSignalMask clears the inherited signal mask. Darwin's sigset is a
// 32-bit value passed by pointer.
func rawResetSignalMask() unix.Errno {
	var emptySet uint32
	_, _, errno := syscall.RawSyscall(
		syscall.SYS_SIGPROCMASK,
		uintptr(unix.SIG_SETMASK),
		uintptr(unsafe.Pointer(&emptySet)),
		0,
	)
	return unix.Errno(errno)
}

// childSleepBrief pauses ~3ms between ETXTBSY exec retries, via select with
// a timeout and no descriptors.
func childSleepBrief() {
	tv := syscall.Timeval{Usec: 3 * 1000}
	syscall.RawSyscall6(syscall.SYS_SELECT, 0, 0, 0, 0, uintptr(unsafe.Pointer(&tv)), 0)
}

// childCloexecSweep walks /dev/fd and sets FD_CLOEXEC on every open
// descriptor except 0, 1, 2 and the directory handle itself.
func childCloexecSweep() unix.Errno {
	dirFd, err := syscall.Open(fdDirPath, syscall.O_RDONLY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return unix.Errno(err.(syscall.Errno))
	}
	defer rawClose(dirFd)

	var buf [4096]byte
	var basep uintptr
	for {
		n, err := syscall.Getdirentries(dirFd, buf[:], &basep)
		if err != nil {
			return unix.Errno(err.(syscall.Errno))
		}
		if n == 0 {
			return 0
		}

		offset := 0
		for offset < n {
			// struct dirent64: ino(8) seekoff(8) reclen(2) namlen(2) type(1) name...
			reclen := int(buf[offset+16]) | int(buf[offset+17])<<8
			namlen := int(buf[offset+18]) | int(buf[offset+19])<<8
			name := buf[offset+21 : offset+21+namlen]

			fd, ok := parseFdName(name)
			if ok && fd > 2 && fd != dirFd {
				syscall.RawSyscall(syscall.SYS_FCNTL, uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
			}

			offset += reclen
		}
	}
}

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
