//go:build linux

package child

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/cgroups/v3/cgroup2"
)

// memoryMonitor enforces an optional memory ceiling through a dedicated
// cgroup2 and detects whether the kernel OOM-killed the child.
type memoryMonitor struct {
	limitBytes     int64
	manager        *cgroup2.Manager
	cgroupPath     string
	initialOOMKill uint64
}

func newMemoryMonitor(limitBytes int64) *memoryMonitor {
	return &memoryMonitor{limitBytes: limitBytes}
}

// start creates the cgroup, applies the limit and moves pid into it. With
// no limit configured (or when cgroup2 is unavailable, e.g. inside minimal
// containers) the monitor stays inert.
func (m *memoryMonitor) start(pid int) {
	if m.limitBytes <= 0 {
		return
	}

	cgroupPath := fmt.Sprintf("/spawn-utils-%d-%d", pid, time.Now().UnixNano())

	resources := &cgroup2.Resources{
		Memory: &cgroup2.Memory{
			Max: &m.limitBytes,
		},
	}

	manager, err := cgroup2.NewManager("/sys/fs/cgroup", cgroupPath, resources)
	if err != nil {
		return
	}

	if err := manager.AddProc(uint64(pid)); err != nil {
		manager.Delete()
		return
	}

	m.manager = manager
	m.cgroupPath = cgroupPath
	m.initialOOMKill = readOOMKillCount(cgroupPath)
}

// wasOOMKilled reports whether the cgroup's oom_kill counter advanced
// since start.
func (m *memoryMonitor) wasOOMKilled() bool {
	if m.manager == nil {
		return false
	}

	return readOOMKillCount(m.cgroupPath) > m.initialOOMKill
}

// stop removes the cgroup.
func (m *memoryMonitor) stop() {
	if m.manager != nil {
		m.manager.Delete()
		m.manager = nil
	}
}

// readOOMKillCount reads the oom_kill counter from memory.events.
func readOOMKillCount(cgroupPath string) uint64 {
	eventsPath := filepath.Join("/sys/fs/cgroup", cgroupPath, "memory.events")
	data, err := os.ReadFile(eventsPath)
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "oom_kill ") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				count, _ := strconv.ParseUint(parts[1], 10, 64)
				return count
			}
		}
	}

	return 0
}
