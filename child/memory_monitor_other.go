//go:build !linux

package child

// memoryMonitor is a no-op off Linux; memory limiting requires cgroup2.
type memoryMonitor struct{}

func newMemoryMonitor(limitBytes int64) *memoryMonitor {
	return &memoryMonitor{}
}

func (m *memoryMonitor) start(pid int) {}

func (m *memoryMonitor) wasOOMKilled() bool {
	return false
}

func (m *memoryMonitor) stop() {}
