//go:build linux

package exec

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// pinToCPU pins the calling OS thread to cpu (spec.md §6, rt.cpu_affinity).
// The caller must already hold runtime.LockOSThread. cpu < 0 means "leave
// unpinned" and is a no-op. Failure is silent: affinity is a scheduling
// hint, not a correctness requirement, and a caller-supplied list that
// names a CPU the process's cgroup can't use shouldn't crash the pool.
func pinToCPU(cpu int) {
	if cpu < 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(0, &set)
}

// nodeOf returns the NUMA node backing cpu, read from sysfs (spec.md §5,
// "each partition records the NUMA node of its pinned CPU"). Returns -1 if
// cpu is unpinned or the topology can't be determined.
func nodeOf(cpu int) int {
	if cpu < 0 {
		return -1
	}
	dir := fmt.Sprintf("/sys/devices/system/cpu/cpu%d", cpu)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1
	}
	for _, e := range entries {
		name := e.Name()
		if n, ok := strings.CutPrefix(name, "node"); ok {
			if id, err := strconv.Atoi(n); err == nil {
				return id
			}
		}
	}
	return -1
}
