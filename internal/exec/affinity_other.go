//go:build !linux

package exec

// pinToCPU is a no-op on platforms this package has no affinity syscall
// for. Every worker still runs, just without a pinning guarantee; NUMA
// placement in that case is left entirely to the OS scheduler.
func pinToCPU(cpu int) {}

// nodeOf always reports the NUMA node as unknown outside Linux.
func nodeOf(cpu int) int { return -1 }
