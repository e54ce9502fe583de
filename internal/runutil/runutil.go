// internal/runutil/runutil.go
package runutil

import "runtime"

// Threads sizes bcl2fastq's three thread pools.
type Threads struct {
	Loading    int
	Processing int
	Writing    int
}

// Workers returns n if positive, otherwise the CPU count.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// DemuxThreads splits cpus across the demultiplexer's pools.
// Rules:
//   - processing gets every CPU (it is the CPU-bound pool)
//   - loading and writing get a quarter each, clamped to [1, 4]
//
// cpus <= 0 means all CPUs.
func DemuxThreads(cpus int) Threads {
	cpus = Workers(cpus)
	io := cpus / 4
	if io < 1 {
		io = 1
	}
	if io > 4 {
		io = 4
	}
	return Threads{Loading: io, Processing: cpus, Writing: io}
}
