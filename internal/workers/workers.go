package workers

import (
	"runtime"
)

// Count returns a worker count scaled from the CPUs available to the process.
// GOMAXPROCS is used rather than runtime.NumCPU so container CPU limits are
// respected (Go 1.19+). The result is at least 1 and at most limit when
// limit > 0.
func Count(multiplier float64, limit int) int {
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
// The limit parameter caps the maximum number of workers.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// Encoders returns how many encoder processes may run at once.
// A positive override (MAX_ENCODERS) wins; otherwise one per CPU.
func Encoders(override int) int {
	if override > 0 {
		return override
	}
	return ForCPU(0)
}
