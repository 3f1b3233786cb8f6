package workers

import (
	"runtime"
)

// Count returns a worker count for a task type, derived from GOMAXPROCS so
// container CPU limits are respected.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (hashing, decoding)
//   - 2.0 for I/O-bound tasks (copying files for a backup)
//   - 1.5 for mixed tasks (a scan reads, hashes and decodes)
//
// limit caps the result; 0 means no cap.
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
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Resolve returns configured when it is positive (an explicit setting such
// as SCAN_WORKERS) capped by limit, and otherwise asks sizing.
func Resolve(configured int, sizing func(limit int) int, limit int) int {
	if configured > 0 {
		if limit > 0 && configured > limit {
			return limit
		}
		return configured
	}
	return sizing(limit)
}
