// Package memory keeps the scanner inside the container's memory budget.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT (bytes, usually fed by
// the Kubernetes Downward API) and MEMORY_RATIO (default 0.85). Call it early
// in main, before large allocations.
//
// A [Monitor] samples the heap periodically. Above the critical water mark it
// pauses callers of [Monitor.WaitIfPaused] until usage drops below the high
// water mark again. Scan workers call it before decoding each image, since a
// burst of large decodes is the main way the process runs out of memory:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if !monitor.WaitIfPaused(ctx) {
//	    return // cancelled
//	}
package memory
