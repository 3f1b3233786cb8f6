/*
Package workers sizes the scan and thumbnail worker pools.

Inside a container runtime.NumCPU reports the host's CPUs, while GOMAXPROCS
follows the cgroup CPU limit (Go 1.19+). Pool sizes are therefore derived
from GOMAXPROCS:

	scanWorkers := workers.Resolve(cfg.Scan.Workers, workers.ForMixed, 32)

An explicit setting (SCAN_WORKERS, THUMBNAIL_WORKERS) always wins over the
computed value but is still capped by the limit.
*/
package workers
