/*
Package filesystem wraps the file reads and writes done by the scanner, the
stores and the backup snapshotter with retry logic for flaky network mounts.

# Retry Behavior

Large datasets often live on NFS or SMB shares. Reads that fail with a stale
file handle (ESTALE), EAGAIN or EINTR are retried with exponential backoff:

  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors fail immediately.

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())

# Atomic Writes

WriteFileAtomic writes to a temporary file in the destination directory and
renames it into place, so a crash never leaves a half-written tag file.
*/
package filesystem
