package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for network mounts
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isRetryable reports transient errors seen on network filesystems
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE || errno == syscall.EAGAIN || errno == syscall.EINTR
	}
	return false
}

func withRetry[T any](op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
			}
			return v, nil
		}

		lastErr = err
		if !isRetryable(err) {
			var zero T
			return zero, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues(op).Inc()

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(op).Inc()
			logging.Debug("%s transient error for %s, retrying in %v (attempt %d/%d): %v",
				op, path, backoff, attempt+1, config.MaxRetries, err)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(op).Inc()
	var zero T
	return zero, lastErr
}

// StatWithRetry performs os.Stat with retry logic
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// ReadFileWithRetry performs os.ReadFile with retry logic
func ReadFileWithRetry(path string, config RetryConfig) ([]byte, error) {
	return withRetry("read", path, config, func() ([]byte, error) {
		return os.ReadFile(path)
	})
}
