package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel atomic.Int32
	levelOnce    sync.Once
	std          = log.New(os.Stderr, "", log.LstdFlags)
)

// initLevel reads the level from the environment the first time it is needed
func initLevel() {
	levelOnce.Do(func() {
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel.Store(int32(LevelDebug))
				return
			}
		}

		level, ok := ParseLevel(os.Getenv("LOG_LEVEL"))
		if !ok {
			level = LevelInfo
		}
		currentLevel.Store(int32(level))
	})
}

// ParseLevel converts a level name to a LogLevel. Unknown names report false.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// SetLevel overrides the level chosen from the environment
func SetLevel(level LogLevel) {
	initLevel()
	currentLevel.Store(int32(level))
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects all log output. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	std.SetOutput(w)
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(level LogLevel, tag, prefix, format string, args ...interface{}) {
	if GetLevel() > level {
		return
	}
	std.Printf(tag+prefix+format, args...)
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	logAt(LevelDebug, "[DEBUG] ", "", format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logAt(LevelInfo, "[INFO] ", "", format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logAt(LevelWarn, "[WARN] ", "", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logAt(LevelError, "[ERROR] ", "", format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	std.Fatalf("[FATAL] "+format, args...)
}

// Printf always prints, regardless of level
func Printf(format string, args ...interface{}) {
	std.Printf(format, args...)
}

// Logger is a component logger. Every line is prefixed with the component name.
type Logger struct {
	prefix string
}

// For returns a logger whose lines are prefixed with "component: ".
func For(component string) Logger {
	return Logger{prefix: component + ": "}
}

// Debug logs at debug level
func (l Logger) Debug(format string, args ...interface{}) {
	logAt(LevelDebug, "[DEBUG] ", l.prefix, format, args...)
}

// Info logs at info level
func (l Logger) Info(format string, args ...interface{}) {
	logAt(LevelInfo, "[INFO] ", l.prefix, format, args...)
}

// Warn logs at warn level
func (l Logger) Warn(format string, args ...interface{}) {
	logAt(LevelWarn, "[WARN] ", l.prefix, format, args...)
}

// Error logs at error level
func (l Logger) Error(format string, args ...interface{}) {
	logAt(LevelError, "[ERROR] ", l.prefix, format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
