package logger

import (
	"sync"
)

// Log levels accepted from flags and config.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process-wide logger. The first call fixes the level;
// later calls return the same instance.
func Get(level string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level)
	})
	return globalLogger
}

// Discard returns a logger that drops everything. Used when a client is
// constructed without one (tests, library callers).
func Discard() *Logger {
	return newNopLogger()
}
