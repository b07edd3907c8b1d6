package common

import "log"

// Logger is the minimal logging surface used across the engine. The standard library *log.Logger satisfies it,
// so callers can route subsystem output anywhere without the engine depending on a logging framework.
type Logger interface {
	Printf(format string, args ...any)
}

// DefaultLogger returns the process-wide standard logger.
//
// Returns:
//   - Logger: log.Default()
func DefaultLogger() Logger {
	return log.Default()
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// DiscardLogger returns a Logger that drops every message. Useful for tests and headless tools.
//
// Returns:
//   - Logger: a no-op logger
func DiscardLogger() Logger {
	return discardLogger{}
}
