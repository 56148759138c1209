// Package log provides a structured logging interface for gmmsgd.
//
// The interface is slog-compatible so the backend can be swapped; the
// default backend is zerolog (see zerolog.go). Models obtain a named logger
// with GetLoggerWithName and attach training context with With.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("mixture.sgd_gmm").With(
//	    log.ModelNameKey, "SGDGMM",
//	    log.ComponentsKey, 3,
//	)
//	logger.Info("Training started",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 1000,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are passed as alternating key/value pairs. For Error, an error
// value passed as the first field is attached as the error of the record.
type Logger interface {
	// Debug logs a debug-level message, e.g. per-epoch training progress.
	Debug(msg string, fields ...any)

	// Info logs an info-level message.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error,
	// its cockroachdb stack trace is attached as well.
	//
	//   logger.Error("restart failed", err, log.RestartKey, 2)
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers of this provider.
	SetLevel(level Level)
}
