// Package logger provides the process-wide structured logger used by
// every component of the grid. It mirrors the public surface of the
// teacher's pkg/logger (itself backed by a private toolhive-core
// module we cannot depend on): a swappable singleton plus package-level
// Debug/Info/Warn/Error/Panic functions with f/w suffix variants.
package logger

import (
	"os"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	singleton.Store(newDefault(false).Sugar())
}

func newDefault(unstructured bool) *zap.Logger {
	if unstructured {
		cfg := zap.NewDevelopmentConfig()
		l, err := cfg.Build()
		if err != nil {
			// Fall back to a no-op logger rather than panicking during init.
			return zap.NewNop()
		}
		return l
	}
	cfg := zap.NewProductionConfig()
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// unstructuredLogs reports whether GRID_UNSTRUCTURED_LOGS requests
// human-readable (as opposed to JSON) log output. Defaults to true, the
// same default the teacher's logger applies for local development.
func unstructuredLogs() bool {
	v := os.Getenv("GRID_UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	return v != "false"
}

// Initialize (re)configures the singleton logger from the process
// environment. Safe to call multiple times; typically invoked once from
// a cobra command's PersistentPreRun.
func Initialize() {
	singleton.Store(newDefault(unstructuredLogs()).Sugar())
}

// Get returns the current singleton logger.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// NewLogr adapts the current singleton to a logr.Logger, for libraries
// (e.g. future controller-runtime-style consumers) that expect one.
func NewLogr() logr.Logger {
	return zapr.NewLogger(singleton.Load().Desugar())
}

// Debug logs at debug level.
func Debug(args ...any) { Get().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(template string, args ...any) { Get().Debugf(template, args...) }

// Debugw logs a message with structured key-value pairs at debug level.
func Debugw(msg string, kv ...any) { Get().Debugw(msg, kv...) }

// Info logs at info level.
func Info(args ...any) { Get().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(template string, args ...any) { Get().Infof(template, args...) }

// Infow logs a message with structured key-value pairs at info level.
func Infow(msg string, kv ...any) { Get().Infow(msg, kv...) }

// Warn logs at warn level.
func Warn(args ...any) { Get().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(template string, args ...any) { Get().Warnf(template, args...) }

// Warnw logs a message with structured key-value pairs at warn level.
func Warnw(msg string, kv ...any) { Get().Warnw(msg, kv...) }

// Error logs at error level.
func Error(args ...any) { Get().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(template string, args ...any) { Get().Errorf(template, args...) }

// Errorw logs a message with structured key-value pairs at error level.
func Errorw(msg string, kv ...any) { Get().Errorw(msg, kv...) }

// Panic logs at panic level, then panics.
func Panic(args ...any) { Get().Panic(args...) }

// Panicf logs a formatted message at panic level, then panics.
func Panicf(template string, args ...any) { Get().Panicf(template, args...) }

// Panicw logs a message with structured key-value pairs at panic level, then panics.
func Panicw(msg string, kv ...any) { Get().Panicw(msg, kv...) }
