// Package logging is the structured, leveled logger used by the isolator service and CLI. It is a
// thin layer over zap that routes entries to pluggable appenders.
package logging

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	globalMu     sync.RWMutex
	globalLogger = NewDebugLogger("startup")
)

// ReplaceGlobal replaces the global loggers.
func ReplaceGlobal(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// Global returns the global logger.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NewZapLoggerConfig returns the config for zap loggers handed to libraries: production keys in a
// colored console encoding, without sampling or stacktraces.
func NewZapLoggerConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stdout"}
	cfg.EncoderConfig.FunctionKey = zapcore.OmitKey
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// NewLogger returns a registered logger printing info and above to stdout, timestamped in UTC.
func NewLogger(name string) Logger {
	return newRegisteredLogger(name, INFO, NewStdoutAppender())
}

// NewDebugLogger is NewLogger at debug level.
func NewDebugLogger(name string) Logger {
	return newRegisteredLogger(name, DEBUG, NewStdoutAppender())
}

// NewBlankLogger returns a registered debug logger with no appenders. Output starts once one is added.
func NewBlankLogger(name string) Logger {
	return newRegisteredLogger(name, DEBUG)
}

func newRegisteredLogger(name string, level Level, appenders ...Appender) Logger {
	logger := &impl{name: name, level: NewAtomicLevelAt(level), inUTC: true, appenders: appenders}
	globalRegistry.registerLogger(name, logger)
	return logger
}

// NewTestLogger returns a debug logger writing to `tb` in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is NewTestLogger that also records every entry, for assertions on what was logged.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := &impl{level: NewAtomicLevelAt(DEBUG), appenders: []Appender{NewTestAppender(tb), core}}
	return logger, logs
}
