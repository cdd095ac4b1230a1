package config

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isolatorcalc/isolator/logging"
)

var globalLogger struct {
	// Set once at startup.
	logger           logging.Logger
	cmdLineDebugFlag bool

	// Changes whenever the config file is reloaded.
	mu                  sync.Mutex
	fileConfigDebugFlag bool
}

// InitLoggingSettings initializes the global logging settings.
func InitLoggingSettings(logger logging.Logger, cmdLineDebugFlag bool) {
	globalLogger.logger = logger
	globalLogger.cmdLineDebugFlag = cmdLineDebugFlag
	if cmdLineDebugFlag {
		logging.GlobalLogLevel.SetLevel(zapcore.DebugLevel)
	} else {
		logging.GlobalLogLevel.SetLevel(zapcore.InfoLevel)
	}
	globalLogger.logger.Info("Log level initialized: ", logging.GlobalLogLevel.Level())
}

// ApplyLogConfig applies the debug flag and the per logger patterns of a freshly read config.
func ApplyLogConfig(cfg *Config) error {
	UpdateFileConfigDebug(cfg.Debug)
	errLogger := globalLogger.logger
	if errLogger == nil {
		errLogger = logging.Global()
	}
	return logging.UpdateLoggerPatterns(cfg.LogConfig, errLogger)
}

// UpdateFileConfigDebug is used to update the debug flag whenever the config file is refreshed.
func UpdateFileConfigDebug(fileDebug bool) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()

	globalLogger.fileConfigDebugFlag = fileDebug
	refreshLogLevelInLock()
}

func refreshLogLevelInLock() {
	newLevel := zap.InfoLevel
	if globalLogger.cmdLineDebugFlag || globalLogger.fileConfigDebugFlag {
		newLevel = zap.DebugLevel
	}

	if logging.GlobalLogLevel.Level() == newLevel {
		return
	}
	if globalLogger.logger != nil {
		globalLogger.logger.Info("New log level: ", newLevel)
	}
	logging.GlobalLogLevel.SetLevel(newLevel)
}
