package logging

import (
	"fmt"
	"regexp"
	"sync"
)

// Registry tracks named loggers so their levels can be changed at runtime from configuration.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]Logger
	logConfig []LoggerPatternConfig
}

var globalRegistry = newRegistry()

func newRegistry() *Registry {
	return &Registry{
		loggers: make(map[string]Logger),
	}
}

func (lr *Registry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
}

func (lr *Registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

func (lr *Registry) updateLoggerLevel(name string, level Level) error {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok := lr.loggers[name]
	if !ok {
		return fmt.Errorf("logger named %s not recognized", name)
	}
	logger.SetLevel(level)
	return nil
}

// levelFor returns the level of the last pattern matching name. Callers must hold the lock.
func (lr *Registry) levelFor(name string) (Level, bool, error) {
	level, matched := INFO, false
	for _, lpc := range lr.logConfig {
		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil {
			return INFO, false, err
		}
		if !r.MatchString(name) {
			continue
		}
		if level, err = LevelFromString(lpc.Level); err != nil {
			return INFO, false, err
		}
		matched = true
	}
	return level, matched, nil
}

// UpdateConfig applies the patterns to every registered logger. Loggers matching no pattern are
// reset to INFO. Malformed patterns are skipped with a warning to `errorLogger`.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	valid := make([]LoggerPatternConfig, 0, len(logConfig))
	for _, lpc := range logConfig {
		if !ValidatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}
		valid = append(valid, lpc)
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = valid
	for name, logger := range lr.loggers {
		level, _, err := lr.levelFor(name)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}
	return nil
}

func (lr *Registry) getRegisteredLoggerNames() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	registeredNames := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		registeredNames = append(registeredNames, name)
	}
	return registeredNames
}

// getOrRegister either returns the existing logger for `name` or registers the input `logger`
// and configures it from the current patterns. Concurrent callers all receive the winner.
func (lr *Registry) getOrRegister(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if existingLogger, ok := lr.loggers[name]; ok {
		return existingLogger
	}

	lr.loggers[name] = logger
	if level, matched, err := lr.levelFor(name); err == nil && matched {
		logger.SetLevel(level)
	}
	return logger
}

// LoggerNamed returns the registered logger with the given name.
func LoggerNamed(name string) (Logger, bool) {
	return globalRegistry.loggerNamed(name)
}

// UpdateLoggerLevel sets the level of a registered logger.
func UpdateLoggerLevel(name string, level Level) error {
	return globalRegistry.updateLoggerLevel(name, level)
}

// UpdateLoggerPatterns applies pattern based levels to every registered logger.
func UpdateLoggerPatterns(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	return globalRegistry.UpdateConfig(logConfig, errorLogger)
}

// RegisteredLoggerNames returns the names of all registered loggers.
func RegisteredLoggerNames() []string {
	return globalRegistry.getRegisteredLoggerNames()
}
