package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used throughout isolator. The `w` variants take alternating
// keys and values for structured logging. The `C` variants additionally log at debug level when
// the context has debug mode enabled.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	CDebug(ctx context.Context, args ...interface{})
	CDebugf(ctx context.Context, template string, args ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	SetLevel(level Level)
	GetLevel() Level
	Desugar() *zap.Logger
	Sync() error
}

type (
	impl struct {
		name  string
		level AtomicLevel
		inUTC bool

		appenders []Appender
	}

	// LogEntry embeds a zapcore Entry and slice of Fields.
	LogEntry struct {
		zapcore.Entry
		fields []zapcore.Field
	}

	// logCall is an unrendered log message. Rendering is deferred until the level check passes.
	logCall struct {
		kind     callKind
		template string
		args     []interface{}
	}
)

type callKind uint8

const (
	printCall callKind = iota
	printfCall
	keyValueCall
)

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = imp.name + "." + subname
	}

	appenders := make([]Appender, len(imp.appenders))
	copy(appenders, imp.appenders)
	return globalRegistry.getOrRegister(newName, &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: appenders,
	})
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// Desugar returns a zap logger that writes to the same `zapcore.Core` appenders (e.g. the observed
// test logs) as well as a console encoder on stdout. Useful for libraries that want a *zap.Logger
// or a *log.Logger via zap.NewStdLog.
func (imp *impl) Desugar() *zap.Logger {
	var copiedCores []zapcore.Core
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			copiedCores = append(copiedCores, core)
		}
	}

	config := NewZapLoggerConfig()
	// Use the global zap `AtomicLevel` such that the constructed zap logger can observe changes to
	// the debug flag.
	config.Level = GlobalLogLevel
	ret := zap.Must(config.Build()).Named(imp.name)
	for _, core := range copiedCores {
		core := core
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}

	return ret
}

// shouldLog reports whether an entry at `logLevel` passes this logger's level. A global debug
// level lets everything through.
func (imp *impl) shouldLog(logLevel Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}
	return logLevel >= imp.level.Get()
}

// emit renders and writes `call` if the level allows it or `force` is set. It must be called
// directly from the public logging methods so that getCaller finds the call site.
func (imp *impl) emit(logLevel Level, force bool, call logCall) {
	if !force && !imp.shouldLog(logLevel) {
		return
	}
	entry := imp.newLogEntry(logLevel)
	switch call.kind {
	case printCall:
		entry.Message = fmt.Sprint(call.args...)
	case printfCall:
		entry.Message = fmt.Sprintf(call.template, call.args...)
	case keyValueCall:
		entry.Message = call.template
		entry.fields = fieldsFromKeysAndValues(call.args)
	}

	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

func (imp *impl) newLogEntry(logLevel Level) *LogEntry {
	return &LogEntry{Entry: zapcore.Entry{
		Time:       time.Now(),
		Level:      logLevel.AsZap(),
		LoggerName: imp.name,
		Caller:     getCaller(),
	}}
}

// fieldsFromKeysAndValues pairs up alternating keys and values. Only public fields of struct
// values are serialized. A trailing key without a value gets an error value instead of being dropped.
func fieldsFromKeysAndValues(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		var key string
		switch k := keysAndValues[keyIdx].(type) {
		case string:
			key = k
		case fmt.Stringer:
			key = k.String()
		default:
			key = fmt.Sprintf("%v", k)
		}

		if keyIdx+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[keyIdx+1]))
	}
	return fields
}

var errUnpairedKey = errors.New("unpaired log key")

func (imp *impl) Debug(args ...interface{}) {
	imp.emit(DEBUG, false, logCall{kind: printCall, args: args})
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emit(DEBUG, false, logCall{printfCall, template, args})
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, false, logCall{keyValueCall, msg, keysAndValues})
}

// CDebug logs at debug level, even when the logger is above debug, if ctx has debug mode enabled.
func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	imp.emit(DEBUG, IsDebugMode(ctx), logCall{kind: printCall, args: args})
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.emit(DEBUG, IsDebugMode(ctx), logCall{printfCall, template, args})
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, IsDebugMode(ctx), logCall{keyValueCall, msg, keysAndValues})
}

func (imp *impl) Info(args ...interface{}) {
	imp.emit(INFO, false, logCall{kind: printCall, args: args})
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emit(INFO, false, logCall{printfCall, template, args})
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emit(INFO, false, logCall{keyValueCall, msg, keysAndValues})
}

func (imp *impl) Warn(args ...interface{}) {
	imp.emit(WARN, false, logCall{kind: printCall, args: args})
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emit(WARN, false, logCall{printfCall, template, args})
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emit(WARN, false, logCall{keyValueCall, msg, keysAndValues})
}

func (imp *impl) Error(args ...interface{}) {
	imp.emit(ERROR, false, logCall{kind: printCall, args: args})
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emit(ERROR, false, logCall{printfCall, template, args})
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, false, logCall{keyValueCall, msg, keysAndValues})
}

// getCaller returns the call site of the public logging method, e.g. "web/server.go:36".
func getCaller() zapcore.EntryCaller {
	// getCaller <- newLogEntry <- emit <- public method <- call site
	const skipToLogCaller = 4
	var caller zapcore.EntryCaller
	pc, file, line, ok := runtime.Caller(skipToLogCaller)
	if !ok {
		return caller
	}
	caller = zapcore.NewEntryCaller(pc, file, line, true)
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
