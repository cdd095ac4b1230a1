package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender will create human readable logs that write to the wrapped `io.Writer`. The
// output format is tab separated: timestamp, level, caller, message and a json object of fields.
type ConsoleAppender struct {
	io.Writer
}

// NewStdoutAppender creates a new appender that writes to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// NewWriterAppender creates a new appender that writes to the input writer.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer}
}

// FileAppender is a ConsoleAppender writing to a size-rotated file.
type FileAppender struct {
	ConsoleAppender
	rotator *lumberjack.Logger
}

// NewFileAppender creates an appender that writes to `filename`, rotating it once it grows past
// `maxSizeMB` megabytes and keeping at most `maxBackups` compressed old files.
func NewFileAppender(filename string, maxSizeMB, maxBackups int) *FileAppender {
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender{rotator}, rotator}
}

// Close closes the underlying file.
func (fa *FileAppender) Close() error {
	return fa.rotator.Close()
}

// Write outputs the log entry to the underlying stream.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := consoleLine(entry, fields, false)
	fmt.Fprintln(appender.Writer, line)
	return err
}

// consoleLine renders an entry as tab separated columns: time, level, logger name, caller, message
// and the fields as one json object. An empty name column is kept only if `keepEmptyName` is set.
// On an encoding error the line is returned without the fields.
func consoleLine(entry zapcore.Entry, fields []zapcore.Field, keepEmptyName bool) (string, error) {
	cols := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
	}
	if entry.LoggerName != "" || keepEmptyName {
		cols = append(cols, entry.LoggerName)
	}
	if entry.Caller.Defined {
		cols = append(cols, entry.Caller.TrimmedPath())
	}
	cols = append(cols, entry.Message)
	if len(fields) == 0 {
		return strings.Join(cols, "\t"), nil
	}

	// An empty Entry makes the encoder emit only the fields, in order.
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := enc.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(cols, "\t"), err
	}
	defer buf.Free()
	return strings.Join(append(cols, buf.String()), "\t"), nil
}

// Sync is a no-op.
func (appender ConsoleAppender) Sync() error {
	return nil
}
