package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender writes through `tb.Log` so that output is attributed to the running test, including
// parallel ones. Entries are printed in local time.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that logs to `tb`.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := consoleLine(entry, fields, true)
	tapp.tb.Log(line)
	return err
}

func (tapp *testAppender) Sync() error {
	return nil
}
