package bchan

import "github.com/sirupsen/logrus"

// Logger is the tracing hook every Chan is built with. It is satisfied
// directly by *logrus.Logger and *logrus.Entry, so callers that already
// carry a logrus logger can pass it straight through with WithLogger.
type Logger interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

// discardLogger is the default: logrus configured to drop everything, so
// the library is silent unless a caller opts in. This replaces the
// source's compile-time debugChan/debugSelect consts with a tracer that's
// always compiled in but disabled at runtime by default.
func discardLogger() Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func trace(l Logger, event string, fields logrus.Fields) {
	l.WithFields(fields).Debug(event)
}
