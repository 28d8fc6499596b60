package particle

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// The default implementation writes through logrus.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// logrusLogger adapts a logrus.FieldLogger to Logger.
type logrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrusLogger returns a Logger writing through l. Key-value pairs become
// logrus fields.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusLogger{entry: l.WithField("component", "particle")}
}

func (l *logrusLogger) Debug(msg string, args ...any) { l.entry.WithFields(fields(args)).Debug(msg) }
func (l *logrusLogger) Info(msg string, args ...any)  { l.entry.WithFields(fields(args)).Info(msg) }
func (l *logrusLogger) Warn(msg string, args ...any)  { l.entry.WithFields(fields(args)).Warn(msg) }
func (l *logrusLogger) Error(msg string, args ...any) { l.entry.WithFields(fields(args)).Error(msg) }

// fields turns slog style alternating key-value arguments into logrus
// fields. A key without a value is reported under "!BADKEY".
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		f[key] = args[i+1]
	}
	return f
}

// defaultLogger returns a Logger backed by the logrus standard logger.
func defaultLogger() Logger {
	return NewLogrusLogger(logrus.StandardLogger())
}

var debug atomic.Bool

// SetDebug turns on logging of errors that are otherwise swallowed:
// per-message read errors, periodic task failures and ignored callback
// failures. It applies to the whole process.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// DebugEnabled reports whether SetDebug(true) is in effect.
func DebugEnabled() bool {
	return debug.Load()
}

// logSwallowed logs an error that does not change control flow.
func logSwallowed(logger Logger, msg string, args ...any) {
	if DebugEnabled() {
		logger.Warn(msg, args...)
	}
}
