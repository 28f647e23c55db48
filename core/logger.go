package core

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior (e.g., integration with logrus, zap, etc.)
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// DefaultLogger writes leveled, structured lines through phuslu/log.
type DefaultLogger struct {
	logger log.Logger
}

// NewDefaultLogger creates a DefaultLogger writing colored console output to stderr at info level.
func NewDefaultLogger() *DefaultLogger {
	return NewLeveledLogger(os.Stderr, "info")
}

// NewLeveledLogger creates a DefaultLogger writing to w at the given level name.
// Unknown level names fall back to info.
func NewLeveledLogger(w io.Writer, level string) *DefaultLogger {
	return &DefaultLogger{
		logger: log.Logger{
			Level:      ParseLevel(level),
			TimeFormat: "15:04:05.000",
			Writer:     newLogWriter(w),
		},
	}
}

// newLogWriter uses the console format for the standard streams, colored only when
// that stream is a terminal. Anything else gets JSON lines.
func newLogWriter(w io.Writer) log.Writer {
	f, ok := w.(*os.File)
	if !ok || (f != os.Stderr && f != os.Stdout) {
		return &log.IOWriter{Writer: w}
	}
	return &log.ConsoleWriter{
		ColorOutput:    log.IsTerminal(f.Fd()),
		QuoteString:    true,
		EndWithMessage: true,
		Writer:         w,
	}
}

// ParseLevel converts a level name to a log.Level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message
func (l *DefaultLogger) Debug(msg string, fields ...Field) {
	l.write(l.logger.Debug(), msg, fields)
}

// Info logs an info message
func (l *DefaultLogger) Info(msg string, fields ...Field) {
	l.write(l.logger.Info(), msg, fields)
}

// Warn logs a warning message
func (l *DefaultLogger) Warn(msg string, fields ...Field) {
	l.write(l.logger.Warn(), msg, fields)
}

// Error logs an error message
func (l *DefaultLogger) Error(msg string, fields ...Field) {
	l.write(l.logger.Error(), msg, fields)
}

// write attaches fields to the entry; a nil entry means the level is disabled.
func (l *DefaultLogger) write(e *log.Entry, msg string, fields []Field) {
	if e == nil {
		return
	}
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			e = e.AnErr(f.Key, err)
			continue
		}
		e = e.Any(f.Key, f.Value)
	}
	e.Msg(msg)
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
