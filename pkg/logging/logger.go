package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// Logger provides leveled logging for the FSM runtime.
// This abstraction allows swapping logging implementations.
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Errorf logs a formatted error message
	Errorf(format string, args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Warnf logs a formatted warning message
	Warnf(format string, args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Infof logs a formatted informational message
	Infof(format string, args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// Debugf logs a formatted debug message
	Debugf(format string, args ...interface{})

	// WithFields returns a logger that attaches the given key/value
	// pairs to every record it emits. Implementations that have no
	// native field support flatten them into the message text.
	WithFields(fields map[string]interface{}) Logger
}

// stdLogger implements Logger using Go's standard log package.
type stdLogger struct {
	errorLogger *log.Logger
	warnLogger  *log.Logger
	infoLogger  *log.Logger
	debugLogger *log.Logger
	fields      map[string]interface{}
}

// NewStdLogger creates a Logger backed by the standard library.
func NewStdLogger() Logger {
	return &stdLogger{
		errorLogger: log.New(os.Stderr, "[ERROR] ", log.LstdFlags|log.Lshortfile),
		warnLogger:  log.New(os.Stderr, "[WARN] ", log.LstdFlags|log.Lshortfile),
		infoLogger:  log.New(os.Stdout, "[INFO] ", log.LstdFlags|log.Lshortfile),
		debugLogger: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags|log.Lshortfile),
	}
}

// flatten renders attached fields as a deterministic "k=v" suffix.
func (l *stdLogger) flatten(msg string) string {
	if len(l.fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	return b.String()
}

func (l *stdLogger) Error(args ...interface{}) {
	l.errorLogger.Output(3, l.flatten(fmt.Sprint(args...)))
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.errorLogger.Output(3, l.flatten(fmt.Sprintf(format, args...)))
}

func (l *stdLogger) Warn(args ...interface{}) {
	l.warnLogger.Output(3, l.flatten(fmt.Sprint(args...)))
}

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.warnLogger.Output(3, l.flatten(fmt.Sprintf(format, args...)))
}

func (l *stdLogger) Info(args ...interface{}) {
	l.infoLogger.Output(3, l.flatten(fmt.Sprint(args...)))
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.infoLogger.Output(3, l.flatten(fmt.Sprintf(format, args...)))
}

func (l *stdLogger) Debug(args ...interface{}) {
	l.debugLogger.Output(3, l.flatten(fmt.Sprint(args...)))
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.debugLogger.Output(3, l.flatten(fmt.Sprintf(format, args...)))
}

func (l *stdLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &stdLogger{
		errorLogger: l.errorLogger,
		warnLogger:  l.warnLogger,
		infoLogger:  l.infoLogger,
		debugLogger: l.debugLogger,
		fields:      merged,
	}
}
