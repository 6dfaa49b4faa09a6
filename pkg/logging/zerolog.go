package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// zerologLogger implements Logger on top of zerolog. With structured
// output every record is a JSON object and WithFields attaches real
// key/value pairs; without it the console writer flattens records to
// single human-readable lines.
type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger creates a zerolog-backed Logger writing to w
// (os.Stderr when nil). structured selects JSON output over the
// console writer.
func NewZerologLogger(w io.Writer, structured bool) Logger {
	if w == nil {
		w = os.Stderr
	}
	if !structured {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

// NewNopLogger returns a Logger that discards everything. Used in
// tests and as a silent default.
func NewNopLogger() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}

func (l *zerologLogger) Error(args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

func (l *zerologLogger) Warn(args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *zerologLogger) Info(args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

func (l *zerologLogger) Debug(args ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprint(args...))
}

func (l *zerologLogger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *zerologLogger) WithFields(fields map[string]interface{}) Logger {
	return &zerologLogger{zl: l.zl.With().Fields(fields).Logger()}
}
