package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ZeroLogger implements the ports.Logger interface using rs/zerolog.
type ZeroLogger struct {
	log zerolog.Logger
}

// ParseLevel converts a string level to a zerolog.Level, defaulting to Info.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a zerolog-backed logger writing to os.Stderr.
func New(level zerolog.Level) *ZeroLogger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a zerolog-backed logger writing to the given writer.
// Useful for capturing output in tests.
func NewWithWriter(w io.Writer, level zerolog.Level) *ZeroLogger {
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &ZeroLogger{log: zl}
}

// withFields attaches the optional fields map to an event.
func withFields(ev *zerolog.Event, fields ...map[string]interface{}) *zerolog.Event {
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	return ev
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.log.Debug(), fields...).Msg(msg)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.log.Info(), fields...).Msg(msg)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	withFields(l.log.Warn(), fields...).Msg(msg)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	withFields(l.log.Error().Err(err), fields...).Msg(msg)
}
