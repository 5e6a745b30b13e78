package httpclient

import (
	"os"

	"github.com/rs/zerolog"
)

// Fields are structured key/value pairs attached to a log line.
type Fields map[string]any

// Logger receives the retry loop's failure reports.
//
// Warn is called once per transient failure, Error once when every attempt
// failed. Implementations must be safe for concurrent use.
type Logger interface {
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// zerologLogger adapts a zerolog.Logger to Logger.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger wraps a zerolog.Logger.
//
// Example:
//
//	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
//	client := httpclient.New(
//	    httpclient.WithLogger(httpclient.NewZerologLogger(logger)),
//	)
func NewZerologLogger(logger zerolog.Logger) Logger {
	return &zerologLogger{logger: logger}
}

func (l *zerologLogger) Warn(msg string, fields Fields) {
	l.logger.Warn().Fields(map[string]any(fields)).Msg(msg)
}

func (l *zerologLogger) Error(msg string, fields Fields) {
	l.logger.Error().Fields(map[string]any(fields)).Msg(msg)
}

// defaultLogger writes JSON lines to stderr at warn level and above.
func defaultLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Str("component", "bypass-httpclient").
		Logger()
}

type nopLogger struct{}

func (nopLogger) Warn(string, Fields)  {}
func (nopLogger) Error(string, Fields) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
