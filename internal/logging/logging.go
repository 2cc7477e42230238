// Package logging wraps zerolog into the small surface VeloZ's core needs:
// a side channel for errors that must never propagate to producers (audit
// write failures), and general service logging.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin handle around a zerolog.Logger.
type Logger struct {
	z zerolog.Logger
}

// New builds a console-friendly logger when pretty is true (for local/dev
// use), otherwise a plain NDJSON logger suited to log aggregation.
func New(component string, pretty bool) *Logger {
	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{z: z}
}

func (l *Logger) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }

// Error logs msg with err attached, for the diagnostic side channel that
// audit write/rotate failures are sent to (spec.md §4.A "Failure model").
func (l *Logger) Error(msg string, err error) {
	l.z.Error().Err(err).Msg(msg)
}

// With returns a child logger with an additional string field, e.g. for
// tagging a log line with a run id or strategy id.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}

// Infof / Warnf / Errorf give the teacher's printf-style call sites a home
// without losing structure: the formatted message becomes the event's msg.
func (l *Logger) Infof(format string, args ...any)  { l.z.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.z.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.z.Error().Msgf(format, args...) }
