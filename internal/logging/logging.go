// Package logging provides the leveled, structured logger shared by the
// engine and its surfaces.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Fields is the structured payload attached to a log line.
type Fields = map[string]any

// Logger accepts leveled messages with a structured payload.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// Format selects the zerolog writer.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

type zeroLogger struct {
	zl zerolog.Logger
}

// New builds a zerolog-backed Logger writing to w (os.Stderr when nil).
// Unknown levels fall back to info.
func New(level string, format Format, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &zeroLogger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zeroLogger{zl: zl}
}

func (l *zeroLogger) Debug(msg string, fields Fields) { l.zl.Debug().Fields(fields).Msg(msg) }
func (l *zeroLogger) Info(msg string, fields Fields)  { l.zl.Info().Fields(fields).Msg(msg) }
func (l *zeroLogger) Warn(msg string, fields Fields)  { l.zl.Warn().Fields(fields).Msg(msg) }
func (l *zeroLogger) Error(msg string, fields Fields) { l.zl.Error().Fields(fields).Msg(msg) }

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}
