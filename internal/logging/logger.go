// Package logging is the log surface shared by the query cache packages.
//
// Components accept a Logger and never a *slog.Logger, so a cache built
// without one stays silent (OrNop) and tests can hand in a buffer-backed
// adapter. The qcache command builds its root logger with FromOptions from
// the [logging] config section and its -v and -json-logs flags; each
// component then tags its records with Component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats accepted by Options.Format and the logging.format key.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options mirrors the [logging] config section plus the output stream.
type Options struct {
	// Verbose enables debug records: cache hits and misses, collapsed loads,
	// skipped inserts and bus traffic.
	Verbose bool
	// Writer receives records; nil means os.Stderr.
	Writer io.Writer
	// Format is FormatText (the default) or FormatJSON, case-insensitive.
	Format string
}

// New builds the root slog.Logger for a qcache run.
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, handlerOpts)
	if strings.EqualFold(opts.Format, FormatJSON) {
		h = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(h)
}

// FromOptions is New wrapped as a Logger.
func FromOptions(opts Options) Logger {
	return NewSlogAdapter(New(opts))
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}

// Component returns l tagged with component=name. A nil l yields a NopLogger.
func Component(l Logger, name string, args ...any) Logger {
	return OrNop(l).With(append([]any{"component", name}, args...)...)
}

// Logger is the leveled, key/value logging interface the cache packages use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter forwards to a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

var _ Logger = (*SlogAdapter)(nil)

// NewSlogAdapter wraps logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

// With returns an adapter whose records carry args.
func (s *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: s.logger.With(args...)}
}

// NopLogger drops every record. It is what components fall back to when
// built without a logger.
type NopLogger struct{}

var _ Logger = (*NopLogger)(nil)

// NewNopLogger returns a NopLogger.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Debug(string, ...any) {}
func (n *NopLogger) Info(string, ...any)  {}
func (n *NopLogger) Warn(string, ...any)  {}
func (n *NopLogger) Error(string, ...any) {}

// With returns n.
func (n *NopLogger) With(...any) Logger {
	return n
}
