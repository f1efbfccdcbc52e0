package features

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// Logger defines the structured logging contract used throughout the package.
// Arguments are alternating key/value pairs:
//
//	logger.Info("Starting startup task", "feature", "outbox", "task", 0)
//
// The interface is satisfied by thin wrappers around slog, zap, logrus and
// similar loggers.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to Logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// watermillLogger lets the session transport log through the same Logger.
type watermillLogger struct {
	base   Logger
	fields watermill.LogFields
}

// WatermillLogger adapts a Logger to watermill.LoggerAdapter so publishers
// backing a Session log through the host's logger.
func WatermillLogger(l Logger) watermill.LoggerAdapter {
	if l == nil {
		l = NopLogger()
	}
	return &watermillLogger{base: l}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.base.Error(msg, append(w.args(fields), "error", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.base.Info(msg, w.args(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.base.Debug(msg, w.args(fields)...)
}

// Trace maps to Debug; Logger has no trace level.
func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.base.Debug(msg, w.args(fields)...)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{base: w.base, fields: w.fields.Add(fields)}
}

func (w *watermillLogger) args(fields watermill.LogFields) []any {
	merged := w.fields.Add(fields)
	args := make([]any, 0, len(merged)*2)
	for k, v := range merged {
		args = append(args, k, v)
	}
	return args
}
