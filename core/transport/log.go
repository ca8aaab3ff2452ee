// Package transport provides the ambient logging/tracing/metrics glue that
// sits between core's domain packages and the concrete observability
// backends cmd/dipeo wires up, generalizing dshills-langgraph-go/graph/emit's
// Emitter implementations (LogEmitter, OTelEmitter) from a single Emitter
// interface tied to graph's generic engine into independent adapters the
// engine-agnostic core/observe bus already knows how to drive.
package transport

import "log/slog"

// Logger is the structured-logging surface components reach for outside
// the execution_log event path (startup, CLI, fatal errors) — the same
// Debug/Info/Warn/Error(msg, kv...) shape graph/emit/log.go's LogEmitter
// exposes, backed here by log/slog instead of a bespoke text/JSON writer.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// SlogLogger adapts *slog.Logger to Logger. slog.Logger already accepts
// alternating key/value pairs as variadic args, so this is a thin forward.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger as a Logger. A nil logger falls back to
// slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (s *SlogLogger) Debug(msg string, kv ...any) { s.logger.Debug(msg, kv...) }
func (s *SlogLogger) Info(msg string, kv ...any)  { s.logger.Info(msg, kv...) }
func (s *SlogLogger) Warn(msg string, kv ...any)  { s.logger.Warn(msg, kv...) }
func (s *SlogLogger) Error(msg string, kv ...any) { s.logger.Error(msg, kv...) }

// NopLogger discards everything. Useful as a test default or when a caller
// has not configured a Logger and the bus-based ExecutionLog event path
// already covers diagram-run logging.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
