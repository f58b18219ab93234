// Package logging wraps log/slog with the handler wiring the engine
// uses: text or JSON to stderr, optionally fanned out to an OpenTelemetry
// logger provider, plus context helpers for per-query correlation.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
)

// Logger wraps slog.Logger so call sites depend on this package, not on
// the handler composition.
type Logger struct {
	*slog.Logger
}

// Config controls handler construction.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text or json.
	Format string
	// LoggerProvider, when set, duplicates every record to OTLP through
	// the otelslog bridge.
	LoggerProvider log.LoggerProvider
	// ServiceName names the otelslog instrumentation scope.
	ServiceName string
}

// New builds a Logger from config. Unknown levels and formats are
// rejected rather than silently defaulted so a config typo is visible at
// startup.
func New(cfg Config) (*Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "", "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.LoggerProvider != nil {
		name := cfg.ServiceName
		if name == "" {
			name = "query-engine"
		}
		bridge := otelslog.NewHandler(name, otelslog.WithLoggerProvider(cfg.LoggerProvider))
		handler = multiHandler{handlers: []slog.Handler{handler, bridge}}
	}
	return &Logger{Logger: slog.New(handler)}, nil
}

// NewNop returns a logger that discards everything. Tests use it.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// multiHandler fans records out to every wrapped handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return multiHandler{handlers: next}
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return multiHandler{handlers: next}
}

type contextKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the context's logger, or a no-op logger when none
// was stored.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return NewNop()
}
