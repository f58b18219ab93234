// Package engine ties the schema registry, planner, and executor into a
// single entry point: one call plans a requested tree, runs it, and
// returns the assembled result.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrThearMan/undine-sub001/internal/dbexec"
	"github.com/MrThearMan/undine-sub001/internal/executor"
	"github.com/MrThearMan/undine-sub001/internal/logging"
	"github.com/MrThearMan/undine-sub001/internal/observability"
	"github.com/MrThearMan/undine-sub001/internal/planner"
	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Config carries the engine's planning and execution bounds.
type Config struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxDepth         int
	MaxEstimatedRows int
	Concurrency      int
	BatchMaxParents  int
}

// Engine executes requested trees against one schema and one backend.
type Engine struct {
	registry *schema.Registry
	planCfg  planner.Config
	exec     *executor.Executor
	logger   *logging.Logger
	metrics  *observability.EngineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPaginationHandler overrides windowing and counting for one
// requested-tree path.
func WithPaginationHandler(path string, h planner.PaginationHandler) Option {
	return func(e *Engine) {
		if e.planCfg.Handlers == nil {
			e.planCfg.Handlers = make(map[string]planner.PaginationHandler)
		}
		e.planCfg.Handlers[path] = h
	}
}

func New(registry *schema.Registry, db dbexec.QueryExecutor, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		planCfg: planner.Config{
			DefaultPageSize:  cfg.DefaultPageSize,
			MaxPageSize:      cfg.MaxPageSize,
			MaxDepth:         cfg.MaxDepth,
			MaxEstimatedRows: cfg.MaxEstimatedRows,
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	tracer := otel.Tracer("query-engine")
	e.exec = executor.New(db,
		executor.Config{Concurrency: cfg.Concurrency, BatchMaxParents: cfg.BatchMaxParents},
		executor.WithLogger(e.logger),
		executor.WithMetrics(e.metrics),
		executor.WithTracer(tracer),
	)
	return e
}

// Execute plans and runs one requested tree. Planning failures reject the
// request before any statement reaches the backend.
func (e *Engine) Execute(ctx context.Context, root *request.Node) (any, error) {
	queryID := uuid.NewString()
	logger := &logging.Logger{Logger: e.logger.With(slog.String("query_id", queryID))}
	ctx = logging.WithLogger(ctx, logger)

	start := time.Now()
	plan, err := planner.BuildPlan(e.registry, root, e.planCfg)
	if err != nil {
		logger.WarnContext(ctx, "rejected request at planning",
			slog.String("error", err.Error()),
		)
		e.metrics.RecordQuery(ctx, time.Since(start), 0, 0, true)
		return nil, err
	}

	result, err := e.exec.Execute(ctx, plan)
	duration := time.Since(start)
	if err != nil {
		logger.ErrorContext(ctx, "plan execution failed",
			slog.String("root", root.Entity),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		e.metrics.RecordQuery(ctx, duration, plan.Depth(), plan.Depth(), true)
		recordSpanError(ctx, err)
		return nil, err
	}

	logger.InfoContext(ctx, "plan executed",
		slog.String("root", root.Entity),
		slog.Int("depth", plan.Depth()),
		slog.Duration("duration", duration),
	)
	e.metrics.RecordQuery(ctx, duration, plan.Depth(), plan.Depth(), false)
	return result, nil
}

func recordSpanError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
	}
}
