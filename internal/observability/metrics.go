package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds the engine's instrument set. A nil *EngineMetrics
// is valid and records nothing, so tests and library embedders can skip
// telemetry entirely.
type EngineMetrics struct {
	queries       metric.Int64Counter
	queryDuration metric.Float64Histogram
	fetchRounds   metric.Int64Histogram
	batchFetches  metric.Int64Counter
	countFetches  metric.Int64Counter
	resultRows    metric.Int64Counter
	planDepth     metric.Int64Histogram
}

// NewEngineMetrics registers the engine instruments on a meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var err error
	if m.queries, err = meter.Int64Counter(
		"engine.queries.total",
		metric.WithDescription("Executed query plans, by outcome"),
	); err != nil {
		return nil, fmt.Errorf("create queries counter: %w", err)
	}
	if m.queryDuration, err = meter.Float64Histogram(
		"engine.query.duration",
		metric.WithDescription("End-to-end plan execution duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if m.fetchRounds, err = meter.Int64Histogram(
		"engine.fetch.rounds",
		metric.WithDescription("Fetch rounds (plan levels) per executed plan"),
	); err != nil {
		return nil, fmt.Errorf("create fetch rounds histogram: %w", err)
	}
	if m.batchFetches, err = meter.Int64Counter(
		"engine.fetch.batches.total",
		metric.WithDescription("Batched fetch statements issued"),
	); err != nil {
		return nil, fmt.Errorf("create batch counter: %w", err)
	}
	if m.countFetches, err = meter.Int64Counter(
		"engine.fetch.counts.total",
		metric.WithDescription("COUNT statements issued for totalCount"),
	); err != nil {
		return nil, fmt.Errorf("create count counter: %w", err)
	}
	if m.resultRows, err = meter.Int64Counter(
		"engine.result.rows.total",
		metric.WithDescription("Rows returned to assembly after window trimming"),
	); err != nil {
		return nil, fmt.Errorf("create result rows counter: %w", err)
	}
	if m.planDepth, err = meter.Int64Histogram(
		"engine.plan.depth",
		metric.WithDescription("Depth of executed plans"),
	); err != nil {
		return nil, fmt.Errorf("create plan depth histogram: %w", err)
	}
	return m, nil
}

// RecordQuery records one completed plan execution.
func (m *EngineMetrics) RecordQuery(ctx context.Context, duration time.Duration, depth, rounds int, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.queries.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, duration.Seconds(), attrs)
	if !failed {
		m.planDepth.Record(ctx, int64(depth))
		m.fetchRounds.Record(ctx, int64(rounds))
	}
}

// RecordBatch records one issued batched fetch statement.
func (m *EngineMetrics) RecordBatch(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.batchFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordCount records one issued COUNT statement.
func (m *EngineMetrics) RecordCount(ctx context.Context, entity string) {
	if m == nil {
		return
	}
	m.countFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordRows records rows surviving window trimming for one fetch node.
func (m *EngineMetrics) RecordRows(ctx context.Context, entity string, rows int) {
	if m == nil {
		return
	}
	m.resultRows.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("entity", entity)))
}
