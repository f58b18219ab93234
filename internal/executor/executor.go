// Package executor runs compiled fetch plans against a query backend.
// Levels execute strictly in order; within a level every fetch node runs
// its batched statements concurrently under a bounded semaphore. One
// failed statement cancels the rest and aborts the plan.
package executor

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrThearMan/undine-sub001/internal/dbexec"
	"github.com/MrThearMan/undine-sub001/internal/logging"
	"github.com/MrThearMan/undine-sub001/internal/observability"
	"github.com/MrThearMan/undine-sub001/internal/planner"
	"github.com/MrThearMan/undine-sub001/internal/request"
)

// Config bounds execution.
type Config struct {
	// Concurrency caps in-flight statements per level.
	Concurrency int
	// BatchMaxParents caps IN-clause size; larger parent sets split into
	// chunks, still within the same fetch round.
	BatchMaxParents int
}

const (
	defaultConcurrency     = 4
	defaultBatchMaxParents = 1000
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.BatchMaxParents <= 0 {
		c.BatchMaxParents = defaultBatchMaxParents
	}
	return c
}

// Executor runs plans. It is safe for concurrent use; all per-plan state
// lives in the execution, not the Executor.
type Executor struct {
	db      dbexec.QueryExecutor
	cfg     Config
	logger  *logging.Logger
	metrics *observability.EngineMetrics
	tracer  trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

func New(db dbexec.QueryExecutor, cfg Config, opts ...Option) *Executor {
	e := &Executor{
		db:     db,
		cfg:    cfg.withDefaults(),
		logger: logging.NewNop(),
		tracer: otel.Tracer("query-engine/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// group holds one parent's window of rows.
type group struct {
	rows    []row
	hasMore bool
	total   *int64
}

// nodeState accumulates a fetch node's results across chunks.
type nodeState struct {
	mu          sync.Mutex
	groups      map[string]*group
	parentOrder []string
	flat        []row
}

func (st *nodeState) group(key string) *group {
	st.mu.Lock()
	defer st.mu.Unlock()
	g, ok := st.groups[key]
	if !ok {
		g = &group{}
		st.groups[key] = g
	}
	return g
}

type execution struct {
	*Executor
	plan   *planner.Plan
	states map[*planner.FetchNode]*nodeState
	// childByRequest maps a requested node back to its fetch node so the
	// assembler can follow request order.
	childByRequest map[*request.Node]*planner.FetchNode
}

// Execute runs the plan and assembles the result tree. The returned value
// is a JSON-marshalable structure preserving request order.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) (any, error) {
	ctx, span := e.tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("engine.root_entity", plan.Root.Entity.Name),
		attribute.Int("engine.plan_depth", plan.Depth()),
	))
	defer span.End()

	ex := &execution{
		Executor:       e,
		plan:           plan,
		states:         make(map[*planner.FetchNode]*nodeState),
		childByRequest: make(map[*request.Node]*planner.FetchNode),
	}
	var index func(fn *planner.FetchNode)
	index = func(fn *planner.FetchNode) {
		ex.states[fn] = &nodeState{groups: make(map[string]*group)}
		for _, child := range fn.Children {
			ex.childByRequest[child.Request] = child
			index(child)
		}
	}
	index(plan.Root)

	for lvl, level := range plan.Levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ex.runLevel(ctx, lvl, level); err != nil {
			return nil, err
		}
	}
	return ex.assemble(), nil
}

// task is one statement to run within a level.
type task struct {
	fn  *planner.FetchNode
	run func(ctx context.Context) error
}

func (ex *execution) runLevel(ctx context.Context, lvl int, level []*planner.FetchNode) error {
	ctx, span := ex.tracer.Start(ctx, "engine.fetch_level", trace.WithAttributes(
		attribute.Int("engine.level", lvl),
		attribute.Int("engine.fetch_nodes", len(level)),
	))
	defer span.End()

	var tasks []task
	for _, fn := range level {
		nodeTasks, err := ex.nodeTasks(fn)
		if err != nil {
			return &FetchExecutionError{Path: fn.Path, Err: err}
		}
		tasks = append(tasks, nodeTasks...)
	}
	if err := ex.runTasks(ctx, tasks); err != nil {
		return err
	}

	// Flatten trimmed rows in parent order; the next level batches over
	// them and the assembler walks them per group.
	for _, fn := range level {
		st := ex.states[fn]
		if fn.Parent == nil {
			st.flat = st.groups[""].rows
		} else {
			for _, key := range st.parentOrder {
				if g, ok := st.groups[key]; ok {
					st.flat = append(st.flat, g.rows...)
				}
			}
		}
		ex.metrics.RecordRows(ctx, fn.Entity.Name, len(st.flat))
	}
	return nil
}

// nodeTasks builds the statements one fetch node contributes to its
// level: the batched fetch per parent chunk plus one count per parent
// when totalCount was requested.
func (ex *execution) nodeTasks(fn *planner.FetchNode) ([]task, error) {
	if fn.Parent == nil {
		return ex.rootTasks(fn)
	}

	parents := ex.parentValues(fn)
	st := ex.states[fn]
	for _, p := range parents {
		st.parentOrder = append(st.parentOrder, keyFor(p))
	}
	if len(parents) == 0 {
		return nil, nil
	}

	var tasks []task
	for _, chunk := range chunkValues(parents, ex.cfg.BatchMaxParents) {
		q, err := buildChunkQuery(fn, chunk)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task{fn: fn, run: func(ctx context.Context) error {
			return ex.fetchChunk(ctx, fn, q)
		}})
	}
	if fn.WantTotal {
		for _, parent := range parents {
			q, err := planner.GroupCountQuery(fn, parent)
			if err != nil {
				return nil, err
			}
			key := keyFor(parent)
			tasks = append(tasks, task{fn: fn, run: func(ctx context.Context) error {
				return ex.fetchCount(ctx, fn, q, key)
			}})
		}
	}
	return tasks, nil
}

func (ex *execution) rootTasks(fn *planner.FetchNode) ([]task, error) {
	q, err := planner.RootQuery(fn)
	if err != nil {
		return nil, err
	}
	tasks := []task{{fn: fn, run: func(ctx context.Context) error {
		return ex.fetchChunk(ctx, fn, q)
	}}}
	if fn.WantTotal {
		countQ, err := planner.RootCountQuery(fn)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task{fn: fn, run: func(ctx context.Context) error {
			return ex.fetchCount(ctx, fn, countQ, "")
		}})
	}
	return tasks, nil
}

func buildChunkQuery(fn *planner.FetchNode, chunk []any) (planner.SQLQuery, error) {
	if fn.Kind() == request.KindObject {
		return planner.ToOneBatchQuery(fn, chunk)
	}
	return planner.ToManyBatchQuery(fn, chunk)
}

// parentValues collects the distinct link values of the parent's trimmed
// rows, in row order.
func (ex *execution) parentValues(fn *planner.FetchNode) []any {
	parentRows := ex.states[fn.Parent].flat
	seen := make(map[string]bool, len(parentRows))
	var out []any
	for _, r := range parentRows {
		v, ok := r[fn.Link.LocalField.Name]
		if !ok || v == nil {
			continue
		}
		key := keyFor(v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

// fetchChunk runs one batched statement and folds its rows into per-parent
// groups, applying the window trim.
func (ex *execution) fetchChunk(ctx context.Context, fn *planner.FetchNode, q planner.SQLQuery) error {
	ctx, span := ex.tracer.Start(ctx, "engine.fetch", trace.WithAttributes(
		attribute.String("engine.path", fn.Path),
		attribute.String("db.collection.name", fn.Entity.Table),
	))
	defer span.End()
	ex.metrics.RecordBatch(ctx, fn.Entity.Name)
	ex.logger.DebugContext(ctx, "executing batched fetch",
		slog.String("path", fn.Path),
		slog.String("sql", q.SQL),
		slog.Int("args", len(q.Args)),
	)

	rows, err := ex.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return err
	}
	scanned, err := scanRows(rows, fn.Columns)
	if err != nil {
		return err
	}

	st := ex.states[fn]
	if fn.Parent == nil {
		g := st.group("")
		g.rows, g.hasMore = trimWindow(scanned, fn)
		return nil
	}

	grouped := make(map[string][]row)
	var order []string
	linkField := fn.Link.RemoteField.Name
	for _, r := range scanned {
		key := keyFor(r[linkField])
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], r)
	}
	for _, key := range order {
		g := st.group(key)
		if fn.Kind() == request.KindObject {
			g.rows = grouped[key][:1]
			continue
		}
		g.rows, g.hasMore = trimWindow(grouped[key], fn)
	}
	return nil
}

// trimWindow drops the over-fetched row and restores window order for
// backward pages. The extra row only proves another page exists.
func trimWindow(rows []row, fn *planner.FetchNode) (out []row, hasMore bool) {
	w := fn.Window
	if len(rows) > w.Limit {
		rows = rows[:w.Limit]
		hasMore = true
	}
	if w.Backward() {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows, hasMore
}

func (ex *execution) fetchCount(ctx context.Context, fn *planner.FetchNode, q planner.SQLQuery, key string) error {
	ctx, span := ex.tracer.Start(ctx, "engine.count", trace.WithAttributes(
		attribute.String("engine.path", fn.Path),
	))
	defer span.End()
	ex.metrics.RecordCount(ctx, fn.Entity.Name)

	rows, err := ex.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return err
	}
	count, err := scanCount(rows)
	if err != nil {
		return err
	}
	g := ex.states[fn].group(key)
	g.total = &count
	return nil
}

// runTasks executes a level's statements under the concurrency bound.
// The first failure cancels the level and is reported with its node path;
// later failures from the same level are side effects of cancellation and
// are dropped.
func (ex *execution) runTasks(ctx context.Context, tasks []task) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, ex.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := t.run(ctx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &FetchExecutionError{Path: t.fn.Path, Err: err}
					cancel()
				}
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	if firstErr != nil {
		ex.logger.ErrorContext(ctx, "fetch level aborted", slog.String("error", firstErr.Error()))
		return firstErr
	}
	return ctx.Err()
}

func chunkValues(values []any, size int) [][]any {
	if len(values) <= size {
		return [][]any{values}
	}
	var chunks [][]any
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
