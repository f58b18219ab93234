// Package planner compiles a requested tree into an executable fetch
// plan: filters and orderings become SQL conditions, page arguments
// become windows, and the tree itself becomes breadth-first levels of
// batched fetch nodes.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Config bounds plan construction. Zero values fall back to conservative
// defaults so a miswired caller cannot build unbounded plans.
type Config struct {
	DefaultPageSize  int
	MaxPageSize      int
	MaxDepth         int
	MaxEstimatedRows int

	// Handlers overrides pagination behavior for specific requested-tree
	// paths. Nodes without an override use DefaultPagination.
	Handlers map[string]PaginationHandler
}

const (
	fallbackDefaultPageSize  = 20
	fallbackMaxPageSize      = 100
	fallbackMaxDepth         = 10
	fallbackMaxEstimatedRows = 100_000
)

func (c Config) withDefaults() Config {
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = fallbackDefaultPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = fallbackMaxPageSize
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = fallbackMaxDepth
	}
	if c.MaxEstimatedRows <= 0 {
		c.MaxEstimatedRows = fallbackMaxEstimatedRows
	}
	return c
}

func (c Config) handlerFor(path string) PaginationHandler {
	if h, ok := c.Handlers[path]; ok {
		return h
	}
	return NewDefaultPagination(Limits{DefaultPageSize: c.DefaultPageSize, MaxPageSize: c.MaxPageSize})
}

// Linkage names the join fields tying a fetch node to its parent.
type Linkage struct {
	LocalField  *schema.Field
	RemoteField *schema.Field
}

// FetchNode is one batched fetch in the plan: an entity, the columns to
// select, the compiled predicate and ordering, and (for collections) the
// pagination window. All rows a node needs across every parent are
// fetched in one statement per parent chunk.
type FetchNode struct {
	Request  *request.Node
	Entity   *schema.Entity
	Parent   *FetchNode
	Children []*FetchNode
	Link     *Linkage

	Path  string
	Depth int

	Columns   []*schema.Field
	Predicate *Predicate
	OrderBy   *OrderBy
	Window    *Window
	Handler   PaginationHandler
	WantTotal bool
}

// Kind returns the requested node's result kind.
func (fn *FetchNode) Kind() request.Kind { return fn.Request.Kind }

// IsCollection reports whether the node fetches a windowed set of rows.
func (fn *FetchNode) IsCollection() bool { return fn.Request.Kind != request.KindObject }

// Plan is the executable form of a requested tree. Levels groups fetch
// nodes breadth-first: every node in level k has its parent in level k-1,
// so the executor runs exactly one round of batched fetches per level.
type Plan struct {
	Root   *FetchNode
	Levels [][]*FetchNode
}

// Depth returns the number of fetch levels.
func (p *Plan) Depth() int { return len(p.Levels) }

// BuildPlan compiles a requested tree against the schema registry. Any
// validation failure aborts the whole plan; errors carry the
// requested-tree path they occurred at.
func BuildPlan(reg *schema.Registry, root *request.Node, cfg Config) (*Plan, error) {
	cfg = cfg.withDefaults()
	if root == nil {
		return nil, fmt.Errorf("nil requested tree")
	}
	if root.Entity == "" {
		return nil, fmt.Errorf("root node does not name an entity")
	}
	entity, ok := reg.Entity(root.Entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", root.Entity)
	}
	if root.Kind == request.KindScalar || root.Kind == request.KindObject {
		return nil, fmt.Errorf("root node must be a collection, got %s", root.Kind)
	}

	b := &planBuilder{reg: reg, cfg: cfg}
	rootNode, err := b.build(root, entity, nil, nil, root.Name, nil)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Root: rootNode}
	collectLevels(plan, rootNode)
	if d := plan.Depth(); d > cfg.MaxDepth {
		return nil, &DepthExceededError{Depth: d, Max: cfg.MaxDepth}
	}
	if err := checkEstimatedCost(plan, cfg.MaxEstimatedRows); err != nil {
		return nil, err
	}
	return plan, nil
}

type planBuilder struct {
	reg *schema.Registry
	cfg Config
}

// build walks the requested tree depth-first. ancestors carries the open
// signature chain for cycle detection.
func (b *planBuilder) build(n *request.Node, entity *schema.Entity, parent *FetchNode, link *Linkage, path string, ancestors []string) (*FetchNode, error) {
	sig := nodeSignature(n, entity)
	for _, anc := range ancestors {
		if anc == sig {
			return nil, &CyclicSelectionError{Path: path}
		}
	}
	ancestors = append(ancestors, sig)

	fn := &FetchNode{
		Request: n,
		Entity:  entity,
		Parent:  parent,
		Link:    link,
		Path:    path,
	}
	if parent != nil {
		fn.Depth = parent.Depth + 1
	}

	pred, err := CompilePredicate(entity, n.Filter)
	if err != nil {
		return nil, planErr(path, err)
	}
	fn.Predicate = pred

	if n.Kind == request.KindObject {
		if !n.Page.IsZero() {
			return nil, planErr(path, &PaginationConflictError{Reason: "pagination arguments on a to-one relation"})
		}
		if len(n.Order) > 0 {
			return nil, planErr(path, fmt.Errorf("ordering on a to-one relation"))
		}
		if n.WantTotal {
			return nil, planErr(path, fmt.Errorf("totalCount on a to-one relation"))
		}
	} else {
		ob, err := CompileOrderBy(entity, n.Order)
		if err != nil {
			return nil, planErr(path, err)
		}
		fn.OrderBy = ob

		handler := b.cfg.handlerFor(path)
		fn.Handler = handler
		window, err := handler.ResolveWindow(entity, ob, n.Page)
		if err != nil {
			return nil, planErr(path, err)
		}
		fn.Window = window
		fn.WantTotal = n.WantTotal
	}

	// Children first resolve their relations so the parent can select the
	// local join fields alongside the requested scalars.
	var childLocals []*schema.Field
	for _, child := range n.RelationChildren() {
		rel, ok := entity.Relation(child.Relation)
		if !ok {
			return nil, planErr(path, &UnknownFieldError{Entity: entity.Name, Field: child.Relation})
		}
		if rel.Kind == schema.RelationToOne && child.Kind != request.KindObject {
			return nil, planErr(path, fmt.Errorf("relation %q is to-one but was requested as %s", rel.Name, child.Kind))
		}
		if rel.Kind == schema.RelationToMany && child.Kind == request.KindObject {
			return nil, planErr(path, fmt.Errorf("relation %q is to-many but was requested as an object", rel.Name))
		}
		target, ok := b.reg.Entity(rel.Target)
		if !ok {
			return nil, planErr(path, fmt.Errorf("relation %q targets unknown entity %q", rel.Name, rel.Target))
		}
		local, _ := entity.Field(rel.LocalField)
		remote, _ := target.Field(rel.RemoteField)
		if local == nil || remote == nil {
			return nil, planErr(path, fmt.Errorf("relation %q has unresolved join fields", rel.Name))
		}
		childLocals = append(childLocals, local)

		childFN, err := b.build(child, target, fn, &Linkage{LocalField: local, RemoteField: remote}, path+"."+child.Name, ancestors)
		if err != nil {
			return nil, err
		}
		fn.Children = append(fn.Children, childFN)
	}

	cols, err := selectColumns(entity, n, fn.OrderBy, link, childLocals)
	if err != nil {
		return nil, planErr(path, err)
	}
	fn.Columns = cols
	return fn, nil
}

// selectColumns gathers the fields a fetch must select: the requested
// scalars, then the support fields the engine needs even when not
// requested (ordering keys for cursors, the entity key, join fields on
// both sides).
func selectColumns(entity *schema.Entity, n *request.Node, ob *OrderBy, link *Linkage, childLocals []*schema.Field) ([]*schema.Field, error) {
	var cols []*schema.Field
	seen := make(map[string]bool)
	add := func(f *schema.Field) {
		if !seen[f.Name] {
			seen[f.Name] = true
			cols = append(cols, f)
		}
	}
	// Scalars resolve by their underlying field name; an aliased
	// selection keeps the alias as its response key only.
	for _, c := range n.Children {
		if c.Kind != request.KindScalar {
			continue
		}
		f, ok := entity.Field(c.FieldName())
		if !ok {
			return nil, &UnknownFieldError{Entity: entity.Name, Field: c.FieldName()}
		}
		add(f)
	}
	if ob != nil {
		for _, f := range ob.Fields {
			add(f)
		}
	}
	add(entity.KeyField())
	if link != nil {
		add(link.RemoteField)
	}
	for _, f := range childLocals {
		add(f)
	}
	return cols, nil
}

func collectLevels(plan *Plan, root *FetchNode) {
	level := []*FetchNode{root}
	for len(level) > 0 {
		plan.Levels = append(plan.Levels, level)
		var next []*FetchNode
		for _, fn := range level {
			next = append(next, fn.Children...)
		}
		level = next
	}
}

// checkEstimatedCost rejects plans whose worst-case assembled row count
// exceeds the configured ceiling. The estimate multiplies window limits
// down each branch, the same arithmetic the backend would pay.
func checkEstimatedCost(plan *Plan, maxRows int) error {
	total := 0
	var walk func(fn *FetchNode, parentRows int)
	walk = func(fn *FetchNode, parentRows int) {
		rows := parentRows
		if fn.IsCollection() {
			rows = parentRows * fn.Window.Limit
		}
		total += rows
		for _, child := range fn.Children {
			walk(child, rows)
		}
	}
	walk(plan.Root, 1)
	if total > maxRows {
		return fmt.Errorf("estimated result size %d rows exceeds maximum %d", total, maxRows)
	}
	return nil
}

// nodeSignature identifies a node's shape for cycle detection: entity,
// relation, and the full argument set. A repeated entity is legitimate
// when its arguments narrow. Any identical signature repeating down one
// chain is rejected, deliberately stricter than an unbounded-recursion
// check: a selection that revisits the same shape with the same
// arguments re-fetches the same rows and only multiplies cost, so
// narrowing is the sanctioned way to traverse a relationship back edge.
func nodeSignature(n *request.Node, entity *schema.Entity) string {
	var sb strings.Builder
	sb.WriteString(entity.Name)
	sb.WriteByte('/')
	sb.WriteString(n.Relation)
	sb.WriteByte('?')
	writeFilterKey(&sb, n.Filter)
	sb.WriteByte('|')
	for _, term := range n.Order {
		sb.WriteString(term.Field)
		sb.WriteByte(':')
		sb.WriteString(string(term.Direction))
		sb.WriteByte(':')
		sb.WriteString(string(term.Nulls))
		sb.WriteByte(',')
	}
	sb.WriteByte('|')
	writePageKey(&sb, n.Page)
	return sb.String()
}

func writeFilterKey(sb *strings.Builder, f *request.Filter) {
	if f == nil {
		return
	}
	sb.WriteString(string(f.Op))
	sb.WriteByte('(')
	if f.Field != "" {
		sb.WriteString(f.Field)
		sb.WriteByte('=')
		fmt.Fprintf(sb, "%v", f.Value)
	}
	if len(f.Children) > 0 {
		keys := make([]string, len(f.Children))
		for i, child := range f.Children {
			var csb strings.Builder
			writeFilterKey(&csb, child)
			keys[i] = csb.String()
		}
		sort.Strings(keys)
		sb.WriteString(strings.Join(keys, ";"))
	}
	sb.WriteByte(')')
}

func writePageKey(sb *strings.Builder, p *request.PageArgs) {
	if p.IsZero() {
		return
	}
	if p.First != nil {
		fmt.Fprintf(sb, "first=%d;", *p.First)
	}
	if p.Last != nil {
		fmt.Fprintf(sb, "last=%d;", *p.Last)
	}
	if p.Offset != nil {
		fmt.Fprintf(sb, "offset=%d;", *p.Offset)
	}
	if p.After != nil {
		fmt.Fprintf(sb, "after=%s;", *p.After)
	}
	if p.Before != nil {
		fmt.Fprintf(sb, "before=%s;", *p.Before)
	}
}
