package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrThearMan/undine-sub001/internal/cursor"
	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Mode of a resolved pagination window.
type Mode string

const (
	// ModeForward pages in window order, optionally seeking past an
	// "after" cursor.
	ModeForward Mode = "forward"
	// ModeBackward pages from the end: rows are fetched under the
	// reversed ordering and restored to window order by the assembler.
	ModeBackward Mode = "backward"
	// ModeOffset skips a fixed number of rows instead of seeking.
	ModeOffset Mode = "offset"
)

// Window is a resolved pagination request: a direction, a page size, and
// an optional seek bound or offset. Fetches always ask for one row more
// than Limit; the extra row only signals that another page exists and is
// discarded before assembly.
type Window struct {
	Mode   Mode
	Limit  int
	Offset int
	Seek   sq.Sqlizer
}

// FetchLimit returns the row count to request from the backend.
func (w *Window) FetchLimit() int { return w.Limit + 1 }

// Backward reports whether fetched rows arrive in reversed order.
func (w *Window) Backward() bool { return w.Mode == ModeBackward }

// Limits bounds window resolution.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// PaginationHandler resolves page arguments into a Window and produces
// per-parent count statements. The engine installs DefaultPagination
// everywhere; callers may override it per node to substitute a different
// windowing or counting strategy (keyset emulation, estimated counts).
type PaginationHandler interface {
	ResolveWindow(entity *schema.Entity, orderBy *OrderBy, args *request.PageArgs) (*Window, error)
	CountQuery(entity *schema.Entity, pred *Predicate, parentColumn string, parentValue any) (SQLQuery, error)
}

// DefaultPagination implements cursor and offset windowing with opaque
// self-contained cursors and exact COUNT(*) statements.
type DefaultPagination struct {
	Limits Limits
}

func NewDefaultPagination(limits Limits) *DefaultPagination {
	return &DefaultPagination{Limits: limits}
}

// ResolveWindow validates page arguments, enforces mutual exclusivity and
// the page size ceiling, decodes any cursor, and builds the seek bound.
func (d *DefaultPagination) ResolveWindow(entity *schema.Entity, orderBy *OrderBy, args *request.PageArgs) (*Window, error) {
	if args == nil {
		args = &request.PageArgs{}
	}
	if args.First != nil && *args.First < 0 {
		return nil, fmt.Errorf("first must be non-negative, got %d", *args.First)
	}
	if args.Last != nil && *args.Last < 0 {
		return nil, fmt.Errorf("last must be non-negative, got %d", *args.Last)
	}
	if args.Offset != nil && *args.Offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", *args.Offset)
	}

	switch {
	case args.First != nil && args.Last != nil:
		return nil, &PaginationConflictError{Reason: "first and last are mutually exclusive"}
	case args.After != nil && args.Before != nil:
		return nil, &PaginationConflictError{Reason: "after and before are mutually exclusive"}
	case args.Offset != nil && (args.After != nil || args.Before != nil):
		return nil, &PaginationConflictError{Reason: "offset cannot be combined with a cursor"}
	case args.Offset != nil && args.Last != nil:
		return nil, &PaginationConflictError{Reason: "offset pages forward only and cannot be combined with last"}
	case args.Last != nil && args.After != nil:
		return nil, &PaginationConflictError{Reason: "last cannot be combined with after"}
	case args.First != nil && args.Before != nil:
		return nil, &PaginationConflictError{Reason: "first cannot be combined with before"}
	case args.Before != nil && args.Last == nil:
		return nil, &PaginationConflictError{Reason: "before requires last"}
	}

	limit := d.Limits.DefaultPageSize
	if args.First != nil {
		limit = *args.First
	}
	if args.Last != nil {
		limit = *args.Last
	}
	if d.Limits.MaxPageSize > 0 && limit > d.Limits.MaxPageSize {
		return nil, &PageSizeExceededError{Requested: limit, Max: d.Limits.MaxPageSize}
	}

	w := &Window{Mode: ModeForward, Limit: limit}
	switch {
	case args.Offset != nil:
		w.Mode = ModeOffset
		w.Offset = *args.Offset
	case args.Last != nil:
		w.Mode = ModeBackward
	}

	cursorArg, cursorName := args.After, "after"
	if args.Before != nil {
		cursorArg, cursorName = args.Before, "before"
	}
	if cursorArg == nil {
		return w, nil
	}

	if orderBy.HasNullOverride() {
		return nil, &PaginationConflictError{Reason: "cursor pagination cannot be combined with explicit null placement"}
	}
	payload, err := cursor.Decode(*cursorArg)
	if err != nil {
		return nil, &InvalidCursorError{Arg: cursorName, Err: err}
	}
	if err := payload.Validate(entity.Name, orderBy.Key(), orderBy.Directions); err != nil {
		return nil, &InvalidCursorError{Arg: cursorName, Err: err}
	}
	values, err := payload.ParseValues(orderBy.Fields)
	if err != nil {
		return nil, &InvalidCursorError{Arg: cursorName, Err: err}
	}

	// "after" seeks strictly past the cursor row under the window
	// ordering; "before" seeks strictly past it under the reversed
	// ordering, which the backward fetch runs under anyway.
	seekOrder := orderBy
	if w.Backward() {
		seekOrder = orderBy.Reversed()
	}
	seek, err := BuildSeekCondition(seekOrder, values)
	if err != nil {
		return nil, &InvalidCursorError{Arg: cursorName, Err: err}
	}
	w.Seek = seek
	return w, nil
}

// CountQuery renders an exact COUNT(*) over the entity, scoped to one
// parent when parentColumn is set and constrained by the node predicate.
func (d *DefaultPagination) CountQuery(entity *schema.Entity, pred *Predicate, parentColumn string, parentValue any) (SQLQuery, error) {
	qb := sq.Select("COUNT(*)").From(quoteIdent(entity.Table))
	if parentColumn != "" {
		qb = qb.Where(sq.Eq{quoteIdent(parentColumn): parentValue})
	}
	if pred != nil {
		qb = qb.Where(pred.Condition)
	}
	sql, args, err := qb.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("build count query for %q: %w", entity.Name, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// BuildSeekCondition renders the lexicographic resume condition for a
// cursor row under the given ordering:
//
//	(a > ?) OR (a = ? AND b > ?) OR (a = ? AND b = ? AND c > ?)
//
// with the comparator flipped per-step for DESC. The expansion supports
// mixed-direction orderings, which a single row-value comparison cannot.
func BuildSeekCondition(orderBy *OrderBy, values []any) (sq.Sqlizer, error) {
	if len(values) != orderBy.Len() {
		return nil, fmt.Errorf("seek needs %d values, got %d", orderBy.Len(), len(values))
	}
	disjuncts := make(sq.Or, 0, orderBy.Len())
	for i := 0; i < orderBy.Len(); i++ {
		conj := make(sq.And, 0, i+1)
		for j := 0; j < i; j++ {
			conj = append(conj, sq.Eq{quoteIdent(orderBy.Fields[j].Column): values[j]})
		}
		col := quoteIdent(orderBy.Fields[i].Column)
		if orderBy.Directions[i] == "DESC" {
			conj = append(conj, sq.Lt{col: values[i]})
		} else {
			conj = append(conj, sq.Gt{col: values[i]})
		}
		disjuncts = append(disjuncts, conj)
	}
	return disjuncts, nil
}
