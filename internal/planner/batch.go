package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// rowNumberAlias names the per-parent rank column inside batched window
// queries. The derived-table alias keeps it out of result scanning.
const (
	rowNumberAlias  = "__rn"
	batchTableAlias = "__batch"
)

// RootQuery renders the level-0 fetch: the root collection filtered,
// ordered, and windowed, asking for one row beyond the page size.
func RootQuery(fn *FetchNode) (SQLQuery, error) {
	w := fn.Window
	ob := fn.OrderBy
	if w.Backward() {
		ob = ob.Reversed()
	}
	qb := sq.Select(columnList(fn)...).From(quoteIdent(fn.Entity.Table))
	if fn.Predicate != nil {
		qb = qb.Where(fn.Predicate.Condition)
	}
	if w.Seek != nil {
		qb = qb.Where(w.Seek)
	}
	qb = qb.OrderBy(ob.Clauses()...).Limit(uint64(w.FetchLimit()))
	if w.Mode == ModeOffset && w.Offset > 0 {
		qb = qb.Offset(uint64(w.Offset))
	}
	sql, args, err := qb.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("build root query for %q: %w", fn.Entity.Name, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// ToOneBatchQuery renders one batched fetch resolving a to-one relation
// for every parent in the chunk. No windowing applies; each parent
// matches at most one row through the unique remote field.
func ToOneBatchQuery(fn *FetchNode, parents []any) (SQLQuery, error) {
	if len(parents) == 0 {
		return SQLQuery{}, fmt.Errorf("to-one batch for %q has no parents", fn.Entity.Name)
	}
	remote := quoteIdent(fn.Link.RemoteField.Column)
	qb := sq.Select(columnList(fn)...).
		From(quoteIdent(fn.Entity.Table)).
		Where(sq.Eq{remote: parents})
	if fn.Predicate != nil {
		qb = qb.Where(fn.Predicate.Condition)
	}
	sql, args, err := qb.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("build to-one batch for %q: %w", fn.Entity.Name, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// ToManyBatchQuery renders one batched fetch resolving a windowed to-many
// relation for every parent in the chunk. The per-parent window is pushed
// into the statement with ROW_NUMBER() partitioned by the join column, so
// the backend returns at most limit+1 rows per parent instead of every
// child of every parent.
func ToManyBatchQuery(fn *FetchNode, parents []any) (SQLQuery, error) {
	if len(parents) == 0 {
		return SQLQuery{}, fmt.Errorf("batch for %q has no parents", fn.Entity.Name)
	}
	w := fn.Window
	ob := fn.OrderBy
	if w.Backward() {
		ob = ob.Reversed()
	}
	remote := quoteIdent(fn.Link.RemoteField.Column)

	rank := fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s",
		remote, strings.Join(ob.Clauses(), ", "), rowNumberAlias)
	inner := sq.Select(append(columnList(fn), rank)...).
		From(quoteIdent(fn.Entity.Table)).
		Where(sq.Eq{remote: parents})
	if fn.Predicate != nil {
		inner = inner.Where(fn.Predicate.Condition)
	}
	if w.Seek != nil {
		inner = inner.Where(w.Seek)
	}

	lo := 0
	if w.Mode == ModeOffset {
		lo = w.Offset
	}
	hi := lo + w.FetchLimit()
	outer := sq.Select(columnList(fn)...).
		FromSelect(inner, batchTableAlias).
		Where(sq.Expr(rowNumberAlias+" > ? AND "+rowNumberAlias+" <= ?", lo, hi)).
		OrderBy(remote, rowNumberAlias)

	sql, args, err := outer.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("build batch window query for %q: %w", fn.Entity.Name, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// GroupCountQuery renders the exact count for one parent's collection,
// delegating to the node's pagination handler.
func GroupCountQuery(fn *FetchNode, parentValue any) (SQLQuery, error) {
	return fn.Handler.CountQuery(fn.Entity, fn.Predicate, fn.Link.RemoteField.Column, parentValue)
}

// RootCountQuery renders the exact count for the root collection.
func RootCountQuery(fn *FetchNode) (SQLQuery, error) {
	return fn.Handler.CountQuery(fn.Entity, fn.Predicate, "", nil)
}

func columnList(fn *FetchNode) []string {
	cols := make([]string, len(fn.Columns))
	for i, f := range fn.Columns {
		cols[i] = quoteIdent(f.Column)
	}
	return cols
}
