package planner

import (
	"fmt"
	"strings"

	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// OrderBy is a compiled total ordering over one entity. The slices are
// parallel: one column, direction, and null placement per ordering step.
// The entity key is appended as a tiebreak when the caller's terms do not
// already pin a unique field, so equal sort keys cannot reorder between
// pages.
type OrderBy struct {
	Fields     []*schema.Field
	Directions []string
	Nulls      []request.NullPlacement
}

// CompileOrderBy validates order terms against the entity and extends
// them into a total ordering. With no terms the entity key ascending is
// used.
func CompileOrderBy(entity *schema.Entity, terms []request.OrderTerm) (*OrderBy, error) {
	ob := &OrderBy{}
	unique := false
	for _, term := range terms {
		field, ok := entity.Field(term.Field)
		if !ok {
			return nil, &UnknownFieldError{Entity: entity.Name, Field: term.Field}
		}
		dir, err := normalizeDirection(string(term.Direction))
		if err != nil {
			return nil, fmt.Errorf("order term %q: %w", term.Field, err)
		}
		switch term.Nulls {
		case request.NullsDefault, request.NullsFirst, request.NullsLast:
		default:
			return nil, fmt.Errorf("order term %q: unknown null placement %q", term.Field, term.Nulls)
		}
		ob.Fields = append(ob.Fields, field)
		ob.Directions = append(ob.Directions, dir)
		ob.Nulls = append(ob.Nulls, term.Nulls)
		if field.Unique && !field.Nullable {
			unique = true
		}
	}
	if !unique {
		dir := "ASC"
		if n := len(ob.Directions); n > 0 {
			dir = ob.Directions[n-1]
		}
		ob.Fields = append(ob.Fields, entity.KeyField())
		ob.Directions = append(ob.Directions, dir)
		ob.Nulls = append(ob.Nulls, request.NullsDefault)
	}
	return ob, nil
}

func normalizeDirection(dir string) (string, error) {
	switch strings.ToUpper(dir) {
	case "", "ASC":
		return "ASC", nil
	case "DESC":
		return "DESC", nil
	default:
		return "", fmt.Errorf("unknown direction %q", dir)
	}
}

// Len returns the number of ordering steps.
func (ob *OrderBy) Len() int { return len(ob.Fields) }

// Columns returns the unquoted backing columns in order.
func (ob *OrderBy) Columns() []string {
	cols := make([]string, len(ob.Fields))
	for i, f := range ob.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Clauses renders the ORDER BY clause list. Explicit null placement is
// expressed with an ISNULL() prefix clause, the MySQL-compatible spelling
// of NULLS FIRST/LAST.
func (ob *OrderBy) Clauses() []string {
	var out []string
	for i, f := range ob.Fields {
		col := quoteIdent(f.Column)
		switch ob.Nulls[i] {
		case request.NullsFirst:
			out = append(out, "ISNULL("+col+") DESC")
		case request.NullsLast:
			out = append(out, "ISNULL("+col+") ASC")
		}
		out = append(out, col+" "+ob.Directions[i])
	}
	return out
}

// Reversed returns the ordering with every direction and null placement
// flipped. Backward pagination fetches under the reversed ordering and
// the assembler restores window order.
func (ob *OrderBy) Reversed() *OrderBy {
	rev := &OrderBy{
		Fields:     ob.Fields,
		Directions: make([]string, len(ob.Directions)),
		Nulls:      make([]request.NullPlacement, len(ob.Nulls)),
	}
	for i, dir := range ob.Directions {
		if dir == "ASC" {
			rev.Directions[i] = "DESC"
		} else {
			rev.Directions[i] = "ASC"
		}
	}
	for i, n := range ob.Nulls {
		switch n {
		case request.NullsFirst:
			rev.Nulls[i] = request.NullsLast
		case request.NullsLast:
			rev.Nulls[i] = request.NullsFirst
		}
	}
	return rev
}

// Key returns a stable identifier for the ordering, embedded in cursors
// so a cursor minted under one ordering cannot be replayed under another.
func (ob *OrderBy) Key() string {
	parts := make([]string, len(ob.Fields))
	for i, f := range ob.Fields {
		parts[i] = f.Name + ":" + ob.Directions[i]
	}
	return strings.Join(parts, ",")
}

// HasNullOverride reports whether any step uses explicit null placement.
// Such orderings are not seekable, so cursor pagination rejects them.
func (ob *OrderBy) HasNullOverride() bool {
	for _, n := range ob.Nulls {
		if n != request.NullsDefault {
			return true
		}
	}
	return false
}
