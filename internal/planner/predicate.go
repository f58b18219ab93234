package planner

import (
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Predicate is a compiled filter tree: a squirrel condition plus the
// field names it references.
type Predicate struct {
	Condition sq.Sqlizer
	Fields    []string
}

// CompilePredicate validates a filter tree against the entity and renders
// it into a SQL condition. A nil filter compiles to a nil predicate.
func CompilePredicate(entity *schema.Entity, filter *request.Filter) (*Predicate, error) {
	if filter == nil {
		return nil, nil
	}
	c := &predicateCompiler{entity: entity}
	cond, err := c.compile(filter)
	if err != nil {
		return nil, err
	}
	return &Predicate{Condition: cond, Fields: c.fields}, nil
}

type predicateCompiler struct {
	entity *schema.Entity
	fields []string
}

func (c *predicateCompiler) compile(f *request.Filter) (sq.Sqlizer, error) {
	if !f.Op.IsBoolean() {
		return c.compileLeaf(f)
	}
	if len(f.Children) == 0 {
		return nil, fmt.Errorf("%s filter has no children", f.Op)
	}
	if f.Op == request.OpNot {
		if len(f.Children) != 1 {
			return nil, fmt.Errorf("not filter needs exactly one child, got %d", len(f.Children))
		}
		inner, err := c.compile(f.Children[0])
		if err != nil {
			return nil, err
		}
		sql, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT ("+sql+")", args...), nil
	}

	parts := make([]sq.Sqlizer, len(f.Children))
	for i, child := range f.Children {
		cond, err := c.compile(child)
		if err != nil {
			return nil, err
		}
		parts[i] = cond
	}
	if f.Op == request.OpOr {
		return sq.Or(parts), nil
	}
	return sq.And(parts), nil
}

func (c *predicateCompiler) compileLeaf(f *request.Filter) (sq.Sqlizer, error) {
	field, ok := c.entity.Field(f.Field)
	if !ok {
		return nil, &UnknownFieldError{Entity: c.entity.Name, Field: f.Field}
	}
	c.fields = append(c.fields, field.Name)
	col := quoteIdent(field.Column)

	switch f.Op {
	case request.OpEq, request.OpNe, request.OpLt, request.OpLte, request.OpGt, request.OpGte:
		v, err := c.coerceValue(field, f.Value)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case request.OpEq:
			return sq.Eq{col: v}, nil
		case request.OpNe:
			return sq.NotEq{col: v}, nil
		case request.OpLt:
			return sq.Lt{col: v}, nil
		case request.OpLte:
			return sq.LtOrEq{col: v}, nil
		case request.OpGt:
			return sq.Gt{col: v}, nil
		default:
			return sq.GtOrEq{col: v}, nil
		}

	case request.OpIn, request.OpNotIn:
		vals, err := c.coerceSlice(field, f.Value)
		if err != nil {
			return nil, err
		}
		if f.Op == request.OpIn {
			return sq.Eq{col: vals}, nil
		}
		return sq.NotEq{col: vals}, nil

	case request.OpContains, request.OpStartsWith, request.OpEndsWith:
		if field.Type != schema.TypeString {
			return nil, c.mismatch(field, "pattern operators apply to string fields only")
		}
		s, ok := f.Value.(string)
		if !ok {
			return nil, c.mismatch(field, fmt.Sprintf("pattern operand must be a string, got %T", f.Value))
		}
		pattern := escapeLike(s)
		switch f.Op {
		case request.OpContains:
			pattern = "%" + pattern + "%"
		case request.OpStartsWith:
			pattern += "%"
		default:
			pattern = "%" + pattern
		}
		return sq.Like{col: pattern}, nil

	case request.OpIsNull:
		want, ok := f.Value.(bool)
		if !ok {
			return nil, c.mismatch(field, fmt.Sprintf("isNull operand must be a boolean, got %T", f.Value))
		}
		if want {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil

	default:
		return nil, fmt.Errorf("unknown filter operator %q", f.Op)
	}
}

func (c *predicateCompiler) mismatch(field *schema.Field, detail string) error {
	return &TypeMismatchError{
		Entity:   c.entity.Name,
		Field:    field.Name,
		Expected: field.Type,
		Detail:   detail,
	}
}

// coerceValue validates a filter operand against the field type and
// normalizes it for binding. JSON decoding delivers numbers as float64;
// integral floats are accepted for int fields, fractional ones are not.
func (c *predicateCompiler) coerceValue(field *schema.Field, v any) (any, error) {
	switch field.Type {
	case schema.TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != float64(int64(n)) {
				return nil, c.mismatch(field, fmt.Sprintf("value %v is not an integer", n))
			}
			return int64(n), nil
		}
	case schema.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, c.mismatch(field, fmt.Sprintf("cannot parse %q as a timestamp", t))
			}
			return parsed, nil
		}
	case schema.TypeUUID:
		if s, ok := v.(string); ok {
			id, err := uuid.Parse(s)
			if err != nil {
				return nil, c.mismatch(field, fmt.Sprintf("cannot parse %q as a UUID", s))
			}
			return id.String(), nil
		}
	case schema.TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	}
	return nil, c.mismatch(field, fmt.Sprintf("value of type %T is not a valid %s", v, field.Type))
}

// coerceSlice validates every element of an IN/NOT IN operand. Empty
// lists are rejected rather than rendered as a vacuous condition.
func (c *predicateCompiler) coerceSlice(field *schema.Field, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, c.mismatch(field, fmt.Sprintf("list operator needs a list operand, got %T", v))
	}
	if rv.Len() == 0 {
		return nil, c.mismatch(field, "list operand is empty")
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		coerced, err := c.coerceValue(field, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}
