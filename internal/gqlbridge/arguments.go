package gqlbridge

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"

	"github.com/MrThearMan/undine-sub001/internal/request"
)

// applyArguments maps a field's GraphQL arguments onto the node: where,
// orderBy, and the pagination set (first, last, offset, after, before).
func (p *docParser) applyArguments(node *request.Node, args []*ast.Argument) error {
	for _, arg := range args {
		value, err := p.value(arg.Value)
		if err != nil {
			return fmt.Errorf("argument %q: %w", arg.Name.Value, err)
		}
		switch arg.Name.Value {
		case "where":
			filter, err := buildFilter(value)
			if err != nil {
				return fmt.Errorf("argument where: %w", err)
			}
			node.Filter = filter
		case "orderBy":
			terms, err := buildOrderTerms(value)
			if err != nil {
				return fmt.Errorf("argument orderBy: %w", err)
			}
			node.Order = terms
		case "first", "last", "offset":
			n, err := intValue(value)
			if err != nil {
				return fmt.Errorf("argument %q: %w", arg.Name.Value, err)
			}
			if node.Page == nil {
				node.Page = &request.PageArgs{}
			}
			switch arg.Name.Value {
			case "first":
				node.Page.First = &n
			case "last":
				node.Page.Last = &n
			default:
				node.Page.Offset = &n
			}
		case "after", "before":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("argument %q: expected a cursor string, got %T", arg.Name.Value, value)
			}
			if node.Page == nil {
				node.Page = &request.PageArgs{}
			}
			if arg.Name.Value == "after" {
				node.Page.After = &s
			} else {
				node.Page.Before = &s
			}
		default:
			return fmt.Errorf("unknown argument %q", arg.Name.Value)
		}
	}
	return nil
}

// value resolves an AST value to a Go value, substituting variables.
func (p *docParser) value(v ast.Value) (any, error) {
	switch x := v.(type) {
	case *ast.Variable:
		name := x.Name.Value
		val, ok := p.vars[name]
		if !ok {
			return nil, fmt.Errorf("undefined variable $%s", name)
		}
		return val, nil
	case *ast.IntValue:
		n, err := strconv.ParseInt(x.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed int %q", x.Value)
		}
		return n, nil
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(x.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed float %q", x.Value)
		}
		return f, nil
	case *ast.StringValue:
		return x.Value, nil
	case *ast.BooleanValue:
		return x.Value, nil
	case *ast.EnumValue:
		return x.Value, nil
	case *ast.ListValue:
		out := make([]any, len(x.Values))
		for i, item := range x.Values {
			v, err := p.value(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *ast.ObjectValue:
		out := make(map[string]any, len(x.Fields))
		order := make([]string, 0, len(x.Fields))
		for _, f := range x.Fields {
			v, err := p.value(f.Value)
			if err != nil {
				return nil, err
			}
			if _, dup := out[f.Name.Value]; !dup {
				order = append(order, f.Name.Value)
			}
			out[f.Name.Value] = v
		}
		return orderedMap{keys: order, values: out}, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// orderedMap keeps object-literal field order so filter children compile
// deterministically.
type orderedMap struct {
	keys   []string
	values map[string]any
}

// buildFilter converts a where object into the engine's filter tree.
// The object form follows the usual GraphQL convention:
//
//	{AND: [...], OR: [...], NOT: {...}, field: {eq: v, in: [...], ...}}
func buildFilter(value any) (*request.Filter, error) {
	obj, ok := asOrderedMap(value)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", value)
	}
	var children []*request.Filter
	for _, key := range obj.keys {
		raw := obj.values[key]
		switch key {
		case "AND", "OR":
			list, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("%s expects a list", key)
			}
			var sub []*request.Filter
			for _, item := range list {
				f, err := buildFilter(item)
				if err != nil {
					return nil, err
				}
				sub = append(sub, f)
			}
			if key == "AND" {
				children = append(children, request.And(sub...))
			} else {
				children = append(children, request.Or(sub...))
			}
		case "NOT":
			inner, err := buildFilter(raw)
			if err != nil {
				return nil, err
			}
			children = append(children, request.Not(inner))
		default:
			ops, ok := asOrderedMap(raw)
			if !ok {
				return nil, fmt.Errorf("field %q expects an operator object", key)
			}
			for _, opName := range ops.keys {
				op, err := filterOp(opName)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", key, err)
				}
				children = append(children, request.Compare(key, op, ops.values[opName]))
			}
		}
	}
	switch len(children) {
	case 0:
		return nil, fmt.Errorf("empty filter object")
	case 1:
		return children[0], nil
	default:
		return request.And(children...), nil
	}
}

func filterOp(name string) (request.FilterOp, error) {
	switch request.FilterOp(name) {
	case request.OpEq, request.OpNe, request.OpIn, request.OpNotIn,
		request.OpLt, request.OpLte, request.OpGt, request.OpGte,
		request.OpContains, request.OpStartsWith, request.OpEndsWith,
		request.OpIsNull:
		return request.FilterOp(name), nil
	default:
		return "", fmt.Errorf("unknown operator %q", name)
	}
}

// buildOrderTerms accepts a single order object or a list of them:
// {field: "placedAt", direction: DESC, nulls: LAST}.
func buildOrderTerms(value any) ([]request.OrderTerm, error) {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}
	var terms []request.OrderTerm
	for _, item := range items {
		obj, ok := asOrderedMap(item)
		if !ok {
			return nil, fmt.Errorf("order term expects an object, got %T", item)
		}
		term := request.OrderTerm{Direction: request.Ascending}
		for _, key := range obj.keys {
			raw := obj.values[key]
			s, _ := raw.(string)
			switch key {
			case "field":
				if s == "" {
					return nil, fmt.Errorf("order term field must be a name")
				}
				term.Field = s
			case "direction":
				switch s {
				case "ASC":
					term.Direction = request.Ascending
				case "DESC":
					term.Direction = request.Descending
				default:
					return nil, fmt.Errorf("unknown direction %q", s)
				}
			case "nulls":
				switch s {
				case "FIRST":
					term.Nulls = request.NullsFirst
				case "LAST":
					term.Nulls = request.NullsLast
				default:
					return nil, fmt.Errorf("unknown null placement %q", s)
				}
			default:
				return nil, fmt.Errorf("unknown order term key %q", key)
			}
		}
		if term.Field == "" {
			return nil, fmt.Errorf("order term missing field")
		}
		terms = append(terms, term)
	}
	return terms, nil
}

// asOrderedMap accepts both AST-derived ordered maps and plain maps from
// JSON variables.
func asOrderedMap(v any) (orderedMap, bool) {
	switch x := v.(type) {
	case orderedMap:
		return x, true
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		// JSON objects carry no order; sort for determinism.
		sort.Strings(keys)
		return orderedMap{keys: keys, values: x}, true
	default:
		return orderedMap{}, false
	}
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}
