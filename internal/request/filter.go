package request

// FilterOp enumerates filter node operators. Boolean operators combine
// Children; comparison operators apply Field and Value.
type FilterOp string

const (
	OpAnd FilterOp = "and"
	OpOr  FilterOp = "or"
	OpNot FilterOp = "not"

	OpEq         FilterOp = "eq"
	OpNe         FilterOp = "ne"
	OpIn         FilterOp = "in"
	OpNotIn      FilterOp = "notIn"
	OpLt         FilterOp = "lt"
	OpLte        FilterOp = "lte"
	OpGt         FilterOp = "gt"
	OpGte        FilterOp = "gte"
	OpContains   FilterOp = "contains"
	OpStartsWith FilterOp = "startsWith"
	OpEndsWith   FilterOp = "endsWith"
	OpIsNull     FilterOp = "isNull"
)

// IsBoolean reports whether the operator combines child filters.
func (op FilterOp) IsBoolean() bool {
	return op == OpAnd || op == OpOr || op == OpNot
}

// Filter is one node of a filter expression tree. Boolean nodes use
// Children; comparison nodes use Field and Value.
type Filter struct {
	Op       FilterOp
	Field    string
	Value    any
	Children []*Filter
}

func And(children ...*Filter) *Filter { return &Filter{Op: OpAnd, Children: children} }
func Or(children ...*Filter) *Filter  { return &Filter{Op: OpOr, Children: children} }
func Not(child *Filter) *Filter       { return &Filter{Op: OpNot, Children: []*Filter{child}} }

// Compare builds a comparison leaf.
func Compare(field string, op FilterOp, value any) *Filter {
	return &Filter{Op: op, Field: field, Value: value}
}
