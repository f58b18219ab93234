// Package request defines the engine's input: a tree of requested fields
// with per-node filters, ordering, and page arguments. Front-end adapters
// (such as the GraphQL bridge) produce this tree; the planner consumes it.
package request

// Kind says how a node's value appears in the result.
type Kind string

const (
	// KindScalar is a leaf field copied from a column.
	KindScalar Kind = "scalar"
	// KindObject is a to-one relation producing a nested object or nil.
	KindObject Kind = "object"
	// KindList is a to-many relation producing a plain slice.
	KindList Kind = "list"
	// KindConnection is a to-many relation (or the root collection)
	// producing a paginated connection with pageInfo and cursors.
	KindConnection Kind = "connection"
)

// Direction of an order term.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// NullPlacement controls where NULL sort keys land. Default follows the
// backend's native placement.
type NullPlacement string

const (
	NullsDefault NullPlacement = ""
	NullsFirst   NullPlacement = "FIRST"
	NullsLast    NullPlacement = "LAST"
)

// OrderTerm is one (field, direction, null placement) element of an
// ordering list. Terms apply in sequence; the planner appends the entity
// key as a tiebreak when the listed fields do not already guarantee a
// total order.
type OrderTerm struct {
	Field     string
	Direction Direction
	Nulls     NullPlacement
}

// PageArgs carries the pagination arguments of a collection node.
// Nil pointers mean "not supplied"; the planner validates mutual
// exclusivity and applies defaults.
type PageArgs struct {
	First  *int
	Last   *int
	Offset *int
	After  *string
	Before *string
}

// IsZero reports whether no page argument was supplied.
func (p *PageArgs) IsZero() bool {
	return p == nil || (p.First == nil && p.Last == nil && p.Offset == nil && p.After == nil && p.Before == nil)
}

// Node is one vertex of the requested tree.
//
// The root node names an Entity directly; child nodes name a Relation on
// the parent's entity. Children keeps request order, which the assembler
// preserves in the result.
type Node struct {
	Name     string
	Kind     Kind
	Entity   string
	Relation string
	// Field names the entity field a scalar selection reads. Empty means
	// the selection name is the field name (no alias).
	Field    string
	Children []*Node

	Filter *Filter
	Order  []OrderTerm
	Page   *PageArgs

	WantEdges    bool
	WantPageInfo bool
	WantTotal    bool

	// ConnFields lists the selected connection-level fields (nodes,
	// edges, pageInfo, totalCount) in selection order. Empty means the
	// default order.
	ConnFields []string
}

// Root builds a root collection node for an entity.
func Root(entity string, kind Kind, children ...*Node) *Node {
	return &Node{Name: entity, Kind: kind, Entity: entity, Children: children}
}

// Scalar builds a leaf field node.
func Scalar(name string) *Node {
	return &Node{Name: name, Kind: KindScalar}
}

// Relation builds a nested relation node.
func Relation(name string, kind Kind, children ...*Node) *Node {
	return &Node{Name: name, Kind: kind, Relation: name, Children: children}
}

// FieldName returns the entity field a scalar node reads. Aliased
// selections keep the alias in Name and the field here.
func (n *Node) FieldName() string {
	if n.Field != "" {
		return n.Field
	}
	return n.Name
}

// ScalarNames returns the response keys of the node's scalar children in
// request order.
func (n *Node) ScalarNames() []string {
	var names []string
	for _, c := range n.Children {
		if c.Kind == KindScalar {
			names = append(names, c.Name)
		}
	}
	return names
}

// RelationChildren returns the node's non-scalar children in request order.
func (n *Node) RelationChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind != KindScalar {
			out = append(out, c)
		}
	}
	return out
}
