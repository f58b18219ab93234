package executor

import (
	"github.com/MrThearMan/undine-sub001/internal/cursor"
	"github.com/MrThearMan/undine-sub001/internal/planner"
	"github.com/MrThearMan/undine-sub001/internal/request"
)

// assemble builds the result tree from the per-node groups, walking the
// requested tree so sibling order and nesting mirror the request.
func (ex *execution) assemble() any {
	return ex.nodeValue(ex.plan.Root, "")
}

// nodeValue renders one fetch node's contribution for a single parent.
func (ex *execution) nodeValue(fn *planner.FetchNode, parentKey string) any {
	st := ex.states[fn]
	st.mu.Lock()
	g := st.groups[parentKey]
	st.mu.Unlock()

	switch fn.Kind() {
	case request.KindObject:
		if g == nil || len(g.rows) == 0 {
			return nil
		}
		return ex.object(fn, g.rows[0])
	case request.KindList:
		if g == nil {
			return []any{}
		}
		items := make([]any, len(g.rows))
		for i, r := range g.rows {
			items[i] = ex.object(fn, r)
		}
		return items
	default:
		return ex.connection(fn, g)
	}
}

// object renders one row, emitting the requested children in request
// order. Support columns fetched for ordering or linkage stay internal.
func (ex *execution) object(fn *planner.FetchNode, r row) *Object {
	obj := NewObject()
	for _, child := range fn.Request.Children {
		if child.Kind == request.KindScalar {
			obj.Set(child.Name, r[child.FieldName()])
			continue
		}
		childFN := ex.childByRequest[child]
		key := keyFor(r[childFN.Link.LocalField.Name])
		obj.Set(child.Name, ex.nodeValue(childFN, key))
	}
	return obj
}

// connection renders a windowed collection with its optional edges,
// pageInfo, and totalCount, emitting the scaffolding fields in the
// order they were selected.
func (ex *execution) connection(fn *planner.FetchNode, g *group) *Object {
	if g == nil {
		g = &group{}
	}

	nodes := make([]any, len(g.rows))
	for i, r := range g.rows {
		nodes[i] = ex.object(fn, r)
	}

	var cursors []string
	if fn.Request.WantEdges || fn.Request.WantPageInfo {
		cursors = make([]string, len(g.rows))
		for i, r := range g.rows {
			cursors[i] = ex.rowCursor(fn, r)
		}
	}

	conn := NewObject()
	for _, part := range connFieldOrder(fn.Request) {
		switch part {
		case "nodes":
			conn.Set("nodes", nodes)
		case "edges":
			if !fn.Request.WantEdges {
				continue
			}
			edges := make([]any, len(g.rows))
			for i := range g.rows {
				edge := NewObject()
				edge.Set("cursor", cursors[i])
				edge.Set("node", nodes[i])
				edges[i] = edge
			}
			conn.Set("edges", edges)
		case "pageInfo":
			if !fn.Request.WantPageInfo {
				continue
			}
			conn.Set("pageInfo", ex.pageInfo(fn, g, cursors))
		case "totalCount":
			if !fn.WantTotal {
				continue
			}
			var total int64
			if g.total != nil {
				total = *g.total
			}
			conn.Set("totalCount", total)
		}
	}
	return conn
}

// connFieldOrder returns the connection-level fields to emit. Trees
// built without an explicit selection order fall back to the
// conventional order; nodes is always rendered.
func connFieldOrder(n *request.Node) []string {
	if len(n.ConnFields) == 0 {
		order := []string{"nodes"}
		if n.WantEdges {
			order = append(order, "edges")
		}
		if n.WantPageInfo {
			order = append(order, "pageInfo")
		}
		if n.WantTotal {
			order = append(order, "totalCount")
		}
		return order
	}
	for _, part := range n.ConnFields {
		if part == "nodes" {
			return n.ConnFields
		}
	}
	return append([]string{"nodes"}, n.ConnFields...)
}

// rowCursor mints the opaque cursor for one row under the node's window
// ordering. Backward pages store rows in window order already, so the
// original directions apply either way.
func (ex *execution) rowCursor(fn *planner.FetchNode, r row) string {
	values := make([]any, fn.OrderBy.Len())
	for i, f := range fn.OrderBy.Fields {
		values[i] = r[f.Name]
	}
	encoded, err := cursor.Encode(fn.Entity.Name, fn.OrderBy.Key(), fn.OrderBy.Directions, values)
	if err != nil {
		// A row the backend returned always has its ordering values;
		// failing here means a schema/driver bug, not bad input.
		ex.logger.Error("failed to encode row cursor", "path", fn.Path, "error", err)
		return ""
	}
	return encoded
}

// pageInfo derives the page flags from the over-fetch signal and the
// request's own arguments. A backward page's extra row proves an earlier
// page; presence of a bound proves rows on its far side.
func (ex *execution) pageInfo(fn *planner.FetchNode, g *group, cursors []string) *Object {
	args := fn.Request.Page
	hasNext, hasPrev := false, false
	switch fn.Window.Mode {
	case planner.ModeBackward:
		hasPrev = g.hasMore
		hasNext = args != nil && args.Before != nil
	case planner.ModeOffset:
		hasNext = g.hasMore
		hasPrev = fn.Window.Offset > 0
	default:
		hasNext = g.hasMore
		hasPrev = args != nil && args.After != nil
	}

	info := NewObject()
	info.Set("hasNextPage", hasNext)
	info.Set("hasPreviousPage", hasPrev)
	var start, end any
	if len(cursors) > 0 {
		start, end = cursors[0], cursors[len(cursors)-1]
	}
	info.Set("startCursor", start)
	info.Set("endCursor", end)
	return info
}
