// Package gqlbridge adapts a GraphQL query document into the engine's
// requested tree. The engine itself is query-language agnostic; this
// bridge resolves the GraphQL surface conventions (connection
// scaffolding, fragments, variables) and hands the planner a plain tree.
package gqlbridge

import (
	"fmt"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	"github.com/MrThearMan/undine-sub001/internal/request"
	"github.com/MrThearMan/undine-sub001/internal/schema"
)

// Parse converts a GraphQL query document into a requested tree. The
// document must contain a single query operation with a single root
// field naming a registered entity collection.
func Parse(reg *schema.Registry, query string, vars map[string]any) (*request.Node, error) {
	src := source.NewSource(&source.Source{Body: []byte(query), Name: "query"})
	doc, err := parser.Parse(parser.ParseParams{Source: src})
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}

	p := &docParser{reg: reg, vars: vars, fragments: make(map[string]*ast.FragmentDefinition)}
	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if d.Operation != "query" {
				return nil, fmt.Errorf("only query operations are supported, got %s", d.Operation)
			}
			if op != nil {
				return nil, fmt.Errorf("document must contain a single operation")
			}
			op = d
		case *ast.FragmentDefinition:
			p.fragments[d.Name.Value] = d
		}
	}
	if op == nil {
		return nil, fmt.Errorf("document contains no query operation")
	}

	fields, err := p.flatten(op.SelectionSet)
	if err != nil {
		return nil, err
	}
	if len(fields) != 1 {
		return nil, fmt.Errorf("query must select exactly one root collection, got %d", len(fields))
	}

	rootField := fields[0]
	entity, ok := reg.EntityByListName(rootField.Name.Value)
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", rootField.Name.Value)
	}
	node := &request.Node{
		Name:   responseKey(rootField),
		Kind:   request.KindConnection,
		Entity: entity.Name,
	}
	if err := p.applyArguments(node, rootField.Arguments); err != nil {
		return nil, fmt.Errorf("%s: %w", node.Name, err)
	}
	if err := p.fillConnection(node, entity, rootField.SelectionSet); err != nil {
		return nil, err
	}
	return node, nil
}

type docParser struct {
	reg       *schema.Registry
	vars      map[string]any
	fragments map[string]*ast.FragmentDefinition
}

// flatten resolves fragment spreads and inline fragments into a flat
// field list, preserving document order.
func (p *docParser) flatten(set *ast.SelectionSet) ([]*ast.Field, error) {
	if set == nil {
		return nil, nil
	}
	var fields []*ast.Field
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.FragmentSpread:
			frag, ok := p.fragments[s.Name.Value]
			if !ok {
				return nil, fmt.Errorf("undefined fragment %q", s.Name.Value)
			}
			inner, err := p.flatten(frag.SelectionSet)
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)
		case *ast.InlineFragment:
			inner, err := p.flatten(s.SelectionSet)
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)
		default:
			return nil, fmt.Errorf("unsupported selection %T", sel)
		}
	}
	return fields, nil
}

// fillConnection interprets the Relay connection scaffolding around an
// entity selection: edges/node and nodes unwrap to entity fields,
// pageInfo and totalCount become flags.
func (p *docParser) fillConnection(node *request.Node, entity *schema.Entity, set *ast.SelectionSet) error {
	fields, err := p.flatten(set)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%s: connection selects no fields", node.Name)
	}
	selectPart := func(name string) {
		for _, p := range node.ConnFields {
			if p == name {
				return
			}
		}
		node.ConnFields = append(node.ConnFields, name)
	}
	for _, f := range fields {
		switch f.Name.Value {
		case "nodes":
			selectPart("nodes")
			if err := p.fillEntityFields(node, entity, f.SelectionSet); err != nil {
				return err
			}
		case "edges":
			selectPart("edges")
			node.WantEdges = true
			edgeFields, err := p.flatten(f.SelectionSet)
			if err != nil {
				return err
			}
			for _, ef := range edgeFields {
				switch ef.Name.Value {
				case "node":
					if err := p.fillEntityFields(node, entity, ef.SelectionSet); err != nil {
						return err
					}
				case "cursor":
					// Cursors are always minted for edges.
				default:
					return fmt.Errorf("%s: unsupported edge field %q", node.Name, ef.Name.Value)
				}
			}
		case "pageInfo":
			selectPart("pageInfo")
			node.WantPageInfo = true
		case "totalCount":
			selectPart("totalCount")
			node.WantTotal = true
		default:
			return fmt.Errorf("%s: unsupported connection field %q (use nodes, edges, pageInfo, totalCount)", node.Name, f.Name.Value)
		}
	}
	return nil
}

// fillEntityFields appends entity-level selections: scalars directly,
// relations as nested nodes with their own arguments.
func (p *docParser) fillEntityFields(node *request.Node, entity *schema.Entity, set *ast.SelectionSet) error {
	fields, err := p.flatten(set)
	if err != nil {
		return err
	}
	for _, f := range fields {
		name := f.Name.Value
		rel, isRelation := entity.Relation(name)
		if !isRelation {
			node.Children = append(node.Children, &request.Node{
				Name:  responseKey(f),
				Kind:  request.KindScalar,
				Field: name,
			})
			continue
		}

		target, ok := p.reg.Entity(rel.Target)
		if !ok {
			return fmt.Errorf("relation %q targets unknown entity %q", name, rel.Target)
		}
		child := &request.Node{
			Name:     responseKey(f),
			Relation: name,
		}
		if err := p.applyArguments(child, f.Arguments); err != nil {
			return fmt.Errorf("%s: %w", child.Name, err)
		}

		if rel.Kind == schema.RelationToOne {
			child.Kind = request.KindObject
			if err := p.fillEntityFields(child, target, f.SelectionSet); err != nil {
				return err
			}
		} else if hasConnectionScaffolding(p, f.SelectionSet) {
			child.Kind = request.KindConnection
			if err := p.fillConnection(child, target, f.SelectionSet); err != nil {
				return err
			}
		} else {
			child.Kind = request.KindList
			if err := p.fillEntityFields(child, target, f.SelectionSet); err != nil {
				return err
			}
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

func hasConnectionScaffolding(p *docParser, set *ast.SelectionSet) bool {
	fields, err := p.flatten(set)
	if err != nil {
		return false
	}
	for _, f := range fields {
		switch f.Name.Value {
		case "edges", "nodes", "pageInfo", "totalCount":
			return true
		}
	}
	return false
}

func responseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.Value != "" {
		return f.Alias.Value
	}
	return f.Name.Value
}
