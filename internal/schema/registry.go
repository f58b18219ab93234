package schema

import (
	"fmt"
	"sort"

	"github.com/jinzhu/inflection"
)

// Registry holds the registered entities and validates cross-entity links.
type Registry struct {
	entities map[string]*Entity
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register adds an entity to the registry. Field and key validation runs
// immediately; relation targets are checked by Validate once all entities
// are registered.
func (r *Registry) Register(e Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity with empty name")
	}
	if e.Table == "" {
		e.Table = e.Name
	}
	if err := e.index(); err != nil {
		return err
	}
	if _, dup := r.entities[e.Name]; dup {
		return fmt.Errorf("duplicate entity %q", e.Name)
	}
	r.entities[e.Name] = &e
	return nil
}

// Entity returns the named entity, or false if it is not registered.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// EntityByListName resolves the plural collection name used by query
// front-ends (e.g. "orders" for entity "order") back to the entity.
// An exact entity name also matches.
func (r *Registry) EntityByListName(name string) (*Entity, bool) {
	if e, ok := r.entities[name]; ok {
		return e, ok
	}
	for _, e := range r.entities {
		if ListName(e.Name) == name {
			return e, true
		}
	}
	return nil, false
}

// Names returns the registered entity names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every relation points at a registered entity and
// that its join fields exist on both sides.
func (r *Registry) Validate() error {
	for _, e := range r.entities {
		for i := range e.Relations {
			rel := &e.Relations[i]
			target, ok := r.entities[rel.Target]
			if !ok {
				return fmt.Errorf("entity %q: relation %q targets unknown entity %q", e.Name, rel.Name, rel.Target)
			}
			if _, ok := e.Field(rel.LocalField); !ok {
				return fmt.Errorf("entity %q: relation %q references unknown local field %q", e.Name, rel.Name, rel.LocalField)
			}
			if _, ok := target.Field(rel.RemoteField); !ok {
				return fmt.Errorf("entity %q: relation %q references unknown field %q on %q", e.Name, rel.Name, rel.RemoteField, rel.Target)
			}
			switch rel.Kind {
			case RelationToOne, RelationToMany:
			default:
				return fmt.Errorf("entity %q: relation %q has unknown kind %q", e.Name, rel.Name, rel.Kind)
			}
		}
	}
	return nil
}

// ListName returns the default collection name for an entity.
func ListName(entity string) string {
	return inflection.Plural(entity)
}
