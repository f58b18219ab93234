// Package schema holds the entity metadata the query engine plans against.
// Callers register entities (tables), their fields, and the relations
// between them; the planner consumes this registry to resolve requested
// field names into columns and linkage.
package schema

import "fmt"

// FieldType enumerates the scalar types the engine understands. Filter
// values and cursor values are validated and coerced against these.
type FieldType string

const (
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeString FieldType = "string"
	TypeBool   FieldType = "bool"
	TypeTime   FieldType = "time"
	TypeUUID   FieldType = "uuid"
	TypeBytes  FieldType = "bytes"
)

// Field describes one scalar field of an entity and the column backing it.
type Field struct {
	Name     string
	Column   string
	Type     FieldType
	Nullable bool
	Unique   bool
}

// RelationKind distinguishes to-one links (foreign key on this entity)
// from to-many links (foreign key on the target entity).
type RelationKind string

const (
	RelationToOne  RelationKind = "to_one"
	RelationToMany RelationKind = "to_many"
)

// Relation describes a named link from one entity to another.
// LocalField/RemoteField name the join fields on each side; for a to-one
// relation the local field carries the foreign key, for a to-many relation
// the remote field does.
type Relation struct {
	Name        string
	Target      string
	Kind        RelationKind
	LocalField  string
	RemoteField string
}

// Entity is one registered table with its fields and outgoing relations.
// Key names the unique identifier field used as the pagination tiebreak.
type Entity struct {
	Name      string
	Table     string
	Key       string
	Fields    []Field
	Relations []Relation

	fieldsByName    map[string]*Field
	relationsByName map[string]*Relation
}

// Field returns the named field, or false if the entity has no such field.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.fieldsByName[name]
	return f, ok
}

// Relation returns the named relation, or false if none is registered.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relationsByName[name]
	return r, ok
}

// KeyField returns the tiebreak field. The registry guarantees it exists
// and is unique for every registered entity.
func (e *Entity) KeyField() *Field {
	return e.fieldsByName[e.Key]
}

func (e *Entity) index() error {
	e.fieldsByName = make(map[string]*Field, len(e.Fields))
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("entity %q: field with empty name", e.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if _, dup := e.fieldsByName[f.Name]; dup {
			return fmt.Errorf("entity %q: duplicate field %q", e.Name, f.Name)
		}
		e.fieldsByName[f.Name] = f
	}
	e.relationsByName = make(map[string]*Relation, len(e.Relations))
	for i := range e.Relations {
		r := &e.Relations[i]
		if r.Name == "" {
			return fmt.Errorf("entity %q: relation with empty name", e.Name)
		}
		if _, clash := e.fieldsByName[r.Name]; clash {
			return fmt.Errorf("entity %q: relation %q collides with a field", e.Name, r.Name)
		}
		if _, dup := e.relationsByName[r.Name]; dup {
			return fmt.Errorf("entity %q: duplicate relation %q", e.Name, r.Name)
		}
		e.relationsByName[r.Name] = r
	}
	key, ok := e.fieldsByName[e.Key]
	if !ok {
		return fmt.Errorf("entity %q: key field %q not declared", e.Name, e.Key)
	}
	if !key.Unique {
		return fmt.Errorf("entity %q: key field %q must be unique", e.Name, e.Key)
	}
	return nil
}
