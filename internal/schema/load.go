package schema

import "fmt"

// Definition structs mirror the `entities:` section of the config file.
// They decode via mapstructure and build into a validated Registry, so a
// deployment can describe its schema without writing Go.

type Definition struct {
	Name      string               `mapstructure:"name"`
	Table     string               `mapstructure:"table"`
	Key       string               `mapstructure:"key"`
	Fields    []FieldDefinition    `mapstructure:"fields"`
	Relations []RelationDefinition `mapstructure:"relations"`
}

type FieldDefinition struct {
	Name     string `mapstructure:"name"`
	Column   string `mapstructure:"column"`
	Type     string `mapstructure:"type"`
	Nullable bool   `mapstructure:"nullable"`
	Unique   bool   `mapstructure:"unique"`
}

type RelationDefinition struct {
	Name        string `mapstructure:"name"`
	Target      string `mapstructure:"target"`
	Kind        string `mapstructure:"kind"`
	LocalField  string `mapstructure:"local_field"`
	RemoteField string `mapstructure:"remote_field"`
}

// BuildRegistry converts decoded definitions into a validated Registry.
func BuildRegistry(defs []Definition) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range defs {
		e := Entity{
			Name:  def.Name,
			Table: def.Table,
			Key:   def.Key,
		}
		for _, fd := range def.Fields {
			ft, err := parseFieldType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %q field %q: %w", def.Name, fd.Name, err)
			}
			e.Fields = append(e.Fields, Field{
				Name:     fd.Name,
				Column:   fd.Column,
				Type:     ft,
				Nullable: fd.Nullable,
				Unique:   fd.Unique,
			})
		}
		for _, rd := range def.Relations {
			e.Relations = append(e.Relations, Relation{
				Name:        rd.Name,
				Target:      rd.Target,
				Kind:        RelationKind(rd.Kind),
				LocalField:  rd.LocalField,
				RemoteField: rd.RemoteField,
			})
		}
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseFieldType(s string) (FieldType, error) {
	switch FieldType(s) {
	case TypeInt, TypeFloat, TypeString, TypeBool, TypeTime, TypeUUID, TypeBytes:
		return FieldType(s), nil
	case "":
		return TypeString, nil
	default:
		return "", fmt.Errorf("unknown field type %q", s)
	}
}
