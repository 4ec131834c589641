// Package schema declares entity descriptors used to build tenant-scoped
// collections without reflection.
package schema

import "fmt"

// FieldType is the semantic type of a field.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Boolean FieldType = "boolean"
	Date    FieldType = "date"
	Object  FieldType = "object"
	Array   FieldType = "array"
	Entity  FieldType = "entity"
	Any     FieldType = "any"
)

// Field describes a single property of an entity.
type Field struct {
	Name     string
	Type     FieldType
	Indexed  bool
	Unique   bool
	Required bool
	Default  any
	// Ref names the descriptor of an Entity field.
	Ref string
	// ItemType and ItemRef describe the elements of an Array field.
	ItemType FieldType
	ItemRef  string
}

// References returns the descriptor name this field points at, if any.
func (f Field) References() (string, bool) {
	switch {
	case f.Type == Entity && f.Ref != "":
		return f.Ref, true
	case f.Type == Array && f.ItemType == Entity && f.ItemRef != "":
		return f.ItemRef, true
	}
	return "", false
}

// RelationKind enumerates relation cardinalities.
type RelationKind string

const (
	BelongsTo RelationKind = "belongsTo"
	HasMany   RelationKind = "hasMany"
)

// Relation links an entity to another descriptor through a key pair.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target string
	// KeyFrom is read on the source entity, KeyTo is matched on the target.
	KeyFrom string
	KeyTo   string
}

// Settings carries collection options.
type Settings struct {
	Strict bool
}

// Descriptor is the static definition of an entity type.
type Descriptor struct {
	Name      string
	IDField   string
	Fields    []Field
	Relations []Relation
	Settings  Settings
}

// Field looks up a field by name.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Relation looks up a relation by name.
func (d Descriptor) Relation(name string) (Relation, bool) {
	for _, r := range d.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// IndexedFields returns the fields that need a storage index.
func (d Descriptor) IndexedFields() []Field {
	var out []Field
	for _, f := range d.Fields {
		if f.Indexed || f.Unique {
			out = append(out, f)
		}
	}
	return out
}

// Registry holds descriptors by name. Fields reference each other by name so
// cyclic definitions are expressible.
type Registry struct {
	descriptors map[string]Descriptor
	order       []string
}

// NewRegistry builds a registry and checks that every reference resolves.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" || d.IDField == "" {
			return nil, fmt.Errorf("schema: descriptor %q requires name and id field", d.Name)
		}
		if _, dup := r.descriptors[d.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate descriptor %q", d.Name)
		}
		r.descriptors[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	for _, d := range descriptors {
		for _, f := range d.Fields {
			if ref, ok := f.References(); ok {
				if _, found := r.descriptors[ref]; !found {
					return nil, fmt.Errorf("schema: %s.%s references unknown descriptor %q", d.Name, f.Name, ref)
				}
			}
		}
		for _, rel := range d.Relations {
			if _, found := r.descriptors[rel.Target]; !found {
				return nil, fmt.Errorf("schema: %s relation %q targets unknown descriptor %q", d.Name, rel.Name, rel.Target)
			}
		}
	}
	return r, nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Names lists descriptor names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
