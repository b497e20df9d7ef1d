// Package entity implements the variant-model derivation core: declared
// entities with typed fields, the Create/Read/Update/DB variant schemas
// synthesized from them, the process-wide registry of compiled entities,
// and the record-level CRUD operations shared by the route builder and
// service runner.
package entity

import (
	"fmt"
	"sort"
)

// Kind identifies a field type kind
type Kind string

// Field type kinds
const (
	KindString Kind = "string"
	KindText   Kind = "text"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "timestamp"
	KindUUID   Kind = "uuid"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Type describes a field's type. Scalar types carry only a Kind; list
// types carry an element type and map types carry key and value types.
type Type struct {
	Kind  Kind
	Elem  *Type // list element type
	Key   *Type // map key type
	Value *Type // map value type
}

// Scalar type values for declarations
var (
	TypeString = Type{Kind: KindString}
	TypeText   = Type{Kind: KindText}
	TypeInt    = Type{Kind: KindInt}
	TypeFloat  = Type{Kind: KindFloat}
	TypeBool   = Type{Kind: KindBool}
	TypeTime   = Type{Kind: KindTime}
	TypeUUID   = Type{Kind: KindUUID}
)

// ListOf builds a list type with the given element type
func ListOf(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

// MapOf builds a map type with the given key and value types. Keys must be
// string-kinded (string, text, or uuid); anything else fails at
// registration time.
func MapOf(key, value Type) Type {
	return Type{Kind: KindMap, Key: &key, Value: &value}
}

// IsList returns true for list types
func (t Type) IsList() bool {
	return t.Kind == KindList
}

// IsMap returns true for map types
func (t Type) IsMap() bool {
	return t.Kind == KindMap
}

// IsScalar returns true for non-container types
func (t Type) IsScalar() bool {
	return !t.IsList() && !t.IsMap()
}

// String returns a readable form like "list<uuid>" or "map<string,int>"
func (t Type) String() string {
	switch t.Kind {
	case KindList:
		if t.Elem == nil {
			return "list<?>"
		}
		return fmt.Sprintf("list<%s>", t.Elem.String())
	case KindMap:
		if t.Key == nil || t.Value == nil {
			return "map<?,?>"
		}
		return fmt.Sprintf("map<%s,%s>", t.Key.String(), t.Value.String())
	default:
		return string(t.Kind)
	}
}

// validate checks that the type is well formed
func (t Type) validate() error {
	switch t.Kind {
	case KindString, KindText, KindInt, KindFloat, KindBool, KindTime, KindUUID:
		return nil
	case KindList:
		if t.Elem == nil {
			return fmt.Errorf("list type requires an element type")
		}
		if !t.Elem.IsScalar() {
			return fmt.Errorf("list element type must be scalar, got %s", t.Elem)
		}
		return t.Elem.validate()
	case KindMap:
		if t.Key == nil || t.Value == nil {
			return fmt.Errorf("map type requires key and value types")
		}
		switch t.Key.Kind {
		case KindString, KindText, KindUUID:
		default:
			return fmt.Errorf("map key type must be string-kinded, got %s", t.Key)
		}
		if !t.Value.IsScalar() {
			return fmt.Errorf("map value type must be scalar, got %s", t.Value)
		}
		return t.Value.validate()
	default:
		return fmt.Errorf("unknown type kind %q", t.Kind)
	}
}

// Field is a single typed field on an entity or variant.
type Field struct {
	Name     string
	Type     Type
	Default  interface{}
	Nullable bool
}

// Record is the uniform currency for entity data. The route builder, the
// persistence session, and service methods all exchange records.
type Record = map[string]interface{}

// FieldNames returns the sorted names of a record's keys, for
// deterministic iteration.
func FieldNames(rec Record) []string {
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
