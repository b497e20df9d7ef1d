package entity

import (
	"net/http"

	"github.com/strata-api/strata/internal/naming"
)

// idField is the implicit identity field every entity carries unless it
// declares its own id.
var idField = Field{Name: "id", Type: TypeUUID}

// rootBase is the implicit ancestor of parentless entities. Its variant
// sets seed derivation: Create and Update start empty, Read and DB start
// with the identity field.
var rootBase = &Entity{
	Fields: []Field{idField},
	variants: map[VariantKind]*Variant{
		VariantCreate: newVariant(VariantCreate, "", nil),
		VariantRead:   newVariant(VariantRead, "", []Field{idField}),
		VariantUpdate: newVariant(VariantUpdate, "", nil),
		VariantDB:     newVariant(VariantDB, "", []Field{idField}),
	},
}

// Entity is a compiled entity declaration: effective fields, the four
// synthesized variants, and the declared operations and service methods.
// Entities are immutable once registered; the registry owns them for the
// life of the process.
type Entity struct {
	Name string

	// Prefix is the entity's route namespace: snake_case name, leading
	// underscores stripped.
	Prefix string

	// Table is the storage table name: snake_case with any leading
	// underscore kept.
	Table string

	// Parent is the entity this one builds on, nil for root entities.
	Parent *Entity

	// Fields is the effective field list: the identity field and any
	// parent fields first, then the entity's own declarations in order.
	Fields []Field

	Operations []Operation
	Services   []ServiceMethod

	variants map[VariantKind]*Variant
	fieldIdx map[string]int
	opIdx    map[string]int
}

// Variant returns the synthesized variant of the given kind
func (e *Entity) Variant(kind VariantKind) *Variant {
	return e.variants[kind]
}

// Field returns the named effective field and whether it exists
func (e *Entity) Field(name string) (Field, bool) {
	i, ok := e.fieldIdx[name]
	if !ok {
		return Field{}, false
	}
	return e.Fields[i], true
}

// Operation returns the named declared operation and whether it exists
func (e *Entity) Operation(name string) (Operation, bool) {
	i, ok := e.opIdx[name]
	if !ok {
		return Operation{}, false
	}
	return e.Operations[i], true
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// compileDefinition validates a definition and builds the immutable
// compiled entity. All definition-time errors originate here.
func compileDefinition(def Definition, parent *Entity) (*Entity, error) {
	if def.Name == "" {
		return nil, defErrorf("", "entity name is required")
	}
	if !validName(def.Name) {
		return nil, defErrorf(def.Name, "entity name must be a letter or underscore followed by letters, digits, or underscores")
	}
	prefix := naming.RoutePrefix(def.Name)
	if prefix == "" {
		return nil, defErrorf(def.Name, "entity name reduces to an empty route prefix")
	}

	base := parent
	if base == nil {
		base = rootBase
	}

	fields, err := mergeFields(def.Name, base.Fields, def.Fields)
	if err != nil {
		return nil, err
	}

	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		fieldIdx[f.Name] = i
	}
	for _, name := range def.Include {
		if _, ok := fieldIdx[name]; !ok {
			return nil, defErrorf(def.Name, "top-level include names unresolvable field %q", name)
		}
	}
	for _, name := range def.Exclude {
		if _, ok := fieldIdx[name]; !ok {
			return nil, defErrorf(def.Name, "top-level exclude names unresolvable field %q", name)
		}
	}

	for _, decl := range def.Variants {
		switch decl.Kind {
		case VariantCreate, VariantRead, VariantUpdate, VariantDB:
		default:
			return nil, defErrorf(def.Name, "unknown variant kind %q", decl.Kind)
		}
	}

	variants := make(map[VariantKind]*Variant, len(VariantKinds))
	for _, kind := range VariantKinds {
		decls := declsForKind(def.Variants, kind)
		if len(decls) == 0 {
			decls = []VariantDecl{{Kind: kind}}
		}
		parentVariant := base.Variant(kind)

		var prior *Variant
		for _, decl := range decls {
			v, err := applyVariantDecl(def.Name, fields, def.Include, def.Exclude, decl, parentVariant, prior)
			if err != nil {
				return nil, err
			}
			prior = v
		}
		variants[kind] = prior
	}

	opIdx := make(map[string]int, len(def.Operations))
	mounted := make(map[string]string, len(def.Operations))
	for i, op := range def.Operations {
		if op.Name == "" {
			return nil, defErrorf(def.Name, "operation at index %d has no name", i)
		}
		if _, dup := opIdx[op.Name]; dup {
			return nil, defErrorf(def.Name, "operation %s declared twice", op.Name)
		}
		if op.Handler == nil {
			return nil, defErrorf(def.Name, "operation %s has no handler", op.Name)
		}
		if _, ok := allowedMethods[op.Method]; !ok {
			return nil, defErrorf(def.Name, "operation %s has unsupported method %q", op.Name, op.Method)
		}
		if op.Scope != ScopeClass && op.Scope != ScopeInstance {
			return nil, defErrorf(def.Name, "operation %s has unknown scope %q", op.Name, op.Scope)
		}
		mount := string(op.Scope) + " " + op.Method + " " + NormalizePath(op.Path)
		if prev, taken := mounted[mount]; taken {
			return nil, defErrorf(def.Name, "operations %s and %s mount at the same method and path", prev, op.Name)
		}
		mounted[mount] = op.Name
		opIdx[op.Name] = i
	}

	svcNames := make(map[string]struct{}, len(def.Services))
	for i, svc := range def.Services {
		if svc.Name == "" {
			return nil, defErrorf(def.Name, "service method at index %d has no name", i)
		}
		if _, dup := svcNames[svc.Name]; dup {
			return nil, defErrorf(def.Name, "service method %s declared twice", svc.Name)
		}
		svcNames[svc.Name] = struct{}{}
		if svc.Interval < 0 {
			return nil, defErrorf(def.Name, "service method %s has a negative interval", svc.Name)
		}
		if !svc.Startup && !svc.Shutdown && !svc.Seed && svc.Interval == 0 {
			return nil, defErrorf(def.Name, "service method %s has no trigger (startup, shutdown, seed, or interval)", svc.Name)
		}
		if (svc.Handler == nil) == (svc.OpName == "") {
			return nil, defErrorf(def.Name, "service method %s must set exactly one of Handler or OpName", svc.Name)
		}
		if svc.OpName != "" {
			idx, ok := opIdx[svc.OpName]
			if !ok {
				return nil, defErrorf(def.Name, "service method %s names unknown operation %q", svc.Name, svc.OpName)
			}
			if def.Operations[idx].Scope != ScopeClass {
				return nil, defErrorf(def.Name, "service method %s must name a class-scope operation, but %s is instance-scoped", svc.Name, svc.OpName)
			}
		}
	}

	e := &Entity{
		Name:       def.Name,
		Prefix:     prefix,
		Table:      naming.TableName(def.Name),
		Parent:     parent,
		Fields:     fields,
		Operations: append([]Operation(nil), def.Operations...),
		Services:   append([]ServiceMethod(nil), def.Services...),
		variants:   variants,
		fieldIdx:   fieldIdx,
		opIdx:      opIdx,
	}
	return e, nil
}

// mergeFields builds the effective field list: inherited fields first in
// their existing order, own declarations appended, a redeclared name
// overriding the inherited field in place.
func mergeFields(owner string, inherited, own []Field) ([]Field, error) {
	fields := append([]Field(nil), inherited...)
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f.Name] = i
	}

	seen := make(map[string]struct{}, len(own))
	for _, f := range own {
		if f.Name == "" {
			return nil, defErrorf(owner, "field with empty name")
		}
		if !validName(f.Name) {
			return nil, defErrorf(owner, "field name %q must be a letter or underscore followed by letters, digits, or underscores", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, defErrorf(owner, "field %s declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}
		if err := f.Type.validate(); err != nil {
			return nil, defErrorf(owner, "field %s: %v", f.Name, err)
		}
		if f.Default != nil {
			coerced, err := CoerceValue(f.Type, f.Default)
			if err != nil {
				return nil, defErrorf(owner, "field %s default: %v", f.Name, err)
			}
			f.Default = coerced
		}
		if i, ok := idx[f.Name]; ok {
			fields[i] = f
			continue
		}
		idx[f.Name] = len(fields)
		fields = append(fields, f)
	}
	return fields, nil
}

func declsForKind(decls []VariantDecl, kind VariantKind) []VariantDecl {
	var out []VariantDecl
	for _, d := range decls {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func validName(name string) bool {
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return name != ""
}

// NormalizePath trims surrounding slashes from an operation path, so "",
// "/", and "delete/" compare predictably when mounting.
func NormalizePath(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
