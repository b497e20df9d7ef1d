package entity

// VariantKind identifies one of the four derived schemas every entity owns
type VariantKind string

// Variant kinds
const (
	VariantCreate VariantKind = "create"
	VariantRead   VariantKind = "read"
	VariantUpdate VariantKind = "update"
	VariantDB     VariantKind = "db"
)

// VariantKinds lists all kinds in derivation order
var VariantKinds = []VariantKind{VariantCreate, VariantRead, VariantUpdate, VariantDB}

// String returns the kind name
func (k VariantKind) String() string {
	return string(k)
}

// VariantDecl is one variant directive on a definition. Directives are
// ordered; applying the same kind twice composes, with the later directive
// seeing the earlier result as its prior variant.
//
// Include and Exclude distinguish nil from empty: a nil slice means the
// directive was not given, an empty non-nil slice means it was given with
// no names, and the two select different reconciliation branches.
type VariantDecl struct {
	Kind    VariantKind
	Include []string
	Exclude []string

	// Extra declares fields that exist only on this variant, such as
	// storage-only columns on the DB variant.
	Extra []Field
}

// Variant is a synthesized schema: an ordered subset of fields derived
// from an entity declaration and its ancestry. Variants are immutable
// once their entity is registered.
type Variant struct {
	Kind   VariantKind
	Owner  string
	Fields []Field

	index map[string]int
}

func newVariant(kind VariantKind, owner string, fields []Field) *Variant {
	v := &Variant{Kind: kind, Owner: owner, Fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		v.index[f.Name] = i
	}
	return v
}

// Field returns the named field and whether it exists on the variant
func (v *Variant) Field(name string) (Field, bool) {
	i, ok := v.index[name]
	if !ok {
		return Field{}, false
	}
	return v.Fields[i], true
}

// Has returns true when the variant contains the named field
func (v *Variant) Has(name string) bool {
	_, ok := v.index[name]
	return ok
}

// FieldNames returns the variant's field names in field order
func (v *Variant) FieldNames() []string {
	names := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		names[i] = f.Name
	}
	return names
}

// ListFields returns the variant's list-typed fields in field order
func (v *Variant) ListFields() []Field {
	var fields []Field
	for _, f := range v.Fields {
		if f.Type.IsList() {
			fields = append(fields, f)
		}
	}
	return fields
}

// MapFields returns the variant's map-typed fields in field order
func (v *Variant) MapFields() []Field {
	var fields []Field
	for _, f := range v.Fields {
		if f.Type.IsMap() {
			fields = append(fields, f)
		}
	}
	return fields
}

func (v *Variant) fieldSet() map[string]struct{} {
	set := make(map[string]struct{}, len(v.Fields))
	for _, f := range v.Fields {
		set[f.Name] = struct{}{}
	}
	return set
}

// reconcileFields computes the effective field-name set for one variant
// directive. inherited is the union of the same-kind variant fields of the
// parent chain and of the prior variant when the kind is being reapplied;
// newNames is the entity's own field list after top-level restriction, plus
// the directive's extra fields.
//
// Subtraction binds before union, so an excluded name that is inherited
// survives: inherited fields are never removed, only added to.
func reconcileFields(inherited map[string]struct{}, newNames []string, include, exclude []string) map[string]struct{} {
	set := make(map[string]struct{}, len(inherited)+len(newNames))
	for name := range inherited {
		set[name] = struct{}{}
	}

	switch {
	case include == nil && exclude == nil:
		for _, name := range newNames {
			set[name] = struct{}{}
		}
	case include == nil:
		excluded := nameSet(exclude)
		for _, name := range newNames {
			if _, skip := excluded[name]; !skip {
				set[name] = struct{}{}
			}
		}
	case exclude == nil:
		for _, name := range include {
			set[name] = struct{}{}
		}
	default:
		excluded := nameSet(exclude)
		for _, name := range include {
			if _, skip := excluded[name]; !skip {
				set[name] = struct{}{}
			}
		}
	}

	return set
}

// applyVariantDecl synthesizes the variant produced by one directive.
// Field types and defaults resolve from the nearest base, searching the
// entity's own fields (extras included), then the parent's same-kind
// variant, then the prior same-kind variant; first match wins.
func applyVariantDecl(owner string, ownFields []Field, topInclude, topExclude []string, decl VariantDecl, parent, prior *Variant) (*Variant, error) {
	extras := append([]Field(nil), decl.Extra...)
	ownNames := make(map[string]struct{}, len(ownFields))
	for _, f := range ownFields {
		ownNames[f.Name] = struct{}{}
	}
	for i, f := range extras {
		if f.Name == "" {
			return nil, defErrorf(owner, "%s variant extra field at index %d has no name", decl.Kind, i)
		}
		if err := f.Type.validate(); err != nil {
			return nil, defErrorf(owner, "%s variant extra field %s: %v", decl.Kind, f.Name, err)
		}
		if f.Default != nil {
			coerced, err := CoerceValue(f.Type, f.Default)
			if err != nil {
				return nil, defErrorf(owner, "%s variant extra field %s default: %v", decl.Kind, f.Name, err)
			}
			extras[i].Default = coerced
		}
		if _, dup := ownNames[f.Name]; dup {
			return nil, defErrorf(owner, "%s variant extra field %s collides with a declared field", decl.Kind, f.Name)
		}
		for _, other := range extras[:i] {
			if other.Name == f.Name {
				return nil, defErrorf(owner, "%s variant declares extra field %s twice", decl.Kind, f.Name)
			}
		}
	}

	// Own membership after the definition's top-level restriction; extras
	// are variant-local and never restricted.
	newNames := restrictNames(ownFields, topInclude, topExclude)
	for _, f := range extras {
		newNames = append(newNames, f.Name)
	}

	inherited := parent.fieldSet()
	if prior != nil {
		for name := range prior.fieldSet() {
			inherited[name] = struct{}{}
		}
	}

	// Every include/exclude name must resolve somewhere in the ancestry.
	universe := make(map[string]struct{}, len(ownNames)+len(extras)+len(inherited))
	for name := range ownNames {
		universe[name] = struct{}{}
	}
	for _, f := range extras {
		universe[f.Name] = struct{}{}
	}
	for name := range inherited {
		universe[name] = struct{}{}
	}
	for _, name := range decl.Include {
		if _, ok := universe[name]; !ok {
			return nil, defErrorf(owner, "%s variant includes unresolvable field %q", decl.Kind, name)
		}
	}
	for _, name := range decl.Exclude {
		if _, ok := universe[name]; !ok {
			return nil, defErrorf(owner, "%s variant excludes unresolvable field %q", decl.Kind, name)
		}
	}

	set := reconcileFields(inherited, newNames, decl.Include, decl.Exclude)

	// Resolve and order: own declaration order, then extras, then fields
	// only the parent or prior variant carries, in their order.
	fields := make([]Field, 0, len(set))
	placed := make(map[string]struct{}, len(set))
	place := func(f Field) {
		if _, ok := set[f.Name]; !ok {
			return
		}
		if _, done := placed[f.Name]; done {
			return
		}
		placed[f.Name] = struct{}{}
		fields = append(fields, f)
	}
	for _, f := range ownFields {
		place(f)
	}
	for _, f := range extras {
		place(f)
	}
	for _, f := range parent.Fields {
		place(f)
	}
	if prior != nil {
		for _, f := range prior.Fields {
			place(f)
		}
	}
	for name := range set {
		if _, done := placed[name]; !done {
			return nil, defErrorf(owner, "%s variant field %q is not defined on the entity or any ancestor", decl.Kind, name)
		}
	}

	return newVariant(decl.Kind, owner, fields), nil
}

func restrictNames(fields []Field, include, exclude []string) []string {
	var included map[string]struct{}
	if include != nil {
		included = nameSet(include)
	}
	var excluded map[string]struct{}
	if exclude != nil {
		excluded = nameSet(exclude)
	}

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if included != nil {
			if _, ok := included[f.Name]; !ok {
				continue
			}
		}
		if excluded != nil {
			if _, skip := excluded[f.Name]; skip {
				continue
			}
		}
		names = append(names, f.Name)
	}
	return names
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
