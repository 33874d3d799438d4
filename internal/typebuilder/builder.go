// Package typebuilder translates OAS schema fragments into GraphQL types.
//
// Types live in an arena addressed by Ref. A type is registered in the
// arena, and in the memo table, before its fields are built, so a schema
// that refers to itself, directly or through other schemas, resolves to
// the placeholder instead of recursing forever.
package typebuilder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/vektah/gqlparser/v2/ast"

	"restgraph/internal/diag"
	"restgraph/internal/logging"
	"restgraph/internal/naming"
)

// Kind is the kind of a TypeNode.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindInputObject
	KindEnum
	KindList
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindInputObject:
		return "input"
	case KindEnum:
		return "enum"
	case KindList:
		return "list"
	case KindUnion:
		return "union"
	}
	return "unknown"
}

// Ref addresses a TypeNode in the arena.
type Ref int

// Built-in scalars occupy the first slots of every arena.
const (
	String Ref = iota
	Int
	Float
	Boolean
	ID
	JSON
	builtins
)

// JSONScalar is the name of the custom scalar used for untyped data.
const JSONScalar = "JSON"

// Field is a field of an object or input object.
type Field struct {
	Name        string
	Original    string
	Description string
	Type        Ref
	NonNull     bool
	// Default is the schema default of an input field.
	Default any
}

// EnumValue is one value of an enum.
type EnumValue struct {
	Name  string
	Value any
}

// TypeNode is one GraphQL type.
type TypeNode struct {
	Kind        Kind
	Name        string
	Description string
	Fields      []Field
	// Elem is the element type of a list.
	Elem    Ref
	Members []Ref
	Values  []EnumValue

	matcher *unionMatcher
}

// Field returns the field named name.
func (n *TypeNode) Field(name string) (Field, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Builder owns the arena. It is used single-threaded while a schema is
// translated; afterwards Shape and Desanitize only read it.
type Builder struct {
	style     naming.Style
	names     *naming.SaneNameMap
	typeNames *naming.Scope
	report    *diag.Report
	logger    *slog.Logger

	nodes []*TypeNode
	memo  map[string]Ref
	// operation labels warnings raised while building.
	operation string
	// document qualifies $ref identities, which are only unique within
	// one document.
	document string
}

// New returns a builder. names receives every sanitized field name.
func New(style naming.Style, names *naming.SaneNameMap, report *diag.Report, logger *slog.Logger) *Builder {
	if report == nil {
		report = &diag.Report{}
	}
	b := &Builder{
		style:     style,
		names:     names,
		typeNames: naming.NewScope("Query", "Mutation", "Subscription", "String", "Int", "Float", "Boolean", "ID", JSONScalar),
		report:    report,
		logger:    logging.Component(logger, "typebuilder"),
		memo:      map[string]Ref{},
	}
	for _, name := range []string{"String", "Int", "Float", "Boolean", "ID", JSONScalar} {
		b.nodes = append(b.nodes, &TypeNode{Kind: KindScalar, Name: name})
	}
	return b
}

// Node returns the node at r.
func (b *Builder) Node(r Ref) *TypeNode { return b.nodes[r] }

// Len returns the number of nodes in the arena.
func (b *Builder) Len() int { return len(b.nodes) }

// Names returns the sanitized-name map the builder writes to.
func (b *Builder) Names() *naming.SaneNameMap { return b.names }

// SetOperation labels subsequent warnings with op and scopes named
// schemas to the document titled document.
func (b *Builder) SetOperation(op, document string) {
	b.operation = op
	b.document = document
}

// ClaimTypeName allocates a unique type name derived from hint.
func (b *Builder) ClaimTypeName(key, hint string) string {
	return b.typeNames.Claim(key, naming.Sanitize(hint, b.style.Types()))
}

// NewObject registers an object type that has no schema behind it.
func (b *Builder) NewObject(key, hint, description string) Ref {
	return b.add(&TypeNode{Kind: KindObject, Name: b.ClaimTypeName(key, hint), Description: description})
}

func (b *Builder) add(n *TypeNode) Ref {
	b.nodes = append(b.nodes, n)
	return Ref(len(b.nodes) - 1)
}

// Output builds the output type of a schema.
func (b *Builder) Output(ref *openapi3.SchemaRef, hint string) (Ref, error) {
	return b.build(ref, hint, false)
}

// Input builds the input type of a schema.
func (b *Builder) Input(ref *openapi3.SchemaRef, hint string) (Ref, error) {
	return b.build(ref, hint, true)
}

// IsObjectList reports whether r is a list whose elements are objects.
func (b *Builder) IsObjectList(r Ref) bool {
	n := b.nodes[r]
	if n.Kind != KindList {
		return false
	}
	k := b.nodes[n.Elem].Kind
	return k == KindObject || k == KindUnion
}

// GraphQLType returns the AST type expression for r.
func (b *Builder) GraphQLType(r Ref, nonNull bool) *ast.Type {
	n := b.nodes[r]
	var t *ast.Type
	if n.Kind == KindList {
		t = ast.ListType(b.GraphQLType(n.Elem, false), nil)
	} else {
		t = ast.NamedType(n.Name, nil)
	}
	t.NonNull = nonNull
	return t
}

func refName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func direction(input bool) string {
	if input {
		return "in:"
	}
	return "out:"
}

// structuralKey identifies an inline schema by its content. Nested named
// schemas serialize as their $ref, so the key is finite for cyclic graphs.
func structuralKey(s *openapi3.Schema) string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("ptr:%p", s)
	}
	return "struct:" + string(data)
}

func (b *Builder) build(ref *openapi3.SchemaRef, hint string, input bool) (Ref, error) {
	if ref == nil || ref.Value == nil {
		return JSON, nil
	}
	s := ref.Value
	if ref.Ref != "" {
		hint = refName(ref.Ref)
	} else if s.Title != "" {
		hint = s.Title
	}
	identity := ref.Ref
	if identity == "" {
		identity = structuralKey(s)
	}
	identity = b.document + "\x00" + identity

	if len(s.AllOf) > 0 {
		merged, err := b.mergeAllOf(s)
		if err != nil {
			return 0, fmt.Errorf("type %s: %w", hint, err)
		}
		s = merged
	}

	switch {
	case len(s.OneOf) > 0 || len(s.AnyOf) > 0:
		return b.union(s, identity, hint, input)
	case len(s.Enum) > 0:
		return b.enum(s, identity, hint), nil
	case s.Type == "array":
		elem, err := b.build(s.Items, hint+"ListItem", input)
		if err != nil {
			return 0, err
		}
		return b.add(&TypeNode{Kind: KindList, Elem: elem}), nil
	case len(s.Properties) > 0:
		return b.object(s, identity, hint, input)
	}
	return scalarFor(s), nil
}

func scalarFor(s *openapi3.Schema) Ref {
	switch s.Type {
	case "string":
		return String
	case "integer":
		return Int
	case "number":
		return Float
	case "boolean":
		return Boolean
	}
	return JSON
}

func (b *Builder) object(s *openapi3.Schema, identity, hint string, input bool) (Ref, error) {
	key := direction(input) + identity
	if r, ok := b.memo[key]; ok {
		return r, nil
	}
	base := naming.Sanitize(hint, b.style.Types())
	kind := KindObject
	candidate := base
	if input {
		kind = KindInputObject
		candidate = base + "Input"
	}
	node := &TypeNode{
		Kind:        kind,
		Name:        b.typeNames.Claim(key, candidate),
		Description: s.Description,
	}
	r := b.add(node)
	b.memo[key] = r
	b.logger.Debug("building type", "type", node.Name, "kind", kind.String())

	required := map[string]bool{}
	for _, name := range s.Required {
		required[name] = true
	}
	props := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		props = append(props, name)
	}
	sort.Strings(props)

	scope := naming.NewScope()
	fields := make([]Field, 0, len(props))
	for _, prop := range props {
		propRef := s.Properties[prop]
		fieldName := scope.Claim(prop, naming.Sanitize(prop, b.style.Fields()))
		b.names.Register(fieldName, prop)
		typ, err := b.build(propRef, base+naming.Capitalize(naming.Sanitize(prop, naming.CamelCase)), input)
		if err != nil {
			return 0, err
		}
		f := Field{
			Name:     fieldName,
			Original: prop,
			Type:     typ,
			NonNull:  required[prop],
		}
		if propRef != nil && propRef.Value != nil {
			f.Description = propRef.Value.Description
			if input {
				f.Default = propRef.Value.Default
				f.NonNull = f.NonNull && f.Default == nil
			}
		}
		fields = append(fields, f)
	}
	node.Fields = fields
	return r, nil
}

func (b *Builder) enum(s *openapi3.Schema, identity, hint string) Ref {
	key := "enum:" + identity
	if r, ok := b.memo[key]; ok {
		return r
	}
	node := &TypeNode{
		Kind:        KindEnum,
		Name:        b.typeNames.Claim(key, naming.Sanitize(hint, b.style.Types())),
		Description: s.Description,
	}
	scope := naming.NewScope()
	for _, v := range s.Enum {
		if v == nil {
			continue
		}
		raw := fmt.Sprint(v)
		node.Values = append(node.Values, EnumValue{
			Name:  scope.Claim(raw, naming.Sanitize(raw, b.style.EnumValues())),
			Value: v,
		})
	}
	r := b.add(node)
	b.memo[key] = r
	return r
}
