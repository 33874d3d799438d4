package schema

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"restgraph/internal/typebuilder"
)

// document renders the root types, the builder's arena and every
// generated field into one schema document.
func (a *assembler) document() *ast.SchemaDocument {
	doc := &ast.SchemaDocument{}
	for _, root := range []*objectDef{a.query, a.mutation} {
		if len(root.fields) == 0 {
			continue
		}
		doc.Definitions = append(doc.Definitions, &ast.Definition{
			Kind:   ast.Object,
			Name:   root.name,
			Fields: a.fieldList(root.fields),
		})
	}
	doc.Definitions = append(doc.Definitions, &ast.Definition{
		Kind:        ast.Scalar,
		Name:        typebuilder.JSONScalar,
		Description: "Arbitrary JSON data.",
	})

	for i := 0; i < a.types.Len(); i++ {
		r := typebuilder.Ref(i)
		node := a.types.Node(r)
		def := &ast.Definition{Name: node.Name, Description: description(node.Description)}
		switch node.Kind {
		case typebuilder.KindObject:
			def.Kind = ast.Object
			for _, f := range node.Fields {
				def.Fields = append(def.Fields, &ast.FieldDefinition{
					Name:        f.Name,
					Description: description(f.Description),
					Type:        a.types.GraphQLType(f.Type, f.NonNull),
				})
			}
			if extra, ok := a.extra[r]; ok {
				def.Fields = append(def.Fields, a.fieldList(extra.fields)...)
			}
		case typebuilder.KindInputObject:
			def.Kind = ast.InputObject
			for _, f := range node.Fields {
				def.Fields = append(def.Fields, &ast.FieldDefinition{
					Name:         f.Name,
					Description:  description(f.Description),
					Type:         a.types.GraphQLType(f.Type, f.NonNull),
					DefaultValue: a.defaultValue(f.Type, f.Default),
				})
			}
		case typebuilder.KindEnum:
			def.Kind = ast.Enum
			for _, v := range node.Values {
				def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{Name: v.Name})
			}
		case typebuilder.KindUnion:
			def.Kind = ast.Union
			for _, m := range node.Members {
				def.Types = append(def.Types, a.types.Node(m).Name)
			}
		default:
			continue
		}
		doc.Definitions = append(doc.Definitions, def)
	}
	return doc
}

func (a *assembler) fieldList(fields []*fieldDef) ast.FieldList {
	out := make(ast.FieldList, 0, len(fields))
	for _, f := range fields {
		def := &ast.FieldDefinition{
			Name:        f.name,
			Description: description(f.description),
			Type:        f.typ,
		}
		for _, arg := range f.args {
			def.Arguments = append(def.Arguments, &ast.ArgumentDefinition{
				Name:         arg.name,
				Description:  description(arg.description),
				Type:         arg.typ,
				DefaultValue: arg.def,
			})
		}
		out = append(out, def)
	}
	return out
}

// description keeps a description printable as a block string.
func description(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), `"""`, `\"""`)
}

// defaultValue renders a schema default as a literal of type r. Defaults
// that have no literal form in r are dropped; the runtime still applies
// parameter defaults.
func (a *assembler) defaultValue(r typebuilder.Ref, v any) *ast.Value {
	if v == nil {
		return nil
	}
	node := a.types.Node(r)
	if node.Kind == typebuilder.KindEnum {
		for _, ev := range node.Values {
			if fmt.Sprint(ev.Value) == fmt.Sprint(v) {
				return &ast.Value{Kind: ast.EnumValue, Raw: ev.Name}
			}
		}
		return nil
	}
	switch r {
	case typebuilder.String, typebuilder.ID:
		if s, ok := v.(string); ok {
			return &ast.Value{Kind: ast.StringValue, Raw: s}
		}
	case typebuilder.Int:
		switch n := v.(type) {
		case int:
			return &ast.Value{Kind: ast.IntValue, Raw: strconv.Itoa(n)}
		case int64:
			return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(n, 10)}
		case float64:
			if n == float64(int64(n)) {
				return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(int64(n), 10)}
			}
		}
	case typebuilder.Float:
		switch n := v.(type) {
		case float64:
			return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(n, 'f', -1, 64)}
		case int:
			return &ast.Value{Kind: ast.IntValue, Raw: strconv.Itoa(n)}
		}
	case typebuilder.Boolean:
		if b, ok := v.(bool); ok {
			return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(b)}
		}
	}
	return nil
}

func format(doc *ast.SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

func load(sdl string) (*ast.Schema, error) {
	return gqlparser.LoadSchema(&ast.Source{Name: "restgraph.graphql", Input: sdl})
}
