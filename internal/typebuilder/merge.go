package typebuilder

import (
	"github.com/getkin/kin-openapi/openapi3"

	"restgraph/internal/apierr"
)

// mergeAllOf flattens an allOf composition into a single schema. Members
// declaring the same property with different shapes make the type
// untranslatable.
func (b *Builder) mergeAllOf(s *openapi3.Schema) (*openapi3.Schema, error) {
	merged := &openapi3.Schema{
		Title:       s.Title,
		Description: s.Description,
		Nullable:    s.Nullable,
		Properties:  openapi3.Schemas{},
	}
	required := map[string]bool{}
	var scalar string
	visited := map[*openapi3.Schema]bool{}

	var walk func(cur *openapi3.Schema) error
	walk = func(cur *openapi3.Schema) error {
		if cur == nil || visited[cur] {
			return nil
		}
		visited[cur] = true
		for _, member := range cur.AllOf {
			if member == nil {
				continue
			}
			if err := walk(member.Value); err != nil {
				return err
			}
		}
		for name, prop := range cur.Properties {
			if existing, ok := merged.Properties[name]; ok {
				if !sameShape(existing, prop) {
					return apierr.Configuration("allOf members declare property %q with conflicting types", name)
				}
				continue
			}
			merged.Properties[name] = prop
		}
		for _, name := range cur.Required {
			required[name] = true
		}
		if len(cur.OneOf) > 0 && len(merged.OneOf) == 0 {
			merged.OneOf = cur.OneOf
		}
		if len(cur.Enum) > 0 && len(merged.Enum) == 0 {
			merged.Enum = cur.Enum
		}
		if cur.Type != "" && cur.Type != "object" {
			if scalar != "" && scalar != cur.Type {
				return apierr.Configuration("allOf members declare conflicting types %q and %q", scalar, cur.Type)
			}
			scalar = cur.Type
		}
		if cur.Items != nil && merged.Items == nil {
			merged.Items = cur.Items
		}
		if merged.Description == "" {
			merged.Description = cur.Description
		}
		return nil
	}
	if err := walk(s); err != nil {
		return nil, err
	}

	if len(merged.Properties) > 0 {
		if scalar != "" {
			return nil, apierr.Configuration("allOf combines an object with a %q", scalar)
		}
		merged.Type = "object"
	} else {
		merged.Type = scalar
	}
	for name := range required {
		if _, ok := merged.Properties[name]; ok {
			merged.Required = append(merged.Required, name)
		}
	}
	return merged, nil
}

func effectiveType(s *openapi3.Schema) string {
	if s.Type == "" && len(s.Properties) > 0 {
		return "object"
	}
	return s.Type
}

// sameShape reports whether two property schemas are compatible. An
// untyped schema is compatible with anything.
func sameShape(a, b *openapi3.SchemaRef) bool {
	if a == nil || b == nil || a.Value == nil || b.Value == nil || a.Value == b.Value {
		return true
	}
	ta, tb := effectiveType(a.Value), effectiveType(b.Value)
	if ta == "" || tb == "" {
		return true
	}
	if ta != tb {
		return false
	}
	switch ta {
	case "array":
		return sameShape(a.Value.Items, b.Value.Items)
	case "object":
		if a.Ref != "" && b.Ref != "" {
			return a.Ref == b.Ref
		}
	}
	return true
}
