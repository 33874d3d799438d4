package typebuilder

import (
	"fmt"
	"reflect"

	"restgraph/internal/apierr"
	"restgraph/internal/naming"
)

// TypenameKey carries the resolved member name of a union value.
const TypenameKey = "__typename"

// Shape converts a decoded response value into the shape of type r:
// object keys become sanitized field names, enum values become enum
// names and union values gain a __typename. JSON-typed values are left
// untouched.
func (b *Builder) Shape(r Ref, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	node := b.nodes[r]
	switch node.Kind {
	case KindScalar:
		return value, nil
	case KindEnum:
		for _, v := range node.Values {
			if jsonEqual(v.Value, value) {
				return v.Name, nil
			}
		}
		return value, nil
	case KindList:
		items, ok := value.([]any)
		if !ok {
			return nil, apierr.SchemaMismatch("expected a list, got %T", value)
		}
		out := make([]any, len(items))
		for i, item := range items {
			shaped, err := b.Shape(node.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = shaped
		}
		return out, nil
	case KindUnion:
		member, err := node.matcher.match(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name, err)
		}
		shaped, err := b.Shape(member, value)
		if err != nil {
			return nil, err
		}
		obj := shaped.(map[string]any)
		obj[TypenameKey] = b.nodes[member].Name
		return obj, nil
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, apierr.SchemaMismatch("%s: expected an object, got %T", node.Name, value)
	}
	out := make(map[string]any, len(obj))
	known := make(map[string]bool, len(node.Fields))
	for _, f := range node.Fields {
		known[f.Original] = true
		raw, ok := obj[f.Original]
		if !ok {
			continue
		}
		shaped, err := b.Shape(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", node.Name, f.Name, err)
		}
		out[f.Name] = shaped
	}
	for key, raw := range obj {
		if known[key] {
			continue
		}
		sane := naming.Sanitize(key, b.style.Fields())
		if _, taken := out[sane]; !taken {
			out[sane] = sanitizeKeys(raw, b.style.Fields())
		}
	}
	return out, nil
}

// sanitizeKeys renames the keys of undeclared nested objects.
func sanitizeKeys(value any, style naming.Style) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[naming.Sanitize(k, style)] = sanitizeKeys(item, style)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = sanitizeKeys(item, style)
		}
		return out
	}
	return value
}

// Desanitize converts a GraphQL input value of type r back to the wire
// shape: field names return to their original keys and enum names to
// their raw values.
func (b *Builder) Desanitize(r Ref, value any) any {
	if value == nil {
		return nil
	}
	node := b.nodes[r]
	switch node.Kind {
	case KindEnum:
		if name, ok := value.(string); ok {
			for _, v := range node.Values {
				if v.Name == name {
					return v.Value
				}
			}
		}
		return value
	case KindList:
		items, ok := value.([]any)
		if !ok {
			return b.Desanitize(node.Elem, value)
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = b.Desanitize(node.Elem, item)
		}
		return out
	case KindInputObject, KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(obj))
		for key, item := range obj {
			if f, ok := node.Field(key); ok {
				out[f.Original] = b.Desanitize(f.Type, item)
				continue
			}
			out[naming.Desanitize(key, b.names)] = item
		}
		return out
	}
	return value
}

func jsonEqual(a, b any) bool {
	switch x := a.(type) {
	case int:
		return numberEqual(float64(x), b)
	case int64:
		return numberEqual(float64(x), b)
	case float64:
		return numberEqual(x, b)
	}
	return reflect.DeepEqual(a, b)
}

func numberEqual(x float64, b any) bool {
	switch y := b.(type) {
	case float64:
		return x == y
	case int:
		return x == float64(y)
	case int64:
		return x == float64(y)
	}
	return false
}
