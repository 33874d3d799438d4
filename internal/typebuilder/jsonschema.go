package typebuilder

import "github.com/getkin/kin-openapi/openapi3"

// toJSONSchema renders a kin schema as a plain JSON Schema document with
// references inlined. A schema already on the stack renders as the empty
// (accept-all) schema.
func toJSONSchema(ref *openapi3.SchemaRef, stack map[*openapi3.Schema]bool) map[string]any {
	out := map[string]any{}
	if ref == nil || ref.Value == nil {
		return out
	}
	s := ref.Value
	if stack[s] {
		return out
	}
	stack[s] = true
	defer delete(stack, s)

	if s.Type != "" {
		if s.Nullable {
			out["type"] = []any{s.Type, "null"}
		} else {
			out["type"] = s.Type
		}
	}
	if len(s.Enum) > 0 {
		values := append([]any{}, s.Enum...)
		if s.Nullable {
			values = append(values, nil)
		}
		out["enum"] = values
	}
	if len(s.Properties) > 0 {
		props := map[string]any{}
		for name, p := range s.Properties {
			props[name] = toJSONSchema(p, stack)
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		out["required"] = req
	}
	if s.Items != nil {
		out["items"] = toJSONSchema(s.Items, stack)
	}
	if ap := s.AdditionalProperties; ap.Has != nil && !*ap.Has {
		out["additionalProperties"] = false
	} else if ap.Schema != nil {
		out["additionalProperties"] = toJSONSchema(ap.Schema, stack)
	}
	for key, list := range map[string]openapi3.SchemaRefs{"allOf": s.AllOf, "oneOf": s.OneOf, "anyOf": s.AnyOf} {
		if len(list) == 0 {
			continue
		}
		rendered := make([]any, len(list))
		for i, m := range list {
			rendered[i] = toJSONSchema(m, stack)
		}
		out[key] = rendered
	}
	return out
}
