package spec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

type OpenAPIAdapter struct{}

func NewOpenAPIAdapter() *OpenAPIAdapter {
	return &OpenAPIAdapter{}
}

func (a *OpenAPIAdapter) Name() string { return "openapi" }

func (a *OpenAPIAdapter) Detect(raw []byte) bool {
	if root, err := parseRoot(raw); err == nil {
		return mappingValue(root, "openapi") != nil
	}
	lower := strings.ToLower(string(raw))
	return strings.Contains(lower, "openapi:") || strings.Contains(lower, "\"openapi\"")
}

func (a *OpenAPIAdapter) Load(ctx context.Context, raw []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load: %w", err)
	}

	opts := []openapi3.ValidationOption{
		openapi3.DisableExamplesValidation(),
		openapi3.DisableSchemaDefaultsValidation(),
	}

	// Many published documents carry invalid examples but are otherwise
	// usable; retry without them before giving up.
	if err := doc.Validate(ctx, opts...); err != nil {
		sanitized, serr := stripExamples(raw)
		if serr != nil {
			return nil, fmt.Errorf("openapi: validate: %w", err)
		}
		doc2, lerr := loader.LoadFromData(sanitized)
		if lerr != nil {
			return nil, fmt.Errorf("openapi: validate: %w", err)
		}
		if verr := doc2.Validate(ctx, opts...); verr != nil {
			return nil, fmt.Errorf("openapi: validate: %w", verr)
		}
		doc = doc2
	}
	return doc, nil
}

func stripExamples(raw []byte) ([]byte, error) {
	var payload any
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return json.Marshal(removeExampleFields(payload))
}

func removeExampleFields(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if key == "example" || key == "examples" {
				continue
			}
			out[key] = removeExampleFields(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, removeExampleFields(item))
		}
		return out
	default:
		return v
	}
}
