package spec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Swagger2Adapter converts Swagger 2.0 documents to OAS 3.
type Swagger2Adapter struct{}

func NewSwagger2Adapter() *Swagger2Adapter {
	return &Swagger2Adapter{}
}

func (a *Swagger2Adapter) Name() string { return "swagger2" }

func (a *Swagger2Adapter) Detect(raw []byte) bool {
	if root, err := parseRoot(raw); err == nil {
		return mappingValue(root, "swagger") != nil
	}
	lower := strings.ToLower(string(raw))
	return strings.Contains(lower, "\"swagger\"") || strings.Contains(lower, "swagger:")
}

func (a *Swagger2Adapter) Load(ctx context.Context, raw []byte) (*openapi3.T, error) {
	var doc2 openapi2.T
	if err := json.Unmarshal(raw, &doc2); err != nil {
		data, cerr := yamlToJSON(raw)
		if cerr != nil {
			return nil, fmt.Errorf("swagger2: decode: %w", cerr)
		}
		if err := json.Unmarshal(data, &doc2); err != nil {
			return nil, fmt.Errorf("swagger2: decode: %w", err)
		}
	}
	if doc2.Swagger == "" {
		return nil, fmt.Errorf("swagger2: missing swagger version")
	}
	v3, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, fmt.Errorf("swagger2: convert to v3: %w", err)
	}
	data, err := json.Marshal(v3)
	if err != nil {
		return nil, fmt.Errorf("swagger2: encode v3: %w", err)
	}
	return NewOpenAPIAdapter().Load(ctx, data)
}

// yamlToJSON re-encodes a YAML document as JSON so kin-openapi's JSON
// unmarshalers run on it.
func yamlToJSON(raw []byte) ([]byte, error) {
	var payload any
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}
