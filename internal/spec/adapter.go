package spec

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
)

// Adapter recognizes one REST description format and converts it to OAS 3.
type Adapter interface {
	Name() string
	Detect(raw []byte) bool
	Load(ctx context.Context, raw []byte) (*openapi3.T, error)
}

// adapters is the detection order; the first match wins.
var adapters = []Adapter{
	NewSwagger2Adapter(),
	NewOpenAPIAdapter(),
}

// Formats names the recognized formats in detection order.
func Formats() []string {
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	return names
}
