// Package spec loads REST API descriptions and normalizes them to OAS 3.
package spec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"restgraph/internal/apierr"
)

// Document is a normalized OAS 3 document plus the facts kin-openapi's
// map-based model loses.
type Document struct {
	T *openapi3.T
	// Format is the name of the adapter that recognized the source.
	Format string
	// PathOrder lists path templates in source order.
	PathOrder []string
	// BaseURL overrides every server declared in the document when set.
	BaseURL string
}

// Title returns info.title, or "" when the document has no info block.
func (d *Document) Title() string {
	if d.T == nil || d.T.Info == nil {
		return ""
	}
	return d.T.Info.Title
}

// Load detects the format of raw and normalizes it. Failures wrap
// apierr.ErrSpecification.
func Load(ctx context.Context, raw []byte) (*Document, error) {
	for _, adapter := range adapters {
		if !adapter.Detect(raw) {
			continue
		}
		doc, err := adapter.Load(ctx, raw)
		if err != nil {
			return nil, apierr.ErrSpecification.Wrap(err)
		}
		return &Document{
			T:         doc,
			Format:    adapter.Name(),
			PathOrder: pathOrder(raw, doc.Paths),
		}, nil
	}
	return nil, apierr.Specification("unrecognized document: expected one of %s", strings.Join(Formats(), ", "))
}

// LoadFile reads and loads the document at path.
func LoadFile(ctx context.Context, path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.ErrSpecification.Wrap(fmt.Errorf("read file: %w", err))
	}
	return Load(ctx, raw)
}

// FromT wraps an already normalized document. Path order falls back to
// lexical order.
func FromT(doc *openapi3.T) *Document {
	return &Document{T: doc, Format: "openapi", PathOrder: pathOrder(nil, doc.Paths)}
}

// pathOrder returns the keys of the source "paths" mapping in document
// order, followed by any normalized path the source did not list.
func pathOrder(raw []byte, paths openapi3.Paths) []string {
	seen := map[string]struct{}{}
	var order []string
	if root, err := parseRoot(raw); err == nil {
		if node := mappingValue(root, "paths"); node != nil && node.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(node.Content); i += 2 {
				key := node.Content[i].Value
				if _, ok := paths[key]; !ok {
					continue
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				order = append(order, key)
			}
		}
	}
	var rest []string
	for key := range paths {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

var errNotMapping = errors.New("document root is not a mapping")

func parseRoot(raw []byte) (*yaml.Node, error) {
	if len(raw) == 0 {
		return nil, errNotMapping
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errNotMapping
	}
	return doc.Content[0], nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
