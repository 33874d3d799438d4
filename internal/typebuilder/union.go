package typebuilder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"restgraph/internal/apierr"
	"restgraph/internal/diag"
	"restgraph/internal/naming"
)

type unionMember struct {
	ref    Ref
	name   string // component name, for discriminator lookup
	schema *jsonschema.Schema
	props  []string
}

// unionMatcher picks the member type of a union for a response value.
type unionMatcher struct {
	discriminator *openapi3.Discriminator
	members       []unionMember
}

func (b *Builder) union(s *openapi3.Schema, identity, hint string, input bool) (Ref, error) {
	variants := s.OneOf
	if len(variants) == 0 {
		variants = s.AnyOf
	}
	if len(variants) == 1 {
		return b.build(variants[0], hint, input)
	}

	allObjects := true
	for _, v := range variants {
		if !objectLike(v) {
			allObjects = false
			break
		}
	}
	if !allObjects {
		if shared, ok := sharedScalar(variants); ok {
			return shared, nil
		}
		b.report.Add(diag.WarnTypeUnionFallback, b.operation, "%s mixes object and non-object variants; using %s", hint, JSONScalar)
		return JSON, nil
	}
	if input {
		b.report.Add(diag.WarnTypeInputUnion, b.operation, "input %s is a union; using %s", hint, JSONScalar)
		return JSON, nil
	}

	key := "out:" + identity
	if r, ok := b.memo[key]; ok {
		return r, nil
	}
	node := &TypeNode{
		Kind:        KindUnion,
		Name:        b.typeNames.Claim(key, naming.Sanitize(hint, b.style.Types())),
		Description: s.Description,
	}
	r := b.add(node)
	b.memo[key] = r

	matcher := &unionMatcher{discriminator: s.Discriminator}
	seen := map[Ref]bool{}
	for i, v := range variants {
		memberHint := fmt.Sprintf("%sMember%d", hint, i+1)
		member, err := b.build(v, memberHint, false)
		if err != nil {
			return 0, err
		}
		if b.nodes[member].Kind != KindObject {
			return 0, apierr.Configuration("union %s: variant %d is not an object type", node.Name, i+1)
		}
		if seen[member] {
			continue
		}
		seen[member] = true
		compiled, err := compileVariant(node.Name, i, v)
		if err != nil {
			return 0, apierr.ErrConfiguration.Wrap(fmt.Errorf("union %s: %w", node.Name, err))
		}
		name := ""
		if v.Ref != "" {
			name = refName(v.Ref)
		}
		var props []string
		for _, f := range b.nodes[member].Fields {
			props = append(props, f.Original)
		}
		node.Members = append(node.Members, member)
		matcher.members = append(matcher.members, unionMember{ref: member, name: name, schema: compiled, props: props})
	}
	node.matcher = matcher
	return r, nil
}

// objectLike reports whether a variant translates to an object type.
func objectLike(ref *openapi3.SchemaRef) bool {
	if ref == nil || ref.Value == nil {
		return false
	}
	s := ref.Value
	if len(s.OneOf) > 0 || len(s.AnyOf) > 0 || len(s.Enum) > 0 {
		return false
	}
	if len(s.Properties) > 0 {
		return true
	}
	for _, m := range s.AllOf {
		if objectLike(m) {
			return true
		}
	}
	return false
}

func sharedScalar(variants openapi3.SchemaRefs) (Ref, bool) {
	shared := Ref(-1)
	for _, v := range variants {
		if v == nil || v.Value == nil || len(v.Value.Properties) > 0 || len(v.Value.AllOf) > 0 ||
			len(v.Value.OneOf) > 0 || len(v.Value.AnyOf) > 0 || v.Value.Type == "array" || v.Value.Type == "" {
			return 0, false
		}
		s := scalarFor(v.Value)
		if shared >= 0 && shared != s {
			return 0, false
		}
		shared = s
	}
	return shared, shared >= 0
}

func compileVariant(union string, index int, ref *openapi3.SchemaRef) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(toJSONSchema(ref, map[*openapi3.Schema]bool{}))
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://restgraph.local/unions/%s/%d.json", union, index)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(doc))); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// match selects the member for value: the discriminator when it names a
// member, otherwise the valid member with the most declared properties
// present, ties going to the first declared.
func (m *unionMatcher) match(value any) (Ref, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return 0, apierr.SchemaMismatch("union value is a %T, not an object", value)
	}
	if d := m.discriminator; d != nil && d.PropertyName != "" {
		if tag, ok := obj[d.PropertyName].(string); ok {
			target := tag
			if mapped, ok := d.Mapping[tag]; ok {
				target = refName(mapped)
			}
			for _, mem := range m.members {
				if mem.name != "" && mem.name == target {
					return mem.ref, nil
				}
			}
		}
	}

	best, bestScore := -1, -1
	for i, mem := range m.members {
		if err := mem.schema.Validate(value); err != nil {
			continue
		}
		score := 0
		for _, p := range mem.props {
			if _, ok := obj[p]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return 0, apierr.SchemaMismatch("value matches no member of the union")
	}
	return m.members[best].ref, nil
}
