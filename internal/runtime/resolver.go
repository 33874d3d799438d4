package runtime

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
)

// ResolverFunc resolves one field. The query engine calls it once per
// matching field per execution, possibly concurrently for siblings.
type ResolverFunc func(p ResolveParams) (Resolved, error)

// ResolveParams is what the query engine hands a resolver.
type ResolveParams struct {
	Context context.Context
	// Source is the parent field's resolved data; nil for root fields.
	Source any
	// SourceBranch is the branch the parent resolver returned alongside
	// Source; nil for root fields.
	SourceBranch *Branch
	// Args holds the field arguments keyed by their GraphQL names.
	Args map[string]any
	// Path is the response path of the field being resolved.
	Path ast.Path
	// Caller is the per-request context object supplied by the caller of
	// the query engine. It is used for OAuth token extraction and, when it
	// implements CredentialSource, for credentials.
	Caller any
}

// Resolved is a resolver's output: the value for the field plus the branch
// the engine must pass to the field's children.
type Resolved struct {
	Data   any
	Branch *Branch
}
