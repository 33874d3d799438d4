package runtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"restgraph/internal/canonical"
	"restgraph/internal/expression"
)

// RequestOptions are the request parts actually sent.
type RequestOptions struct {
	Method  string
	URL     string
	Headers http.Header
	Query   url.Values
}

// ResolutionContext records one dispatch so that descendant link fields
// can evaluate runtime expressions against it. It is not modified once
// recorded in a Branch.
type ResolutionContext struct {
	// UsedParams holds parameter values keyed by location and original
	// name, as in "path.id".
	UsedParams         map[string]any
	UsedPayload        any
	UsedRequestOptions RequestOptions
	UsedStatusCode     int
	ResponseHeaders    http.Header
	// ResponseBody is the decoded body before shaping.
	ResponseBody any
}

// Exchange exposes the record to the expression evaluator.
func (rc *ResolutionContext) Exchange() *expression.Exchange {
	if rc == nil {
		return &expression.Exchange{}
	}
	pathParams, queryParams := map[string]any{}, map[string]any{}
	for key, v := range rc.UsedParams {
		in, name, _ := strings.Cut(key, ".")
		switch in {
		case canonical.InPath:
			pathParams[name] = v
		case canonical.InQuery:
			queryParams[name] = v
		}
	}
	return &expression.Exchange{
		Method:          rc.UsedRequestOptions.Method,
		URL:             rc.UsedRequestOptions.URL,
		PathParams:      pathParams,
		QueryParams:     queryParams,
		RequestHeaders:  rc.UsedRequestOptions.Headers,
		RequestBody:     rc.UsedPayload,
		StatusCode:      rc.UsedStatusCode,
		ResponseHeaders: rc.ResponseHeaders,
		ResponseBody:    rc.ResponseBody,
	}
}

// Branch is the hidden state handed from a resolved field to its
// children: one ResolutionContext per ancestor field identifier, plus the
// credentials supplied by a viewer. A Branch is never mutated after it is
// returned; every change yields a new Branch.
type Branch struct {
	records  map[string]*ResolutionContext
	security map[string]Credential
}

// NewBranch returns an empty branch.
func NewBranch() *Branch {
	return &Branch{records: map[string]*ResolutionContext{}, security: map[string]Credential{}}
}

// Clone copies the branch. Records are shared since they are immutable.
func (b *Branch) Clone() *Branch {
	out := NewBranch()
	if b == nil {
		return out
	}
	for k, v := range b.records {
		out.records[k] = v
	}
	for k, v := range b.security {
		out.security[k] = v
	}
	return out
}

// Record returns the record of the field with the given identifier.
func (b *Branch) Record(id string) (*ResolutionContext, bool) {
	if b == nil {
		return nil, false
	}
	rc, ok := b.records[id]
	return rc, ok
}

// WithRecord returns a copy of b holding rc under id.
func (b *Branch) WithRecord(id string, rc *ResolutionContext) *Branch {
	out := b.Clone()
	out.records[id] = rc
	return out
}

// Credential returns the credential a viewer supplied for scheme.
func (b *Branch) Credential(scheme string) (Credential, bool) {
	if b == nil {
		return Credential{}, false
	}
	c, ok := b.security[scheme]
	return c, ok
}

// WithCredential returns a copy of b carrying c for scheme.
func (b *Branch) WithCredential(scheme string, c Credential) *Branch {
	out := b.Clone()
	out.security[scheme] = c
	return out
}

// Identifier names a field position independently of list indices:
// users[0].friends and users[3].friends both yield "users.friends".
func Identifier(path ast.Path) string {
	var names []string
	for _, el := range path {
		if name, ok := el.(ast.PathName); ok {
			names = append(names, string(name))
		}
	}
	return strings.Join(names, ".")
}

// ParentIdentifier is the identifier of the field that produced the
// object holding the field at path.
func ParentIdentifier(path ast.Path) string {
	for i := len(path) - 1; i >= 0; i-- {
		if _, ok := path[i].(ast.PathName); ok {
			return Identifier(path[:i])
		}
	}
	return ""
}
