// Package canonical holds the immutable operation model shared by the
// translation pass and the dispatch runtime.
package canonical

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Kind says which root type an operation is attached to.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InHeader = "header"
	InCookie = "cookie"
)

// Operation is one method + path of one source document.
type Operation struct {
	// ID is unique across all documents of a translation, e.g.
	// "Petstore: GET /pets/{petId}".
	ID string
	// OperationID is the declared operationId, or one inferred from method and path.
	OperationID string
	// Declared reports whether OperationID came from the document.
	Declared    bool
	Title       string
	Method      string // upper case
	Path        string
	BaseURL     string
	Summary     string
	Description string
	Kind        Kind
	Parameters  []Parameter
	RequestBody *RequestBody
	// Response is the success response used to type the field: the lowest
	// declared 2xx, else "default". Nil when none declares content.
	Response *Response
	// Security lists alternative scheme names; any one satisfies the operation.
	Security []string
	Links    []Link
}

// String returns "METHOD path".
func (op *Operation) String() string {
	return op.Method + " " + op.Path
}

// Parameter describes one operation parameter.
type Parameter struct {
	Name        string
	In          string
	Description string
	Required    bool
	Schema      *openapi3.SchemaRef
	Default     any
}

// RequestBody describes the payload of an operation.
type RequestBody struct {
	Required    bool
	ContentType string
	Description string
	Schema      *openapi3.SchemaRef
}

// Response describes the success response of an operation.
type Response struct {
	StatusCode  string
	ContentType string
	Description string
	Schema      *openapi3.SchemaRef
}

// Link declares that this operation's response feeds another operation.
type Link struct {
	Name        string
	Description string
	// TargetID is the ID of the linked operation.
	TargetID string
	// Parameters maps target parameter names to literal values or runtime
	// expressions.
	Parameters map[string]any
}

// SchemeKind is the kind of a security scheme.
type SchemeKind string

const (
	SchemeAPIKey        SchemeKind = "apiKey"
	SchemeBasic         SchemeKind = "http-basic"
	SchemeOAuth2        SchemeKind = "oauth2"
	SchemeOpenIDConnect SchemeKind = "openIdConnect"
)

// SecurityScheme is a declared, supported security scheme.
type SecurityScheme struct {
	Name        string
	Title       string
	Kind        SchemeKind
	Description string
	// In and ParamName place an apiKey: header, query or cookie.
	In        string
	ParamName string
}
