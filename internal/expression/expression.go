// Package expression evaluates OAS link runtime expressions such as
// $response.body#/id or "/users/{$request.path.id}".
package expression

import (
	"fmt"
	"net/http"
	"strings"

	oasexpr "github.com/speakeasy-api/openapi/expression"
	"github.com/speakeasy-api/openapi/jsonpointer"

	"restgraph/internal/apierr"
)

// Location is where an expression reads its value from.
type Location int

const (
	RequestPath Location = iota
	RequestQuery
	RequestHeader
	RequestBody
	URL
	Method
	StatusCode
	ResponseHeader
	ResponseBody
)

func (l Location) String() string {
	switch l {
	case RequestPath:
		return "$request.path"
	case RequestQuery:
		return "$request.query"
	case RequestHeader:
		return "$request.header"
	case RequestBody:
		return "$request.body"
	case URL:
		return "$url"
	case Method:
		return "$method"
	case StatusCode:
		return "$statusCode"
	case ResponseHeader:
		return "$response.header"
	case ResponseBody:
		return "$response.body"
	}
	return "unknown"
}

// Exchange is the record of one dispatched request and its response.
type Exchange struct {
	Method          string
	URL             string
	PathParams      map[string]any
	QueryParams     map[string]any
	RequestHeaders  http.Header
	RequestBody     any
	StatusCode      int
	ResponseHeaders http.Header
	// ResponseBody is the decoded response as the backend sent it.
	ResponseBody any
}

// Expression is one parsed runtime expression.
type Expression struct {
	Raw      string
	Location Location
	// Name is the parameter or header name.
	Name    string
	Pointer jsonpointer.JSONPointer
}

// ParseExpression parses a single bare expression beginning with "$".
func ParseExpression(raw string) (*Expression, error) {
	e := oasexpr.Expression(raw)
	if err := e.Validate(); err != nil {
		return nil, apierr.ErrConfiguration.Wrap(fmt.Errorf("invalid runtime expression %q: %w", raw, err))
	}
	typ, reference, parts, pointer := e.GetParts()
	out := &Expression{Raw: raw, Pointer: pointer, Name: strings.Join(parts, ".")}
	switch typ {
	case oasexpr.ExpressionTypeURL:
		out.Location = URL
	case oasexpr.ExpressionTypeMethod:
		out.Location = Method
	case oasexpr.ExpressionTypeStatusCode:
		out.Location = StatusCode
	case oasexpr.ExpressionTypeRequest:
		switch reference {
		case oasexpr.ReferenceTypePath:
			out.Location = RequestPath
		case oasexpr.ReferenceTypeQuery:
			out.Location = RequestQuery
		case oasexpr.ReferenceTypeHeader:
			out.Location = RequestHeader
		case oasexpr.ReferenceTypeBody:
			out.Location = RequestBody
		}
	case oasexpr.ExpressionTypeResponse:
		switch reference {
		case oasexpr.ReferenceTypeHeader:
			out.Location = ResponseHeader
		case oasexpr.ReferenceTypeBody:
			out.Location = ResponseBody
		default:
			return nil, apierr.Configuration("unsupported runtime expression location %q", raw)
		}
	default:
		return nil, apierr.Configuration("unsupported runtime expression location %q", raw)
	}
	return out, nil
}

// Evaluate reads the value of e. Body pointers address the wire
// representation, so keys and enum values are the backend's own. The
// boolean is false when the referenced value is absent.
func (e *Expression) Evaluate(ex *Exchange) (any, bool) {
	if ex == nil {
		ex = &Exchange{}
	}
	switch e.Location {
	case URL:
		return ex.URL, ex.URL != ""
	case Method:
		return ex.Method, ex.Method != ""
	case StatusCode:
		return ex.StatusCode, ex.StatusCode != 0
	case RequestPath:
		v, ok := ex.PathParams[e.Name]
		return v, ok
	case RequestQuery:
		v, ok := ex.QueryParams[e.Name]
		return v, ok
	case RequestHeader:
		return header(ex.RequestHeaders, e.Name)
	case ResponseHeader:
		return header(ex.ResponseHeaders, e.Name)
	case RequestBody:
		return lookup(ex.RequestBody, e.Pointer)
	case ResponseBody:
		return lookup(ex.ResponseBody, e.Pointer)
	}
	return nil, false
}

func header(h http.Header, name string) (any, bool) {
	if h == nil {
		return nil, false
	}
	values := h.Values(name)
	if len(values) == 0 {
		return nil, false
	}
	return values[0], true
}

func lookup(source any, pointer jsonpointer.JSONPointer) (any, bool) {
	if pointer == "" || pointer == "/" {
		return source, source != nil
	}
	target, err := jsonpointer.GetTarget(source, pointer)
	if err != nil || target == nil {
		return nil, false
	}
	return target, true
}
