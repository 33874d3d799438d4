package preprocess

import (
	"restgraph/internal/naming"
	"restgraph/internal/runtime"
)

// Placement says where an extracted OAuth token is sent.
type Placement string

const (
	PlaceHeader Placement = "header"
	PlaceQuery  Placement = "query"
)

// Options are the translation options.
type Options struct {
	// Naming is camelCase (default) or simple.
	Naming naming.Style
	// AddLimitArgument adds a limit argument to fields returning lists of
	// objects whose operation declares no limit parameter.
	AddLimitArgument bool
	// ProvideErrorExtensions includes method, path, status, headers and
	// body in the extensions of request-failure errors.
	ProvideErrorExtensions bool
	// GenericPayloadArgName names every payload argument "requestBody"
	// instead of after its input type.
	GenericPayloadArgName bool
	// OperationIDFieldNames names query fields after operationIds instead of
	// their response types.
	OperationIDFieldNames bool
	// AllowEmptyRoot omits a root type with no fields instead of failing.
	AllowEmptyRoot bool
	// Viewer moves protected operations under per-scheme viewer fields that
	// take credentials as arguments.
	Viewer bool
	// Headers and QueryString are added to every outbound request.
	Headers     map[string]string
	QueryString map[string]string
	// BaseURL overrides the servers of every document.
	BaseURL string
	// TokenJSONPath extracts an OAuth token from the caller context, e.g.
	// "$.user.token".
	TokenJSONPath  string
	TokenPlacement Placement
	// CustomResolvers replace synthesized resolvers, keyed by document
	// title, path template and upper-case method.
	CustomResolvers map[string]map[string]map[string]runtime.ResolverFunc
}

func (o Options) withDefaults() Options {
	if o.Naming == "" {
		o.Naming = naming.CamelCase
	}
	if o.TokenPlacement == "" {
		o.TokenPlacement = PlaceHeader
	}
	return o
}

// Settings returns the subset of options the dispatch runtime reads.
func (o Options) Settings() runtime.Settings {
	return runtime.Settings{
		Naming:                 o.Naming,
		ProvideErrorExtensions: o.ProvideErrorExtensions,
		Headers:                o.Headers,
		QueryString:            o.QueryString,
		TokenJSONPath:          o.TokenJSONPath,
		TokenInQuery:           o.TokenPlacement == PlaceQuery,
	}
}
