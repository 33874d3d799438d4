package runtime

import "restgraph/internal/naming"

// Settings are the translation options the dispatch runtime reads.
type Settings struct {
	Naming                 naming.Style
	ProvideErrorExtensions bool
	// Headers and QueryString are added to every request.
	Headers     map[string]string
	QueryString map[string]string
	// TokenJSONPath locates an OAuth token in the caller context.
	TokenJSONPath string
	// TokenInQuery places the token in the query string as access_token
	// instead of the Authorization header.
	TokenInQuery bool
}
