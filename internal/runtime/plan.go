package runtime

import (
	"restgraph/internal/canonical"
	"restgraph/internal/expression"
	"restgraph/internal/typebuilder"
)

// ArgBinding ties a GraphQL argument to the parameter it fills.
type ArgBinding struct {
	Name  string
	Param canonical.Parameter
	Type  typebuilder.Ref
}

// Plan is everything the runtime needs to serve one operation field.
type Plan struct {
	Op   *canonical.Operation
	Args []ArgBinding
	// PayloadArg is the argument carrying the request body, if any.
	PayloadArg  string
	PayloadType typebuilder.Ref
	// ResponseType is the field's type.
	ResponseType typebuilder.Ref
	// LimitArg is set when the field carries the synthetic limit argument.
	LimitArg bool
	// Schemes are the operation's security alternatives in order.
	Schemes []*canonical.SecurityScheme
}

// LinkPlan supplies target parameters of a link field from the parent's
// exchange. Keys are parameter names, optionally qualified by location
// as in "path.id".
type LinkPlan struct {
	Name   string
	Params map[string]*expression.Template
	// Source is the type of the object the link field hangs off.
	Source typebuilder.Ref
	// Err, when set, fails every call of the link field.
	Err error
}

// LimitArgName is the name of the synthetic pagination argument.
const LimitArgName = "limit"
