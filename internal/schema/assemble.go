package schema

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"restgraph/internal/apierr"
	"restgraph/internal/canonical"
	"restgraph/internal/diag"
	"restgraph/internal/expression"
	"restgraph/internal/naming"
	"restgraph/internal/preprocess"
	"restgraph/internal/runtime"
	"restgraph/internal/typebuilder"
)

// argDef is one argument of a generated field.
type argDef struct {
	name        string
	description string
	typ         *ast.Type
	def         *ast.Value
}

// fieldDef is a field the assembler adds on top of the type builder's
// output: root fields, link fields and viewer fields.
type fieldDef struct {
	name        string
	description string
	args        []argDef
	typ         *ast.Type
}

// objectDef collects generated fields of one object type. scope keeps
// their names unique, also against fields the type already has.
type objectDef struct {
	name   string
	scope  *naming.Scope
	fields []*fieldDef
}

func (o *objectDef) add(f *fieldDef) {
	o.fields = append(o.fields, f)
}

type assembler struct {
	data   *preprocess.Data
	types  *typebuilder.Builder
	synth  *runtime.Synthesizer
	report *diag.Report
	logger *slog.Logger
	style  naming.Style

	query    *objectDef
	mutation *objectDef
	// extra holds generated fields of builder types, keyed by type.
	extra      map[typebuilder.Ref]*objectDef
	extraOrder []typebuilder.Ref

	plans map[string]*runtime.Plan
	args  map[string][]argDef
	// protected lists, per scheme, the operations moved under a viewer.
	protected map[string][]*canonical.Operation

	resolvers map[string]map[string]runtime.ResolverFunc
}

func newAssembler(data *preprocess.Data, types *typebuilder.Builder, synth *runtime.Synthesizer, report *diag.Report, logger *slog.Logger) *assembler {
	return &assembler{
		data:      data,
		types:     types,
		synth:     synth,
		report:    report,
		logger:    logger,
		style:     data.Options.Naming,
		query:     &objectDef{name: QueryType, scope: naming.NewScope()},
		mutation:  &objectDef{name: MutationType, scope: naming.NewScope()},
		extra:     map[typebuilder.Ref]*objectDef{},
		plans:     map[string]*runtime.Plan{},
		args:      map[string][]argDef{},
		protected: map[string][]*canonical.Operation{},
		resolvers: map[string]map[string]runtime.ResolverFunc{},
	}
}

func (a *assembler) root(op *canonical.Operation) *objectDef {
	if op.Kind == canonical.KindQuery {
		return a.query
	}
	return a.mutation
}

func (a *assembler) setResolver(typeName, fieldName string, fn runtime.ResolverFunc) {
	byField, ok := a.resolvers[typeName]
	if !ok {
		byField = map[string]runtime.ResolverFunc{}
		a.resolvers[typeName] = byField
	}
	byField[fieldName] = fn
}

// resolverFor returns the registered override of op, or a synthesized
// resolver for plan.
func (a *assembler) resolverFor(op *canonical.Operation, plan *runtime.Plan, link *runtime.LinkPlan) runtime.ResolverFunc {
	if fn, ok := a.data.Override(op); ok {
		return fn
	}
	if link != nil {
		return a.synth.LinkResolver(plan, link)
	}
	return a.synth.Resolver(plan)
}

func (a *assembler) addOperation(op *canonical.Operation) error {
	a.types.SetOperation(op.String(), op.Title)
	plan, args, err := a.plan(op, nil)
	if err != nil {
		return err
	}
	a.plans[op.ID] = plan
	a.args[op.ID] = args

	if a.data.Options.Viewer && len(plan.Schemes) > 0 {
		for _, scheme := range plan.Schemes {
			a.protected[scheme.Name] = append(a.protected[scheme.Name], op)
		}
		return nil
	}

	root := a.root(op)
	name := root.scope.Claim(op.ID, a.fieldName(op, plan))
	root.add(a.operationField(name, op, plan, args))
	a.setResolver(root.name, name, a.resolverFor(op, plan, nil))
	a.logger.Debug("added field", "type", root.name, "field", name, "operation", op.ID)
	return nil
}

func (a *assembler) operationField(name string, op *canonical.Operation, plan *runtime.Plan, args []argDef) *fieldDef {
	desc := op.Description
	if desc == "" {
		desc = op.Summary
	}
	if desc == "" {
		desc = fmt.Sprintf("Equivalent to %s", op.String())
	}
	return &fieldDef{
		name:        name,
		description: desc,
		args:        args,
		typ:         a.types.GraphQLType(plan.ResponseType, false),
	}
}

// fieldName names a root or viewer field: operationIds for mutations,
// the response type for queries, pluralized when it is a list.
func (a *assembler) fieldName(op *canonical.Operation, plan *runtime.Plan) string {
	fields := a.style.Fields()
	if op.Kind != canonical.KindQuery || a.data.Options.OperationIDFieldNames {
		return naming.Sanitize(op.OperationID, fields)
	}
	node := a.types.Node(plan.ResponseType)
	switch node.Kind {
	case typebuilder.KindList:
		elem := a.types.Node(node.Elem)
		if elem.Kind != typebuilder.KindScalar {
			return naming.Pluralize(naming.Sanitize(elem.Name, fields))
		}
		return naming.Pluralize(a.resourceName(op))
	case typebuilder.KindScalar:
		return a.resourceName(op)
	}
	return naming.Sanitize(node.Name, fields)
}

func (a *assembler) resourceName(op *canonical.Operation) string {
	if name := naming.InferResourceName(op.Path); name != "" {
		return naming.Sanitize(name, a.style.Fields())
	}
	return naming.Sanitize(op.OperationID, a.style.Fields())
}

// plan types the response, arguments and payload of op. Parameters in
// linked are supplied by a link and get no argument.
func (a *assembler) plan(op *canonical.Operation, linked map[string]bool) (*runtime.Plan, []argDef, error) {
	plan := &runtime.Plan{Op: op}
	resp, err := a.responseType(op)
	if err != nil {
		return nil, nil, apierr.ErrConfiguration.Wrap(fmt.Errorf("%s: %w", op.String(), err))
	}
	plan.ResponseType = resp

	fields := a.style.Fields()
	scope := naming.NewScope()
	var args []argDef
	hasLimit := false
	for _, param := range op.Parameters {
		if strings.EqualFold(param.Name, runtime.LimitArgName) {
			hasLimit = true
		}
		key := param.In + "." + param.Name
		if linked[key] {
			continue
		}
		typ := typebuilder.String
		if param.Schema != nil && param.Schema.Value != nil {
			typ, err = a.types.Input(param.Schema, op.OperationID+" "+param.Name)
			if err != nil {
				return nil, nil, apierr.ErrConfiguration.Wrap(fmt.Errorf("%s: parameter %q: %w", op.String(), param.Name, err))
			}
		}
		name := scope.Claim(key, naming.Sanitize(param.Name, fields))
		plan.Args = append(plan.Args, runtime.ArgBinding{Name: name, Param: param, Type: typ})
		args = append(args, argDef{
			name:        name,
			description: param.Description,
			typ:         a.types.GraphQLType(typ, param.Required && param.Default == nil),
			def:         a.defaultValue(typ, param.Default),
		})
	}

	if body := op.RequestBody; body != nil {
		typ := typebuilder.String
		switch {
		case !isStructured(body.ContentType):
		case body.Schema == nil || body.Schema.Value == nil:
			typ = typebuilder.JSON
		default:
			typ, err = a.types.Input(body.Schema, op.OperationID+" body")
			if err != nil {
				return nil, nil, apierr.ErrConfiguration.Wrap(fmt.Errorf("%s: request body: %w", op.String(), err))
			}
		}
		candidate := "requestBody"
		if node := a.types.Node(typ); !a.data.Options.GenericPayloadArgName && node.Kind == typebuilder.KindInputObject {
			candidate = naming.Sanitize(node.Name, fields)
		}
		plan.PayloadArg = scope.Claim("body", candidate)
		plan.PayloadType = typ
		args = append(args, argDef{
			name:        plan.PayloadArg,
			description: body.Description,
			typ:         a.types.GraphQLType(typ, body.Required),
		})
	}

	if a.data.Options.AddLimitArgument && !hasLimit && a.types.IsObjectList(resp) && !scope.Taken(runtime.LimitArgName) {
		scope.Claim(runtime.LimitArgName, runtime.LimitArgName)
		plan.LimitArg = true
		args = append(args, argDef{
			name:        runtime.LimitArgName,
			description: "Return at most this many elements of the list.",
			typ:         ast.NamedType("Int", nil),
		})
	}

	for _, name := range op.Security {
		if scheme, ok := a.data.Schemes[name]; ok {
			plan.Schemes = append(plan.Schemes, scheme)
		}
	}
	return plan, args, nil
}

func (a *assembler) responseType(op *canonical.Operation) (typebuilder.Ref, error) {
	r := op.Response
	switch {
	case r == nil || r.ContentType == "":
		return typebuilder.String, nil
	case !isStructured(r.ContentType):
		return typebuilder.String, nil
	case r.Schema == nil || r.Schema.Value == nil:
		return typebuilder.JSON, nil
	}
	return a.types.Output(r.Schema, op.OperationID)
}

func isStructured(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.Contains(mt, "json") || strings.Contains(mt, "x-www-form-urlencoded")
}

// extraFor returns the generated-field collection of a builder type.
func (a *assembler) extraFor(r typebuilder.Ref) *objectDef {
	if o, ok := a.extra[r]; ok {
		return o
	}
	node := a.types.Node(r)
	reserved := make([]string, 0, len(node.Fields))
	for _, f := range node.Fields {
		reserved = append(reserved, f.Name)
	}
	o := &objectDef{name: node.Name, scope: naming.NewScope(reserved...)}
	a.extra[r] = o
	a.extraOrder = append(a.extraOrder, r)
	return o
}

// addLinks adds one field per resolvable link to the response type of
// the link's source operation.
func (a *assembler) addLinks() error {
	for _, op := range a.data.Operations {
		if len(op.Links) == 0 {
			continue
		}
		plan := a.plans[op.ID]
		if a.types.Node(plan.ResponseType).Kind != typebuilder.KindObject {
			a.report.Add(diag.WarnLinkNotObject, op.String(), "response is not an object; %d link(s) ignored", len(op.Links))
			continue
		}
		for _, link := range op.Links {
			if err := a.addLink(op, plan.ResponseType, link); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *assembler) addLink(op *canonical.Operation, source typebuilder.Ref, link canonical.Link) error {
	target, ok := a.data.Operation(link.TargetID)
	if !ok {
		return nil
	}
	if target.Kind != canonical.KindQuery {
		a.report.Add(diag.WarnLinkUnresolved, op.String(), "link %q targets mutation-like operation %s; ignored", link.Name, target.String())
		return nil
	}

	names := make([]string, 0, len(link.Parameters))
	for name := range link.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	linked := map[string]bool{}
	params := map[string]*expression.Template{}
	var linkErr error
	for _, name := range names {
		param, ok := targetParam(target, name)
		if !ok {
			a.report.Add(diag.WarnLinkExpression, op.String(), "link %q: %s has no parameter %q", link.Name, target.String(), name)
			continue
		}
		linked[param.In+"."+param.Name] = true
		tmpl, err := expression.Compile(link.Parameters[name])
		if err != nil {
			a.report.Add(diag.WarnLinkExpression, op.String(), "link %q: parameter %q: %v; the field will fail when queried", link.Name, name, err)
			if linkErr == nil {
				linkErr = apierr.Configuration("link %q: parameter %q: %v", link.Name, name, err)
			}
			continue
		}
		params[name] = tmpl
	}

	a.types.SetOperation(target.String(), target.Title)
	plan, args, err := a.plan(target, linked)
	if err != nil {
		return err
	}
	obj := a.extraFor(source)
	name := obj.scope.Claim(op.ID+"#"+link.Name, naming.Sanitize(link.Name, a.style.Fields()))
	desc := link.Description
	if desc == "" {
		desc = fmt.Sprintf("Link to %s", target.String())
	}
	obj.add(&fieldDef{
		name:        name,
		description: desc,
		args:        args,
		typ:         a.types.GraphQLType(plan.ResponseType, false),
	})
	a.setResolver(obj.name, name, a.resolverFor(target, plan, &runtime.LinkPlan{Name: link.Name, Params: params, Source: source, Err: linkErr}))
	return nil
}

// targetParam finds the parameter a link fills, by name or "in.name".
func targetParam(op *canonical.Operation, name string) (canonical.Parameter, bool) {
	in := ""
	if loc, rest, ok := strings.Cut(name, "."); ok {
		switch loc {
		case canonical.InPath, canonical.InQuery, canonical.InHeader, canonical.InCookie:
			in, name = loc, rest
		}
	}
	for _, p := range op.Parameters {
		if p.Name == name && (in == "" || p.In == in) {
			return p, true
		}
	}
	return canonical.Parameter{}, false
}

// addViewers adds, per security scheme guarding at least one operation, a
// viewer field that takes the scheme's credentials and returns an object
// holding the guarded operations.
func (a *assembler) addViewers() {
	if !a.data.Options.Viewer {
		return
	}
	for _, name := range a.data.SchemeOrder {
		ops := a.protected[name]
		if len(ops) == 0 {
			continue
		}
		scheme := a.data.Schemes[name]
		var queries, mutations []*canonical.Operation
		for _, op := range ops {
			if op.Kind == canonical.KindQuery {
				queries = append(queries, op)
			} else {
				mutations = append(mutations, op)
			}
		}
		a.addViewer(a.query, "viewer", scheme, queries)
		a.addViewer(a.mutation, "mutationViewer", scheme, mutations)
	}
}

func (a *assembler) addViewer(root *objectDef, prefix string, scheme *canonical.SecurityScheme, ops []*canonical.Operation) {
	if len(ops) == 0 {
		return
	}
	desc := scheme.Description
	if desc == "" {
		desc = fmt.Sprintf("Operations protected by the %s security scheme", scheme.Name)
	}
	ref := a.types.NewObject(prefix+":"+scheme.Name, naming.Capitalize(prefix)+" "+scheme.Name, desc)
	obj := a.extraFor(ref)
	for _, op := range ops {
		plan := a.plans[op.ID]
		name := obj.scope.Claim(op.ID, a.fieldName(op, plan))
		obj.add(a.operationField(name, op, plan, a.args[op.ID]))
		a.setResolver(obj.name, name, a.resolverFor(op, plan, nil))
	}

	name := root.scope.Claim(prefix+":"+scheme.Name, naming.Sanitize(prefix+" "+scheme.Name, a.style.Fields()))
	root.add(&fieldDef{
		name:        name,
		description: desc,
		args:        credentialArgs(scheme),
		typ:         ast.NamedType(obj.name, nil),
	})
	a.setResolver(root.name, name, viewerResolver(scheme))
}

func credentialArgs(scheme *canonical.SecurityScheme) []argDef {
	required := func(name string) argDef {
		return argDef{name: name, typ: ast.NonNullNamedType("String", nil)}
	}
	switch scheme.Kind {
	case canonical.SchemeAPIKey:
		return []argDef{required("apiKey")}
	case canonical.SchemeBasic:
		return []argDef{required("username"), required("password")}
	}
	return []argDef{required("token")}
}

// viewerResolver puts the viewer's credential arguments on the branch its
// children resolve in.
func viewerResolver(scheme *canonical.SecurityScheme) runtime.ResolverFunc {
	return func(p runtime.ResolveParams) (runtime.Resolved, error) {
		arg := func(name string) string {
			s, _ := p.Args[name].(string)
			return s
		}
		var cred runtime.Credential
		switch scheme.Kind {
		case canonical.SchemeAPIKey:
			cred.APIKey = arg("apiKey")
		case canonical.SchemeBasic:
			cred.Username, cred.Password = arg("username"), arg("password")
		default:
			cred.Token = arg("token")
		}
		return runtime.Resolved{
			Data:   map[string]any{},
			Branch: p.SourceBranch.WithCredential(scheme.Name, cred),
		}, nil
	}
}

// checkRoots fails when a root type has no fields, unless empty roots are
// allowed, in which case the root is omitted.
func (a *assembler) checkRoots() error {
	if a.data.Options.AllowEmptyRoot {
		return nil
	}
	if len(a.query.fields) == 0 {
		return apierr.Configuration("the %s type has no fields: the documents declare no query-like operations", QueryType)
	}
	if len(a.mutation.fields) == 0 {
		return apierr.Configuration("the %s type has no fields: the documents declare no mutation-like operations", MutationType)
	}
	return nil
}
