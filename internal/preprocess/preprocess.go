// Package preprocess walks normalized OAS documents once and produces the
// immutable operation snapshot the rest of the translation reads.
package preprocess

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"restgraph/internal/apierr"
	"restgraph/internal/canonical"
	"restgraph/internal/diag"
	"restgraph/internal/logging"
	"restgraph/internal/naming"
	"restgraph/internal/runtime"
	"restgraph/internal/spec"
)

// verbs is the fixed order in which the methods of one path are visited.
var verbs = []string{"GET", "PUT", "POST", "PATCH", "DELETE", "OPTIONS", "HEAD", "TRACE"}

// Data is the result of preprocessing. It is never mutated after
// Preprocess returns, except for Names, which the type builder fills and
// freezes before the schema is handed out.
type Data struct {
	Options    Options
	Operations []*canonical.Operation
	// Schemes holds declared, supported security schemes by name;
	// SchemeOrder lists their names in declaration order.
	Schemes     map[string]*canonical.SecurityScheme
	SchemeOrder []string
	Names       *naming.SaneNameMap
	Documents   []*spec.Document

	byID map[string]*canonical.Operation
}

// Operation returns the operation with the given ID.
func (d *Data) Operation(id string) (*canonical.Operation, bool) {
	op, ok := d.byID[id]
	return op, ok
}

// Override returns the custom resolver registered for op, if any.
func (d *Data) Override(op *canonical.Operation) (runtime.ResolverFunc, bool) {
	byPath, ok := d.Options.CustomResolvers[op.Title]
	if !ok {
		return nil, false
	}
	byMethod, ok := byPath[op.Path]
	if !ok {
		return nil, false
	}
	for method, fn := range byMethod {
		if strings.EqualFold(method, op.Method) && fn != nil {
			return fn, true
		}
	}
	return nil, false
}

// Preprocess builds Data from docs. It fails with a configuration error
// when the documents declare no operations.
func Preprocess(opts Options, report *diag.Report, logger *slog.Logger, docs ...*spec.Document) (*Data, error) {
	logger = logging.Component(logger, "preprocess")
	opts = opts.withDefaults()
	data := &Data{
		Options:   opts,
		Schemes:   map[string]*canonical.SecurityScheme{},
		Names:     naming.NewSaneNameMap(),
		Documents: docs,
		byID:      map[string]*canonical.Operation{},
	}

	for _, doc := range docs {
		if doc == nil || doc.T == nil {
			continue
		}
		p := &docPass{
			data:   data,
			doc:    doc,
			report: report,
			logger: logger,
			byOpID: map[string]*canonical.Operation{},
			byRef:  map[string]*canonical.Operation{},
		}
		p.collectSchemes()
		p.collectOperations()
		p.resolveLinks()
	}

	if len(data.Operations) == 0 {
		return nil, apierr.ErrConfiguration.Wrap(apierr.Specification("the document declares no operations"))
	}
	logger.Debug("preprocessed documents", "documents", len(docs), "operations", len(data.Operations), "security_schemes", len(data.SchemeOrder))
	return data, nil
}

type docPass struct {
	data   *Data
	doc    *spec.Document
	report *diag.Report
	logger *slog.Logger
	byOpID map[string]*canonical.Operation
	// byRef indexes operations by "path method" for operationRef links.
	byRef map[string]*canonical.Operation
	// pending pairs each operation with the links of its success response.
	pending []pendingLinks
}

type pendingLinks struct {
	op    *canonical.Operation
	links openapi3.Links
}

func (p *docPass) collectSchemes() {
	if p.doc.T.Components == nil {
		return
	}
	names := make([]string, 0, len(p.doc.T.Components.SecuritySchemes))
	for name := range p.doc.T.Components.SecuritySchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ref := p.doc.T.Components.SecuritySchemes[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		if _, dup := p.data.Schemes[name]; dup {
			continue
		}
		s := ref.Value
		scheme := &canonical.SecurityScheme{
			Name:        name,
			Title:       p.doc.Title(),
			Description: s.Description,
		}
		switch {
		case s.Type == "apiKey":
			scheme.Kind = canonical.SchemeAPIKey
			scheme.In = s.In
			scheme.ParamName = s.Name
		case s.Type == "http" && strings.EqualFold(s.Scheme, "basic"):
			scheme.Kind = canonical.SchemeBasic
		case s.Type == "oauth2":
			scheme.Kind = canonical.SchemeOAuth2
		case s.Type == "openIdConnect":
			scheme.Kind = canonical.SchemeOpenIDConnect
		default:
			p.report.Add(diag.WarnSecurityUnsupported, "", "security scheme %q of type %s/%s is not supported", name, s.Type, s.Scheme)
			continue
		}
		p.data.Schemes[name] = scheme
		p.data.SchemeOrder = append(p.data.SchemeOrder, name)
	}
}

func (p *docPass) collectOperations() {
	for _, path := range p.doc.PathOrder {
		item := p.doc.T.Paths.Find(path)
		if item == nil {
			continue
		}
		for _, method := range verbs {
			op := operationFor(item, method)
			if op == nil {
				continue
			}
			operation := p.buildOperation(path, method, item, op)
			if _, dup := p.data.byID[operation.ID]; dup {
				p.report.Add(diag.WarnOperationSkipped, operation.String(), "duplicate operation in document %q", operation.Title)
				continue
			}
			p.data.Operations = append(p.data.Operations, operation)
			p.data.byID[operation.ID] = operation
			p.byRef[path+" "+method] = operation
			if operation.Declared {
				p.byOpID[operation.OperationID] = operation
			}
			p.logger.Debug("collected operation", "operation", operation.ID, "kind", operation.Kind)
		}
	}
}

func operationFor(item *openapi3.PathItem, method string) *openapi3.Operation {
	switch method {
	case "GET":
		return item.Get
	case "PUT":
		return item.Put
	case "POST":
		return item.Post
	case "PATCH":
		return item.Patch
	case "DELETE":
		return item.Delete
	case "OPTIONS":
		return item.Options
	case "HEAD":
		return item.Head
	case "TRACE":
		return item.Trace
	}
	return nil
}

func (p *docPass) buildOperation(path, method string, item *openapi3.PathItem, op *openapi3.Operation) *canonical.Operation {
	title := p.doc.Title()
	id := method + " " + path
	if title != "" {
		id = title + ": " + id
	}
	operation := &canonical.Operation{
		ID:          id,
		OperationID: op.OperationID,
		Declared:    op.OperationID != "",
		Title:       title,
		Method:      method,
		Path:        path,
		Summary:     strings.TrimSpace(op.Summary),
		Description: strings.TrimSpace(op.Description),
		Kind:        canonical.KindMutation,
	}
	if method == "GET" {
		operation.Kind = canonical.KindQuery
	}
	if !operation.Declared {
		operation.OperationID = normalizeOperationID(method, path)
	}
	operation.BaseURL = p.baseURL(item, op)
	operation.Parameters = p.parameters(operation, item.Parameters, op.Parameters)
	operation.RequestBody = p.requestBody(operation, op.RequestBody)

	var links openapi3.Links
	operation.Response, links = p.response(operation, op.Responses)
	if len(links) > 0 {
		p.pending = append(p.pending, pendingLinks{op: operation, links: links})
	}
	operation.Security = p.security(operation, op.Security)
	if len(op.Callbacks) > 0 {
		p.report.Add(diag.WarnOperationCallbacks, operation.String(), "callbacks are not translated")
	}
	return operation
}

// normalizeOperationID infers an identifier from method and path:
// GET /users/{id} -> get_users_id.
func normalizeOperationID(method, path string) string {
	clean := strings.ToLower(method + "_" + path)
	clean = strings.NewReplacer("/", "_", "{", "", "}", "", "-", "_", ".", "_").Replace(clean)
	for strings.Contains(clean, "__") {
		clean = strings.ReplaceAll(clean, "__", "_")
	}
	return strings.Trim(clean, "_")
}

func (p *docPass) baseURL(item *openapi3.PathItem, op *openapi3.Operation) string {
	if p.doc.BaseURL != "" {
		return strings.TrimRight(p.doc.BaseURL, "/")
	}
	if p.data.Options.BaseURL != "" {
		return strings.TrimRight(p.data.Options.BaseURL, "/")
	}
	var servers openapi3.Servers
	switch {
	case op.Servers != nil && len(*op.Servers) > 0:
		servers = *op.Servers
	case len(item.Servers) > 0:
		servers = item.Servers
	default:
		servers = p.doc.T.Servers
	}
	if len(servers) == 0 || servers[0] == nil {
		return ""
	}
	return strings.TrimRight(expandServer(servers[0]), "/")
}

// expandServer substitutes server variables with their defaults.
func expandServer(s *openapi3.Server) string {
	out := s.URL
	for name, v := range s.Variables {
		if v == nil {
			continue
		}
		out = strings.ReplaceAll(out, "{"+name+"}", v.Default)
	}
	return out
}

func (p *docPass) parameters(op *canonical.Operation, pathParams, opParams openapi3.Parameters) []canonical.Parameter {
	type key struct{ name, in string }
	var order []key
	merged := map[key]*openapi3.Parameter{}
	for _, list := range []openapi3.Parameters{pathParams, opParams} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			k := key{ref.Value.Name, ref.Value.In}
			if _, ok := merged[k]; !ok {
				order = append(order, k)
			}
			merged[k] = ref.Value
		}
	}

	params := make([]canonical.Parameter, 0, len(order))
	for _, k := range order {
		v := merged[k]
		switch v.In {
		case canonical.InPath, canonical.InQuery, canonical.InHeader, canonical.InCookie:
		default:
			p.report.Add(diag.WarnParameterLocation, op.String(), "parameter %q in %q is not supported", v.Name, v.In)
			continue
		}
		schema := v.Schema
		if schema == nil && v.Content != nil {
			if mt := preferredMedia(v.Content); mt != "" {
				schema = v.Content[mt].Schema
			}
		}
		if schema == nil || schema.Value == nil {
			p.report.Add(diag.WarnParameterSchema, op.String(), "parameter %q has no schema, typed as String", v.Name)
		}
		param := canonical.Parameter{
			Name:        v.Name,
			In:          v.In,
			Description: v.Description,
			Required:    v.Required || v.In == canonical.InPath,
			Schema:      schema,
		}
		if schema != nil && schema.Value != nil {
			param.Default = schema.Value.Default
		}
		params = append(params, param)
	}
	return params
}

// preferredMedia picks the media type to translate: JSON first, then form
// data, then the first declared in lexical order.
func preferredMedia(content openapi3.Content) string {
	if len(content) == 0 {
		return ""
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, "application/json") {
			return k
		}
	}
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), "json") {
			return k
		}
	}
	for _, k := range keys {
		if strings.EqualFold(k, "application/x-www-form-urlencoded") {
			return k
		}
	}
	return keys[0]
}

func isStructuredMedia(mt string) bool {
	mt = strings.ToLower(mt)
	return strings.Contains(mt, "json") || mt == "application/x-www-form-urlencoded"
}

func (p *docPass) requestBody(op *canonical.Operation, ref *openapi3.RequestBodyRef) *canonical.RequestBody {
	if ref == nil || ref.Value == nil {
		return nil
	}
	mt := preferredMedia(ref.Value.Content)
	if mt == "" {
		return nil
	}
	if !isStructuredMedia(mt) {
		p.report.Add(diag.WarnTypeContent, op.String(), "request body media type %q is sent as a raw string", mt)
	}
	return &canonical.RequestBody{
		Required:    ref.Value.Required,
		ContentType: mt,
		Description: ref.Value.Description,
		Schema:      ref.Value.Content[mt].Schema,
	}
}

func (p *docPass) response(op *canonical.Operation, responses openapi3.Responses) (*canonical.Response, openapi3.Links) {
	if len(responses) == 0 {
		return nil, nil
	}
	code := ""
	best := 0
	for key := range responses {
		if len(key) != 3 || key[0] != '2' {
			continue
		}
		n, err := strconv.Atoi(key)
		if err != nil {
			n = 299
		}
		if code == "" || n < best {
			code, best = key, n
		}
	}
	if code == "" {
		if _, ok := responses["default"]; !ok {
			return nil, nil
		}
		code = "default"
	}
	ref := responses[code]
	if ref == nil || ref.Value == nil {
		return nil, nil
	}
	resp := &canonical.Response{StatusCode: code}
	if ref.Value.Description != nil {
		resp.Description = *ref.Value.Description
	}
	if mt := preferredMedia(ref.Value.Content); mt != "" {
		resp.ContentType = mt
		resp.Schema = ref.Value.Content[mt].Schema
		if !isStructuredMedia(mt) {
			p.report.Add(diag.WarnTypeContent, op.String(), "response media type %q is returned as a String", mt)
		}
	}
	return resp, ref.Value.Links
}

func (p *docPass) security(op *canonical.Operation, declared *openapi3.SecurityRequirements) []string {
	reqs := p.doc.T.Security
	if declared != nil {
		reqs = *declared
	}
	var out []string
	seen := map[string]struct{}{}
	for _, req := range reqs {
		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			if _, ok := p.data.Schemes[name]; !ok {
				if !p.declaresScheme(name) {
					p.report.Add(diag.WarnSecurityUndeclared, op.String(), "security requirement names undeclared scheme %q", name)
				}
				continue
			}
			out = append(out, name)
		}
	}
	return out
}

// declaresScheme reports whether the document declares name, supported or not.
func (p *docPass) declaresScheme(name string) bool {
	if p.doc.T.Components == nil {
		return false
	}
	_, ok := p.doc.T.Components.SecuritySchemes[name]
	return ok
}

func (p *docPass) resolveLinks() {
	for _, pending := range p.pending {
		names := make([]string, 0, len(pending.links))
		for name := range pending.links {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ref := pending.links[name]
			if ref == nil || ref.Value == nil {
				continue
			}
			target, err := p.linkTarget(ref.Value)
			if err != nil {
				p.report.Add(diag.WarnLinkUnresolved, pending.op.String(), "link %q: %v", name, err)
				continue
			}
			params := make(map[string]any, len(ref.Value.Parameters))
			for k, v := range ref.Value.Parameters {
				params[k] = v
			}
			pending.op.Links = append(pending.op.Links, canonical.Link{
				Name:        name,
				Description: ref.Value.Description,
				TargetID:    target.ID,
				Parameters:  params,
			})
		}
	}
	p.pending = nil
}

func (p *docPass) linkTarget(link *openapi3.Link) (*canonical.Operation, error) {
	if link.OperationID != "" {
		if op, ok := p.byOpID[link.OperationID]; ok {
			return op, nil
		}
		return nil, fmt.Errorf("no operation with operationId %q", link.OperationID)
	}
	if link.OperationRef == "" {
		return nil, fmt.Errorf("neither operationId nor operationRef is set")
	}
	path, method, err := parseOperationRef(link.OperationRef)
	if err != nil {
		return nil, err
	}
	if op, ok := p.byRef[path+" "+method]; ok {
		return op, nil
	}
	return nil, fmt.Errorf("operationRef %q matches no operation", link.OperationRef)
}

// parseOperationRef decodes a local reference such as
// "#/paths/~1users~1{id}/get".
func parseOperationRef(ref string) (string, string, error) {
	const prefix = "#/paths/"
	if !strings.HasPrefix(ref, prefix) {
		return "", "", fmt.Errorf("operationRef %q is not a local path reference", ref)
	}
	rest := strings.TrimPrefix(ref, prefix)
	idx := strings.LastIndex(rest, "/")
	if idx <= 0 {
		return "", "", fmt.Errorf("operationRef %q has no method", ref)
	}
	rawPath, err := url.PathUnescape(rest[:idx])
	if err != nil {
		return "", "", fmt.Errorf("operationRef %q: %w", ref, err)
	}
	path := strings.NewReplacer("~1", "/", "~0", "~").Replace(rawPath)
	return path, strings.ToUpper(rest[idx+1:]), nil
}
