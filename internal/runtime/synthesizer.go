package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"

	"restgraph/internal/apierr"
	"restgraph/internal/canonical"
	"restgraph/internal/logging"
	"restgraph/internal/redact"
	"restgraph/internal/typebuilder"
)

// Synthesizer builds resolver functions. It holds only immutable
// translation state, so the resolvers it returns are safe to call
// concurrently.
type Synthesizer struct {
	Settings  Settings
	Types     *typebuilder.Builder
	Transport Transport
	// Observer, when set, receives one event per dispatch.
	Observer Observer
	// Redactor scrubs static secrets; per-call credentials are added to it.
	Redactor *redact.Redactor
	Logger   *slog.Logger
}

// NewSynthesizer returns a synthesizer. A nil transport means HTTP with no
// timeout.
func NewSynthesizer(settings Settings, types *typebuilder.Builder, transport Transport, logger *slog.Logger) *Synthesizer {
	if transport == nil {
		transport = NewHTTPTransport(0)
	}
	var static []string
	for _, v := range settings.Headers {
		static = append(static, v)
	}
	return &Synthesizer{
		Settings:  settings,
		Types:     types,
		Transport: transport,
		Redactor:  redact.New(static...),
		Logger:    logging.Component(logger, "runtime"),
	}
}

// Resolver returns the resolver of an operation field.
func (s *Synthesizer) Resolver(plan *Plan) ResolverFunc {
	return func(p ResolveParams) (Resolved, error) {
		return s.resolve(p, plan, nil)
	}
}

// LinkResolver returns the resolver of a link field whose target is plan.
func (s *Synthesizer) LinkResolver(plan *Plan, link *LinkPlan) ResolverFunc {
	return func(p ResolveParams) (Resolved, error) {
		return s.resolve(p, plan, link)
	}
}

// outgoing collects the request while it is being built.
type outgoing struct {
	header  http.Header
	query   url.Values
	cookies []string
}

func (s *Synthesizer) resolve(p ResolveParams, plan *Plan, link *LinkPlan) (Resolved, error) {
	ctx := p.Context
	if ctx == nil {
		ctx = context.Background()
	}
	op := plan.Op
	logger := s.Logger.With("operation", op.ID)

	values, err := s.linkValues(p, plan, link, logger)
	if err != nil {
		return Resolved{}, apierr.Field(p.Path, err)
	}
	for _, arg := range plan.Args {
		if v, ok := p.Args[arg.Name]; ok && v != nil {
			values[paramKey(arg.Param)] = s.Types.Desanitize(arg.Type, v)
		}
	}
	for _, param := range op.Parameters {
		if _, ok := values[paramKey(param)]; !ok && param.Default != nil {
			values[paramKey(param)] = param.Default
		}
	}

	limit := -1
	if plan.LimitArg {
		if v, ok := p.Args[LimitArgName]; ok && v != nil {
			n, ok := toInt(v)
			if !ok || n < 0 {
				return Resolved{}, apierr.Field(p.Path, apierr.Validation("%s must be a non-negative integer, got %v", LimitArgName, v))
			}
			limit = n
		}
	}

	req := &outgoing{header: http.Header{}, query: url.Values{}}
	for name, v := range s.Settings.Headers {
		req.header.Set(name, v)
	}
	for name, v := range s.Settings.QueryString {
		req.query.Set(name, v)
	}

	used := map[string]any{}
	pathValues := map[string]any{}
	for _, param := range op.Parameters {
		v, ok := values[paramKey(param)]
		if !ok {
			continue
		}
		used[paramKey(param)] = v
		switch param.In {
		case canonical.InPath:
			pathValues[param.Name] = v
		case canonical.InQuery:
			addQueryParam(req.query, param.Name, v)
		case canonical.InHeader:
			req.header.Set(param.Name, valueToString(v))
		case canonical.InCookie:
			req.cookies = append(req.cookies, param.Name+"="+valueToString(v))
		}
	}
	path, err := fillPath(op.Path, pathValues)
	if err != nil {
		return Resolved{}, apierr.Field(p.Path, err)
	}

	payload, body, err := s.payload(p, plan)
	if err != nil {
		return Resolved{}, apierr.Field(p.Path, err)
	}

	secrets, err := s.authenticate(p, plan, req)
	if err != nil {
		return Resolved{}, apierr.Field(p.Path, err)
	}
	redactor := s.Redactor.With(secrets...)

	if len(req.cookies) > 0 {
		req.header.Set("Cookie", strings.Join(req.cookies, "; "))
	}
	if op.Method != http.MethodGet {
		contentType := "application/json"
		if op.RequestBody != nil && op.RequestBody.ContentType != "" {
			contentType = op.RequestBody.ContentType
		}
		req.header.Set("Content-Type", contentType)
	}
	accept := "application/json"
	if op.Response != nil && op.Response.ContentType != "" {
		accept = op.Response.ContentType
	}
	req.header.Set("Accept", accept)

	target := strings.TrimRight(op.BaseURL, "/") + path
	if encoded := req.query.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + encoded
	}
	safeURL := redactor.URL(target)

	logger.Debug("dispatching request", "method", op.Method, "url", safeURL)
	start := time.Now()
	resp, err := s.Transport.Dispatch(ctx, &Request{Method: op.Method, URL: target, Header: req.header, Body: body})
	elapsed := time.Since(start)

	event := Event{Operation: op.ID, Method: op.Method, URL: safeURL, Duration: elapsed, Err: err, At: start}
	if resp != nil {
		event.StatusCode = resp.StatusCode
	}
	if s.Observer != nil {
		s.Observer.Observe(ctx, event)
	}
	if err != nil {
		logger.Warn("request failed", "method", op.Method, "url", safeURL, "error", redactor.Redact(err.Error()))
		return Resolved{}, apierr.Field(p.Path, err)
	}
	logger.Debug("request completed", "status", resp.StatusCode, "duration", elapsed)

	rc := &ResolutionContext{
		UsedParams:  used,
		UsedPayload: payload,
		UsedRequestOptions: RequestOptions{
			Method:  op.Method,
			URL:     target,
			Headers: req.header,
			Query:   req.query,
		},
		UsedStatusCode:  resp.StatusCode,
		ResponseHeaders: resp.Header,
	}

	decoded, err := s.decode(plan, resp, safeURL)
	if err != nil {
		return Resolved{}, apierr.Field(p.Path, err)
	}
	rc.ResponseBody = decoded
	data, err := s.Types.Shape(plan.ResponseType, decoded)
	if err != nil {
		return Resolved{}, apierr.Field(p.Path, err)
	}
	if limit >= 0 && s.Types.IsObjectList(plan.ResponseType) {
		if items, ok := data.([]any); ok && len(items) > limit {
			data = items[:limit]
		}
	}
	return Resolved{Data: data, Branch: p.SourceBranch.WithRecord(Identifier(p.Path), rc)}, nil
}

func paramKey(p canonical.Parameter) string {
	return p.In + "." + p.Name
}

// linkValues evaluates the link parameters against the parent's record
// and data. Parameters without a value are omitted.
func (s *Synthesizer) linkValues(p ResolveParams, plan *Plan, link *LinkPlan, logger *slog.Logger) (map[string]any, error) {
	values := map[string]any{}
	if link == nil {
		return values, nil
	}
	if link.Err != nil {
		return nil, link.Err
	}
	parent, _ := p.SourceBranch.Record(ParentIdentifier(p.Path))
	exchange := parent.Exchange()
	exchange.ResponseBody = s.parentBody(p, parent, link)

	names := make([]string, 0, len(link.Params))
	for name := range link.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		param, ok := findParam(plan.Op, name)
		if !ok {
			continue
		}
		v, found := link.Params[name].Evaluate(exchange)
		if !found {
			logger.Debug("link parameter resolved to nothing; omitted", "link", link.Name, "parameter", name)
			continue
		}
		values[paramKey(param)] = v
	}
	return values, nil
}

// parentBody returns the wire form of the object the link field hangs
// off. The parent's recorded body is used when the parent field was
// dispatched; a list body is indexed by the element's position. Other
// parents, such as nested objects or script results, are converted back
// from their shaped value.
func (s *Synthesizer) parentBody(p ResolveParams, parent *ResolutionContext, link *LinkPlan) any {
	if parent != nil && parent.ResponseBody != nil {
		body := parent.ResponseBody
		if n := len(p.Path); n >= 2 {
			if i, ok := p.Path[n-2].(ast.PathIndex); ok {
				items, isList := body.([]any)
				if !isList || int(i) >= len(items) {
					return nil
				}
				return items[i]
			}
		}
		return body
	}
	return s.Types.Desanitize(link.Source, p.Source)
}

// findParam looks a link parameter up by name or by "in.name".
func findParam(op *canonical.Operation, name string) (canonical.Parameter, bool) {
	in := ""
	if i := strings.IndexByte(name, '.'); i > 0 {
		switch name[:i] {
		case canonical.InPath, canonical.InQuery, canonical.InHeader, canonical.InCookie:
			in, name = name[:i], name[i+1:]
		}
	}
	for _, param := range op.Parameters {
		if param.Name == name && (in == "" || param.In == in) {
			return param, true
		}
	}
	return canonical.Parameter{}, false
}

func (s *Synthesizer) payload(p ResolveParams, plan *Plan) (any, []byte, error) {
	op := plan.Op
	if plan.PayloadArg == "" || op.RequestBody == nil {
		return nil, nil, nil
	}
	raw, ok := p.Args[plan.PayloadArg]
	if !ok || raw == nil {
		if op.RequestBody.Required {
			return nil, nil, apierr.Validation("argument %q is required", plan.PayloadArg)
		}
		return nil, nil, nil
	}
	payload := s.Types.Desanitize(plan.PayloadType, raw)
	body, err := encodePayload(op.RequestBody.ContentType, payload)
	if err != nil {
		return nil, nil, err
	}
	return payload, body, nil
}

func encodePayload(contentType string, payload any) ([]byte, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "x-www-form-urlencoded"):
		form := url.Values{}
		obj, ok := payload.(map[string]any)
		if !ok {
			return nil, apierr.Validation("form payload must be an object, got %T", payload)
		}
		for k, v := range obj {
			switch v.(type) {
			case map[string]any:
				encoded, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("encode form field %s: %w", k, err)
				}
				form.Set(k, string(encoded))
			default:
				addQueryParam(form, k, v)
			}
		}
		return []byte(form.Encode()), nil
	case ct == "" || strings.Contains(ct, "json"):
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return encoded, nil
	}
	if str, ok := payload.(string); ok {
		return []byte(str), nil
	}
	return []byte(valueToString(payload)), nil
}

func addQueryParam(values url.Values, name string, value any) {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			values.Add(name, valueToString(item))
		}
	case []string:
		for _, item := range v {
			values.Add(name, item)
		}
	default:
		values.Add(name, valueToString(value))
	}
}

func valueToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		if encoded, err := json.Marshal(v); err == nil {
			return string(encoded)
		}
	}
	return fmt.Sprint(value)
}

var pathParamRE = regexp.MustCompile(`\{([^}]+)\}`)

func fillPath(path string, values map[string]any) (string, error) {
	matches := pathParamRE.FindAllStringSubmatchIndex(path, -1)
	if len(matches) == 0 {
		return path, nil
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(path[last:m[0]])
		name := path[m[2]:m[3]]
		v, ok := values[name]
		if !ok {
			return "", apierr.Validation("missing required path parameter %q", name)
		}
		b.WriteString(url.PathEscape(valueToString(v)))
		last = m[1]
	}
	b.WriteString(path[last:])
	return b.String(), nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
