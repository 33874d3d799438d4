package preprocess

import (
	"context"
	"errors"
	"strings"
	"testing"

	"restgraph/internal/apierr"
	"restgraph/internal/canonical"
	"restgraph/internal/diag"
	"restgraph/internal/logging"
	"restgraph/internal/runtime"
	"restgraph/internal/spec"
)

const usersYAML = `
openapi: 3.0.3
info: {title: Users, version: "1"}
servers:
  - url: https://{env}.api.test/v1/
    variables:
      env: {default: prod}
security:
  - apiKey: []
paths:
  /users/{id}:
    parameters:
      - {name: id, in: path, required: true, schema: {type: string}}
    get:
      operationId: getUser
      parameters:
        - {name: X-Trace, in: header, schema: {type: string}}
        - {name: verbose, in: query, schema: {type: boolean, default: false}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/User'}
          links:
            friends:
              operationId: listFriends
              parameters: {id: '$response.body#/id'}
            posts:
              operationRef: '#/paths/~1users~1{id}~1posts/get'
              parameters: {id: '$request.path.id'}
            broken:
              operationId: nothingHere
    delete:
      security:
        - basic: []
        - undeclared: []
      servers:
        - url: https://admin.api.test
      responses:
        "204": {description: gone}
  /users/{id}/friends:
    get:
      operationId: listFriends
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
      responses:
        "201": {description: later, content: {application/json: {schema: {type: array, items: {$ref: '#/components/schemas/User'}}}}}
        "200": {description: ok, content: {application/json: {schema: {type: array, items: {$ref: '#/components/schemas/User'}}}}}
  /users/{id}/posts:
    get:
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
      responses:
        default: {description: any, content: {text/plain: {schema: {type: string}}}}
  /a-first:
    post:
      responses:
        "200": {description: ok}
components:
  securitySchemes:
    apiKey: {type: apiKey, in: header, name: X-API-Key}
    basic: {type: http, scheme: basic}
    mtls: {type: http, scheme: bearer}
  schemas:
    User:
      type: object
      properties:
        id: {type: string}
`

func load(t *testing.T, raw string) *spec.Document {
	t.Helper()
	doc, err := spec.Load(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}

func TestPreprocessOperations(t *testing.T) {
	report := &diag.Report{}
	data, err := Preprocess(Options{}, report, logging.Discard(), load(t, usersYAML))
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}

	var ids []string
	for _, op := range data.Operations {
		ids = append(ids, op.ID)
	}
	want := []string{
		"Users: GET /users/{id}",
		"Users: DELETE /users/{id}",
		"Users: GET /users/{id}/friends",
		"Users: GET /users/{id}/posts",
		"Users: POST /a-first",
	}
	if len(ids) != len(want) {
		t.Fatalf("operations = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("operation %d = %q, want %q", i, ids[i], want[i])
		}
	}

	get, _ := data.Operation("Users: GET /users/{id}")
	if get.Kind != canonical.KindQuery || get.BaseURL != "https://prod.api.test/v1" {
		t.Errorf("get = %s %s", get.Kind, get.BaseURL)
	}
	if len(get.Parameters) != 3 || get.Parameters[0].Name != "id" || !get.Parameters[0].Required {
		t.Errorf("parameters = %+v", get.Parameters)
	}
	if get.Parameters[2].Default != false {
		t.Errorf("verbose default = %v", get.Parameters[2].Default)
	}
	if len(get.Security) != 1 || get.Security[0] != "apiKey" {
		t.Errorf("security = %v", get.Security)
	}

	del, _ := data.Operation("Users: DELETE /users/{id}")
	if del.Kind != canonical.KindMutation || del.BaseURL != "https://admin.api.test" {
		t.Errorf("delete = %s %s", del.Kind, del.BaseURL)
	}
	if len(del.Security) != 1 || del.Security[0] != "basic" {
		t.Errorf("delete security = %v", del.Security)
	}
	if del.OperationID != "delete_users_id" || del.Declared {
		t.Errorf("inferred operationId = %q", del.OperationID)
	}

	friends, _ := data.Operation("Users: GET /users/{id}/friends")
	if friends.Response.StatusCode != "200" {
		t.Errorf("lowest 2xx should win, got %s", friends.Response.StatusCode)
	}
	posts, _ := data.Operation("Users: GET /users/{id}/posts")
	if posts.Response.StatusCode != "default" || posts.Response.ContentType != "text/plain" {
		t.Errorf("posts response = %+v", posts.Response)
	}

	if _, ok := data.Schemes["mtls"]; ok {
		t.Error("bearer scheme should not be collected")
	}
	for _, code := range []diag.WarningCode{diag.WarnSecurityUndeclared, diag.WarnSecurityUnsupported, diag.WarnLinkUnresolved, diag.WarnTypeContent} {
		if !report.Has(code) {
			t.Errorf("missing warning %s in %v", code, report.Warnings)
		}
	}
}

func TestPreprocessLinks(t *testing.T) {
	data, err := Preprocess(Options{}, &diag.Report{}, nil, load(t, usersYAML))
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	get, _ := data.Operation("Users: GET /users/{id}")
	if len(get.Links) != 2 {
		t.Fatalf("links = %+v", get.Links)
	}
	byName := map[string]canonical.Link{}
	for _, l := range get.Links {
		byName[l.Name] = l
	}
	if l := byName["friends"]; l.TargetID != "Users: GET /users/{id}/friends" || l.Parameters["id"] != "$response.body#/id" {
		t.Errorf("friends link = %+v", l)
	}
	if l := byName["posts"]; l.TargetID != "Users: GET /users/{id}/posts" {
		t.Errorf("posts link = %+v", l)
	}
}

func TestBaseURLOverride(t *testing.T) {
	doc := load(t, usersYAML)
	data, err := Preprocess(Options{BaseURL: "http://localhost:8080/"}, &diag.Report{}, nil, doc)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	for _, op := range data.Operations {
		if op.BaseURL != "http://localhost:8080" {
			t.Errorf("%s base = %s", op.ID, op.BaseURL)
		}
	}

	doc.BaseURL = "http://doc.test"
	data, _ = Preprocess(Options{BaseURL: "http://localhost:8080/"}, &diag.Report{}, nil, doc)
	if data.Operations[0].BaseURL != "http://doc.test" {
		t.Errorf("document override should win, got %s", data.Operations[0].BaseURL)
	}
}

func TestPreprocessNoOperations(t *testing.T) {
	doc := load(t, "openapi: 3.0.3\ninfo: {title: Empty, version: \"1\"}\npaths:\n  /health: {}\n")
	_, err := Preprocess(Options{}, &diag.Report{}, nil, doc)
	if !errors.Is(err, apierr.ErrConfiguration) || !errors.Is(err, apierr.ErrSpecification) {
		t.Fatalf("expected configuration and specification error, got %v", err)
	}
}

func TestOverride(t *testing.T) {
	called := false
	fn := runtime.ResolverFunc(func(p runtime.ResolveParams) (runtime.Resolved, error) {
		called = true
		return runtime.Resolved{}, nil
	})
	opts := Options{CustomResolvers: map[string]map[string]map[string]runtime.ResolverFunc{
		"Users": {"/users/{id}": {"get": fn}},
	}}
	data, err := Preprocess(opts, &diag.Report{}, nil, load(t, usersYAML))
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	get, _ := data.Operation("Users: GET /users/{id}")
	got, ok := data.Override(get)
	if !ok {
		t.Fatal("expected an override for GET /users/{id}")
	}
	if _, err := got(runtime.ResolveParams{}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("override not invoked")
	}
	del, _ := data.Operation("Users: DELETE /users/{id}")
	if _, ok := data.Override(del); ok {
		t.Error("DELETE should have no override")
	}
}

func TestNormalizeOperationID(t *testing.T) {
	tests := map[string]string{
		"GET /users/{id}":            "get_users_id",
		"POST /":                     "post",
		"DELETE /a-b/{c.d}/":         "delete_a_b_c_d",
		"PATCH /orgs/{org}//members": "patch_orgs_org_members",
	}
	for in, want := range tests {
		method, path, _ := strings.Cut(in, " ")
		if got := normalizeOperationID(method, path); got != want {
			t.Errorf("%s: got %q, want %q", in, got, want)
		}
	}
}

func TestParseOperationRef(t *testing.T) {
	path, method, err := parseOperationRef("#/paths/~1users~1%7Bid%7D/get")
	if err != nil || path != "/users/{id}" || method != "GET" {
		t.Fatalf("got %q %q %v", path, method, err)
	}
	if _, _, err := parseOperationRef("https://other.test/openapi.yaml#/paths/~1x/get"); err == nil {
		t.Error("remote operationRef should be rejected")
	}
}
