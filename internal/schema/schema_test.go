package schema

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"restgraph/internal/apierr"
	"restgraph/internal/diag"
	"restgraph/internal/logging"
	"restgraph/internal/preprocess"
	"restgraph/internal/runtime"
	"restgraph/internal/spec"
)

const socialYAML = `
openapi: 3.0.3
info: {title: Social, version: "1"}
servers:
  - url: http://placeholder.test
paths:
  /users/{id}:
    get:
      operationId: getUser
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
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
  /users/{id}/friends:
    get:
      operationId: listFriends
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
        - {name: sort, in: query, schema: {type: string, enum: [name, age], default: name}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {type: array, items: {$ref: '#/components/schemas/User'}}
  /users:
    post:
      operationId: createUser
      requestBody:
        required: true
        content:
          application/json:
            schema: {$ref: '#/components/schemas/NewUser'}
      responses:
        "201":
          description: created
          content:
            application/json:
              schema: {$ref: '#/components/schemas/User'}
  /admin/stats:
    get:
      operationId: getStats
      security:
        - apiKey: []
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/Stats'}
components:
  securitySchemes:
    apiKey: {type: apiKey, in: header, name: X-API-Key}
  schemas:
    User:
      type: object
      required: [id]
      properties:
        id: {type: string}
        first-name: {type: string}
        best-friend: {$ref: '#/components/schemas/User'}
    NewUser:
      type: object
      required: [first-name]
      properties:
        first-name: {type: string}
        role: {type: string, default: member}
    Stats:
      type: object
      properties:
        users: {type: integer}
`

func loadDoc(t *testing.T, raw string) *spec.Document {
	t.Helper()
	doc, err := spec.Load(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}

func translate(t *testing.T, opts Options, raw string) (*Schema, *diag.Report) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s, report, err := Translate(context.Background(), opts, loadDoc(t, raw))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	return s, report
}

// fieldNames lists the fields of a definition, skipping introspection.
func fieldNames(def *ast.Definition) []string {
	var names []string
	for _, f := range def.Fields {
		if !strings.HasPrefix(f.Name, "__") {
			names = append(names, f.Name)
		}
	}
	return names
}

func argNames(f *ast.FieldDefinition) []string {
	names := make([]string, len(f.Arguments))
	for i, a := range f.Arguments {
		names[i] = a.Name
	}
	return names
}

func equal(a, b []string) bool {
	return strings.Join(a, ",") == strings.Join(b, ",")
}

func TestTranslateCoverage(t *testing.T) {
	s, _ := translate(t, Options{}, socialYAML)
	gets, others := 0, 0
	for _, op := range s.Data.Operations {
		if op.Method == http.MethodGet {
			gets++
		} else {
			others++
		}
	}
	if got := len(fieldNames(s.AST.Query)); got != gets {
		t.Errorf("query fields = %d, GET operations = %d", got, gets)
	}
	if got := len(fieldNames(s.AST.Mutation)); got != others {
		t.Errorf("mutation fields = %d, other operations = %d", got, others)
	}
}

func TestTranslateIdempotent(t *testing.T) {
	first, _ := translate(t, Options{}, socialYAML)
	second, _ := translate(t, Options{}, socialYAML)
	if first.SDL != second.SDL {
		t.Fatalf("SDL differs between runs:\n%s\n---\n%s", first.SDL, second.SDL)
	}
}

func TestFieldsAndArguments(t *testing.T) {
	opts := Options{}
	opts.AddLimitArgument = true
	s, _ := translate(t, opts, socialYAML)

	if got := fieldNames(s.AST.Query); !equal(got, []string{"user", "users", "stats"}) {
		t.Fatalf("query fields = %v", got)
	}
	users := s.AST.Query.Fields.ForName("users")
	if got := argNames(users); !equal(got, []string{"id", "sort", "limit"}) {
		t.Errorf("users arguments = %v", got)
	}
	if users.Type.String() != "[User]" {
		t.Errorf("users type = %s", users.Type.String())
	}
	sort := users.Arguments.ForName("sort")
	if sort.Type.Name() != "ListFriendsSort" || sort.DefaultValue == nil || sort.DefaultValue.Raw != "NAME" {
		t.Errorf("sort argument = %s default %v", sort.Type.String(), sort.DefaultValue)
	}
	if !users.Arguments.ForName("id").Type.NonNull {
		t.Error("path parameter should be required")
	}

	create := s.AST.Mutation.Fields.ForName("createUser")
	if create == nil {
		t.Fatalf("mutation fields = %v", fieldNames(s.AST.Mutation))
	}
	payload := create.Arguments.ForName("newUserInput")
	if payload == nil || payload.Type.String() != "NewUserInput!" {
		t.Fatalf("createUser arguments = %v", argNames(create))
	}
	role := s.AST.Types["NewUserInput"].Fields.ForName("role")
	if role.DefaultValue == nil || role.DefaultValue.Raw != "member" || role.Type.NonNull {
		t.Errorf("role = %s default %v", role.Type.String(), role.DefaultValue)
	}

	user := s.AST.Types["User"]
	if got := fieldNames(user); !equal(got, []string{"bestFriend", "firstName", "id", "friends"}) {
		t.Errorf("User fields = %v", got)
	}
	if got := argNames(user.Fields.ForName("friends")); !equal(got, []string{"sort", "limit"}) {
		t.Errorf("link arguments = %v", got)
	}
	if _, ok := s.Resolver("User", "friends"); !ok {
		t.Error("link field has no resolver")
	}
}

func TestOperationIDNamesAndGenericPayload(t *testing.T) {
	opts := Options{}
	opts.OperationIDFieldNames = true
	opts.GenericPayloadArgName = true
	s, _ := translate(t, opts, socialYAML)
	if got := fieldNames(s.AST.Query); !equal(got, []string{"getUser", "listFriends", "getStats"}) {
		t.Errorf("query fields = %v", got)
	}
	if got := argNames(s.AST.Mutation.Fields.ForName("createUser")); !equal(got, []string{"requestBody"}) {
		t.Errorf("payload argument = %v", got)
	}
}

func TestSimpleNaming(t *testing.T) {
	opts := Options{}
	opts.Naming = "simple"
	s, _ := translate(t, opts, socialYAML)
	if s.AST.Types["User"].Fields.ForName("firstname") == nil {
		t.Errorf("User fields = %v", fieldNames(s.AST.Types["User"]))
	}
}

func TestQueriesValidate(t *testing.T) {
	opts := Options{}
	opts.AddLimitArgument = true
	s, _ := translate(t, opts, socialYAML)

	_, errs := gqlparser.LoadQuery(s.AST, `{ user(id: "1") { id firstName bestFriend { id } friends(limit: 1) { id } } }`)
	if len(errs) > 0 {
		t.Fatalf("valid query rejected: %v", errs)
	}
	_, errs = gqlparser.LoadQuery(s.AST, `{ user { id } }`)
	if len(errs) == 0 {
		t.Fatal("query without required argument accepted")
	}
}

const getsOnlyYAML = `
openapi: 3.0.3
info: {title: ReadOnly, version: "1"}
paths:
  /items:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {type: array, items: {type: string}}
`

func TestEmptyRoot(t *testing.T) {
	_, _, err := Translate(context.Background(), Options{}, loadDoc(t, getsOnlyYAML))
	if !errors.Is(err, apierr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	opts := Options{}
	opts.AllowEmptyRoot = true
	s, _ := translate(t, opts, getsOnlyYAML)
	if s.AST.Mutation != nil {
		t.Error("empty Mutation root should be omitted")
	}
	if got := fieldNames(s.AST.Query); !equal(got, []string{"items"}) {
		t.Errorf("query fields = %v", got)
	}
}

func TestAllOfConflictIsFatal(t *testing.T) {
	raw := `
openapi: 3.0.3
info: {title: Broken, version: "1"}
paths:
  /things:
    get:
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                allOf:
                  - {type: object, properties: {id: {type: string}}}
                  - {type: object, properties: {id: {type: integer}}}
`
	opts := Options{}
	opts.AllowEmptyRoot = true
	_, _, err := Translate(context.Background(), opts, loadDoc(t, raw))
	if !errors.Is(err, apierr.ErrConfiguration) || !strings.Contains(err.Error(), "id") {
		t.Fatalf("expected configuration error about id, got %v", err)
	}
}

func TestOverrideIsReturnedUnchanged(t *testing.T) {
	marker := map[string]any{"id": "custom"}
	opts := Options{}
	opts.CustomResolvers = map[string]map[string]map[string]runtime.ResolverFunc{
		"Social": {"/users/{id}": {"GET": func(runtime.ResolveParams) (runtime.Resolved, error) {
			return runtime.Resolved{Data: marker}, nil
		}}},
	}
	s, _ := translate(t, opts, socialYAML)
	fn, ok := s.Resolver("Query", "user")
	if !ok {
		t.Fatal("no resolver for Query.user")
	}
	res, err := fn(runtime.ResolveParams{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Data.(map[string]any)["id"] != "custom" {
		t.Errorf("override not used: %v", res.Data)
	}
}

type backend struct {
	*httptest.Server
	requests []string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests = append(b.requests, r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users/42":
			_, _ = w.Write([]byte(`{"id":"42","first-name":"Ada"}`))
		case "/users/42/friends":
			_, _ = w.Write([]byte(`[{"id":"1","first-name":"Bo"},{"id":"2","first-name":"Cy"},{"id":"3","first-name":"Di"}]`))
		case "/admin/stats":
			if r.Header.Get("X-API-Key") != "s3cret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"denied"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"users": 7})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func TestLinkResolution(t *testing.T) {
	srv := newBackend(t)
	opts := Options{}
	opts.AddLimitArgument = true
	opts.BaseURL = srv.URL
	s, _ := translate(t, opts, socialYAML)

	user, _ := s.Resolver("Query", "user")
	parent, err := user(runtime.ResolveParams{
		Context: context.Background(),
		Args:    map[string]any{"id": "42"},
		Path:    ast.Path{ast.PathName("user")},
	})
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if got := parent.Data.(map[string]any)["firstName"]; got != "Ada" {
		t.Fatalf("user data = %v", parent.Data)
	}

	friends, _ := s.Resolver("User", "friends")
	res, err := friends(runtime.ResolveParams{
		Context:      context.Background(),
		Source:       parent.Data,
		SourceBranch: parent.Branch,
		Args:         map[string]any{"limit": 2},
		Path:         ast.Path{ast.PathName("user"), ast.PathName("friends")},
	})
	if err != nil {
		t.Fatalf("friends: %v", err)
	}
	items := res.Data.([]any)
	if len(items) != 2 || items[1].(map[string]any)["firstName"] != "Cy" {
		t.Errorf("friends = %v", items)
	}
	if last := srv.requests[len(srv.requests)-1]; last != "/users/42/friends?sort=name" {
		t.Errorf("link request = %s", last)
	}
}

func TestUnsupportedLinkExpressionFailsWhenQueried(t *testing.T) {
	srv := newBackend(t)
	opts := Options{}
	opts.BaseURL = srv.URL
	raw := strings.Replace(socialYAML, "'$response.body#/id'", "'$response.query.id'", 1)
	s, report := translate(t, opts, raw)
	if !report.Has(diag.WarnLinkExpression) {
		t.Errorf("expected a %s warning", diag.WarnLinkExpression)
	}

	friends, ok := s.Resolver("User", "friends")
	if !ok {
		t.Fatal("the link field must stay in the schema")
	}
	_, err := friends(runtime.ResolveParams{
		Context: context.Background(),
		Source:  map[string]any{"id": "42"},
		Path:    ast.Path{ast.PathName("user"), ast.PathName("friends")},
	})
	if !errors.Is(err, apierr.ErrConfiguration) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if len(srv.requests) != 0 {
		t.Errorf("requests = %v", srv.requests)
	}
}

func TestViewer(t *testing.T) {
	srv := newBackend(t)
	opts := Options{}
	opts.Viewer = true
	opts.BaseURL = srv.URL
	s, _ := translate(t, opts, socialYAML)

	if got := fieldNames(s.AST.Query); !equal(got, []string{"user", "users", "viewerApiKey"}) {
		t.Fatalf("query fields = %v", got)
	}
	viewerField := s.AST.Query.Fields.ForName("viewerApiKey")
	if got := argNames(viewerField); !equal(got, []string{"apiKey"}) || viewerField.Type.Name() != "ViewerApiKey" {
		t.Errorf("viewer = %v %s", got, viewerField.Type.String())
	}

	viewer, _ := s.Resolver("Query", "viewerApiKey")
	v, err := viewer(runtime.ResolveParams{Args: map[string]any{"apiKey": "s3cret"}, Path: ast.Path{ast.PathName("viewerApiKey")}})
	if err != nil {
		t.Fatal(err)
	}
	stats, ok := s.Resolver("ViewerApiKey", "stats")
	if !ok {
		t.Fatal("no resolver for ViewerApiKey.stats")
	}
	res, err := stats(runtime.ResolveParams{
		Context:      context.Background(),
		Source:       v.Data,
		SourceBranch: v.Branch,
		Path:         ast.Path{ast.PathName("viewerApiKey"), ast.PathName("stats")},
	})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if got := res.Data.(map[string]any)["users"]; got != float64(7) {
		t.Errorf("stats = %v", res.Data)
	}

	_, err = stats(runtime.ResolveParams{Context: context.Background(), Path: ast.Path{ast.PathName("stats")}})
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Errorf("expected authentication error without viewer, got %v", err)
	}
}

func TestPreprocessOptionsPassThrough(t *testing.T) {
	opts := Options{Options: preprocess.Options{Headers: map[string]string{"X-Client": "restgraph"}}}
	s, _ := translate(t, opts, socialYAML)
	if s.Data.Options.Headers["X-Client"] != "restgraph" {
		t.Errorf("options not kept: %+v", s.Data.Options)
	}
	if s.Data.Options.Naming != "camelCase" {
		t.Errorf("default naming = %q", s.Data.Options.Naming)
	}
}

const inventoryYAML = `
openapi: 3.0.3
info: {title: Inventory, version: "1"}
servers:
  - url: http://inventory.test
paths:
  /items/{id}:
    get:
      operationId: getItem
      parameters:
        - {name: id, in: path, required: true, schema: {type: string}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/User'}
components:
  schemas:
    User:
      type: object
      properties:
        sku: {type: string}
`

func TestTranslateMultipleDocuments(t *testing.T) {
	opts := Options{}
	opts.Logger = logging.Discard()
	s, _, err := Translate(context.Background(), opts, loadDoc(t, socialYAML), loadDoc(t, inventoryYAML))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	social, inventory := s.AST.Types["User"], s.AST.Types["User2"]
	if social == nil || inventory == nil {
		t.Fatalf("expected User and User2 types, SDL:\n%s", s.SDL)
	}
	if social.Fields.ForName("sku") != nil || inventory.Fields.ForName("sku") == nil {
		t.Errorf("same-named schemas of different documents were merged")
	}
	if f := s.AST.Query.Fields.ForName("user2"); f == nil || f.Type.Name() != "User2" {
		t.Errorf("query fields = %v", fieldNames(s.AST.Query))
	}
	if _, ok := s.Resolver("Query", "user2"); !ok {
		t.Error("no resolver for Query.user2")
	}
}
