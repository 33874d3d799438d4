package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"restgraph/internal/audit"
	"restgraph/internal/redact"
	"restgraph/internal/runtime"
)

const petsYAML = `openapi: 3.0.3
info:
  title: Pets
  version: "1"
servers:
  - url: https://pets.test
paths:
  /pets/{id}:
    get:
      operationId: getPet
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
          links:
            owner:
              operationId: getOwner
  /pets:
    post:
      operationId: createPet
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "201":
          description: created
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
components:
  schemas:
    Pet:
      type: object
      properties:
        id:
          type: string
        name:
          type: string
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, false)
	return code, stdout.String(), stderr.String()
}

func TestRunWithSpecFlag(t *testing.T) {
	dir := t.TempDir()
	specPath := writeFile(t, dir, "pets.yaml", petsYAML)

	code, stdout, stderr := runCLI(t, "-spec", specPath)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	for _, want := range []string{"type Query", "type Mutation", "pet(", "createPet(", "type Pet"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("SDL missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "warning: [LINK_UNRESOLVED_TARGET]") || !strings.Contains(stderr, "link=1") {
		t.Errorf("expected unresolved link warning and summary, got %q", stderr)
	}
	if strings.Contains(stderr, "\033[") {
		t.Error("expected no colour codes when colour is off")
	}
}

func TestRunWithConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pets.yaml", petsYAML)
	writeFile(t, dir, "pet.js", `function resolve(parent, args) { return { id: args.id, name: "scripted" }; }`)
	cfgPath := writeFile(t, dir, "restgraph.yaml", `specs:
  - file: pets.yaml
    base_url: http://localhost:9999
custom_resolvers:
  - title: Pets
    path: /pets/{id}
    method: get
    file: pet.js
transport:
  rate_limit_per_second: 5
  breaker_failures: 3
audit:
  db_path: audit.db
log:
  level: error
`)
	outPath := filepath.Join(dir, "schema.graphql")

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-out", outPath)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	if stdout != "" {
		t.Errorf("expected SDL in file only, got stdout %q", stdout)
	}
	sdl, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read sdl: %v", err)
	}
	if !strings.Contains(string(sdl), "type Query") {
		t.Fatalf("unexpected SDL:\n%s", sdl)
	}
	if _, err := os.Stat(filepath.Join(dir, "audit.db")); err != nil {
		t.Fatalf("expected audit db next to config: %v", err)
	}
}

func TestRunValidatesQueries(t *testing.T) {
	dir := t.TempDir()
	specPath := writeFile(t, dir, "pets.yaml", petsYAML)
	good := writeFile(t, dir, "good.graphql", `{ pet(id: "1") { id name } }`)
	bad := writeFile(t, dir, "bad.graphql", `{ pet(id: "1") { owner } }`)

	code, _, stderr := runCLI(t, "-spec", specPath, "-quiet", "-query", good)
	if code != 0 {
		t.Fatalf("valid query rejected: %s", stderr)
	}

	code, _, stderr = runCLI(t, "-spec", specPath, "-quiet", "-query", good, "-query", bad)
	if code != 1 {
		t.Fatalf("expected exit 1 for invalid query, got %d", code)
	}
	if !strings.Contains(stderr, "bad.graphql:1:") || !strings.Contains(stderr, "owner") {
		t.Fatalf("expected located error for owner, got %q", stderr)
	}
	if strings.Contains(stderr, "good.graphql") {
		t.Fatalf("valid query reported: %q", stderr)
	}
}

func TestRunRemoteConfig(t *testing.T) {
	specSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write([]byte(petsYAML))
	}))
	defer specSrv.Close()

	cfgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0ken" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("specs:\n  - url: " + specSrv.URL + "/pets.yaml\n"))
	}))
	defer cfgSrv.Close()

	code, stdout, stderr := runCLI(t, "-config", cfgSrv.URL, "-config-token", "t0ken")
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "type Pet") {
		t.Fatalf("unexpected SDL:\n%s", stdout)
	}

	code, _, stderr = runCLI(t, "-config", cfgSrv.URL, "-config-token", "wrong")
	if code != 1 || !strings.Contains(stderr, "401") {
		t.Fatalf("expected unauthorized failure, got %d %q", code, stderr)
	}
}

func TestRunUsageAndFailures(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("expected usage error, got %d", code)
	}
	if code, _, _ := runCLI(t, "-config", "a.yaml", "-spec", "b.yaml"); code != 2 {
		t.Fatalf("expected usage error for both flags, got %d", code)
	}
	if code, stdout, _ := runCLI(t, "-version"); code != 0 || !strings.HasPrefix(stdout, "restgraph ") {
		t.Fatalf("unexpected version output %d %q", code, stdout)
	}

	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.yaml", "not: an openapi document\n")
	code, _, stderr := runCLI(t, "-spec", broken)
	if code != 1 || !strings.Contains(stderr, "specification error") {
		t.Fatalf("expected specification error, got %d %q", code, stderr)
	}
}

func TestValidateConfigFlag(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "specs:\n  - file: ${NOT_EXPANDED}\n")
	bad := writeFile(t, dir, "bad.yaml", "specs: []\n")

	if code, stdout, stderr := runCLI(t, "-validate-config", "-config", good); code != 0 || !strings.Contains(stdout, "config ok") {
		t.Fatalf("expected ok, got %d %q %q", code, stdout, stderr)
	}
	if code, _, stderr := runCLI(t, "-validate-config", "-config", bad); code != 1 || !strings.Contains(stderr, "at least one spec") {
		t.Fatalf("expected validation failure, got %d %q", code, stderr)
	}
}

func TestAuditReport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pets.yaml", petsYAML)
	cfgPath := writeFile(t, dir, "restgraph.yaml", `specs:
  - file: pets.yaml
audit:
  db_path: audit.db
`)

	auditLog, err := audit.NewLogger(filepath.Join(dir, "audit.db"), redact.New())
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	ctx := context.Background()
	now := time.Now()
	auditLog.Observe(ctx, runtime.Event{Operation: "getPet", Method: "GET", URL: "https://pets.test/pets/1", StatusCode: 200, Duration: 30 * time.Millisecond, At: now.Add(-time.Minute)})
	auditLog.Observe(ctx, runtime.Event{Operation: "getPet", Method: "GET", URL: "https://pets.test/pets/2", StatusCode: 404, Duration: 10 * time.Millisecond, At: now.Add(-time.Second)})
	auditLog.Observe(ctx, runtime.Event{Operation: "createPet", Method: "POST", URL: "https://pets.test/pets", Err: errors.New("connection refused"), At: now.Add(-48 * time.Hour)})
	if err := auditLog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-audit-report", "-audit-limit", "1")
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	var summary struct {
		Stats       audit.Stats      `json:"stats"`
		Operations  map[string]int64 `json:"operations"`
		StatusCodes map[string]int64 `json:"status_codes"`
		Recent      []audit.Event    `json:"recent"`
	}
	if err := json.Unmarshal([]byte(stdout), &summary); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	if summary.Stats.TotalRequests != 3 || summary.Stats.FailedRequests != 2 {
		t.Errorf("stats = %+v", summary.Stats)
	}
	if summary.Operations["getPet"] != 2 || summary.Operations["createPet"] != 1 {
		t.Errorf("operations = %v", summary.Operations)
	}
	if summary.StatusCodes["404"] != 1 {
		t.Errorf("status codes = %v", summary.StatusCodes)
	}
	if len(summary.Recent) != 1 || summary.Recent[0].URL != "https://pets.test/pets/2" {
		t.Errorf("recent = %+v", summary.Recent)
	}

	code, stdout, stderr = runCLI(t, "-config", cfgPath, "-audit-report", "-audit-since", "24h", "-audit-format", "prometheus")
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr)
	}
	for _, want := range []string{
		"restgraph_dispatch_total 2\n",
		`restgraph_dispatch_by_operation_total{operation="getPet"} 2`,
		`restgraph_dispatch_by_status_total{code="404"} 1`,
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("prometheus output missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "createPet") {
		t.Errorf("-audit-since kept an old event:\n%s", stdout)
	}
}

func TestAuditReportFailures(t *testing.T) {
	if code, _, _ := runCLI(t, "-audit-report"); code != 2 {
		t.Fatalf("expected usage error without -config, got %d", code)
	}
	dir := t.TempDir()
	writeFile(t, dir, "pets.yaml", petsYAML)
	if code, _, _ := runCLI(t, "-config", filepath.Join(dir, "x.yaml"), "-audit-report", "-audit-format", "xml"); code != 2 {
		t.Fatalf("expected usage error for the format, got %d", code)
	}

	noAudit := writeFile(t, dir, "plain.yaml", "specs:\n  - file: pets.yaml\n")
	code, _, stderr := runCLI(t, "-config", noAudit, "-audit-report")
	if code != 1 || !strings.Contains(stderr, "no audit section") {
		t.Fatalf("expected missing audit section, got %d %q", code, stderr)
	}

	missing := writeFile(t, dir, "missing.yaml", "specs:\n  - file: pets.yaml\naudit:\n  db_path: nowhere.db\n")
	code, _, stderr = runCLI(t, "-config", missing, "-audit-report")
	if code != 1 || !strings.Contains(stderr, "nowhere.db") {
		t.Fatalf("expected missing database error, got %d %q", code, stderr)
	}
}
