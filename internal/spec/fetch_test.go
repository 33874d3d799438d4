package spec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"restgraph/internal/apierr"
)

func TestFetchForwardsHeader(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"openapi":"3.0.0"}`))
	}))
	defer srv.Close()

	header := http.Header{"Authorization": {"Bearer doc-token"}}
	raw, err := NewFetcher(2*time.Second).Fetch(context.Background(), srv.URL, header)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(raw) != `{"openapi":"3.0.0"}` {
		t.Errorf("body = %s", raw)
	}
	if gotAuth != "Bearer doc-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !strings.HasPrefix(gotAccept, "application/json") {
		t.Errorf("Accept = %q", gotAccept)
	}
	if len(header) != 1 {
		t.Errorf("caller header mutated: %v", header)
	}
}

func TestFetchErrorStatusIsSpecificationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcher(2*time.Second).Fetch(context.Background(), srv.URL, nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if !errors.Is(err, apierr.ErrSpecification) {
		t.Errorf("expected a specification error, got %v", err)
	}
}

func TestLoadURLResolvesRelativeServers(t *testing.T) {
	doc := strings.Replace(petstoreYAML, "https://petstore.example.com/v1", "/v1", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	loaded, err := NewFetcher(2*time.Second).LoadURL(context.Background(), srv.URL+"/docs/openapi.yaml", nil)
	if err != nil {
		t.Fatalf("LoadURL: %v", err)
	}
	if loaded.Title() != "Petstore" {
		t.Errorf("title = %q", loaded.Title())
	}
	if got := loaded.T.Servers[0].URL; got != srv.URL+"/v1" {
		t.Errorf("server = %q, want %q", got, srv.URL+"/v1")
	}
}
