package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"restgraph/internal/circuitbreaker"
	"restgraph/internal/ratelimit"
)

func TestHTTPTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(r.Header.Get("X-In")))
	}))
	defer server.Close()

	resp, err := NewHTTPTransport(time.Second).Dispatch(context.Background(), &Request{
		Method: http.MethodPatch,
		URL:    server.URL,
		Header: http.Header{"X-In": {"hello"}},
		Body:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || string(resp.Body) != "hello" || resp.Header.Get("X-Method") != "PATCH" {
		t.Fatalf("unexpected response: %d %q %v", resp.StatusCode, resp.Body, resp.Header)
	}
}

func TestCircuitBreakerDecorator(t *testing.T) {
	calls := 0
	failing := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusBadGateway}, nil
	})
	transport := WithCircuitBreaker(failing, circuitbreaker.NewRegistry(2, time.Minute))
	req := &Request{Method: http.MethodGet, URL: "http://api.test/items"}

	for i := 0; i < 2; i++ {
		if _, err := transport.Dispatch(context.Background(), req); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	_, err := transport.Dispatch(context.Background(), req)
	var open *circuitbreaker.ErrCircuitOpen
	if !errors.As(err, &open) || open.Host != "api.test" {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls != 2 {
		t.Errorf("upstream called %d times", calls)
	}
}

func TestRateLimitDecorator(t *testing.T) {
	calls := 0
	ok := TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusOK}, nil
	})
	transport := WithRateLimit(ok, ratelimit.NewRegistry(0, 1, 1))
	req := &Request{Method: http.MethodGet, URL: "http://api.test/items"}

	if _, err := transport.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := transport.Dispatch(context.Background(), req)
	var limited *ratelimit.ErrRateLimited
	if !errors.As(err, &limited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream called %d times", calls)
	}
}
