package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"restgraph/internal/circuitbreaker"
	"restgraph/internal/ratelimit"
)

// Request is one outbound HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends requests upstream. Errors are surfaced to the caller
// unchanged and never retried.
type Transport interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport dispatches with net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport with the given per-request timeout;
// zero means no timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// WithRateLimit waits for the upstream host's limiter before each dispatch.
func WithRateLimit(next Transport, limits *ratelimit.Registry) Transport {
	return TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		if err := limits.For(host(req.URL)).Wait(ctx); err != nil {
			return nil, err
		}
		return next.Dispatch(ctx, req)
	})
}

// WithCircuitBreaker fails fast while the upstream host's breaker is open.
// Transport errors and 5xx responses count as failures.
func WithCircuitBreaker(next Transport, breakers *circuitbreaker.Registry) Transport {
	return TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
		b := breakers.For(host(req.URL))
		if err := b.Allow(); err != nil {
			return nil, err
		}
		resp, err := next.Dispatch(ctx, req)
		switch {
		case err != nil:
			b.RecordFailure(err)
		case resp.StatusCode >= 500:
			b.RecordFailure(fmt.Errorf("status %d", resp.StatusCode))
		default:
			b.RecordSuccess()
		}
		return resp, err
	})
}
