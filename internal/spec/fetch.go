package spec

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restgraph/internal/apierr"
)

const maxDocumentBytes = 32 << 20

// Fetcher retrieves remote API descriptions.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch GETs location with the extra header, typically credentials for a
// protected document. Failures wrap apierr.ErrSpecification.
func (f *Fetcher) Fetch(ctx context.Context, location string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, apierr.Specification("fetch %s: %w", location, err)
	}
	if header != nil {
		req.Header = header.Clone()
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.1")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apierr.Specification("fetch %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, apierr.Specification("fetch %s: %s", location, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, apierr.Specification("fetch %s: %w", location, err)
	}
	if len(raw) > maxDocumentBytes {
		return nil, apierr.Specification("fetch %s: document larger than %d bytes", location, maxDocumentBytes)
	}
	return raw, nil
}

// LoadURL fetches and loads a document. Relative server URLs are resolved
// against location.
func (f *Fetcher) LoadURL(ctx context.Context, location string, header http.Header) (*Document, error) {
	raw, err := f.Fetch(ctx, location, header)
	if err != nil {
		return nil, err
	}
	doc, err := Load(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := resolveServers(doc, location); err != nil {
		return nil, err
	}
	return doc, nil
}

func resolveServers(doc *Document, location string) error {
	base, err := url.Parse(location)
	if err != nil {
		return apierr.Specification("document location %q: %w", location, err)
	}
	for _, srv := range doc.T.Servers {
		if srv == nil || srv.URL == "" || strings.Contains(srv.URL, "://") || strings.Contains(srv.URL, "{") {
			continue
		}
		ref, err := url.Parse(srv.URL)
		if err != nil {
			return apierr.Specification("server url %q: %w", srv.URL, err)
		}
		srv.URL = base.ResolveReference(ref).String()
	}
	return nil
}
