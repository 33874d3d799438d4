package runtime

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"restgraph/internal/apierr"
)

// decode checks a response against the operation's declared contract and
// decodes its body.
func (s *Synthesizer) decode(plan *Plan, resp *Response, safeURL string) (any, error) {
	op := plan.Op
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, s.requestFailed(plan, resp, safeURL)
	}

	declared := ""
	if op.Response != nil {
		declared = op.Response.ContentType
	}
	received := resp.Header.Get("Content-Type")

	if declared == "" {
		if len(resp.Body) == 0 {
			return nil, nil
		}
		return string(resp.Body), nil
	}
	if received == "" {
		return nil, apierr.Protocol("%s: response has no content type, expected %q", op.ID, declared)
	}
	if !compatibleMedia(received, declared) {
		return nil, apierr.Protocol("%s: expected content type %q, received %q", op.ID, declared, received)
	}
	if !isJSONMedia(declared) {
		return string(resp.Body), nil
	}
	if len(resp.Body) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, apierr.ErrProtocol.Wrap(fmt.Errorf("%s: response body is not valid JSON: %w", op.ID, err))
	}
	return out, nil
}

func mediaType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

// compatibleMedia accepts equal media types and ones that contain each
// other, which tolerates parameters and vendor suffixes.
func compatibleMedia(received, declared string) bool {
	r, d := mediaType(received), mediaType(declared)
	return r == d || strings.Contains(r, d) || strings.Contains(d, r) ||
		strings.Contains(strings.ToLower(received), d)
}

func isJSONMedia(v string) bool {
	return strings.Contains(strings.ToLower(v), "json")
}

func (s *Synthesizer) requestFailed(plan *Plan, resp *Response, safeURL string) *gqlerror.Error {
	op := plan.Op
	message := fmt.Sprintf("%s failed with status %d", op.ID, resp.StatusCode)
	if !s.Settings.ProvideErrorExtensions {
		return apierr.RequestFailed(nil, message, nil)
	}
	var body any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		body = string(resp.Body)
	}
	headers := map[string]interface{}{}
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}
	return apierr.RequestFailed(nil, message, map[string]interface{}{
		"method":          op.Method,
		"path":            op.Path,
		"url":             safeURL,
		"statusCode":      resp.StatusCode,
		"statusText":      http.StatusText(resp.StatusCode),
		"responseHeaders": headers,
		"responseBody":    body,
	})
}
