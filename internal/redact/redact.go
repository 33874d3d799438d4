// Package redact scrubs credentials from strings before they are logged
// or recorded.
package redact

import (
	"net/url"
	"sort"
	"strings"
)

const mask = "[REDACTED]"

// Redactor replaces known secrets in strings. It is immutable; With
// derives a redactor that also knows a dispatch's own credentials.
type Redactor struct {
	secrets []string
}

// New returns a redactor for secrets. Empty strings are ignored.
func New(secrets ...string) *Redactor {
	return (&Redactor{}).With(secrets...)
}

// With returns a redactor that also scrubs secrets.
func (r *Redactor) With(secrets ...string) *Redactor {
	out := &Redactor{}
	if r != nil {
		out.secrets = append(out.secrets, r.secrets...)
	}
	for _, s := range secrets {
		if s != "" {
			out.secrets = append(out.secrets, s)
		}
	}
	// Longest first, so a secret that contains another is masked whole.
	sort.SliceStable(out.secrets, func(i, j int) bool { return len(out.secrets[i]) > len(out.secrets[j]) })
	return out
}

// Redact masks every known secret in input.
func (r *Redactor) Redact(input string) string {
	if r == nil {
		return input
	}
	out := input
	for _, secret := range r.secrets {
		out = strings.ReplaceAll(out, secret, mask)
		if escaped := url.QueryEscape(secret); escaped != secret {
			out = strings.ReplaceAll(out, escaped, mask)
		}
	}
	return out
}

// URL masks known secrets and any user info in a URL.
func (r *Redactor) URL(raw string) string {
	u, err := url.Parse(raw)
	if err == nil && u.User != nil {
		u.User = url.User(mask)
		raw = u.String()
	}
	return r.Redact(raw)
}
