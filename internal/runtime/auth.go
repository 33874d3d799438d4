package runtime

import (
	"encoding/base64"
	"strings"

	"github.com/speakeasy-api/jsonpath/pkg/jsonpath"
	"gopkg.in/yaml.v3"

	"restgraph/internal/apierr"
	"restgraph/internal/canonical"
)

// Credential is what a caller supplies for one security scheme. Which
// fields matter depends on the scheme kind.
type Credential struct {
	APIKey   string
	Username string
	Password string
	Token    string
}

func (c Credential) satisfies(kind canonical.SchemeKind) bool {
	switch kind {
	case canonical.SchemeAPIKey:
		return c.APIKey != ""
	case canonical.SchemeBasic:
		return c.Username != ""
	case canonical.SchemeOAuth2, canonical.SchemeOpenIDConnect:
		return c.Token != ""
	}
	return false
}

// CredentialSource is implemented by caller contexts that carry
// credentials keyed by security scheme name.
type CredentialSource interface {
	Credential(scheme string) (Credential, bool)
}

// StaticCredentials is a fixed CredentialSource.
type StaticCredentials map[string]Credential

func (s StaticCredentials) Credential(scheme string) (Credential, bool) {
	c, ok := s[scheme]
	return c, ok
}

// authenticate applies the first security alternative the caller can
// satisfy and returns the secrets it placed on the request.
func (s *Synthesizer) authenticate(p ResolveParams, plan *Plan, req *outgoing) ([]string, error) {
	if len(plan.Schemes) == 0 {
		return nil, nil
	}
	source, _ := p.Caller.(CredentialSource)
	for _, scheme := range plan.Schemes {
		cred, ok := p.SourceBranch.Credential(scheme.Name)
		if !ok && source != nil {
			cred, ok = source.Credential(scheme.Name)
		}
		if (!ok || !cred.satisfies(scheme.Kind)) && isOAuth(scheme.Kind) && s.Settings.TokenJSONPath != "" {
			if token, found := extractToken(p.Caller, s.Settings.TokenJSONPath); found {
				cred, ok = Credential{Token: token}, true
			}
		}
		if !ok || !cred.satisfies(scheme.Kind) {
			continue
		}
		return s.applyCredential(scheme, cred, req), nil
	}
	names := make([]string, len(plan.Schemes))
	for i, scheme := range plan.Schemes {
		names[i] = scheme.Name
	}
	return nil, apierr.Authentication("%s requires credentials for one of [%s]", plan.Op.ID, strings.Join(names, ", "))
}

func isOAuth(kind canonical.SchemeKind) bool {
	return kind == canonical.SchemeOAuth2 || kind == canonical.SchemeOpenIDConnect
}

func (s *Synthesizer) applyCredential(scheme *canonical.SecurityScheme, cred Credential, req *outgoing) []string {
	switch scheme.Kind {
	case canonical.SchemeAPIKey:
		switch scheme.In {
		case canonical.InQuery:
			req.query.Set(scheme.ParamName, cred.APIKey)
		case canonical.InCookie:
			req.cookies = append(req.cookies, scheme.ParamName+"="+cred.APIKey)
		default:
			req.header.Set(scheme.ParamName, cred.APIKey)
		}
		return []string{cred.APIKey}
	case canonical.SchemeBasic:
		encoded := base64.StdEncoding.EncodeToString([]byte(cred.Username + ":" + cred.Password))
		req.header.Set("Authorization", "Basic "+encoded)
		return []string{cred.Password, encoded}
	default:
		if s.Settings.TokenInQuery {
			req.query.Set("access_token", cred.Token)
		} else {
			req.header.Set("Authorization", "Bearer "+cred.Token)
		}
		return []string{cred.Token}
	}
}

// extractToken evaluates a JSONPath expression over the caller context.
func extractToken(caller any, path string) (string, bool) {
	if caller == nil {
		return "", false
	}
	p, err := jsonpath.NewPath(path)
	if err != nil {
		return "", false
	}
	var root yaml.Node
	if err := root.Encode(caller); err != nil {
		return "", false
	}
	for _, n := range p.Query(&root) {
		if n.Kind == yaml.ScalarNode && n.Value != "" {
			return n.Value, true
		}
	}
	return "", false
}
