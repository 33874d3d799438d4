package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Specs                  []SpecSource      `json:"specs" yaml:"specs"`
	Naming                 string            `json:"naming,omitempty" yaml:"naming,omitempty"`
	AddLimitArgument       bool              `json:"add_limit_argument,omitempty" yaml:"add_limit_argument,omitempty"`
	ProvideErrorExtensions bool              `json:"provide_error_extensions,omitempty" yaml:"provide_error_extensions,omitempty"`
	GenericPayloadArgName  bool              `json:"generic_payload_arg_name,omitempty" yaml:"generic_payload_arg_name,omitempty"`
	OperationIDFieldNames  bool              `json:"operation_id_field_names,omitempty" yaml:"operation_id_field_names,omitempty"`
	AllowEmptyRoot         bool              `json:"allow_empty_root,omitempty" yaml:"allow_empty_root,omitempty"`
	Viewer                 bool              `json:"viewer,omitempty" yaml:"viewer,omitempty"`
	Headers                map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryString            map[string]string `json:"query_string,omitempty" yaml:"query_string,omitempty"`
	BaseURL                string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	OAuth                  *OAuthConfig      `json:"oauth,omitempty" yaml:"oauth,omitempty"`
	CustomResolvers        []CustomResolver  `json:"custom_resolvers,omitempty" yaml:"custom_resolvers,omitempty"`
	Transport              TransportConfig   `json:"transport,omitempty" yaml:"transport,omitempty"`
	Audit                  *AuditConfig      `json:"audit,omitempty" yaml:"audit,omitempty"`
	Log                    LogConfig         `json:"log,omitempty" yaml:"log,omitempty"`
}

// SpecSource is one OpenAPI document, read from a file or fetched.
type SpecSource struct {
	File    string            `json:"file,omitempty" yaml:"file,omitempty"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"` // sent when fetching url
	BaseURL string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

type OAuthConfig struct {
	TokenJSONPath string `json:"token_json_path" yaml:"token_json_path"`
	Placement     string `json:"placement,omitempty" yaml:"placement,omitempty"` // header or query
}

// CustomResolver replaces the synthesized resolver of one operation.
type CustomResolver struct {
	Title    string `json:"title" yaml:"title"`
	Path     string `json:"path" yaml:"path"`
	Method   string `json:"method" yaml:"method"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"` // javascript or typescript
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
}

type TransportConfig struct {
	TimeoutSeconds         int     `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	RateLimitPerSecond     float64 `json:"rate_limit_per_second,omitempty" yaml:"rate_limit_per_second,omitempty"`
	Burst                  int     `json:"burst,omitempty" yaml:"burst,omitempty"`
	RateLimitPerMinute     int     `json:"rate_limit_per_minute,omitempty" yaml:"rate_limit_per_minute,omitempty"`
	BreakerFailures        int     `json:"breaker_failures,omitempty" yaml:"breaker_failures,omitempty"`
	BreakerCooldownSeconds int     `json:"breaker_cooldown_seconds,omitempty" yaml:"breaker_cooldown_seconds,omitempty"`
}

type AuditConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

type LogConfig struct {
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // text or json
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
}

func (c *Config) ApplyDefaults() {
	if c.Naming == "" {
		c.Naming = "camelCase"
	}
	if c.OAuth != nil && c.OAuth.Placement == "" {
		c.OAuth.Placement = "header"
	}
	if c.Transport.TimeoutSeconds == 0 {
		c.Transport.TimeoutSeconds = 30
	}
	if c.Transport.RateLimitPerSecond > 0 && c.Transport.Burst == 0 {
		c.Transport.Burst = int(c.Transport.RateLimitPerSecond)
		if c.Transport.Burst < 1 {
			c.Transport.Burst = 1
		}
	}
	if c.Transport.BreakerFailures > 0 && c.Transport.BreakerCooldownSeconds == 0 {
		c.Transport.BreakerCooldownSeconds = 30
	}
	for i := range c.CustomResolvers {
		if c.CustomResolvers[i].Language == "" {
			c.CustomResolvers[i].Language = "javascript"
		}
		c.CustomResolvers[i].Method = strings.ToUpper(c.CustomResolvers[i].Method)
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if len(c.Specs) == 0 {
		return fmt.Errorf("specs: at least one spec is required")
	}
	for i, s := range c.Specs {
		if s.File == "" && s.URL == "" {
			return fmt.Errorf("specs[%d]: either file or url is required", i)
		}
		if s.File != "" && s.URL != "" {
			return fmt.Errorf("specs[%d]: file and url are mutually exclusive", i)
		}
	}
	switch c.Naming {
	case "camelCase", "simple":
	default:
		return fmt.Errorf("naming must be 'camelCase' or 'simple', got %q", c.Naming)
	}
	if c.OAuth != nil {
		if c.OAuth.TokenJSONPath == "" {
			return fmt.Errorf("oauth.token_json_path is required")
		}
		if !strings.HasPrefix(c.OAuth.TokenJSONPath, "$") {
			return fmt.Errorf("oauth.token_json_path must start with '$', got %q", c.OAuth.TokenJSONPath)
		}
		switch c.OAuth.Placement {
		case "header", "query":
		default:
			return fmt.Errorf("oauth.placement must be 'header' or 'query', got %q", c.OAuth.Placement)
		}
	}
	seen := map[string]struct{}{}
	for i, r := range c.CustomResolvers {
		if r.Title == "" || r.Path == "" {
			return fmt.Errorf("custom_resolvers[%d]: title and path are required", i)
		}
		if err := validateMethod(r.Method); err != nil {
			return fmt.Errorf("custom_resolvers[%d].method: %w", i, err)
		}
		switch r.Language {
		case "javascript", "typescript":
		default:
			return fmt.Errorf("custom_resolvers[%d]: language must be 'javascript' or 'typescript', got %q", i, r.Language)
		}
		if (r.Source == "") == (r.File == "") {
			return fmt.Errorf("custom_resolvers[%d]: exactly one of source or file is required", i)
		}
		key := r.Title + " " + r.Method + " " + r.Path
		if _, ok := seen[key]; ok {
			return fmt.Errorf("custom_resolvers[%d]: duplicate resolver for %s %s in %q", i, r.Method, r.Path, r.Title)
		}
		seen[key] = struct{}{}
	}
	t := c.Transport
	if t.TimeoutSeconds < 0 {
		return fmt.Errorf("transport.timeout_seconds must be >= 0")
	}
	if t.RateLimitPerSecond < 0 || t.Burst < 0 || t.RateLimitPerMinute < 0 {
		return fmt.Errorf("transport rate limits must be >= 0")
	}
	if t.BreakerFailures < 0 || t.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("transport breaker settings must be >= 0")
	}
	if c.Audit != nil && c.Audit.DBPath == "" {
		return fmt.Errorf("audit.db_path is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got %q", c.Log.Format)
	}
	return nil
}

func validateMethod(method string) error {
	validMethods := []string{"GET", "PUT", "POST", "PATCH", "DELETE", "OPTIONS", "HEAD", "TRACE"}
	for _, valid := range validMethods {
		if method == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid HTTP method %q", method)
}

// Secrets returns configured values that must never appear in logs.
func (c *Config) Secrets() []string {
	var secrets []string
	for _, v := range c.Headers {
		if v != "" {
			secrets = append(secrets, v)
		}
	}
	for _, v := range c.QueryString {
		if v != "" {
			secrets = append(secrets, v)
		}
	}
	for _, s := range c.Specs {
		for _, v := range s.Headers {
			if v != "" {
				secrets = append(secrets, v)
			}
		}
	}
	return secrets
}
