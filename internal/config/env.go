package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// varRef matches ${NAME}. A bare $NAME is left untouched.
var varRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Interpolate substitutes every ${NAME} in s from the environment. All
// unset names are reported in one error.
func Interpolate(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var unset []string
	out := varRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		v, ok := os.LookupEnv(name)
		if !ok {
			unset = append(unset, name)
		}
		return v
	})
	if len(unset) > 0 {
		return "", fmt.Errorf("environment variable not set: %s", strings.Join(unset, ", "))
	}
	return out, nil
}

// ExpandEnv interpolates the fields that may carry a location or a
// secret. Script sources are left alone.
func (c *Config) ExpandEnv() error {
	var firstErr error
	field := func(name string, v *string) {
		if firstErr != nil {
			return
		}
		out, err := Interpolate(*v)
		if err != nil {
			firstErr = fmt.Errorf("%s: %w", name, err)
			return
		}
		*v = out
	}
	fields := func(prefix string, m map[string]string) {
		for k := range m {
			v := m[k]
			field(prefix+"."+k, &v)
			m[k] = v
		}
	}

	field("base_url", &c.BaseURL)
	fields("headers", c.Headers)
	fields("query_string", c.QueryString)
	for i := range c.Specs {
		prefix := fmt.Sprintf("specs[%d]", i)
		field(prefix+".file", &c.Specs[i].File)
		field(prefix+".url", &c.Specs[i].URL)
		field(prefix+".base_url", &c.Specs[i].BaseURL)
		fields(prefix+".headers", c.Specs[i].Headers)
	}
	for i := range c.CustomResolvers {
		field(fmt.Sprintf("custom_resolvers[%d].file", i), &c.CustomResolvers[i].File)
	}
	if c.Audit != nil {
		field("audit.db_path", &c.Audit.DBPath)
	}
	return firstErr
}
