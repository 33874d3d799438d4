// Package naming maps OpenAPI identifiers to GraphQL names and back.
package naming

import (
	"strings"
	"unicode"

	"github.com/gertd/go-pluralize"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Style selects how Sanitize builds an identifier.
type Style string

const (
	// CamelCase lowercases the first letter and capitalizes the letter after
	// every run of non-alphanumeric characters.
	CamelCase Style = "camelCase"
	// Simple strips every character that is not a letter, digit or underscore.
	Simple Style = "simple"
	// PascalCase is CamelCase with an uppercase first letter. Used for type names.
	PascalCase Style = "PascalCase"
	// Constant produces ALL_CAPS words joined by underscores. Used for enum values.
	Constant Style = "CONSTANT"
)

// ParseStyle converts a configured naming mode. Empty means CamelCase.
func ParseStyle(s string) (Style, bool) {
	switch strings.TrimSpace(s) {
	case "", string(CamelCase):
		return CamelCase, true
	case string(Simple):
		return Simple, true
	}
	return "", false
}

// Types returns the style used for type names under this naming mode.
func (s Style) Types() Style {
	if s == Simple {
		return Simple
	}
	return PascalCase
}

// Fields returns the style used for field and argument names.
func (s Style) Fields() Style {
	if s == Simple {
		return Simple
	}
	return CamelCase
}

// EnumValues returns the style used for enum value names.
func (s Style) EnumValues() Style {
	if s == Simple {
		return Simple
	}
	return Constant
}

var accents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldAccents(s string) string {
	out, _, err := transform.String(accents, s)
	if err != nil {
		return s
	}
	return out
}

// Sanitize maps an arbitrary identifier to a valid GraphQL name.
// The result is deterministic for a given (name, style).
func Sanitize(name string, style Style) string {
	name = foldAccents(name)
	var out string
	switch style {
	case Simple:
		out = simple(name)
	case Constant:
		out = constant(name)
	case PascalCase:
		out = camel(name, true)
	default:
		out = camel(name, false)
	}
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		return "_" + out
	}
	return out
}

func isAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

func simple(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isAlnum(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func camel(name string, upperFirst bool) string {
	var b strings.Builder
	boundary := false
	for _, r := range name {
		if !isAlnum(r) {
			boundary = b.Len() > 0
			continue
		}
		switch {
		case b.Len() == 0 && upperFirst:
			r = unicode.ToUpper(r)
		case b.Len() == 0:
			r = unicode.ToLower(r)
		case boundary:
			r = unicode.ToUpper(r)
		}
		boundary = false
		b.WriteRune(r)
	}
	return b.String()
}

// Words splits an identifier on case changes and non-alphanumeric runs.
func Words(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	rs := []rune(foldAccents(name))
	for i, r := range rs {
		if !isAlnum(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

func constant(name string) string {
	words := Words(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w)
	}
	return strings.Join(words, "_")
}

// Capitalize uppercases the first rune.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

var plurals = pluralize.NewClient()

// Pluralize returns the plural form of the last word of a camelCase identifier.
func Pluralize(name string) string {
	if name == "" {
		return name
	}
	words := Words(name)
	if len(words) == 0 {
		return name
	}
	last := words[len(words)-1]
	if plurals.IsPlural(last) && !plurals.IsSingular(last) {
		return name
	}
	plural := plurals.Plural(last)
	if !strings.HasSuffix(name, last) {
		return name + "s"
	}
	return strings.TrimSuffix(name, last) + plural
}

// InferResourceName derives a name from a path template by joining its
// literal segments: /users/{id}/friends -> usersFriends.
func InferResourceName(path string) string {
	var b strings.Builder
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || strings.Contains(seg, "{") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(seg)
	}
	return camel(b.String(), false)
}
