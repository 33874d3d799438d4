package naming

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		style Style
		want  string
	}{
		{"camel snake", "user_id", CamelCase, "userId"},
		{"camel kebab header", "X-Rate-Limit", CamelCase, "xRateLimit"},
		{"camel keeps inner case", "UserID", CamelCase, "userID"},
		{"camel path", "/users/{id}", CamelCase, "usersId"},
		{"camel digit prefix", "2fa-code", CamelCase, "_2faCode"},
		{"camel accents", "número", CamelCase, "numero"},
		{"camel empty", "$$", CamelCase, "_"},
		{"pascal", "pet store", PascalCase, "PetStore"},
		{"simple", "user-id.Name", Simple, "useridName"},
		{"simple underscore", "user_id", Simple, "user_id"},
		{"constant kebab", "in-progress", Constant, "IN_PROGRESS"},
		{"constant camel", "inProgress", Constant, "IN_PROGRESS"},
		{"constant acronym", "HTTPStatus", Constant, "HTTP_STATUS"},
		{"constant digit", "404", Constant, "_404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in, tt.style); got != tt.want {
				t.Fatalf("Sanitize(%q, %s) = %q, want %q", tt.in, tt.style, got, tt.want)
			}
		})
	}
}

func TestSanitizeDeterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		if got := Sanitize("pet-owner_name", CamelCase); got != "petOwnerName" {
			t.Fatalf("iteration %d: got %q", i, got)
		}
	}
}

func TestDesanitizeRoundTrip(t *testing.T) {
	m := NewSaneNameMap()
	originals := []string{"user_id", "X-Request-ID", "first name", "status"}
	for _, orig := range originals {
		m.Register(Sanitize(orig, CamelCase), orig)
	}
	for _, orig := range originals {
		if got := Desanitize(Sanitize(orig, CamelCase), m); got != orig {
			t.Fatalf("round trip %q: got %q", orig, got)
		}
	}
	if got := Desanitize("unknown", m); got != "unknown" {
		t.Fatalf("unmapped identifier should pass through, got %q", got)
	}
}

func TestSaneNameMapFirstSeenWins(t *testing.T) {
	m := NewSaneNameMap()
	m.Register("userId", "user_id")
	m.Register("userId", "user-id")
	if got, _ := m.Original("userId"); got != "user_id" {
		t.Fatalf("expected first registration to win, got %q", got)
	}
}

func TestSaneNameMapFrozen(t *testing.T) {
	m := NewSaneNameMap()
	m.Freeze()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on Register after Freeze")
		}
	}()
	m.Register("a", "b")
}

func TestScopeCollisions(t *testing.T) {
	s := NewScope("Query")
	if got := s.Claim("user_id", "userId"); got != "userId" {
		t.Fatalf("first claim: %q", got)
	}
	if got := s.Claim("user-id", "userId"); got != "userId2" {
		t.Fatalf("second claim: %q", got)
	}
	if got := s.Claim("userId", "userId"); got != "userId3" {
		t.Fatalf("third claim: %q", got)
	}
	if got := s.Claim("user_id", "userId"); got != "userId" {
		t.Fatalf("repeat claim should be stable, got %q", got)
	}
	if got := s.Claim("query", "Query"); got != "Query2" {
		t.Fatalf("reserved name should be suffixed, got %q", got)
	}
}

func TestScopeStableAcrossRuns(t *testing.T) {
	run := func() []string {
		s := NewScope()
		var out []string
		for _, orig := range []string{"a_b", "a-b", "aB", "a b"} {
			out = append(out, s.Claim(orig, Sanitize(orig, CamelCase)))
		}
		return out
	}
	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("allocation differs at %d: %q vs %q", i, first[i], second[i])
		}
	}
	if first[3] != "aB4" {
		t.Fatalf("unexpected allocation %v", first)
	}
}

func TestPluralize(t *testing.T) {
	tests := map[string]string{
		"user":      "users",
		"petOwner":  "petOwners",
		"category":  "categories",
		"users":     "users",
		"getPerson": "getPeople",
	}
	for in, want := range tests {
		if got := Pluralize(in); got != want {
			t.Errorf("Pluralize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInferResourceName(t *testing.T) {
	tests := map[string]string{
		"/users":                 "users",
		"/users/{id}/friends":    "usersFriends",
		"/pet-store/{id}/owners": "petStoreOwners",
		"/":                      "",
	}
	for in, want := range tests {
		if got := InferResourceName(in); got != want {
			t.Errorf("InferResourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseStyle(t *testing.T) {
	if s, ok := ParseStyle(""); !ok || s != CamelCase {
		t.Fatalf("empty style should default to camelCase")
	}
	if s, ok := ParseStyle("simple"); !ok || s != Simple {
		t.Fatalf("simple style not parsed")
	}
	if _, ok := ParseStyle("kebab"); ok {
		t.Fatalf("unknown style should be rejected")
	}
	if Simple.Types() != Simple || CamelCase.Types() != PascalCase || CamelCase.EnumValues() != Constant {
		t.Fatalf("derived styles are wrong")
	}
}
