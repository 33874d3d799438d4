package naming

import "strconv"

// SaneNameMap records which original OpenAPI identifier produced each
// sanitized GraphQL identifier. The first original registered for a
// sanitized name wins. Writes happen only while a schema is being
// translated; after Freeze the map is read-only and safe for concurrent use.
type SaneNameMap struct {
	toOriginal map[string]string
	frozen     bool
}

func NewSaneNameMap() *SaneNameMap {
	return &SaneNameMap{toOriginal: map[string]string{}}
}

// Register records sane -> original unless sane is already taken.
func (m *SaneNameMap) Register(sane, original string) {
	if m.frozen {
		panic("naming: Register on frozen SaneNameMap")
	}
	if _, ok := m.toOriginal[sane]; ok {
		return
	}
	m.toOriginal[sane] = original
}

// Original returns the original identifier for a sanitized one.
func (m *SaneNameMap) Original(sane string) (string, bool) {
	if m == nil {
		return "", false
	}
	orig, ok := m.toOriginal[sane]
	return orig, ok
}

// Freeze marks the map read-only.
func (m *SaneNameMap) Freeze() { m.frozen = true }

func (m *SaneNameMap) Len() int { return len(m.toOriginal) }

// Desanitize returns the original identifier for identifier, or identifier
// itself when the map has no entry for it.
func Desanitize(identifier string, m *SaneNameMap) string {
	if orig, ok := m.Original(identifier); ok {
		return orig
	}
	return identifier
}

// Scope allocates unique names within one namespace (the fields of a type,
// the arguments of a field, the set of type names). Two originals that
// sanitize to the same candidate are told apart by a numeric suffix in
// first-seen order.
type Scope struct {
	taken      map[string]string
	byOriginal map[string]string
}

func NewScope(reserved ...string) *Scope {
	s := &Scope{taken: map[string]string{}, byOriginal: map[string]string{}}
	for _, r := range reserved {
		s.taken[r] = ""
	}
	return s
}

// Claim returns the name allocated to original, allocating candidate (or
// candidate2, candidate3, ...) on first sight.
func (s *Scope) Claim(original, candidate string) string {
	if name, ok := s.byOriginal[original]; ok {
		return name
	}
	name := candidate
	for n := 2; ; n++ {
		if _, ok := s.taken[name]; !ok {
			break
		}
		name = candidate + strconv.Itoa(n)
	}
	s.taken[name] = original
	s.byOriginal[original] = name
	return name
}

// Taken reports whether name is already allocated.
func (s *Scope) Taken(name string) bool {
	_, ok := s.taken[name]
	return ok
}
