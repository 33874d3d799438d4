package expression

import (
	"fmt"
	"strings"

	"restgraph/internal/apierr"
)

type segment struct {
	literal string
	expr    *Expression
}

// Template is a link parameter value: a constant, a bare expression or a
// string with embedded {$...} expressions.
type Template struct {
	constant any
	segments []segment
}

// Compile parses a link parameter value.
func Compile(value any) (*Template, error) {
	s, ok := value.(string)
	if !ok {
		return &Template{constant: value}, nil
	}
	if strings.HasPrefix(s, "$") {
		e, err := ParseExpression(s)
		if err != nil {
			return nil, err
		}
		return &Template{segments: []segment{{expr: e}}}, nil
	}
	if !strings.Contains(s, "{$") {
		return &Template{constant: s}, nil
	}

	var segments []segment
	rest := s
	for rest != "" {
		open := strings.Index(rest, "{$")
		if open < 0 {
			segments = append(segments, segment{literal: rest})
			break
		}
		if open > 0 {
			segments = append(segments, segment{literal: rest[:open]})
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, apierr.Configuration("unterminated runtime expression in %q", s)
		}
		e, err := ParseExpression(rest[open+1 : open+end])
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment{expr: e})
		rest = rest[open+end+1:]
	}
	return &Template{segments: segments}, nil
}

// Expressions returns the expressions the template reads.
func (t *Template) Expressions() []*Expression {
	var out []*Expression
	for _, seg := range t.segments {
		if seg.expr != nil {
			out = append(out, seg.expr)
		}
	}
	return out
}

// Evaluate produces the value of the template. A bare expression keeps the
// type of the value it reads. The boolean is false when any expression
// has no value.
func (t *Template) Evaluate(ex *Exchange) (any, bool) {
	if t.segments == nil {
		return t.constant, true
	}
	if len(t.segments) == 1 && t.segments[0].expr != nil {
		return t.segments[0].expr.Evaluate(ex)
	}
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.expr == nil {
			b.WriteString(seg.literal)
			continue
		}
		v, ok := seg.expr.Evaluate(ex)
		if !ok {
			return nil, false
		}
		fmt.Fprint(&b, v)
	}
	return b.String(), true
}
