// Package logpoint compiles logpoint message templates into breakpoint
// conditions that report through a runtime binding and never pause.
package logpoint

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Segment is a piece of a template: literal text or a {expression}.
type Segment struct {
	Text string
	Expr bool
}

// Parse splits template into literal and expression segments. Braces inside
// an expression nest, and braces inside string literals are ignored.
// An empty placeholder is kept as literal text.
func Parse(template string) ([]Segment, error) {
	var (
		segs []Segment
		lit  strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '}' {
			return nil, fmt.Errorf("unmatched '}' at offset %d", i)
		}
		if c != '{' {
			lit.WriteByte(c)
			continue
		}

		end, err := scanExpression(template, i+1)
		if err != nil {
			return nil, err
		}
		expr := strings.TrimSpace(template[i+1 : end])
		if expr == "" {
			lit.WriteString(template[i : end+1])
		} else {
			flush()
			segs = append(segs, Segment{Text: expr, Expr: true})
		}
		i = end
	}
	flush()
	return segs, nil
}

// scanExpression returns the offset of the '}' closing the placeholder that
// starts at start.
func scanExpression(s string, start int) (int, error) {
	depth := 1
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unclosed '{' at offset %d", start-1)
}

// Expressions returns the distinct expressions of segs in first-use order.
func Expressions(segs []Segment) []string {
	exprs := lo.FilterMap(segs, func(s Segment, _ int) (string, bool) { return s.Text, s.Expr })
	return lo.Uniq(exprs)
}
