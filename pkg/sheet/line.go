package sheet

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/lexer"
)

// LineKind classifies a source line.
type LineKind int

const (
	KindBlank LineKind = iota
	KindComment
	KindAssignment
	KindExpression
)

func (k LineKind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindComment:
		return "comment"
	case KindAssignment:
		return "assignment"
	default:
		return "expression"
	}
}

// Line is a classified source line.
type Line struct {
	Kind LineKind
	Name string // assignment target, empty otherwise
	Expr string // expression text, trimmed
	Col  int    // 1-based byte column where Expr starts
}

var assignRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=`)

// SplitLine classifies text. "name = rest" is an assignment unless rest
// starts with '=' (so "x == 1" is a comparison) or name is a keyword.
// Anything else that is not blank or a "#" comment is a bare expression.
func SplitLine(text string) Line {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Line{Kind: KindBlank}
	}
	if strings.HasPrefix(trimmed, "#") {
		return Line{Kind: KindComment}
	}

	if m := assignRe.FindStringSubmatchIndex(text); m != nil {
		name := text[m[2]:m[3]]
		rest := text[m[1]:]
		if !strings.HasPrefix(rest, "=") && !lexer.IsKeyword(name) {
			start := m[1] + leadingSpace(rest)
			return Line{
				Kind: KindAssignment,
				Name: name,
				Expr: strings.TrimSpace(rest),
				Col:  start + 1,
			}
		}
	}

	return Line{
		Kind: KindExpression,
		Expr: trimmed,
		Col:  leadingSpace(text) + 1,
	}
}

func leadingSpace(s string) int {
	return len(s) - len(strings.TrimLeftFunc(s, unicode.IsSpace))
}

// Place moves a span relative to the expression text onto document line n.
// The input span is not modified.
func (l Line) Place(s *ast.Span, n int, filename string) *ast.Span {
	if s == nil {
		return nil
	}
	return &ast.Span{
		File:      filename,
		StartLine: n,
		StartCol:  s.StartCol + l.Col - 1,
		EndLine:   n,
		EndCol:    s.EndCol + l.Col - 1,
	}
}
