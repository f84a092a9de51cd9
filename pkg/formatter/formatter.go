// Package formatter renders expressions and sheets back to canonical source.
package formatter

import (
	"strconv"
	"strings"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/parser"
	"github.com/thomasrohde/livecalc/pkg/sheet"
)

// Binding strength, higher binds tighter.
const (
	precComparison = iota + 1
	precAdditive
	precMultiplicative
	precUnary
	precPower
	precPrimary
)

var binaryPrec = map[ast.BinaryOp]int{
	ast.OpEqEq: precComparison, ast.OpNeq: precComparison,
	ast.OpGt: precComparison, ast.OpLt: precComparison, ast.OpGtEq: precComparison, ast.OpLtEq: precComparison,
	ast.OpAdd: precAdditive, ast.OpSub: precAdditive,
	ast.OpMul: precMultiplicative, ast.OpDiv: precMultiplicative, ast.OpMod: precMultiplicative,
	ast.OpPow: precPower,
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.Inner
	}
}

func prec(e ast.Expr) int {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		return binaryPrec[n.Op]
	case *ast.UnaryExpr:
		return precUnary
	}
	return precPrimary
}

// Format renders expr with single spaces around binary operators and only the
// parentheses the grammar needs.
func Format(expr ast.Expr) string {
	return formatExpr(unparen(expr))
}

func formatExpr(e ast.Expr) string {
	switch n := e.(type) {
	case *ast.IntLiteral:
		if n.Hex {
			return "0x" + strconv.FormatUint(uint64(n.Value), 16)
		}
		return strconv.FormatInt(n.Value, 10)
	case *ast.FloatLiteral:
		return formatFloatLiteral(n)
	case *ast.BoolLiteral:
		if n.Value {
			return "true"
		}
		return "false"
	case *ast.StrLiteral:
		return quote(n.Value)
	case *ast.IdentPath:
		return n.Name()
	case *ast.ParenExpr:
		return formatExpr(unparen(n))
	case *ast.CallExpr:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Format(a)
		}
		return n.Callee.Name() + "(" + strings.Join(args, ", ") + ")"
	case *ast.UnaryExpr:
		// The operand of '-' is itself unary or a power.
		return string(n.Op) + operand(n.Operand, precUnary)
	case *ast.BinaryExpr:
		p := binaryPrec[n.Op]
		var left, right string
		if n.Op == ast.OpPow {
			// primary ^ unary
			left = operand(n.Left, precPrimary)
			right = operand(n.Right, precUnary)
		} else {
			left = operand(n.Left, p)
			right = operand(n.Right, p+1)
		}
		return left + " " + string(n.Op) + " " + right
	}
	return ""
}

// operand formats e, parenthesized when it binds looser than need.
func operand(e ast.Expr, need int) string {
	e = unparen(e)
	s := formatExpr(e)
	if prec(e) < need {
		return "(" + s + ")"
	}
	return s
}

func formatFloatLiteral(n *ast.FloatLiteral) string {
	raw := n.Raw
	if raw == "" {
		raw = strconv.FormatFloat(n.Value, 'g', -1, 64)
	}
	raw = strings.ToLower(raw)
	if strings.HasPrefix(raw, ".") {
		raw = "0" + raw
	}
	return raw
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// HasComment reports whether src contains a '#' comment outside string
// literals.
func HasComment(src string) bool {
	var quoteCh byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quoteCh != 0 && c == '\\':
			i++
		case quoteCh != 0 && c == quoteCh:
			quoteCh = 0
		case quoteCh != 0:
		case c == '"' || c == '\'':
			quoteCh = c
		case c == '#':
			return true
		}
	}
	return false
}

// FormatLine canonicalizes line n of a sheet. Blank lines, comment lines and
// lines with a trailing comment are returned unchanged, as are lines that do
// not compile; the latter also yield a diagnostic.
func FormatLine(text string, n int, filename string) (string, []diagnostics.Diagnostic) {
	l := sheet.SplitLine(text)
	switch l.Kind {
	case sheet.KindBlank, sheet.KindComment:
		return text, nil
	}
	if HasComment(l.Expr) {
		return text, nil
	}
	expr, diags := parser.ParseExpr(l.Expr, filename)
	if len(diags) > 0 {
		for i := range diags {
			diags[i].Span = l.Place(diags[i].Span, n, filename)
		}
		return text, diags
	}
	out := Format(expr)
	if l.Kind == sheet.KindAssignment {
		out = l.Name + " = " + out
	}
	return out, nil
}

// FormatSheet canonicalizes every line.
func FormatSheet(lines []string, filename string) ([]string, []diagnostics.Diagnostic) {
	out := make([]string, len(lines))
	var all []diagnostics.Diagnostic
	for i, text := range lines {
		formatted, diags := FormatLine(text, i+1, filename)
		out[i] = formatted
		all = append(all, diags...)
	}
	return out, all
}
