// Package validator statically checks a sheet without evaluating it.
package validator

import (
	"fmt"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/evaluator"
	"github.com/thomasrohde/livecalc/pkg/parser"
	"github.com/thomasrohde/livecalc/pkg/sheet"
)

// Option configures Validate.
type Option func(*validator)

// WithFilename sets the file name used in diagnostic spans.
func WithFilename(name string) Option {
	return func(v *validator) { v.filename = name }
}

// WithAnonymousPrefix sets the prefix of bare expression line names.
func WithAnonymousPrefix(p string) Option {
	return func(v *validator) { v.prefix = p }
}

// WithBound marks names as already bound, e.g. by an earlier pass.
func WithBound(names ...string) Option {
	return func(v *validator) {
		for _, n := range names {
			v.bound[n] = 0
		}
	}
}

type validator struct {
	builtins evaluator.Scope
	filename string
	prefix   string
	// bound maps a name to the line that binds it; 0 means before the sheet.
	bound    map[string]int
	assigned map[string]int
	// fns holds sheet names currently bound to a builtin, as in f = sqrt.
	fns      map[string]*evaluator.Builtin
	diags    []diagnostics.Diagnostic
}

// Validate reports, per line and in line order: compile errors, empty
// assignments, calls to unknown or non-callable names, wrong argument counts
// for builtins, references to names not bound by an earlier line, and
// assignments that shadow a builtin. It never evaluates anything.
func Validate(lines []string, builtins evaluator.Scope, opts ...Option) []diagnostics.Diagnostic {
	v := &validator{
		builtins: builtins,
		filename: sheet.DefaultFilename,
		prefix:   sheet.DefaultAnonymousPrefix,
		bound:    make(map[string]int),
		assigned: make(map[string]int),
		fns:      make(map[string]*evaluator.Builtin),
	}
	for _, opt := range opts {
		opt(v)
	}

	parsed := make([]sheet.Line, len(lines))
	for i, text := range lines {
		l := sheet.SplitLine(text)
		parsed[i] = l
		if l.Kind == sheet.KindAssignment {
			if _, seen := v.assigned[l.Name]; !seen {
				v.assigned[l.Name] = i + 1
			}
		}
	}
	for i, l := range parsed {
		v.validateLine(i+1, l)
	}
	return v.diags
}

func (v *validator) add(code, msg string, span *ast.Span, hint string) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, span, hint))
}

func (v *validator) validateLine(n int, l sheet.Line) {
	if l.Kind == sheet.KindBlank || l.Kind == sheet.KindComment {
		return
	}
	name := l.Name
	if l.Kind == sheet.KindExpression {
		name = sheet.AnonymousName(v.prefix, n)
	}

	if l.Expr == "" {
		span := &ast.Span{File: v.filename, StartLine: n, StartCol: l.Col, EndLine: n, EndCol: l.Col}
		v.add(diagnostics.EEmpty, fmt.Sprintf("missing expression after '%s ='", l.Name), span, "")
		return
	}

	expr, diags := parser.ParseExpr(l.Expr, v.filename)
	if len(diags) > 0 {
		for _, d := range diags {
			v.add(d.Code, d.Message, l.Place(d.Span, n, v.filename), d.Hint)
		}
		return
	}

	before := len(v.diags)
	ast.Walk(expr, func(e ast.Expr) bool {
		switch node := e.(type) {
		case *ast.IdentPath:
			v.checkIdent(n, l, node)
		case *ast.CallExpr:
			v.checkCall(n, l, node)
		}
		return true
	})

	if l.Kind == sheet.KindAssignment {
		if _, ok := v.builtins.Lookup(name); ok {
			span := &ast.Span{File: v.filename, StartLine: n, StartCol: 1, EndLine: n, EndCol: l.Col}
			v.add(diagnostics.WShadow,
				fmt.Sprintf("'%s' shadows a builtin", name), span,
				"later lines will see the assigned value instead")
		}
	}

	if !diagnostics.HasErrors(v.diags[before:]) {
		if fn := v.builtinAlias(expr); fn != nil {
			v.fns[name] = fn
		} else {
			delete(v.fns, name)
		}
		if _, ok := v.bound[name]; !ok {
			v.bound[name] = n
		}
	}
}

func (v *validator) checkIdent(n int, l sheet.Line, id *ast.IdentPath) {
	name := id.Name()
	if _, ok := v.bound[name]; ok {
		return
	}
	if _, ok := v.builtins.Lookup(name); ok {
		return
	}
	hint := ""
	if at, ok := v.assigned[name]; ok && at >= n {
		hint = fmt.Sprintf("'%s' is assigned on line %d", name, at)
	}
	v.add(diagnostics.EUnbound, fmt.Sprintf("unbound variable '%s'", name), l.Place(&id.Span, n, v.filename), hint)
}

func (v *validator) checkCall(n int, l sheet.Line, call *ast.CallExpr) {
	name := call.Callee.Name()
	calleeSpan := l.Place(&call.Callee.Span, n, v.filename)
	if at, ok := v.bound[name]; ok {
		if fn, ok := v.fns[name]; ok {
			v.checkArity(n, l, call, fn)
			return
		}
		// A value from an earlier pass is unknown here.
		if at == 0 {
			return
		}
		v.add(diagnostics.ENotCall, fmt.Sprintf("'%s' is a variable, not a function", name), calleeSpan,
			boundHint(name, at))
		return
	}
	val, ok := v.builtins.Lookup(name)
	if !ok {
		v.add(diagnostics.EUnknownFn, fmt.Sprintf("unknown function '%s'", name), calleeSpan, "")
		return
	}
	fn, ok := val.(*evaluator.Builtin)
	if !ok {
		v.add(diagnostics.ENotCall, fmt.Sprintf("'%s' is a %s, not a function", name, evaluator.TypeName(val)), calleeSpan, "")
		return
	}
	v.checkArity(n, l, call, fn)
}

func (v *validator) checkArity(n int, l sheet.Line, call *ast.CallExpr, fn *evaluator.Builtin) {
	name := call.Callee.Name()
	if !fn.AcceptsArgs(len(call.Args)) {
		v.add(diagnostics.EArity,
			fmt.Sprintf("%s expects %s, got %d", name, evaluator.ArityText(fn), len(call.Args)),
			l.Place(&call.Span, n, v.filename), "")
	}
}

// builtinAlias returns the builtin e evaluates to when e is a name, possibly
// parenthesized, that resolves to one. Any other expression yields a number,
// string or bool.
func (v *validator) builtinAlias(e ast.Expr) *evaluator.Builtin {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			break
		}
		e = p.Inner
	}
	id, ok := e.(*ast.IdentPath)
	if !ok {
		return nil
	}
	name := id.Name()
	if _, ok := v.bound[name]; ok {
		return v.fns[name]
	}
	val, _ := v.builtins.Lookup(name)
	fn, _ := val.(*evaluator.Builtin)
	return fn
}

func boundHint(name string, line int) string {
	if line == 0 {
		return ""
	}
	return fmt.Sprintf("'%s' is assigned on line %d", name, line)
}
