// Package sheet evaluates a document line by line against a persistent
// environment, producing one record per non-blank line.
package sheet

import (
	"fmt"
	"sort"
	"strconv"

	"fortio.org/log"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/evaluator"
)

// DefaultAnonymousPrefix starts the synthesized name of a bare expression line.
const DefaultAnonymousPrefix = "_"

// ErrorKind classifies a line failure.
type ErrorKind int

const (
	// ParseError: the line yields no usable expression (empty right-hand side).
	ParseError ErrorKind = iota + 1
	// CompileError: the expression text is malformed.
	CompileError
	// EvaluationError: the expression compiled but failed to evaluate.
	EvaluationError
)

func (k ErrorKind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case CompileError:
		return "compile error"
	case EvaluationError:
		return "evaluation error"
	}
	return "error"
}

// LineError is the failure outcome of a line.
type LineError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Span    *ast.Span // document coordinates, nil when unknown
}

func (e *LineError) Error() string {
	return e.Message
}

// LineRecord is the outcome of one non-blank line. Exactly one of Value and
// Err is set.
type LineRecord struct {
	Line       int
	Name       string
	Source     string
	Assignment bool
	Value      evaluator.Value
	Display    string
	Err        *LineError
}

// OK reports whether the line produced a value.
func (r *LineRecord) OK() bool {
	return r.Err == nil
}

// Text returns the display text of a value or the error message.
func (r *LineRecord) Text() string {
	if r.Err != nil {
		return r.Err.Message
	}
	return r.Display
}

// Result is the outcome of one pass. Display holds only lines that produced a
// value.
type Result struct {
	Records map[int]*LineRecord
	Display map[int]string
}

// Lines returns the records in line order.
func (r *Result) Lines() []*LineRecord {
	keys := make([]int, 0, len(r.Records))
	for k := range r.Records {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]*LineRecord, len(keys))
	for i, k := range keys {
		out[i] = r.Records[k]
	}
	return out
}

// Errors returns the failed records in line order.
func (r *Result) Errors() []*LineRecord {
	var out []*LineRecord
	for _, rec := range r.Lines() {
		if rec.Err != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Diagnostics converts line errors to diagnostics.
func (r *Result) Diagnostics() []diagnostics.Diagnostic {
	var out []diagnostics.Diagnostic
	for _, rec := range r.Errors() {
		out = append(out, diagnostics.MakeDiag(rec.Err.Code, rec.Err.Message, rec.Err.Span, ""))
	}
	return out
}

// Option configures Evaluate.
type Option func(*options)

type options struct {
	prefix   string
	filename string
	compiler *Compiler
	eval     evaluator.Options
}

// WithAnonymousPrefix sets the prefix of bare expression names.
func WithAnonymousPrefix(p string) Option {
	return func(o *options) { o.prefix = p }
}

// WithCompiler shares a compiler, and its cache, across passes.
func WithCompiler(c *Compiler) Option {
	return func(o *options) { o.compiler = c }
}

// WithFilename sets the file name reported in error spans.
func WithFilename(name string) Option {
	return func(o *options) { o.filename = name }
}

// WithBudget sets evaluation limits.
func WithBudget(b evaluator.Budget) Option {
	return func(o *options) { o.eval.Budget = b }
}

// WithTrace installs an evaluation trace callback.
func WithTrace(fn func(evaluator.TraceEvent)) Option {
	return func(o *options) { o.eval.Trace = fn }
}

// AnonymousName returns the synthesized binding name of a bare expression on
// line n. Names are position based: the same expression moved to another line
// binds a different name.
func AnonymousName(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}

// Evaluate runs one pass over lines (line numbers are 1-based), binding every
// successful line's value in env. A failing line leaves env untouched and
// never stops the pass. Bindings from earlier passes persist, including those
// of lines that no longer exist.
func Evaluate(lines []string, env *evaluator.Env, format Format, opts ...Option) *Result {
	o := options{prefix: DefaultAnonymousPrefix, filename: DefaultFilename}
	for _, opt := range opts {
		opt(&o)
	}
	if o.compiler == nil {
		o.compiler = NewCompiler(0)
	}

	res := &Result{
		Records: make(map[int]*LineRecord),
		Display: make(map[int]string),
	}
	for i, text := range lines {
		n := i + 1
		l := SplitLine(text)
		if l.Kind == KindBlank || l.Kind == KindComment {
			continue
		}
		rec := evaluateLine(n, l, env, format, &o)
		res.Records[n] = rec
		if rec.Err != nil {
			log.LogVf("sheet: line %d %s: %s", n, rec.Err.Kind, rec.Err.Message)
			continue
		}
		res.Display[n] = rec.Display
	}
	log.LogVf("sheet: pass over %d lines: %d records, %d values", len(lines), len(res.Records), len(res.Display))
	return res
}

func evaluateLine(n int, l Line, env *evaluator.Env, format Format, o *options) *LineRecord {
	rec := &LineRecord{Line: n, Source: l.Expr, Assignment: l.Kind == KindAssignment}
	if rec.Assignment {
		rec.Name = l.Name
	} else {
		rec.Name = AnonymousName(o.prefix, n)
	}

	if l.Expr == "" {
		rec.Err = &LineError{
			Kind:    ParseError,
			Code:    diagnostics.EEmpty,
			Message: fmt.Sprintf("missing expression after '%s ='", l.Name),
			Span:    &ast.Span{File: o.filename, StartLine: n, StartCol: l.Col, EndLine: n, EndCol: l.Col},
		}
		return rec
	}

	expr, diags := o.compiler.Compile(l.Expr)
	if len(diags) > 0 {
		d := diags[0]
		rec.Err = &LineError{Kind: CompileError, Code: d.Code, Message: d.Message, Span: l.Place(d.Span, n, o.filename)}
		return rec
	}

	val, err := evaluator.Eval(expr, env, o.eval)
	if err != nil {
		rec.Err = &LineError{Kind: EvaluationError, Code: diagnostics.EFn, Message: err.Error()}
		if rerr, ok := err.(*evaluator.RuntimeError); ok {
			rec.Err.Code = rerr.Code
			rec.Err.Span = l.Place(rerr.Span, n, o.filename)
		}
		return rec
	}

	env.Set(rec.Name, val)
	rec.Value = val
	rec.Display = FormatValue(val, format)
	return rec
}
