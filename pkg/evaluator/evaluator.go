package evaluator

import (
	"fmt"
	"math"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/diagnostics"
)

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceEvalStart TraceEventType = "eval_start"
	TraceEvalEnd   TraceEventType = "eval_end"
	TraceCallStart TraceEventType = "call_start"
	TraceCallEnd   TraceEventType = "call_end"
)

// TraceEvent represents a single trace event emitted during evaluation.
type TraceEvent struct {
	Event TraceEventType `json:"event"`
	Name  string         `json:"name,omitempty"`
	Span  *ast.Span      `json:"span,omitempty"`
	Err   string         `json:"err,omitempty"`
}

// Options configures evaluation.
type Options struct {
	Budget Budget
	Trace  func(event TraceEvent)
}

// RuntimeError represents a failure while evaluating an expression.
type RuntimeError struct {
	Code    string
	Message string
	Span    *ast.Span
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Diagnostic converts the error to a diagnostic.
func (e *RuntimeError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(e.Code, e.Message, e.Span, "")
}

type evaluator struct {
	env  *Env
	opts Options
}

// Eval evaluates expr against env. Eval only reads env; binding the result is
// the caller's job.
func Eval(expr ast.Expr, env *Env, opts Options) (Value, error) {
	ev := &evaluator{env: env, opts: opts}
	span := expr.NodeSpan()
	ev.emit(TraceEvent{Event: TraceEvalStart, Span: &span})
	val, err := ev.evalExpr(expr)
	end := TraceEvent{Event: TraceEvalEnd, Span: &span}
	if err != nil {
		end.Err = err.Error()
	}
	ev.emit(end)
	return val, err
}

func (ev *evaluator) emit(event TraceEvent) {
	if ev.opts.Trace != nil {
		ev.opts.Trace(event)
	}
}

func errAt(code string, span ast.Span, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Message: fmt.Sprintf(format, args...), Span: &span}
}

func (ev *evaluator) evalExpr(expr ast.Expr) (Value, error) {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		return NewNumber(float64(e.Value)), nil

	case *ast.FloatLiteral:
		return NewNumber(e.Value), nil

	case *ast.BoolLiteral:
		return NewBool(e.Value), nil

	case *ast.StrLiteral:
		if err := ev.checkString(e.Value, e.Span); err != nil {
			return nil, err
		}
		return NewString(e.Value), nil

	case *ast.IdentPath:
		return ev.evalIdentPath(e)

	case *ast.ParenExpr:
		return ev.evalExpr(e.Inner)

	case *ast.UnaryExpr:
		return ev.evalUnary(e)

	case *ast.BinaryExpr:
		return ev.evalBinaryOp(e)

	case *ast.CallExpr:
		return ev.evalCallExpr(e)

	default:
		return nil, &RuntimeError{
			Code:    diagnostics.EType,
			Message: fmt.Sprintf("unsupported expression type: %T", expr),
		}
	}
}

func (ev *evaluator) evalIdentPath(e *ast.IdentPath) (Value, error) {
	name := e.Name()
	val, ok := ev.env.Get(name)
	if !ok {
		return nil, errAt(diagnostics.EUnbound, e.Span, "unbound variable '%s'", name)
	}
	return val, nil
}

func (ev *evaluator) evalUnary(e *ast.UnaryExpr) (Value, error) {
	operand, err := ev.evalExpr(e.Operand)
	if err != nil {
		return nil, err
	}
	if num, ok := operand.(Number); ok {
		return NewNumber(-num.Value), nil
	}
	return nil, errAt(diagnostics.EType, e.Span, "unary '-' requires a number, got %s", TypeName(operand))
}

func (ev *evaluator) evalBinaryOp(e *ast.BinaryExpr) (Value, error) {
	left, err := ev.evalExpr(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := ev.evalExpr(e.Right)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ast.OpAdd:
		if lNum, ok := left.(Number); ok {
			if rNum, ok := right.(Number); ok {
				return checkNumber(lNum.Value+rNum.Value, e.Span, lNum.Value, rNum.Value)
			}
		}
		if lStr, ok := left.(String); ok {
			if rStr, ok := right.(String); ok {
				s := lStr.Value + rStr.Value
				if err := ev.checkString(s, e.Span); err != nil {
					return nil, err
				}
				return NewString(s), nil
			}
		}
		return nil, errAt(diagnostics.EType, e.Span,
			"operator '+' requires two numbers or two strings, got %s and %s", TypeName(left), TypeName(right))

	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod, ast.OpPow:
		lNum, lOk := left.(Number)
		rNum, rOk := right.(Number)
		if !lOk || !rOk {
			return nil, errAt(diagnostics.EType, e.Span,
				"operator '%s' requires two numbers, got %s and %s", string(e.Op), TypeName(left), TypeName(right))
		}
		a, b := lNum.Value, rNum.Value
		switch e.Op {
		case ast.OpSub:
			return checkNumber(a-b, e.Span, a, b)
		case ast.OpMul:
			return checkNumber(a*b, e.Span, a, b)
		case ast.OpDiv:
			if b == 0 {
				return nil, errAt(diagnostics.EDivZero, e.Span, "division by zero")
			}
			return checkNumber(a/b, e.Span, a, b)
		case ast.OpMod:
			if b == 0 {
				return nil, errAt(diagnostics.EDivZero, e.Span, "modulo by zero")
			}
			return checkNumber(FloorMod(a, b), e.Span, a, b)
		default:
			return checkNumber(math.Pow(a, b), e.Span, a, b)
		}

	case ast.OpEqEq:
		return NewBool(DeepEqual(left, right)), nil

	case ast.OpNeq:
		return NewBool(!DeepEqual(left, right)), nil

	case ast.OpGt, ast.OpLt, ast.OpGtEq, ast.OpLtEq:
		if lNum, ok := left.(Number); ok {
			if rNum, ok := right.(Number); ok {
				return NewBool(compare(e.Op, lNum.Value, rNum.Value)), nil
			}
		}
		if lStr, ok := left.(String); ok {
			if rStr, ok := right.(String); ok {
				return NewBool(compare(e.Op, lStr.Value, rStr.Value)), nil
			}
		}
		return nil, errAt(diagnostics.EType, e.Span,
			"operator '%s' requires two numbers or two strings, got %s and %s", string(e.Op), TypeName(left), TypeName(right))
	}

	return nil, errAt(diagnostics.EType, e.Span, "unknown operator '%s'", string(e.Op))
}

func compare[T float64 | string](op ast.BinaryOp, a, b T) bool {
	switch op {
	case ast.OpGt:
		return a > b
	case ast.OpLt:
		return a < b
	case ast.OpGtEq:
		return a >= b
	default:
		return a <= b
	}
}

// FloorMod returns a - floor(a/b)*b: the result takes the sign of b.
func FloorMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// checkNumber rejects NaN results, and infinite results computed from finite
// inputs. Arithmetic that already involves an infinity may stay infinite.
func checkNumber(n float64, span ast.Span, inputs ...float64) (Value, error) {
	if math.IsNaN(n) {
		return nil, errAt(diagnostics.EDomain, span, "result is not a number")
	}
	if math.IsInf(n, 0) {
		for _, in := range inputs {
			if math.IsInf(in, 0) {
				return NewNumber(n), nil
			}
		}
		return nil, errAt(diagnostics.EDomain, span, "result overflows to infinity")
	}
	return NewNumber(n), nil
}

func (ev *evaluator) checkString(s string, span ast.Span) error {
	limit := ev.opts.Budget.maxStringBytes()
	if limit > 0 && len(s) > limit {
		return errAt(diagnostics.EBudget, span, "string of %d bytes exceeds limit of %d", len(s), limit)
	}
	return nil
}

func (ev *evaluator) evalCallExpr(e *ast.CallExpr) (Value, error) {
	name := e.Callee.Name()
	callee, ok := ev.env.Get(name)
	if !ok {
		return nil, errAt(diagnostics.EUnknownFn, e.Callee.Span, "unknown function '%s'", name)
	}
	fn, ok := callee.(*Builtin)
	if !ok {
		return nil, errAt(diagnostics.ENotCall, e.Callee.Span, "'%s' is a %s, not a function", name, TypeName(callee))
	}
	if !fn.AcceptsArgs(len(e.Args)) {
		return nil, errAt(diagnostics.EArity, e.Span, "%s expects %s, got %d", name, ArityText(fn), len(e.Args))
	}

	args := make([]float64, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.evalExpr(a)
		if err != nil {
			return nil, err
		}
		num, ok := v.(Number)
		if !ok {
			return nil, errAt(diagnostics.EType, a.NodeSpan(), "argument %d to %s must be a number, got %s", i+1, name, TypeName(v))
		}
		args[i] = num.Value
	}

	span := e.Span
	ev.emit(TraceEvent{Event: TraceCallStart, Name: fn.Name, Span: &span})
	result, err := fn.Fn(args)
	ev.emit(TraceEvent{Event: TraceCallEnd, Name: fn.Name, Span: &span})
	if err != nil {
		return nil, errAt(diagnostics.EFn, span, "%s: %s", name, err.Error())
	}
	return checkNumber(result, span, args...)
}

// ArityText describes the argument counts fn accepts, e.g. "1 to 2 arguments".
func ArityText(fn *Builtin) string {
	plural := func(n int) string {
		if n == 1 {
			return "1 argument"
		}
		return fmt.Sprintf("%d arguments", n)
	}
	switch {
	case fn.MaxArgs == Variadic:
		return "at least " + plural(fn.MinArgs)
	case fn.MinArgs == fn.MaxArgs:
		return plural(fn.MinArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", fn.MinArgs, fn.MaxArgs)
	}
}
