package evaluator_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/evaluator"
	"github.com/thomasrohde/livecalc/pkg/parser"
)

// --- helpers ---

func unary(name string, f func(float64) float64) *evaluator.Builtin {
	return &evaluator.Builtin{Name: name, MinArgs: 1, MaxArgs: 1, Fn: func(a []float64) (float64, error) {
		return f(a[0]), nil
	}}
}

// testScope is a small capability set independent of pkg/stdlib.
func testScope() evaluator.MapScope {
	return evaluator.MapScope{
		"sqrt":      unary("sqrt", math.Sqrt),
		"math.sqrt": unary("sqrt", math.Sqrt),
		"log":       unary("log", math.Log),
		"max": &evaluator.Builtin{Name: "max", MinArgs: 1, MaxArgs: evaluator.Variadic, Fn: func(a []float64) (float64, error) {
			m := a[0]
			for _, v := range a[1:] {
				m = math.Max(m, v)
			}
			return m, nil
		}},
		"fail": &evaluator.Builtin{Name: "fail", MinArgs: 0, MaxArgs: 0, Fn: func([]float64) (float64, error) {
			return 0, errors.New("boom")
		}},
		"pi":   evaluator.NewNumber(math.Pi),
		"huge": evaluator.NewNumber(math.Inf(1)),
	}
}

func newEnv() *evaluator.Env {
	return evaluator.NewEnv(testScope())
}

// eval parses src and evaluates it against env.
func eval(t *testing.T, src string, env *evaluator.Env, opts evaluator.Options) (evaluator.Value, error) {
	t.Helper()
	expr, diags := parser.ParseExpr(src, "test.calc")
	if len(diags) > 0 {
		t.Fatalf("parse errors: %s", diagnostics.FormatDiagnostics(diags, true))
	}
	return evaluator.Eval(expr, env, opts)
}

// mustEval evaluates src against a fresh env and fails on runtime errors.
func mustEval(t *testing.T, src string) evaluator.Value {
	t.Helper()
	v, err := eval(t, src, newEnv(), evaluator.Options{})
	if err != nil {
		t.Fatalf("unexpected runtime error for %q: %v", src, err)
	}
	return v
}

// expectError evaluates src and returns the runtime error it must produce.
func expectError(t *testing.T, src string, env *evaluator.Env, code string) *evaluator.RuntimeError {
	t.Helper()
	_, err := eval(t, src, env, evaluator.Options{})
	if err == nil {
		t.Fatalf("expected %s error for %q", code, src)
	}
	var rerr *evaluator.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if rerr.Code != code {
		t.Errorf("%q: expected code %s, got %s (%s)", src, code, rerr.Code, rerr.Message)
	}
	return rerr
}

func expectNumber(t *testing.T, val evaluator.Value, expected float64) {
	t.Helper()
	num, ok := val.(evaluator.Number)
	if !ok {
		t.Fatalf("expected Number, got %T (%v)", val, val)
	}
	if math.Abs(num.Value-expected) > 1e-12 {
		t.Errorf("got %v, want %v", num.Value, expected)
	}
}

// ---- arithmetic ----

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want float64
	}{
		{"2 + 3", 5},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 - 4 - 3", 3},
		{"7 / 2", 3.5},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512},
		{"-2 ^ 2", -4},
		{"7 % 3", 1},
		{"-7 % 3", 2},
		{"7 % -3", -2},
		{"5.5 % 2", 1.5},
		{"0xff + 1", 256},
		{".5 * 4", 2},
		{"--3", 3},
		{"sqrt(16)", 4},
		{"math.sqrt(2) ^ 2", 2},
		{"max(1, 7, 3)", 7},
		{"pi", math.Pi},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expectNumber(t, mustEval(t, tt.src), tt.want)
		})
	}
}

func TestComparison(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 < 2", true},
		{"2 <= 2", true},
		{"3 > 4", false},
		{"3 >= 4", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{`"a" < "b"`, true},
		{`"a" == "a"`, true},
		{`1 == "1"`, false},
		{"true == true", true},
		{"sqrt == sqrt", true},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			b, ok := mustEval(t, tt.src).(evaluator.Bool)
			if !ok {
				t.Fatalf("expected Bool")
			}
			if b.Value != tt.want {
				t.Errorf("got %v, want %v", b.Value, tt.want)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	s, ok := mustEval(t, `"ab" + 'cd'`).(evaluator.String)
	if !ok || s.Value != "abcd" {
		t.Errorf("got %v, want abcd", s)
	}
}

func TestIdentifierLookup(t *testing.T) {
	env := newEnv()
	env.Set("x", evaluator.NewNumber(5))
	v, err := eval(t, "x * 2", env, evaluator.Options{})
	if err != nil {
		t.Fatal(err)
	}
	expectNumber(t, v, 10)

	v, err = eval(t, "sqrt", env, evaluator.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := v.(*evaluator.Builtin); !ok || b.Name != "sqrt" {
		t.Errorf("expected sqrt builtin, got %v", v)
	}
}

func TestEvalDoesNotMutateEnv(t *testing.T) {
	env := newEnv()
	env.Set("x", evaluator.NewNumber(1))
	if _, err := eval(t, "x + 1", env, evaluator.Options{}); err != nil {
		t.Fatal(err)
	}
	if env.Len() != 1 {
		t.Errorf("Eval added bindings: %v", env.Bindings())
	}
}

// ---- errors ----

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		code string
	}{
		{"undefined_thing + 1", diagnostics.EUnbound},
		{"10 / 0", diagnostics.EDivZero},
		{"10 % 0", diagnostics.EDivZero},
		{"sqrt(-1)", diagnostics.EDomain},
		{"log(0)", diagnostics.EDomain},
		{"10 ^ 400", diagnostics.EDomain},
		{"nope(1)", diagnostics.EUnknownFn},
		{"pi(1)", diagnostics.ENotCall},
		{"sqrt(1, 2)", diagnostics.EArity},
		{"max()", diagnostics.EArity},
		{"fail()", diagnostics.EFn},
		{`"a" + 1`, diagnostics.EType},
		{`"a" - "b"`, diagnostics.EType},
		{`-"a"`, diagnostics.EType},
		{`1 < "b"`, diagnostics.EType},
		{`sqrt("x")`, diagnostics.EType},
		{"true * 2", diagnostics.EType},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			rerr := expectError(t, tt.src, newEnv(), tt.code)
			if rerr.Span == nil {
				t.Error("expected error span")
			}
		})
	}
}

func TestUnboundMessageNamesVariable(t *testing.T) {
	rerr := expectError(t, "total * 2", newEnv(), diagnostics.EUnbound)
	if !strings.Contains(rerr.Message, "'total'") {
		t.Errorf("unexpected message %q", rerr.Message)
	}
	d := rerr.Diagnostic()
	if d.Code != diagnostics.EUnbound || d.Span == nil || d.Span.StartCol != 1 {
		t.Errorf("unexpected diagnostic %+v", d)
	}
}

func TestArityMessage(t *testing.T) {
	rerr := expectError(t, "sqrt()", newEnv(), diagnostics.EArity)
	if !strings.Contains(rerr.Message, "1 argument") {
		t.Errorf("unexpected message %q", rerr.Message)
	}
	rerr = expectError(t, "max()", newEnv(), diagnostics.EArity)
	if !strings.Contains(rerr.Message, "at least 1 argument") {
		t.Errorf("unexpected message %q", rerr.Message)
	}
}

func TestInfinityPropagates(t *testing.T) {
	v := mustEval(t, "huge + 1")
	if n, ok := v.(evaluator.Number); !ok || !math.IsInf(n.Value, 1) {
		t.Errorf("expected +inf, got %v", v)
	}
	expectError(t, "huge - huge", newEnv(), diagnostics.EDomain)
}

func TestShadowedBuiltinIsNotCallable(t *testing.T) {
	env := newEnv()
	env.Set("sqrt", evaluator.NewNumber(4))
	expectError(t, "sqrt(4)", env, diagnostics.ENotCall)
}

// ---- budget ----

func TestStringBudget(t *testing.T) {
	env := newEnv()
	env.Set("s", evaluator.NewString(strings.Repeat("x", 8)))
	opts := evaluator.Options{Budget: evaluator.Budget{MaxStringBytes: 10}}

	if _, err := eval(t, `s + "y"`, env, opts); err != nil {
		t.Fatalf("unexpected error within budget: %v", err)
	}
	_, err := eval(t, "s + s", env, opts)
	var rerr *evaluator.RuntimeError
	if !errors.As(err, &rerr) || rerr.Code != diagnostics.EBudget {
		t.Fatalf("expected E_BUDGET, got %v", err)
	}

	opts.Budget.MaxStringBytes = -1
	if _, err := eval(t, "s + s", env, opts); err != nil {
		t.Fatalf("negative limit should disable the check: %v", err)
	}
}

// ---- trace ----

func TestTraceEvents(t *testing.T) {
	var events []evaluator.TraceEventType
	opts := evaluator.Options{Trace: func(ev evaluator.TraceEvent) {
		events = append(events, ev.Event)
	}}
	if _, err := eval(t, "sqrt(4) + 1", newEnv(), opts); err != nil {
		t.Fatal(err)
	}
	want := []evaluator.TraceEventType{
		evaluator.TraceEvalStart,
		evaluator.TraceCallStart,
		evaluator.TraceCallEnd,
		evaluator.TraceEvalEnd,
	}
	if len(events) != len(want) {
		t.Fatalf("got events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, events[i], want[i])
		}
	}
}

func TestTraceEndCarriesError(t *testing.T) {
	var last evaluator.TraceEvent
	opts := evaluator.Options{Trace: func(ev evaluator.TraceEvent) { last = ev }}
	if _, err := eval(t, "1 / 0", newEnv(), opts); err == nil {
		t.Fatal("expected error")
	}
	if last.Event != evaluator.TraceEvalEnd || last.Err != "division by zero" {
		t.Errorf("unexpected final event %+v", last)
	}
}

func TestFloorMod(t *testing.T) {
	tests := []struct{ a, b, want float64 }{
		{7, 3, 1},
		{-7, 3, 2},
		{7, -3, -2},
		{-7, -3, -1},
		{6, 3, 0},
	}
	for _, tt := range tests {
		if got := evaluator.FloorMod(tt.a, tt.b); got != tt.want {
			t.Errorf("FloorMod(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
