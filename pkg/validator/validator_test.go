package validator_test

import (
	"strings"
	"testing"

	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/stdlib"
	"github.com/thomasrohde/livecalc/pkg/validator"
)

func validate(source string, opts ...validator.Option) []diagnostics.Diagnostic {
	return validator.Validate(strings.Split(source, "\n"), stdlib.Default(), opts...)
}

// assertNoDiags asserts zero diagnostics were produced.
func assertNoDiags(t *testing.T, diags []diagnostics.Diagnostic) {
	t.Helper()
	if len(diags) != 0 {
		var msgs []string
		for _, d := range diags {
			msgs = append(msgs, d.Code+": "+d.Message)
		}
		t.Errorf("expected no diagnostics, got %d:\n  %s", len(diags), strings.Join(msgs, "\n  "))
	}
}

// assertOnly asserts exactly one diagnostic with the given code, on line.
func assertOnly(t *testing.T, diags []diagnostics.Diagnostic, code string, line int) diagnostics.Diagnostic {
	t.Helper()
	if len(diags) != 1 {
		var codes []string
		for _, d := range diags {
			codes = append(codes, d.Code)
		}
		t.Fatalf("expected one %s diagnostic, got %v", code, codes)
	}
	d := diags[0]
	if d.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, d.Code, d.Message)
	}
	if d.Span == nil || d.Span.StartLine != line {
		t.Errorf("expected span on line %d, got %+v", line, d.Span)
	}
	return d
}

func TestValidSheet(t *testing.T) {
	assertNoDiags(t, validate(`# budget
rent = 1200
food = 350.5

total = rent + food
total * 12
_6 / 2
math.sqrt(total) + max(rent, food, 1) + log(8, 2)
pi * 2`))
}

func TestCompileErrors(t *testing.T) {
	d := assertOnly(t, validate("a = 1\nb = a +"), diagnostics.EParse, 2)
	if d.Span.StartCol < 5 {
		t.Errorf("column not placed on the line: %d", d.Span.StartCol)
	}
	assertOnly(t, validate(`s = "open`), diagnostics.ELex, 1)
	assertOnly(t, validate("x ="), diagnostics.EEmpty, 1)
}

func TestUnbound(t *testing.T) {
	d := assertOnly(t, validate("y = x * 2\nx = 3"), diagnostics.EUnbound, 1)
	if !strings.Contains(d.Hint, "line 2") {
		t.Errorf("expected hint pointing at line 2, got %q", d.Hint)
	}
	if d.Span.StartCol != 5 {
		t.Errorf("expected column 5, got %d", d.Span.StartCol)
	}
	assertOnly(t, validate("nothing + 1"), diagnostics.EUnbound, 1)
}

func TestFailedLineDoesNotBind(t *testing.T) {
	diags := validate("a = missing\na + 1")
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(diags))
	}
	if diags[1].Code != diagnostics.EUnbound || diags[1].Span.StartLine != 2 {
		t.Errorf("unexpected second diagnostic %+v", diags[1])
	}
}

func TestCalls(t *testing.T) {
	tests := []struct {
		src  string
		code string
	}{
		{"frobnicate(1)", diagnostics.EUnknownFn},
		{"pi(2)", diagnostics.ENotCall},
		{"sqrt(1, 2)", diagnostics.EArity},
		{"max()", diagnostics.EArity},
		{"log(1, 2, 3)", diagnostics.EArity},
		{"f = 2\nf(3)", diagnostics.ENotCall},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			line := strings.Count(tt.src, "\n") + 1
			assertOnly(t, validate(tt.src), tt.code, line)
		})
	}
}

func TestBuiltinAliases(t *testing.T) {
	assertNoDiags(t, validate("f = sqrt\nf(16)"))
	assertNoDiags(t, validate("g = (sqrt)\nh = g\nh(4) + g(9)"))
	assertOnly(t, validate("f = sqrt\nf(1, 2)"), diagnostics.EArity, 2)
	assertOnly(t, validate("f = sqrt\nf = 3\nf(2)"), diagnostics.ENotCall, 3)

	diags := validate("sqrt = 4\nsqrt(4)")
	if len(diags) != 2 || diags[0].Code != diagnostics.WShadow || diags[1].Code != diagnostics.ENotCall {
		t.Errorf("expected shadow warning then not-callable, got %+v", diags)
	}
}

func TestShadowWarning(t *testing.T) {
	diags := validate("e = 5\ne * 2")
	d := assertOnly(t, diags, diagnostics.WShadow, 1)
	if d.Severity() != diagnostics.SeverityWarning {
		t.Errorf("expected warning severity")
	}
	if diagnostics.HasErrors(diags) {
		t.Error("shadowing must not be an error")
	}
}

func TestAnonymousNamesBind(t *testing.T) {
	assertNoDiags(t, validate("2 + 2\n_1 * 3"))
	assertNoDiags(t, validate("2 + 2\nline1 * 3", validator.WithAnonymousPrefix("line")))
	assertOnly(t, validate("2 + 2\n_2 * 3"), diagnostics.EUnbound, 2)
}

func TestWithBound(t *testing.T) {
	assertNoDiags(t, validate("carry * 2", validator.WithBound("carry")))
	assertNoDiags(t, validate("carry(2)", validator.WithBound("carry")))
}

func TestFilename(t *testing.T) {
	diags := validate("1 +", validator.WithFilename("budget.calc"))
	if len(diags) != 1 || diags[0].Span.File != "budget.calc" {
		t.Errorf("unexpected diagnostics %+v", diags)
	}
}
