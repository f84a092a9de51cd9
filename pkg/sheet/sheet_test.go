package sheet_test

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/thomasrohde/livecalc/pkg/diagnostics"
	"github.com/thomasrohde/livecalc/pkg/evaluator"
	"github.com/thomasrohde/livecalc/pkg/sheet"
	"github.com/thomasrohde/livecalc/pkg/stdlib"
)

func newEnv() *evaluator.Env {
	return evaluator.NewEnv(stdlib.Default())
}

// texts maps each record to its display text or error message.
func texts(res *sheet.Result) map[int]string {
	out := make(map[int]string)
	for n, rec := range res.Records {
		out[n] = rec.Text()
	}
	return out
}

func expectBinding(t *testing.T, env *evaluator.Env, name string, want float64) {
	t.Helper()
	v, ok := env.Get(name)
	if !ok {
		t.Fatalf("expected %s to be bound", name)
	}
	if !evaluator.DeepEqual(v, evaluator.NewNumber(want)) {
		t.Errorf("%s = %v, want %v", name, v, want)
	}
}

// ---- basic passes ----

func TestAssignmentThenReference(t *testing.T) {
	env := newEnv()
	res := sheet.Evaluate([]string{"x = 2 + 3", "x * 2"}, env, sheet.Decimal)

	want := map[int]string{1: "5", 2: "10"}
	if diff := cmp.Diff(want, res.Display); diff != "" {
		t.Errorf("display mismatch (-want +got):\n%s", diff)
	}
	if res.Records[1].Name != "x" || !res.Records[1].Assignment {
		t.Errorf("unexpected record 1: %+v", res.Records[1])
	}
	if res.Records[2].Name != "_2" || res.Records[2].Assignment {
		t.Errorf("unexpected record 2: %+v", res.Records[2])
	}
	expectBinding(t, env, "x", 5)
	expectBinding(t, env, "_2", 10)
}

func TestBlankAndCommentLinesProduceNoRecord(t *testing.T) {
	res := sheet.Evaluate([]string{"", "1 + 1", "   ", "# note", "2 # inline"}, newEnv(), sheet.Decimal)
	want := map[int]string{2: "2", 5: "2"}
	if diff := cmp.Diff(want, texts(res)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestAnonymousLinesCanBeReferenced(t *testing.T) {
	env := newEnv()
	res := sheet.Evaluate([]string{"40", "_1 + 2"}, env, sheet.Decimal)
	if res.Display[2] != "42" {
		t.Errorf("got %q, want 42", res.Display[2])
	}
}

func TestAnonymousNamesArePositionBased(t *testing.T) {
	env := newEnv()
	sheet.Evaluate([]string{"7"}, env, sheet.Decimal)
	sheet.Evaluate([]string{"", "7"}, env, sheet.Decimal)
	expectBinding(t, env, "_1", 7)
	expectBinding(t, env, "_2", 7)
}

func TestAnonymousPrefixOption(t *testing.T) {
	env := newEnv()
	res := sheet.Evaluate([]string{"", "", "3"}, env, sheet.Decimal, sheet.WithAnonymousPrefix("line"))
	if res.Records[3].Name != "line3" {
		t.Errorf("got name %q, want line3", res.Records[3].Name)
	}
	expectBinding(t, env, "line3", 3)
}

func TestBuiltinsAndStrings(t *testing.T) {
	res := sheet.Evaluate([]string{
		"sqrt(16) + math.floor(2.7)",
		`greeting = "hello, " + 'world'`,
		"pi > 3",
		"abs",
	}, newEnv(), sheet.Decimal)
	want := map[int]string{1: "6", 2: "hello, world", 3: "true", 4: "<builtin abs>"}
	if diff := cmp.Diff(want, res.Display); diff != "" {
		t.Errorf("display mismatch (-want +got):\n%s", diff)
	}
}

// ---- errors ----

func TestSyntaxErrorLeavesBindingAbsent(t *testing.T) {
	env := newEnv()
	res := sheet.Evaluate([]string{"x = +"}, env, sheet.Decimal)
	rec := res.Records[1]
	if rec.OK() || rec.Err.Kind != sheet.CompileError {
		t.Fatalf("expected compile error, got %+v", rec)
	}
	if _, ok := env.Get("x"); ok {
		t.Error("x should not be bound")
	}
	if _, ok := res.Display[1]; ok {
		t.Error("failed line must have no display text")
	}
}

func TestSyntaxErrorLeavesBindingUnchanged(t *testing.T) {
	env := newEnv()
	sheet.Evaluate([]string{"x = 1"}, env, sheet.Decimal)
	sheet.Evaluate([]string{"x = 1 +"}, env, sheet.Decimal)
	expectBinding(t, env, "x", 1)
}

func TestOverflowingLiteralsAreCompileErrors(t *testing.T) {
	env := newEnv()
	huge := "1" + strings.Repeat("0", 400)
	res := sheet.Evaluate([]string{huge, "1e400", "y = " + huge}, env, sheet.Decimal)
	for n := 1; n <= 3; n++ {
		rec := res.Records[n]
		if rec.OK() || rec.Err.Kind != sheet.CompileError || !strings.Contains(rec.Err.Message, "out of range") {
			t.Errorf("line %d: expected out of range compile error, got %+v", n, rec)
		}
	}
	if env.Len() != 0 {
		t.Errorf("no binding expected, got %v", env.Bindings())
	}
}

func TestDivisionByZeroIsEvaluationError(t *testing.T) {
	env := newEnv()
	res := sheet.Evaluate([]string{"10 / 0"}, env, sheet.Decimal)
	rec := res.Records[1]
	if rec.OK() || rec.Err.Kind != sheet.EvaluationError || rec.Err.Code != diagnostics.EDivZero {
		t.Fatalf("expected division-by-zero evaluation error, got %+v", rec.Err)
	}
	if env.Len() != 0 {
		t.Errorf("no binding expected, got %v", env.Bindings())
	}
}

func TestEmptyRightHandSideIsParseError(t *testing.T) {
	env := newEnv()
	rec := sheet.Evaluate([]string{"total ="}, env, sheet.Decimal).Records[1]
	if rec.OK() || rec.Err.Kind != sheet.ParseError || rec.Err.Code != diagnostics.EEmpty {
		t.Fatalf("expected parse error, got %+v", rec.Err)
	}
	if env.Has("total") {
		t.Error("total should not be bound")
	}
}

func TestUndefinedIdentifierIsIsolated(t *testing.T) {
	env := newEnv()
	res := sheet.Evaluate([]string{"a = 1", "b = missing + 1", "c = a + 1"}, env, sheet.Decimal)

	rec := res.Records[2]
	if rec.OK() || rec.Err.Kind != sheet.EvaluationError || rec.Err.Code != diagnostics.EUnbound {
		t.Fatalf("expected unbound evaluation error, got %+v", rec.Err)
	}
	if res.Display[3] != "2" {
		t.Errorf("line 3 should still evaluate, got %q", res.Display[3])
	}
	if env.Has("b") {
		t.Error("b should not be bound")
	}
	if len(res.Errors()) != 1 {
		t.Errorf("expected 1 error, got %d", len(res.Errors()))
	}
}

func TestErrorSpansUseDocumentCoordinates(t *testing.T) {
	res := sheet.Evaluate([]string{"", "  y = 1 + nope"}, newEnv(), sheet.Decimal, sheet.WithFilename("doc.calc"))
	span := res.Records[2].Err.Span
	if span == nil {
		t.Fatal("expected span")
	}
	want := "doc.calc:2:11"
	got := fmt.Sprintf("%s:%d:%d", span.File, span.StartLine, span.StartCol)
	if got != want {
		t.Errorf("span at %s, want %s", got, want)
	}

	diags := res.Diagnostics()
	if len(diags) != 1 || diags[0].Code != diagnostics.EUnbound {
		t.Errorf("unexpected diagnostics %v", diags)
	}
}

// ---- pass semantics ----

func TestIdempotentPasses(t *testing.T) {
	lines := []string{
		"rate = 0.2",
		"price = 100",
		"price * (1 + rate)",
		"bad = 1 / 0",
		"0xff",
		"",
		"huh(",
	}
	env := newEnv()
	first := sheet.Evaluate(lines, env, sheet.Decimal)
	second := sheet.Evaluate(lines, env, sheet.Decimal)
	if diff := cmp.Diff(texts(first), texts(second)); diff != "" {
		t.Errorf("outcomes differ between passes (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Display, second.Display); diff != "" {
		t.Errorf("display differs between passes (-first +second):\n%s", diff)
	}
}

func TestStaleBindingsPersist(t *testing.T) {
	env := newEnv()
	sheet.Evaluate([]string{"a = 1", "b = 2"}, env, sheet.Decimal)
	res := sheet.Evaluate([]string{"b = 3", "a + b"}, env, sheet.Decimal)
	if res.Display[2] != "4" {
		t.Errorf("stale a should still resolve, got %q", res.Display[2])
	}
	expectBinding(t, env, "a", 1)
	expectBinding(t, env, "b", 3)
}

func TestLaterLinesSeeEarlierRebinding(t *testing.T) {
	res := sheet.Evaluate([]string{"x = 1", "x + 1", "x = 10", "x + 1"}, newEnv(), sheet.Decimal)
	want := map[int]string{1: "1", 2: "2", 3: "10", 4: "11"}
	if diff := cmp.Diff(want, res.Display); diff != "" {
		t.Errorf("display mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatToggleRoundTrip(t *testing.T) {
	lines := []string{"a = 255", "a / 2", "-16", `"text"`, "a > 1"}
	env := newEnv()
	dec := sheet.Evaluate(lines, env, sheet.Decimal)
	hex := sheet.Evaluate(lines, env, sheet.Hex)
	back := sheet.Evaluate(lines, env, sheet.Decimal)

	wantHex := map[int]string{1: "0xff", 2: "127.5", 3: "-0x10", 4: "text", 5: "true"}
	if diff := cmp.Diff(wantHex, hex.Display); diff != "" {
		t.Errorf("hex display mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(dec.Display, back.Display); diff != "" {
		t.Errorf("decimal display not restored (-before +after):\n%s", diff)
	}
	if dec.Display[2] != hex.Display[2] {
		t.Error("non-integral values must not depend on format")
	}
}

// ---- options ----

func TestSharedCompilerCaches(t *testing.T) {
	c := sheet.NewCompiler(8)
	lines := []string{"x = 1 + 2", "x * 3"}
	env := newEnv()
	sheet.Evaluate(lines, env, sheet.Decimal, sheet.WithCompiler(c))
	sheet.Evaluate(lines, env, sheet.Decimal, sheet.WithCompiler(c))
	st := c.Stats()
	if st.Misses != 2 || st.Hits != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestStringBudgetOption(t *testing.T) {
	env := newEnv()
	lines := []string{`s = "abcd"`, "s = s + s"}
	opt := sheet.WithBudget(evaluator.Budget{MaxStringBytes: 16})
	sheet.Evaluate(lines, env, sheet.Decimal, opt) // s: 8 bytes
	sheet.Evaluate(lines, env, sheet.Decimal, opt) // s: 8 bytes again, line 1 resets it
	res := sheet.Evaluate([]string{"s = s + s", "s = s + s"}, env, sheet.Decimal, opt)
	if !res.Records[1].OK() {
		t.Fatalf("16 bytes is within budget: %v", res.Records[1].Err)
	}
	if rec := res.Records[2]; rec.OK() || rec.Err.Code != diagnostics.EBudget {
		t.Errorf("expected budget error, got %+v", rec)
	}
}

func TestTraceOption(t *testing.T) {
	var calls []string
	trace := sheet.WithTrace(func(ev evaluator.TraceEvent) {
		if ev.Event == evaluator.TraceCallStart {
			calls = append(calls, ev.Name)
		}
	})
	sheet.Evaluate([]string{"sqrt(4)", "max(1, 2)"}, newEnv(), sheet.Decimal, trace)
	if diff := cmp.Diff([]string{"sqrt", "max"}, calls); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

// ---- result helpers ----

func TestResultLinesOrdered(t *testing.T) {
	res := sheet.Evaluate([]string{"3", "", "1", "2"}, newEnv(), sheet.Decimal)
	var got []int
	for _, rec := range res.Lines() {
		got = append(got, rec.Line)
	}
	if diff := cmp.Diff([]int{1, 3, 4}, got); diff != "" {
		t.Errorf("line order mismatch (-want +got):\n%s", diff)
	}
}

func TestResultJSON(t *testing.T) {
	res := sheet.Evaluate([]string{"x = 2", "x / 0"}, newEnv(), sheet.Hex)
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %s", data)
	}
	if got[0]["value"] != float64(2) || got[0]["display"] != "0x2" {
		t.Errorf("unexpected first record %v", got[0])
	}
	errObj, ok := got[1]["error"].(map[string]any)
	if !ok || errObj["code"] != diagnostics.EDivZero || errObj["kind"] != "evaluation error" {
		t.Errorf("unexpected second record %v", got[1])
	}
}
