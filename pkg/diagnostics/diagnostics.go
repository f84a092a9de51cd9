// Package diagnostics defines livecalc diagnostic types for compile, validation,
// and evaluation errors.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomasrohde/livecalc/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex       = "E_LEX"
	EParse     = "E_PARSE"
	EEmpty     = "E_EMPTY"
	EUnbound   = "E_UNBOUND"
	EUnknownFn = "E_UNKNOWN_FN"
	ENotCall   = "E_NOT_CALLABLE"
	EArity     = "E_ARITY"
	EFn        = "E_FN"
	EType      = "E_TYPE"
	EDivZero   = "E_DIV_ZERO"
	EDomain    = "E_DOMAIN"
	EBudget    = "E_BUDGET"
	EIO        = "E_IO"
	EConfig    = "E_CONFIG"
	WShadow    = "W_SHADOW"
)

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic represents a compile, validation, or evaluation diagnostic.
type Diagnostic struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Span    *ast.Span `json:"span,omitempty"`
	Hint    string    `json:"hint,omitempty"`
}

// MakeDiag creates a new Diagnostic.
func MakeDiag(code, message string, span *ast.Span, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Span:    span,
		Hint:    hint,
	}
}

// Severity reports "warning" for W_ codes and "error" for everything else.
func (d Diagnostic) Severity() string {
	if strings.HasPrefix(d.Code, "W_") {
		return SeverityWarning
	}
	return SeverityError
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity() == SeverityError {
			return true
		}
	}
	return false
}

// FormatDiagnostic formats a single diagnostic for display.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Span != nil {
		loc = fmt.Sprintf("%s:%d:%d", d.Span.File, d.Span.StartLine, d.Span.StartCol)
	}
	out := fmt.Sprintf("%s[%s]: %s\n  --> %s", d.Severity(), d.Code, d.Message, loc)
	if d.Hint != "" {
		out += fmt.Sprintf("\n  hint: %s", d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		if diags == nil {
			diags = []Diagnostic{}
		}
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}
