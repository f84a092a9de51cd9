package sheet

import (
	"encoding/json"

	"github.com/thomasrohde/livecalc/pkg/ast"
	"github.com/thomasrohde/livecalc/pkg/evaluator"
)

type lineErrorJSON struct {
	Kind    string    `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Span    *ast.Span `json:"span,omitempty"`
}

type lineRecordJSON struct {
	Line       int             `json:"line"`
	Name       string          `json:"name"`
	Source     string          `json:"source"`
	Assignment bool            `json:"assignment"`
	Value      json.RawMessage `json:"value,omitempty"`
	Display    string          `json:"display,omitempty"`
	Error      *lineErrorJSON  `json:"error,omitempty"`
}

// MarshalJSON renders the record with its value as plain JSON.
func (r *LineRecord) MarshalJSON() ([]byte, error) {
	out := lineRecordJSON{
		Line:       r.Line,
		Name:       r.Name,
		Source:     r.Source,
		Assignment: r.Assignment,
		Display:    r.Display,
	}
	if r.Err != nil {
		out.Error = &lineErrorJSON{Kind: r.Err.Kind.String(), Code: r.Err.Code, Message: r.Err.Message, Span: r.Err.Span}
	} else {
		v, err := evaluator.ValueToJSON(r.Value)
		if err != nil {
			return nil, err
		}
		out.Value = v
	}
	return json.Marshal(out)
}

// MarshalJSON renders the result as records in line order.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Lines())
}
