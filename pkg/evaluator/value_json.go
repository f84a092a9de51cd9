package evaluator

import (
	"encoding/json"
	"math"
	"strconv"
)

// maxExactInt is the magnitude below which integral numbers print without an
// exponent.
const maxExactInt = 1e15

// ValueToJSON marshals a Value to JSON bytes. Integral numbers are written
// without a decimal point; non-finite numbers and builtins are written as
// their display strings.
func ValueToJSON(v Value) ([]byte, error) {
	return json.Marshal(valueToRaw(v))
}

func valueToRaw(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil

	case Bool:
		return val.Value

	case Number:
		if math.IsInf(val.Value, 0) || math.IsNaN(val.Value) {
			return FormatNumber(val.Value)
		}
		if isSmallInt(val.Value) {
			return int64(val.Value)
		}
		return val.Value

	case String:
		return val.Value

	case *Builtin:
		return Inspect(val)
	}

	return nil
}

// ValueToJSONString is a convenience that returns a string.
func ValueToJSONString(v Value) string {
	b, err := ValueToJSON(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func isSmallInt(n float64) bool {
	return n == math.Trunc(n) && math.Abs(n) < maxExactInt
}

// FormatNumber renders a number the natural way: integers without a decimal
// point, everything else with 14 significant digits.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case isSmallInt(n):
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', 14, 64)
}

// Inspect returns the natural display text of any value.
func Inspect(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "nil"
	case Bool:
		if val.Value {
			return "true"
		}
		return "false"
	case Number:
		return FormatNumber(val.Value)
	case String:
		return val.Value
	case *Builtin:
		return "<builtin " + val.Name + ">"
	}
	return "?"
}
