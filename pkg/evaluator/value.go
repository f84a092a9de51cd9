// Package evaluator implements livecalc values, environments and the
// expression evaluator.
package evaluator

// Value is the interface for all livecalc runtime values.
// The sealed marker method restricts implementations to this package.
type Value interface {
	value() // sealed marker
}

// Null represents the absence of a value.
type Null struct{}

func (Null) value() {}

// Bool represents a boolean value.
type Bool struct {
	Value bool
}

func (Bool) value() {}

// Number represents a numeric value. All numbers are float64.
type Number struct {
	Value float64
}

func (Number) value() {}

// String represents a string value.
type String struct {
	Value string
}

func (String) value() {}

// Variadic marks a Builtin without an upper arity bound.
const Variadic = -1

// Builtin is a callable from the capability set. Builtins take and return
// numbers only, so a sheet cannot reach anything outside the math domain.
type Builtin struct {
	Name    string
	MinArgs int
	MaxArgs int // Variadic for no upper bound
	Fn      func(args []float64) (float64, error)
}

func (*Builtin) value() {}

// AcceptsArgs reports whether n arguments satisfy the builtin's arity.
func (b *Builtin) AcceptsArgs(n int) bool {
	if n < b.MinArgs {
		return false
	}
	return b.MaxArgs == Variadic || n <= b.MaxArgs
}

// NewNull creates a null value.
func NewNull() Value {
	return Null{}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Bool{Value: b}
}

// NewNumber creates a numeric value.
func NewNumber(n float64) Value {
	return Number{Value: n}
}

// NewString creates a string value.
func NewString(s string) Value {
	return String{Value: s}
}

// TypeName returns the type name used in error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case Null:
		return "nil"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case *Builtin:
		return "builtin"
	default:
		return "unknown"
	}
}

// DeepEqual compares two values. Builtins are equal only to themselves.
func DeepEqual(a, b Value) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok

	case Bool:
		bv, ok := b.(Bool)
		return ok && av.Value == bv.Value

	case Number:
		bv, ok := b.(Number)
		return ok && av.Value == bv.Value

	case String:
		bv, ok := b.(String)
		return ok && av.Value == bv.Value

	case *Builtin:
		bv, ok := b.(*Builtin)
		return ok && av == bv
	}

	return false
}
