package stdlib

import (
	"math"

	"github.com/thomasrohde/livecalc/pkg/evaluator"
)

// RegisterDefaults adds all default functions and constants.
func RegisterDefaults(r *Registry) {
	// Constants
	r.Constant("pi", math.Pi, "ratio of a circle's circumference to its diameter")
	r.Constant("e", math.E, "base of the natural logarithm")
	r.Constant("tau", 2*math.Pi, "2 * pi")
	r.Constant("phi", math.Phi, "golden ratio")
	r.Constant("huge", math.Inf(1), "positive infinity")

	// Rounding and sign
	r.Register(fn1("abs", math.Abs), "absolute value")
	r.Register(fn1("ceil", math.Ceil), "smallest integer >= x")
	r.Register(fn1("floor", math.Floor), "largest integer <= x")
	r.Register(fn1("round", math.Round), "nearest integer, halves away from zero")
	r.Register(fn1("trunc", math.Trunc), "integer part of x")
	r.Register(fn1("sign", sign), "-1, 0 or 1")

	// Powers and logarithms
	r.Register(fn1("sqrt", math.Sqrt), "square root")
	r.Register(fn1("cbrt", math.Cbrt), "cube root")
	r.Register(fn1("exp", math.Exp), "e raised to x")
	r.Register(&evaluator.Builtin{Name: "log", MinArgs: 1, MaxArgs: 2, Fn: mathLog}, "natural log, or log of x in base y")
	r.Register(fn1("log10", math.Log10), "base 10 logarithm")
	r.Register(fn1("log2", math.Log2), "base 2 logarithm")
	r.Register(fn2("pow", math.Pow), "x raised to y")
	r.Register(fn2("hypot", math.Hypot), "sqrt(x*x + y*y)")

	// Trigonometry
	r.Register(fn1("sin", math.Sin), "sine (radians)")
	r.Register(fn1("cos", math.Cos), "cosine (radians)")
	r.Register(fn1("tan", math.Tan), "tangent (radians)")
	r.Register(fn1("asin", math.Asin), "arc sine")
	r.Register(fn1("acos", math.Acos), "arc cosine")
	r.Register(fn1("atan", math.Atan), "arc tangent")
	r.Register(fn2("atan2", math.Atan2), "arc tangent of y/x using the signs of both")
	r.Register(fn1("sinh", math.Sinh), "hyperbolic sine")
	r.Register(fn1("cosh", math.Cosh), "hyperbolic cosine")
	r.Register(fn1("tanh", math.Tanh), "hyperbolic tangent")
	r.Register(fn1("deg", func(x float64) float64 { return x * 180 / math.Pi }), "radians to degrees")
	r.Register(fn1("rad", func(x float64) float64 { return x * math.Pi / 180 }), "degrees to radians")

	// Aggregates and remainders
	r.Register(fold("min", math.Min), "smallest argument")
	r.Register(fold("max", math.Max), "largest argument")
	r.Register(fn2("fmod", math.Mod), "remainder with the sign of x")
	r.Register(fn2("mod", evaluator.FloorMod), "remainder with the sign of y (same as %)")
}
