package stdlib

import (
	"math"

	"github.com/thomasrohde/livecalc/pkg/evaluator"
)

func fn1(name string, f func(float64) float64) *evaluator.Builtin {
	return &evaluator.Builtin{Name: name, MinArgs: 1, MaxArgs: 1, Fn: func(a []float64) (float64, error) {
		return f(a[0]), nil
	}}
}

func fn2(name string, f func(float64, float64) float64) *evaluator.Builtin {
	return &evaluator.Builtin{Name: name, MinArgs: 2, MaxArgs: 2, Fn: func(a []float64) (float64, error) {
		return f(a[0], a[1]), nil
	}}
}

func fold(name string, f func(float64, float64) float64) *evaluator.Builtin {
	return &evaluator.Builtin{Name: name, MinArgs: 1, MaxArgs: evaluator.Variadic, Fn: func(a []float64) (float64, error) {
		acc := a[0]
		for _, v := range a[1:] {
			acc = f(acc, v)
		}
		return acc, nil
	}}
}

// log(x) is the natural log; log(x, base) uses the given base.
func mathLog(a []float64) (float64, error) {
	if len(a) == 1 {
		return math.Log(a[0]), nil
	}
	switch a[1] {
	case 2:
		return math.Log2(a[0]), nil
	case 10:
		return math.Log10(a[0]), nil
	}
	return math.Log(a[0]) / math.Log(a[1]), nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
