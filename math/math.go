package math

import (
	"math"

	"golang.org/x/exp/constraints"
)

func Clamp[X constraints.Ordered](x, lo, hi X) X {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func IsFinite[X constraints.Float](x X) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func CentralDifference[X constraints.Float](plusY, minusY, h X) X {
	return (plusY - minusY) / (2.0 * h)
}

// NumericalGradient perturbs xs in place and restores every element before returning.
func NumericalGradient[X constraints.Float](xs []X, h X, f func([]X) X) []X {
	grad := make([]X, len(xs))
	for i := range xs {
		tmp := xs[i]
		xs[i] = tmp + h
		y1 := f(xs)

		xs[i] = tmp - h
		y2 := f(xs)

		grad[i] = CentralDifference(y1, y2, h)
		xs[i] = tmp
	}
	return grad
}
