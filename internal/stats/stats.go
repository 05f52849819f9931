// Package stats holds the numeric helpers shared by signal generation, sizing
// and performance evaluation. Any statistic whose denominator is zero or
// whose input window is incomplete is reported as Undefined (NaN) and never
// coerced to zero.
package stats

import "math"

// Undefined returns the sentinel used for statistics that cannot be computed.
func Undefined() float64 { return math.NaN() }

// IsUndefined reports whether v is the undefined sentinel (or any non-finite
// value, which is treated the same way downstream).
func IsUndefined(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// Div returns num/den, or Undefined when den is zero or either side is
// undefined.
func Div(num, den float64) float64 {
	if den == 0 || IsUndefined(num) || IsUndefined(den) {
		return Undefined()
	}
	return num / den
}

// Sign returns -1, 0 or 1.
func Sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// relTol is the relative tolerance under which two values computed from
// the same inputs along different summation paths count as equal.
const relTol = 1e-12

// Near reports whether a and b are equal up to floating-point residue,
// relative to the larger magnitude.
func Near(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= relTol*math.Max(math.Abs(a), math.Abs(b))
}

// Mean returns the arithmetic mean of xs, Undefined for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return Undefined()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation (n-1 denominator), Undefined
// for fewer than two observations.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return Undefined()
	}
	if constant(xs) {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// RollingMean returns the trailing mean over window values ending at each
// index. Indices with fewer than window values, or with an undefined value
// inside the window, are Undefined.
func RollingMean(xs []float64, window int) []float64 {
	return rolling(xs, window, Mean)
}

// RollingStdDev is the trailing sample standard deviation; see RollingMean.
func RollingStdDev(xs []float64, window int) []float64 {
	return rolling(xs, window, StdDev)
}

func rolling(xs []float64, window int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if window <= 0 || i+1 < window {
			out[i] = Undefined()
			continue
		}
		w := xs[i+1-window : i+1]
		if anyUndefined(w) {
			out[i] = Undefined()
			continue
		}
		out[i] = fn(w)
	}
	return out
}

// PctChange returns xs[i]/xs[i-periods] - 1. The first periods entries and
// any zero base are Undefined.
func PctChange(xs []float64, periods int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if periods <= 0 || i < periods {
			out[i] = Undefined()
			continue
		}
		out[i] = Div(xs[i], xs[i-periods]) - 1
	}
	return out
}

// ZScore returns (x - mean) / std, Undefined when std is zero or undefined.
func ZScore(x, mean, std float64) float64 {
	return Div(x-mean, std)
}

// constant reports whether every value equals the first. Summing equal
// non-representable decimals can leave a residue, so a flat window is
// short-circuited to an exact zero deviation.
func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

func anyUndefined(xs []float64) bool {
	for _, x := range xs {
		if IsUndefined(x) {
			return true
		}
	}
	return false
}
