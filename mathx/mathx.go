// Package mathx provides small numeric helpers shared by the optics packages,
// numpy-style ranges and float closeness.
package mathx

import "math"

// MaxArange is the longest range Arange will produce.
const MaxArange = 1 << 24

// ArangeLen is an upper bound on the length of Arange(start, stop, step).
// ok is false if an argument is not finite or the range would be longer
// than MaxArange.
func ArangeLen(start, stop, step float64) (n int, ok bool) {
	for _, v := range []float64{start, stop, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
	}
	if step <= 0 || stop <= start {
		return 0, true
	}
	c := math.Ceil((stop - start) / step)
	if !(c <= MaxArange) {
		return 0, false
	}
	return int(c), true
}

// Arange returns start, start+step, ... for every value strictly below stop.
// The upper bound is excluded, as with numpy.arange.  A non-positive step
// or stop <= start produces an empty slice, as does any range ArangeLen
// rejects.
//
// Values are computed as start + i*step rather than by accumulation, so a
// value drawn from the result can be compared exactly with another call
// using the same arguments.
func Arange(start, stop, step float64) []float64 {
	n, ok := ArangeLen(start, stop, step)
	if !ok || n == 0 {
		return []float64{}
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := start + float64(i)*step
		if v >= stop {
			break
		}
		out = append(out, v)
	}
	return out
}

// LinspaceStep returns num values beginning at start and spaced by step.
func LinspaceStep(start, step float64, num int) []float64 {
	if num <= 0 {
		return []float64{}
	}
	out := make([]float64, num)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// Close reports whether a and b differ by no more than tol.  NaN is never close to anything.
func Close(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
