package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nanomi/eoptics/util"
)

// box maps unconstrained optimizer coordinates onto bounded focal lengths,
// f = lo + (hi-lo)·(1+sin x)/2, so every point the optimizer visits is
// inside the bounds.
type box []util.Limiter

func (b box) toF(dst, x []float64) {
	for i, l := range b {
		dst[i] = l.Min + l.Span()*(1+math.Sin(x[i]))/2
	}
}

func (b box) toX(f []float64) []float64 {
	x := make([]float64, len(f))
	for i, l := range b {
		u := 2*(l.Clamp(f[i])-l.Min)/l.Span() - 1
		x[i] = math.Asin(u)
	}
	return x
}

// interior returns n guesses spread evenly inside l, away from the edges.
func interior(l util.Limiter, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	half := l.Span() / float64(2*n)
	if n == 1 {
		out[0] = l.Min + half
		return out
	}
	return floats.Span(out, l.Min+half, l.Max-half)
}

// product calls fn with every combination of one value from each set, the
// last set varying fastest.  fn returning false stops the walk.
func product(sets [][]float64, fn func([]float64) bool) {
	cur := make([]float64, len(sets))
	var walk func(int) bool
	walk = func(d int) bool {
		if d == len(sets) {
			return fn(cur)
		}
		for _, v := range sets[d] {
			cur[d] = v
			if !walk(d + 1) {
				return false
			}
		}
		return true
	}
	walk(0)
}
