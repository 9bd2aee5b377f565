package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/util"
)

// FocusMode is what Focus drives to zero at the chain's terminal plane.
type FocusMode int

const (
	// Image focuses the object on the terminal plane: a ray leaving the
	// object axis returns to it
	Image FocusMode = iota

	// Diffraction focuses the back focal plane on the terminal plane: two
	// parallel rays meet
	Diffraction
)

func (m FocusMode) String() string {
	if m == Diffraction {
		return "diffraction"
	}
	return "image"
}

// ParseFocusMode accepts "image" or "diffraction".
func ParseFocusMode(s string) (FocusMode, error) {
	switch s {
	case "image", "":
		return Image, nil
	case "diffraction":
		return Diffraction, nil
	}
	return 0, fmt.Errorf("%w: focus mode %q", ErrBadProblem, s)
}

// DefaultFocusBounds is the focal length range searched by Focus.
var DefaultFocusBounds = util.Limiter{Min: 6, Max: 300}

// DefaultFocusTolerance is the largest terminal height accepted as in focus.
const DefaultFocusTolerance = 1e-9

// focusScan is the number of evenly spaced focal lengths tried before the
// local search.
const focusScan = 96

// FocusProblem asks for the focal length of one element of Chain that
// brings it into focus.  The other elements are left as they are.
type FocusProblem struct {
	Chain optics.Chain

	// Lens is the element index to adjust
	Lens int

	Mode FocusMode

	// Rays are launched at the chain's object plane.  Image mode uses the
	// first; Diffraction uses both and they should be parallel.
	Rays [2]optics.Ray

	// Bounds defaults to DefaultFocusBounds
	Bounds util.Limiter

	// Tolerance defaults to DefaultFocusTolerance
	Tolerance float64
}

// FocusResult is the solved focal length and the remaining miss at the
// terminal plane.
type FocusResult struct {
	FocalLength float64 `json:"focalLength"`
	Residual    float64 `json:"residual"`
}

// Focus solves a FocusProblem by least squares on the terminal height: a
// coarse scan over the bounds picks the starting point and Nelder-Mead
// refines it.  If the best point misses by more than the tolerance the
// error is a *NoSolutionError.
func Focus(ctx context.Context, p FocusProblem) (FocusResult, error) {
	if p.Bounds == (util.Limiter{}) {
		p.Bounds = DefaultFocusBounds
	}
	if p.Tolerance <= 0 {
		p.Tolerance = DefaultFocusTolerance
	}
	if !p.Bounds.Valid() {
		return FocusResult{}, fmt.Errorf("%w: bounds [%g, %g]", ErrBadProblem, p.Bounds.Min, p.Bounds.Max)
	}
	if p.Lens < 0 || p.Lens >= p.Chain.Len() || !p.Chain.Element(p.Lens).Focusing() {
		return FocusResult{}, fmt.Errorf("%w: element %d is not an active lens", ErrBadProblem, p.Lens)
	}

	residual := func(f float64) float64 {
		c := p.Chain.WithFocalLength(p.Lens, f)
		sys := c.System()
		h := sys.Apply(p.Rays[0]).Height
		if p.Mode == Diffraction {
			h -= sys.Apply(p.Rays[1]).Height
		}
		return h
	}

	start, startH := p.Bounds.Min, math.Inf(1)
	for _, f := range interior(p.Bounds, focusScan) {
		if err := ctx.Err(); err != nil {
			return FocusResult{}, err
		}
		if h := math.Abs(residual(f)); h < startH {
			start, startH = f, h
		}
	}

	bx := box{p.Bounds}
	fs := make([]float64, 1)
	prob := optimize.Problem{
		Func: func(x []float64) float64 {
			bx.toF(fs, x)
			h := residual(fs[0])
			if math.IsNaN(h) || math.IsInf(h, 0) {
				return failedValue
			}
			return h * h
		},
	}
	settings := &optimize.Settings{
		MajorIterations: DefaultMaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-30,
			Iterations: 40,
		},
	}
	best := FocusResult{FocalLength: start, Residual: startH}
	// an iteration limit still leaves a usable best location
	if res, _ := optimize.Minimize(prob, bx.toX([]float64{start}), settings, &optimize.NelderMead{}); res != nil {
		bx.toF(fs, res.X)
		if h := math.Abs(residual(fs[0])); h < best.Residual {
			best = FocusResult{FocalLength: fs[0], Residual: h}
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return FocusResult{}, ctxErr
	}
	if best.Residual > p.Tolerance {
		return best, &NoSolutionError{
			BestViolation: best.Residual,
			Best:          []float64{best.FocalLength},
			Starts:        1,
		}
	}
	return best, nil
}
