package solver

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/util"
)

// Goal is the direction in which the column magnification is pushed.
type Goal int

const (
	// Demagnify minimizes |M|, for an illumination column
	Demagnify Goal = iota

	// Magnify maximizes |M|, for an imaging column
	Magnify
)

func (g Goal) String() string {
	if g == Magnify {
		return "magnify"
	}
	return "demagnify"
}

// ThickColumn is a run of identical thick lenses, described by the axial
// positions of their front faces, imaging an object onto a target plane.
//
// Object and image distances are measured from the principal planes: the
// first lens sees an object at Fronts[0] + H1 - ObjectZ, and lens k+1 sees
// the image of lens k at (Fronts[k+1] + H1) - (Fronts[k] + H2 + di_k).
type ThickColumn struct {
	Lens    optics.ThickLens `json:"lens" yaml:"Lens"`
	ObjectZ float64          `json:"objectZ" yaml:"ObjectZ"`
	Fronts  []float64        `json:"fronts" yaml:"Fronts"`
	TargetZ float64          `json:"targetZ" yaml:"TargetZ"`
}

// Imaging is the thin-lens-equation result for one set of focal lengths.
type Imaging struct {
	// ImageDistance of the last lens, from its back principal plane
	ImageDistance float64

	ImageZ        float64
	Magnification float64
}

// DesiredImageDistance is the image distance the last lens needs to put
// its image on TargetZ.
func (c ThickColumn) DesiredImageDistance() float64 {
	return c.TargetZ - (c.Fronts[len(c.Fronts)-1] + c.Lens.H2())
}

// Evaluate chains the closed-form image distance through every lens.
func (c ThickColumn) Evaluate(fs []float64) (Imaging, error) {
	if len(fs) != len(c.Fronts) {
		return Imaging{}, fmt.Errorf("%w: %d focal lengths for %d lenses", ErrBadProblem, len(fs), len(c.Fronts))
	}
	h1, h2 := c.Lens.H1, c.Lens.H2()
	out := Imaging{Magnification: 1}
	do := c.Fronts[0] + h1 - c.ObjectZ
	for k, f := range fs {
		di, err := optics.ImageDistance(do, f)
		if err != nil {
			if de, ok := err.(*optics.DegenerateError); ok {
				de.Index = k
			}
			return Imaging{}, err
		}
		out.Magnification *= -di / do
		out.ImageDistance = di
		if k+1 < len(fs) {
			do = (c.Fronts[k+1] + h1) - (c.Fronts[k] + h2 + di)
		}
	}
	out.ImageZ = c.Fronts[len(c.Fronts)-1] + h2 + out.ImageDistance
	return out, nil
}

// Violation is the relative miss of the final image from the target,
// |di - desired| / |desired|.
func (c ThickColumn) Violation(im Imaging) float64 {
	want := c.DesiredImageDistance()
	return math.Abs(im.ImageDistance-want) / math.Abs(want)
}

// LocalSettings controls SolveLocal.  Zero fields take the defaults below.
type LocalSettings struct {
	// Bounds applies to every lens without an entry in LensBounds
	Bounds util.Limiter

	// LensBounds overrides Bounds per lens index
	LensBounds map[int]util.Limiter

	// Known fixes focal lengths by lens index; the rest are solved for
	Known map[int]float64

	// Guesses is the number of starting points per unknown focal length
	Guesses int

	// Tolerance is the accepted relative miss of the target plane
	Tolerance float64

	// MaxIterations bounds each start
	MaxIterations int
}

// Defaults for LocalSettings.
var (
	DefaultBounds        = util.Limiter{Min: 6, Max: 100}
	DefaultGuesses       = 6
	DefaultTolerance     = 1e-2
	DefaultMaxIterations = 5000
)

const (
	penaltyWeight = 1e6
	failedValue   = 1e12
)

func (s LocalSettings) withDefaults() LocalSettings {
	if s.Bounds == (util.Limiter{}) {
		s.Bounds = DefaultBounds
	}
	if s.Guesses <= 0 {
		s.Guesses = DefaultGuesses
	}
	if s.Tolerance <= 0 {
		s.Tolerance = DefaultTolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	return s
}

func (s LocalSettings) bounds(i int) util.Limiter {
	if l, ok := s.LensBounds[i]; ok {
		return l
	}
	return s.Bounds
}

// Solution is the accepted result of SolveLocal.
type Solution struct {
	FocalLengths  []float64 `json:"focalLengths"`
	Magnification float64   `json:"magnification"`
	ImageZ        float64   `json:"imageZ"`
	Violation     float64   `json:"violation"`

	Starts   int `json:"starts"`
	Accepted int `json:"accepted"`
}

// converged lists the optimizer statuses taken as convergence.
var converged = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.FunctionConvergence: true,
	optimize.MethodConverge:      true,
	optimize.StepConvergence:     true,
}

// SolveLocal finds the unknown focal lengths of col that put its final
// image on TargetZ and minimize (Demagnify) or maximize (Magnify) |M|.
//
// Every unknown is started from each of Guesses values spread across its
// bounds, and Nelder-Mead is run from every combination.  The equality
// constraint enters as a quadratic penalty; bounds are built into the
// parametrisation.  A start is kept only if the optimizer reports
// convergence and the relative miss of the target is within Tolerance; the
// kept start with the best |M| wins.  If none is kept the error is a
// *NoSolutionError.
func SolveLocal(ctx context.Context, col ThickColumn, goal Goal, s LocalSettings) (Solution, error) {
	s = s.withDefaults()
	n := len(col.Fronts)
	if n == 0 {
		return Solution{}, fmt.Errorf("%w: no lenses", ErrBadProblem)
	}
	var (
		unknown []int
		bx      box
		sets    [][]float64
	)
	full := make([]float64, n)
	for i := 0; i < n; i++ {
		lim := s.bounds(i)
		if !lim.Valid() {
			return Solution{}, fmt.Errorf("%w: lens %d bounds [%g, %g]", ErrBadProblem, i, lim.Min, lim.Max)
		}
		if f, ok := s.Known[i]; ok {
			if !lim.Check(f) {
				return Solution{}, fmt.Errorf("%w: lens %d fixed at %g, bounds [%g, %g]", ErrOutOfBounds, i, f, lim.Min, lim.Max)
			}
			full[i] = f
			continue
		}
		unknown = append(unknown, i)
		bx = append(bx, lim)
		sets = append(sets, interior(lim, s.Guesses))
	}
	if len(unknown) == 0 {
		return Solution{}, fmt.Errorf("%w: every focal length is fixed", ErrBadProblem)
	}
	desired := col.DesiredImageDistance()
	if desired == 0 {
		return Solution{}, fmt.Errorf("%w: target plane coincides with the last principal plane", ErrBadProblem)
	}

	// fill writes the bounded unknowns from x into a copy of full
	fill := func(x []float64) []float64 {
		fs := make([]float64, n)
		copy(fs, full)
		sub := make([]float64, len(unknown))
		bx.toF(sub, x)
		for k, i := range unknown {
			fs[i] = sub[k]
		}
		return fs
	}
	objective := func(im Imaging) float64 {
		if goal == Magnify {
			return -math.Abs(im.Magnification)
		}
		return math.Abs(im.Magnification)
	}

	var (
		best     Solution
		found    bool
		starts   int
		conv     int
		accepted int
		nsErr    = &NoSolutionError{BestViolation: math.Inf(1)}
		ctxErr   error
		settings = &optimize.Settings{
			MajorIterations: s.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Relative:   1e-10,
				Iterations: 60,
			},
		}
	)
	product(sets, func(guess []float64) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		starts++
		x0 := bx.toX(guess)
		scale := 1.0
		if im, err := col.Evaluate(fill(x0)); err == nil {
			if o := math.Abs(objective(im)); o > 0 && !math.IsInf(o, 0) {
				scale = o
			}
		}
		prob := optimize.Problem{
			Func: func(x []float64) float64 {
				im, err := col.Evaluate(fill(x))
				if err != nil {
					return failedValue
				}
				r := (im.ImageDistance - desired) / desired
				v := objective(im)/scale + penaltyWeight*r*r
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return failedValue
				}
				return v
			},
		}
		res, err := optimize.Minimize(prob, x0, settings, &optimize.NelderMead{})
		if err != nil || res == nil || !converged[res.Status] {
			return true
		}
		conv++
		fs := fill(res.X)
		im, err := col.Evaluate(fs)
		if err != nil {
			return true
		}
		viol := col.Violation(im)
		if viol > s.Tolerance {
			if viol < nsErr.BestViolation {
				nsErr.BestViolation, nsErr.Best = viol, fs
			}
			return true
		}
		if !found || objective(im) < objective(Imaging{Magnification: best.Magnification}) {
			best = Solution{
				FocalLengths:  fs,
				Magnification: im.Magnification,
				ImageZ:        im.ImageZ,
				Violation:     viol,
			}
			found = true
		}
		accepted++
		return true
	})
	if ctxErr != nil {
		return Solution{}, ctxErr
	}
	if !found {
		nsErr.Starts, nsErr.Converged = starts, conv
		return Solution{}, nsErr
	}
	best.Starts, best.Accepted = starts, accepted
	return best, nil
}
