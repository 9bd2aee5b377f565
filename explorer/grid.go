// Package explorer sweeps two geometry variables of a Köhler condenser over
// a regular mesh and answers lookups against the resulting probe diameter
// and third-lens focal length grids.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nanomi/eoptics/mathx"
	"github.com/nanomi/eoptics/optics"
)

// DefaultTolerance is the tolerance used by inverse lookups when none is given.
const DefaultTolerance = 0.1

// MaxCells bounds the size of a grid.
const MaxCells = 1 << 22

var (
	// ErrEmptyRange is returned when an axis produces no samples.
	ErrEmptyRange = errors.New("explorer: axis range is empty")

	// ErrSameVariable is returned when both axes sweep the same variable.
	ErrSameVariable = errors.New("explorer: both axes sweep the same variable")

	// ErrUnknownVariable is returned for a variable outside the known set.
	ErrUnknownVariable = errors.New("explorer: unknown variable")

	// ErrTooLarge is returned when the mesh would exceed MaxCells.
	ErrTooLarge = errors.New("explorer: grid too large")
)

// Field selects one of the two grids.
type Field int

const (
	// Probe is the Köhler probe diameter
	Probe Field = iota

	// FL3 is the focal length needed of the third lens
	FL3
)

func (f Field) String() string {
	switch f {
	case Probe:
		return "probe"
	case FL3:
		return "fl3"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// ParseField accepts "probe" or "fl3".
func ParseField(s string) (Field, error) {
	switch s {
	case "probe":
		return Probe, nil
	case "fl3":
		return FL3, nil
	}
	return 0, fmt.Errorf("explorer: unknown field %q", s)
}

// Axis is one swept variable, Start to Stop exclusive in steps of Step.
type Axis struct {
	Var   Variable `json:"var" yaml:"Var"`
	Start float64  `json:"start" yaml:"Start"`
	Stop  float64  `json:"stop" yaml:"Stop"`
	Step  float64  `json:"step" yaml:"Step"`
}

// Values samples the axis.
func (a Axis) Values() []float64 {
	return mathx.Arange(a.Start, a.Stop, a.Step)
}

// size bounds the number of samples, failing for ranges too long to sample.
func (a Axis) size() (int, error) {
	n, ok := mathx.ArangeLen(a.Start, a.Stop, a.Step)
	if !ok {
		return 0, fmt.Errorf("%w: %v [%g, %g) step %g", ErrTooLarge, a.Var, a.Start, a.Stop, a.Step)
	}
	return n, nil
}

// Coord is a point of the mesh, by value.
type Coord struct {
	V1 float64 `json:"v1"`
	V2 float64 `json:"v2"`
}

// Grid is the swept probe diameter and third-lens focal length over the
// product of two axes.  Rows follow the first axis, columns the second.
//
// A Grid is read only once built.  Cells whose configuration is degenerate
// hold NaN in both fields and never match a query.
type Grid struct {
	Base   optics.KohlerParams
	Axis1  Axis
	Axis2  Axis
	V1, V2 []float64

	probe *mat.Dense
	fl3   *mat.Dense
}

// Build evaluates the Köhler probe formula at every point of the mesh,
// starting from base with the two axis variables substituted.  The context
// is checked once per row.
func Build(ctx context.Context, base optics.KohlerParams, ax1, ax2 Axis) (*Grid, error) {
	if !ax1.Var.Valid() || !ax2.Var.Valid() {
		return nil, fmt.Errorf("%w: %v, %v", ErrUnknownVariable, ax1.Var, ax2.Var)
	}
	if ax1.Var == ax2.Var {
		return nil, fmt.Errorf("%w: %v", ErrSameVariable, ax1.Var)
	}
	n1, err := ax1.size()
	if err != nil {
		return nil, err
	}
	n2, err := ax2.size()
	if err != nil {
		return nil, err
	}
	if n1 > 0 && n2 > MaxCells/n1 {
		return nil, fmt.Errorf("%w: %d by %d exceeds %d cells", ErrTooLarge, n1, n2, MaxCells)
	}
	v1, v2 := ax1.Values(), ax2.Values()
	if len(v1) == 0 {
		return nil, fmt.Errorf("%w: %v [%g, %g) step %g", ErrEmptyRange, ax1.Var, ax1.Start, ax1.Stop, ax1.Step)
	}
	if len(v2) == 0 {
		return nil, fmt.Errorf("%w: %v [%g, %g) step %g", ErrEmptyRange, ax2.Var, ax2.Start, ax2.Stop, ax2.Step)
	}
	g := &Grid{
		Base:  base,
		Axis1: ax1,
		Axis2: ax2,
		V1:    v1,
		V2:    v2,
		probe: mat.NewDense(len(v1), len(v2), nil),
		fl3:   mat.NewDense(len(v1), len(v2), nil),
	}
	for i, a := range v1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := ax1.Var.Set(base, a)
		for j, b := range v2 {
			p, err := optics.KohlerProbe(ax2.Var.Set(row, b))
			if err != nil {
				g.probe.Set(i, j, math.NaN())
				g.fl3.Set(i, j, math.NaN())
				continue
			}
			g.probe.Set(i, j, p.Diameter)
			g.fl3.Set(i, j, p.F3)
		}
	}
	return g, nil
}

// Dims is the number of samples along each axis.
func (g *Grid) Dims() (n1, n2 int) {
	return len(g.V1), len(g.V2)
}

// Field returns a copy of the selected grid.
func (g *Grid) Field(f Field) *mat.Dense {
	return mat.DenseCopyOf(g.field(f))
}

func (g *Grid) field(f Field) *mat.Dense {
	if f == FL3 {
		return g.fl3
	}
	return g.probe
}

// Mesh returns the two coordinate matrices of the grid, each the shape of
// the fields.
func (g *Grid) Mesh() (m1, m2 *mat.Dense) {
	n1, n2 := g.Dims()
	m1 = mat.NewDense(n1, n2, nil)
	m2 = mat.NewDense(n1, n2, nil)
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			m1.Set(i, j, g.V1[i])
			m2.Set(i, j, g.V2[j])
		}
	}
	return m1, m2
}

func indexOf(vs []float64, v float64) int {
	for i, x := range vs {
		if x == v {
			return i
		}
	}
	return -1
}

// At looks up the field at (v1, v2).  The values must be exactly those the
// axes generated; ok is false otherwise, or if the cell is degenerate.
func (g *Grid) At(f Field, v1, v2 float64) (value float64, ok bool) {
	i, j := indexOf(g.V1, v1), indexOf(g.V2, v2)
	if i < 0 || j < 0 {
		return math.NaN(), false
	}
	value = g.field(f).At(i, j)
	return value, !math.IsNaN(value)
}

// ProbeAt is At(Probe, v1, v2).
func (g *Grid) ProbeAt(v1, v2 float64) (float64, bool) {
	return g.At(Probe, v1, v2)
}

// FL3At is At(FL3, v1, v2).
func (g *Grid) FL3At(v1, v2 float64) (float64, bool) {
	return g.At(FL3, v1, v2)
}

// CoordsFor returns every coordinate whose field value lies within tol of
// value, in grid order.  A tol <= 0 uses DefaultTolerance.
func (g *Grid) CoordsFor(value float64, f Field, tol float64) []Coord {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	var out []Coord
	g.each(f, func(i, j int, x float64) {
		if mathx.Close(x, value, tol) {
			out = append(out, Coord{g.V1[i], g.V2[j]})
		}
	})
	return out
}

// ValuesInRange returns every field value in [lo, hi], in grid order.
func (g *Grid) ValuesInRange(lo, hi float64, f Field) []float64 {
	var out []float64
	g.each(f, func(i, j int, x float64) {
		if x >= lo && x <= hi {
			out = append(out, x)
		}
	})
	return out
}

// FeasibleCoords returns the coordinates whose probe diameter lies in
// [lo, hi] and whose third-lens focal length is at least minFL3, in grid
// order.
func (g *Grid) FeasibleCoords(lo, hi, minFL3 float64) []Coord {
	var out []Coord
	g.each(Probe, func(i, j int, x float64) {
		if x >= lo && x <= hi && g.fl3.At(i, j) >= minFL3 {
			out = append(out, Coord{g.V1[i], g.V2[j]})
		}
	})
	return out
}

// Min returns the smallest non degenerate value of the field and its
// coordinate.  ok is false if every cell is degenerate.
func (g *Grid) Min(f Field) (c Coord, value float64, ok bool) {
	var (
		vals   []float64
		coords []Coord
	)
	g.each(f, func(i, j int, x float64) {
		vals = append(vals, x)
		coords = append(coords, Coord{g.V1[i], g.V2[j]})
	})
	if len(vals) == 0 {
		return c, math.NaN(), false
	}
	k := floats.MinIdx(vals)
	return coords[k], vals[k], true
}

// each visits every non-NaN cell of the field in row major order.
func (g *Grid) each(f Field, fn func(i, j int, x float64)) {
	m := g.field(f)
	n1, n2 := m.Dims()
	for i := 0; i < n1; i++ {
		for j := 0; j < n2; j++ {
			x := m.At(i, j)
			if math.IsNaN(x) {
				continue
			}
			fn(i, j, x)
		}
	}
}
