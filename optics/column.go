package optics

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Magnification is the column magnification: the product of the
// magnifications of every active lens, in chain order.  Inactive elements
// and reference planes contribute a factor of one, so a chain with no active
// lenses has magnification 1.
//
// The sign is kept; callers displaying it take the absolute value.
func (r Result) Magnification() (float64, error) {
	m := 1.0
	for _, l := range r.Lenses {
		if !l.Active || l.Reference {
			continue
		}
		if l.Degenerate {
			return math.NaN(), &DegenerateError{
				Index:          l.Index,
				Name:           l.Name,
				ObjectDistance: l.P1 - l.ObjectZ,
				FocalLength:    l.FocalLength,
			}
		}
		m *= l.Magnification
	}
	return m, nil
}

// Kohler evaluates the Köhler probe diameter from a propagated illumination
// chain.  M1 and M2 are the magnifications of the first two active lenses,
// the image distance is that of the first lens, and the back focal length is
// the focal length of the last active lens.
//
// ok is false when the probe is undefined: fewer than three active lenses,
// or any of them degenerate.
func (r Result) Kohler(apertureRadius float64) (diameter float64, ok bool) {
	var act []LensResult
	for _, l := range r.Lenses {
		if l.Active && !l.Reference {
			if l.Degenerate {
				return math.NaN(), false
			}
			act = append(act, l)
		}
	}
	if len(act) < 3 {
		return math.NaN(), false
	}
	first, second, last := act[0], act[1], act[len(act)-1]
	di1 := first.ImageZ - first.P2
	alpha := math.Atan(apertureRadius * (1 - first.Magnification) / di1)
	return probeDiameter(alpha, last.FocalLength, first.Magnification, second.Magnification), true
}

func probeDiameter(alpha, fopl, m1, m2 float64) float64 {
	return 2 * alpha * fopl / (m1 * m2)
}

// KohlerParams is the thin-lens geometry of a three lens condenser in
// Köhler illumination.  F3 is not an input: it is whatever focal length
// puts the third lens's front focal point on the second lens's image.
type KohlerParams struct {
	// ObjectDistance is the source to first lens distance
	ObjectDistance float64 `json:"objectDistance" yaml:"ObjectDistance"`

	// ApertureDiameter is the condenser aperture diameter
	ApertureDiameter float64 `json:"apertureDiameter" yaml:"ApertureDiameter"`

	// S1 is the first to second lens distance
	S1 float64 `json:"s1" yaml:"S1"`

	// S2 is the second to third lens distance
	S2 float64 `json:"s2" yaml:"S2"`

	F1 float64 `json:"f1" yaml:"F1"`
	F2 float64 `json:"f2" yaml:"F2"`
}

// Probe is the result of the Köhler probe formula.
type Probe struct {
	Diameter float64 `json:"diameter"`

	// F3 is the focal length required of the third lens
	F3 float64 `json:"f3"`

	// Alpha is the half angle subtended by the condenser aperture
	Alpha float64 `json:"alpha"`

	M1  float64 `json:"m1"`
	M2  float64 `json:"m2"`
	Di1 float64 `json:"di1"`
	Di2 float64 `json:"di2"`
}

// KohlerProbe evaluates probe = 2·alpha·f3/(M1·M2) with
// alpha = atan(r·(1-M1)/di1) and f3 = S2 - di2.  The formula assumes the
// beam crossover lies behind the image plane, and is an approximation that
// degrades as F1 or F2 approach zero.
func KohlerProbe(p KohlerParams) (Probe, error) {
	var out Probe
	if degenerate(p.ObjectDistance, p.F1) {
		return out, &DegenerateError{Index: 0, Name: "C1", ObjectDistance: p.ObjectDistance, FocalLength: p.F1}
	}
	di1 := p.F1*p.F1/(p.ObjectDistance-p.F1) + p.F1
	out.Di1 = di1
	out.M1 = -di1 / p.ObjectDistance

	do2 := p.S1 - di1
	if degenerate(do2, p.F2) {
		return out, &DegenerateError{Index: 1, Name: "C2", ObjectDistance: do2, FocalLength: p.F2}
	}
	di2 := p.F2*p.F2/(do2-p.F2) + p.F2
	out.Di2 = di2
	out.M2 = -di2 / do2

	out.F3 = p.S2 - di2
	out.Alpha = math.Atan(p.ApertureDiameter / 2 * (1 - out.M1) / di1)
	out.Diameter = probeDiameter(out.Alpha, out.F3, out.M1, out.M2)
	return out, nil
}

// Beam is the envelope of a set of rays at a chain's terminal plane.
type Beam struct {
	// Heights and Angles of each ray at the terminal plane, in input order
	Heights []float64 `json:"heights"`
	Angles  []float64 `json:"angles"`

	// Extreme is the index of the ray with the largest |height|
	Extreme int `json:"extreme"`

	// Radius is the largest |height|
	Radius float64 `json:"radius"`
}

// Diameter is twice the beam radius.
func (b Beam) Diameter() float64 {
	return 2 * b.Radius
}

// Envelope carries every ray through the chain's system matrix and reports
// the extreme height at the terminal plane.  An empty ray set gives a zero
// beam with Extreme = -1.
func Envelope(c Chain, rays []Ray) Beam {
	b := Beam{
		Heights: make([]float64, len(rays)),
		Angles:  make([]float64, len(rays)),
		Extreme: -1,
	}
	if len(rays) == 0 {
		return b
	}
	m := c.System()
	abs := make([]float64, len(rays))
	for i, r := range rays {
		out := m.Apply(r)
		b.Heights[i] = out.Height
		b.Angles[i] = out.Angle
		abs[i] = math.Abs(out.Height)
	}
	b.Extreme = floats.MaxIdx(abs)
	b.Radius = abs[b.Extreme]
	return b
}
