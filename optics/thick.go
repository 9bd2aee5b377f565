package optics

import "math"

// vacuum is the refractive index outside a lens.
const vacuum = 1.0

// degenerateTol is the relative tolerance under which an object distance is
// considered equal to the focal length.
const degenerateTol = 1e-9

// degenerate is true when the object sits on the focal point, or f is zero.
func degenerate(objectDistance, f float64) bool {
	if f == 0 || math.IsNaN(f) || math.IsNaN(objectDistance) {
		return true
	}
	return math.Abs(objectDistance-f) <= degenerateTol*math.Max(1, math.Abs(f))
}

// ImageDistance returns the image distance for an object at objectDistance
// in front of a lens of focal length f, f²/(do-f) + f.  For a thick lens,
// distances are measured from the principal planes.
func ImageDistance(objectDistance, f float64) (float64, error) {
	if degenerate(objectDistance, f) {
		return math.NaN(), &DegenerateError{Index: -1, ObjectDistance: objectDistance, FocalLength: f}
	}
	return f*f/(objectDistance-f) + f, nil
}

// Magnification is -di/do for an object at objectDistance.
func Magnification(objectDistance, f float64) (float64, error) {
	di, err := ImageDistance(objectDistance, f)
	if err != nil {
		return math.NaN(), err
	}
	return -di / objectDistance, nil
}

// ThickLens is the geometry of a physically thick electrostatic lens,
// modelled as a glass-like lens whose effective index and surface radii are
// chosen so that its front principal plane sits H1 behind the front face.
//
// H1 is measured (for instance from field simulations) and does not change
// with focal length.  The lens is symmetric, so R2 = -R1.
type ThickLens struct {
	// Length is the mechanical length of the lens, front face to back face
	Length float64 `json:"length" yaml:"Length" koanf:"Length"`

	// H1 is the distance from the front face to the front principal plane
	H1 float64 `json:"h1" yaml:"H1" koanf:"H1"`
}

// NanomiLens is the einzel lens geometry of the Nano-Mi column: two
// 3.96875 mm outer electrodes, a 5.08 mm centre electrode and two 4.445 mm
// gaps, with the principal plane 15.69 mm behind the front face.
var NanomiLens = ThickLens{
	Length: 2*3.96875 + 2*4.445 + 5.08,
	H1:     15.69,
}

// H2 is the distance from the front face to the back principal plane,
// L - H1.  Image distances of the lens are measured from there.
func (t ThickLens) H2() float64 {
	return t.Length - t.H1
}

// EffectiveIndex is the refractive index giving focal length f,
// L·f / (H1·(2f - H1)).
func (t ThickLens) EffectiveIndex(f float64) float64 {
	return t.Length * f / (t.H1 * (2*f - t.H1))
}

// Radius is the front surface radius of curvature giving focal length f,
// (L·f - 2·f·H1 + H1²) / H1.  The back radius is its negative.
func (t ThickLens) Radius(f float64) float64 {
	return (t.Length*f - 2*f*t.H1 + t.H1*t.H1) / t.H1
}

// Surfaces returns the three matrices a ray meets inside the lens: front
// refraction, drift through the medium, back refraction.
func (t ThickLens) Surfaces(f float64) (front, medium, back Matrix) {
	n := t.EffectiveIndex(f)
	r1 := t.Radius(f)
	r2 := -r1
	front = Refraction((n-vacuum)/r1, vacuum, n)
	medium = Propagate(t.Length)
	back = Refraction((vacuum-n)/r2, n, vacuum)
	return front, medium, back
}

// Matrix is the full transfer matrix of the thick lens, front face to back face.
func (t ThickLens) Matrix(f float64) Matrix {
	front, medium, back := t.Surfaces(f)
	return Compose(front, medium, back)
}
