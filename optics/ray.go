package optics

// Ray is a paraxial ray at one axial position: transverse height (mm) and
// slope relative to the optical axis (rad).  Rays are values; every
// propagation step produces a fresh one.
type Ray struct {
	Height float64 `json:"height" yaml:"Height"`
	Angle  float64 `json:"angle" yaml:"Angle"`
}

// Gun reference ray indices into the array returned by GunRays.
const (
	GunEdge = iota
	GunAxial
	GunParallel
	GunExtreme
)

// GunRayNames labels the rays of GunRays, in order.
var GunRayNames = [4]string{"edge", "axial", "parallel", "extreme"}

// GunRays returns the four rays leaving an emitter tip of radius tipRadius
// whose angles are limited by a condenser aperture of the given diameter at
// axial position apertureZ:
//
//	edge:     from the tip edge toward the near aperture edge
//	axial:    from the axis to the aperture edge
//	parallel: from the tip edge, parallel to the axis
//	extreme:  from the opposite tip edge to the far aperture edge
func GunRays(tipRadius, apertureDiameter, apertureZ float64) [4]Ray {
	half := apertureDiameter / 2
	return [4]Ray{
		GunEdge:     {Height: tipRadius, Angle: (half - tipRadius) / apertureZ},
		GunAxial:    {Height: 0, Angle: half / apertureZ},
		GunParallel: {Height: tipRadius, Angle: 0},
		GunExtreme:  {Height: -tipRadius, Angle: (half + tipRadius) / apertureZ},
	}
}
