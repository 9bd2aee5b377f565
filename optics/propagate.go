package optics

import "math"

// LensResult is what the propagator reports for one element.
//
// For inactive elements and reference planes only the rays are meaningful;
// ImageZ and Magnification are NaN.  Degenerate lenses, and every focusing
// lens downstream of one, also report NaN for both.
type LensResult struct {
	Index       int
	Name        string
	Z           float64
	FocalLength float64
	Active      bool
	Reference   bool

	// Front and Back are where the ray enters and leaves, both Z for a thin lens
	Front, Back float64

	// P1 and P2 are the principal planes, both Z for a thin lens
	P1, P2 float64

	// ObjectZ is where this lens's object sits: the chain object, or the
	// previous lens's image
	ObjectZ float64

	ImageZ        float64
	Magnification float64

	// Crossover is where a ray entering parallel to the axis crosses it, P2+f
	Crossover float64

	// RayIn is the ray at Front, RayOut at Back
	RayIn  Ray
	RayOut Ray

	// RayAtImage is RayOut drifted to ImageZ
	RayAtImage Ray

	Degenerate bool
}

// Result is the full output of one propagation call.
type Result struct {
	In        Ray
	ObjectZ   float64
	Lenses    []LensResult
	Terminal  Ray
	TerminalZ float64
}

// Propagate traces ray, given at the chain's object plane, through every
// element to the terminal plane.
//
// Each active lens images the previous image (or the chain object) using
// the matrix thin_lens(f)·propagate(p1 - z_object): the image distance,
// measured from p2, is -B/D and the magnification 1/D.  The ray itself is
// carried lens to lens with drift matrices and each element's Transfer.
//
// If a lens is degenerate the returned error is a *DegenerateError for the
// first such lens, and the Result is still fully populated: the lens and all
// focusing lenses after it are flagged and report NaN image data, while ray
// heights keep propagating.
func (c Chain) Propagate(ray Ray) (Result, error) {
	res := Result{
		In:        ray,
		ObjectZ:   c.objectZ,
		Lenses:    make([]LensResult, len(c.elems)),
		TerminalZ: c.terminalZ,
	}
	var (
		firstErr error
		broken   bool
		zPrev    = c.objectZ
		zObj     = c.objectZ
	)
	for i, e := range c.elems {
		front, back := e.Front(), e.Back()
		p1, p2 := e.Planes()
		in := Propagate(front - zPrev).Apply(ray)
		lr := LensResult{
			Index:         i,
			Name:          e.Name,
			Z:             e.Z,
			FocalLength:   e.FocalLength,
			Active:        e.Active,
			Reference:     e.Reference,
			Front:         front,
			Back:          back,
			P1:            p1,
			P2:            p2,
			ObjectZ:       math.NaN(),
			ImageZ:        math.NaN(),
			Magnification: math.NaN(),
			Crossover:     math.NaN(),
			RayIn:         in,
		}
		f := e.FocalLength
		lr.RayOut = e.Transfer(f).Apply(in)
		lr.RayAtImage = lr.RayOut
		if e.Focusing() {
			do := p1 - zObj
			lr.ObjectZ = zObj
			lr.Crossover = p2 + f
			switch {
			case f == 0:
				lr.Degenerate = true
				lr.RayOut = Ray{Height: math.NaN(), Angle: math.NaN()}
				lr.RayAtImage = lr.RayOut
			case broken || degenerate(do, f):
				lr.Degenerate = true
			default:
				m := ThinLens(f).Mul(Propagate(do))
				d := -m[0][1] / m[1][1]
				lr.ImageZ = p2 + d
				lr.Magnification = 1 / m[1][1]
				lr.RayAtImage = Propagate(lr.ImageZ - back).Apply(lr.RayOut)
				zObj = lr.ImageZ
			}
			if lr.Degenerate {
				if !broken {
					firstErr = &DegenerateError{Index: i, Name: e.Name, ObjectDistance: do, FocalLength: f}
				}
				broken = true
			}
		}
		res.Lenses[i] = lr
		ray = lr.RayOut
		zPrev = back
	}
	res.Terminal = Propagate(c.terminalZ - zPrev).Apply(ray)
	return res, firstErr
}

// Degenerate is true if any lens in the result is flagged.
func (r Result) Degenerate() bool {
	for _, l := range r.Lenses {
		if l.Degenerate {
			return true
		}
	}
	return false
}

// HeightAt returns the ray height at axial position z, between the object
// and terminal planes.  Inside a thick lens the ray runs straight from face
// to face.
func (r Result) HeightAt(z float64) float64 {
	zFrom, ray := r.ObjectZ, r.In
	for _, l := range r.Lenses {
		if l.Front > z {
			break
		}
		if z < l.Back {
			t := (z - l.Front) / (l.Back - l.Front)
			return l.RayIn.Height + t*(l.RayOut.Height-l.RayIn.Height)
		}
		zFrom, ray = l.Back, l.RayOut
	}
	return Propagate(z - zFrom).Apply(ray).Height
}

// Point is a vertex of a ray path.
type Point struct {
	Z      float64 `json:"z"`
	Height float64 `json:"h"`
}

// Path is a ray drawn through a chain.  Vertices runs object plane, each
// element (both faces of a thick lens), terminal plane; Images holds the ray at each lens's image plane.
type Path struct {
	Vertices []Point `json:"vertices"`
	Images   []Point `json:"images"`
}

// Trace propagates ray and returns the path vertices for plotting.
func (c Chain) Trace(ray Ray) (Path, Result, error) {
	res, err := c.Propagate(ray)
	p := Path{Vertices: []Point{{Z: res.ObjectZ, Height: ray.Height}}}
	for _, l := range res.Lenses {
		p.Vertices = append(p.Vertices, Point{Z: l.Front, Height: l.RayIn.Height})
		if l.Back > l.Front {
			p.Vertices = append(p.Vertices, Point{Z: l.Back, Height: l.RayOut.Height})
		}
		if l.Active && !l.Reference && !l.Degenerate {
			p.Images = append(p.Images, Point{Z: l.ImageZ, Height: l.RayAtImage.Height})
		}
	}
	p.Vertices = append(p.Vertices, Point{Z: res.TerminalZ, Height: res.Terminal.Height})
	return p, res, err
}

// Sample returns n heights evenly spaced from the object plane to the
// terminal plane inclusive, for terminal previews.
func Sample(res Result, n int) []float64 {
	if n < 2 {
		n = 2
	}
	out := make([]float64, n)
	span := res.TerminalZ - res.ObjectZ
	for i := range out {
		z := res.ObjectZ + span*float64(i)/float64(n-1)
		out[i] = res.HeightAt(z)
	}
	return out
}
