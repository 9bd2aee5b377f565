package optics

import (
	"errors"
	"math"
)

// ErrSingular is returned when inverting a transfer matrix with zero determinant.
var ErrSingular = errors.New("optics: transfer matrix is singular")

// Matrix is a 2x2 ray-transfer (ABCD) matrix, row major, acting on column
// vectors [height; angle].
type Matrix [2][2]float64

// Identity returns the identity transfer matrix.
func Identity() Matrix {
	return Matrix{{1, 0}, {0, 1}}
}

// Propagate is the field-free drift over an axial distance d.
func Propagate(d float64) Matrix {
	return Matrix{{1, d}, {0, 1}}
}

// ThinLens applies the angular kick of an ideal lens with focal length f.
// f must be nonzero; the chain propagator reports f == 0 as degenerate
// before building this matrix.
func ThinLens(f float64) Matrix {
	return Matrix{{1, 0}, {-1 / f, 1}}
}

// Refraction is the matrix for crossing a spherical interface of power p
// from a medium of index n1 into a medium of index n2.  The power of a
// surface with radius R is (n2-n1)/R.
func Refraction(p, n1, n2 float64) Matrix {
	return Matrix{{1, 0}, {-p / n2, n1 / n2}}
}

// Mul returns the product a·b.  Applied to a ray, b acts first.
func (a Matrix) Mul(b Matrix) Matrix {
	var r Matrix
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j]
		}
	}
	return r
}

// Apply maps a ray through the matrix.
func (a Matrix) Apply(r Ray) Ray {
	return Ray{
		Height: a[0][0]*r.Height + a[0][1]*r.Angle,
		Angle:  a[1][0]*r.Height + a[1][1]*r.Angle,
	}
}

// Compose multiplies matrices given in the order a ray meets them, so
// Compose(m1, m2, m3) is m3·m2·m1.  The ordering matters: the reversed
// product describes a different system and puts images in the wrong place.
func Compose(ms ...Matrix) Matrix {
	out := Identity()
	for _, m := range ms {
		out = m.Mul(out)
	}
	return out
}

// Det is the determinant, n_in/n_out for any physical system.
func (a Matrix) Det() float64 {
	return a[0][0]*a[1][1] - a[0][1]*a[1][0]
}

// Inverse returns the matrix undoing a.
func (a Matrix) Inverse() (Matrix, error) {
	det := a.Det()
	if det == 0 || math.IsNaN(det) {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		{a[1][1] / det, -a[0][1] / det},
		{-a[1][0] / det, a[0][0] / det},
	}, nil
}

// ApproxEqual reports whether every element of a and b agrees within tol.
func (a Matrix) ApproxEqual(b Matrix, tol float64) bool {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// FocalLength is the effective focal length -1/C of a system matrix.  It is
// infinite for an afocal system.
func (a Matrix) FocalLength() float64 {
	return -1 / a[1][0]
}

// PrincipalPlanes locates the principal planes of a system matrix, front
// measured from the entrance plane and back from the exit plane, with the
// sign convention (D-1)/C and (1-A)/C.
func (a Matrix) PrincipalPlanes() (front, back float64) {
	c := a[1][0]
	return (a[1][1] - 1) / c, (1 - a[0][0]) / c
}
