package export

import (
	"io"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"

	"github.com/nanomi/eoptics/explorer"
)

// GridCards describes the axes and fixed parameters of a grid as FITS
// header cards.  NAXIS1 runs along the second axis of the grid.
func GridCards(g *explorer.Grid, f explorer.Field) []fitsio.Card {
	return []fitsio.Card{
		{Name: "FIELD", Value: f.String(), Comment: "swept quantity, mm"},
		{Name: "CTYPE1", Value: g.Axis2.Var.String()},
		{Name: "CRPIX1", Value: 1.0},
		{Name: "CRVAL1", Value: g.Axis2.Start},
		{Name: "CDELT1", Value: g.Axis2.Step},
		{Name: "CTYPE2", Value: g.Axis1.Var.String()},
		{Name: "CRPIX2", Value: 1.0},
		{Name: "CRVAL2", Value: g.Axis1.Start},
		{Name: "CDELT2", Value: g.Axis1.Step},
		{Name: "DO1", Value: g.Base.ObjectDistance, Comment: "object distance of C1"},
		{Name: "APERTURE", Value: g.Base.ApertureDiameter, Comment: "aperture diameter"},
		{Name: "S1", Value: g.Base.S1, Comment: "C1 to C2"},
		{Name: "S2", Value: g.Base.S2, Comment: "C2 to C3"},
		{Name: "FL1", Value: g.Base.F1},
		{Name: "FL2", Value: g.Base.F2},
	}
}

// rowMajor flattens m, ignoring its stride.
func rowMajor(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, mat.Row(nil, i, m)...)
	}
	return out
}

// WriteGridFits streams one field of g to w as a 64 bit float image.
// Degenerate cells are written as NaN.
func WriteGridFits(w io.Writer, g *explorer.Grid, f explorer.Field) error {
	n1, n2 := g.Dims()
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{n2, n1})
	defer im.Close()
	err = im.Header().Append(GridCards(g, f)...)
	if err != nil {
		return err
	}
	err = im.Write(rowMajor(g.Field(f)))
	if err != nil {
		return err
	}
	return fits.Write(im)
}
