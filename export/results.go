// Package export writes column state and explorer grids to files for
// offline analysis: a CSV results table, FITS images of a grid, and text
// plots of a ray profile for the terminal.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/nanomi/eoptics/column"
)

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ptoa formats an optional value; undefined values are empty cells.
func ptoa(f *float64) string {
	if f == nil {
		return ""
	}
	return ftoa(*f)
}

// btoa matches the capitalised booleans of the lab spreadsheets.
func btoa(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ResultsTable lays the state out as the lab's results spreadsheet: the
// illumination lenses with their excitation, two blank rows, the imaging
// lenses, two blank rows, then the aperture diameter and the magnification
// at the scintillator.
func ResultsTable(st column.State) [][]string {
	rows := [][]string{{"Lenses", "Focal Length", "UR", "Magnification", "Active"}}
	for _, l := range st.Illumination.Lenses {
		rows = append(rows, []string{l.Name, ftoa(l.FocalLength), ptoa(l.Excitation), ptoa(l.Magnification), btoa(l.Active)})
	}
	rows = append(rows, []string{}, []string{})
	rows = append(rows, []string{"Lenses", "Focal Length", "Magnification", "Active"})
	for _, l := range st.Imaging.Lenses {
		rows = append(rows, []string{l.Name, ftoa(l.FocalLength), ptoa(l.Magnification), btoa(l.Active)})
	}
	rows = append(rows, []string{}, []string{})
	// header spelling is what existing spreadsheets key on
	rows = append(rows, []string{"Condensor Aperature", "Magnification"})
	rows = append(rows, []string{ftoa(st.ApertureDiameter), ptoa(st.Imaging.Magnification)})
	return rows
}

// WriteResults writes ResultsTable as CSV with CRLF line endings.
func WriteResults(w io.Writer, st column.State) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.WriteAll(ResultsTable(st)); err != nil {
		return errors.Wrap(err, "writing results csv")
	}
	return nil
}
