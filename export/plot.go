package export

import (
	"fmt"
	"math"

	"github.com/guptarohit/asciigraph"

	"github.com/nanomi/eoptics/optics"
)

// PlotRay draws the height of a propagated ray from the object plane to
// the terminal plane, in micrometres.
func PlotRay(res optics.Result, width, height int) string {
	if width < 2 {
		width = 2
	}
	var hs []float64
	for _, h := range optics.Sample(res, width) {
		// past a degenerate lens the ray is lost
		if math.IsNaN(h) || math.IsInf(h, 0) {
			break
		}
		hs = append(hs, h*1e3)
	}
	caption := fmt.Sprintf("ray height (um), z %g to %g mm", res.ObjectZ, res.TerminalZ)
	if len(hs) == 0 {
		return caption
	}
	return asciigraph.Plot(hs,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(caption))
}
