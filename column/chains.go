package column

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nanomi/eoptics/excitation"
	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/solver"
	"github.com/nanomi/eoptics/util"
)

// ErrUnknownLens is returned when a lens name matches nothing in the column.
// It wraps util.ErrNotFound.
var ErrUnknownLens = fmt.Errorf("column: unknown lens: %w", util.ErrNotFound)

// ApertureName is the name of the condenser aperture plane in illumination chains.
const ApertureName = "CA"

func (c Config) elements(lenses []Lens) []optics.Element {
	var thick *optics.ThickLens
	if c.ThickChains {
		tl := c.ThickLens
		thick = &tl
	}
	out := make([]optics.Element, len(lenses))
	for i, l := range lenses {
		out[i] = optics.Element{Name: l.Name, Z: l.Z, FocalLength: l.FocalLength, Active: l.Active, Thick: thick}
	}
	return out
}

// IlluminationChain runs from the source to the sample, with the condenser
// aperture as a reference plane where it sits between them.
func (c Config) IlluminationChain() (optics.Chain, error) {
	elems := c.elements(c.Illumination)
	if c.Aperture.Z > c.SourceZ && c.Aperture.Diameter > 0 {
		ca := optics.Element{Name: ApertureName, Z: c.Aperture.Z, Reference: true, Active: true, ApertureRadius: c.Aperture.Diameter / 2}
		at := len(elems)
		for i, e := range elems {
			if e.Front() > ca.Z {
				at = i
				break
			}
		}
		elems = append(elems[:at], append([]optics.Element{ca}, elems[at:]...)...)
	}
	return optics.NewChain(c.SourceZ, c.SampleZ, elems...)
}

// ImagingChain runs from the sample to the screen.
func (c Config) ImagingChain() (optics.Chain, error) {
	return optics.NewChain(c.SampleZ, c.ScreenZ, c.elements(c.Imaging)...)
}

// GunRays are the four reference rays leaving the source.
func (c Config) GunRays() [4]optics.Ray {
	return optics.GunRays(c.TipRadius, c.Aperture.Diameter, c.Aperture.Z-c.SourceZ)
}

// SearchSpace seeds the exhaustive condenser search from the excitation
// families of the illumination lenses.
func (c Config) SearchSpace() (solver.SearchSpace, error) {
	if len(c.Illumination) != 3 {
		return solver.SearchSpace{}, fmt.Errorf("column: condenser search needs 3 illumination lenses, have %d", len(c.Illumination))
	}
	var fams [3]excitation.Family
	for i, l := range c.Illumination {
		f, err := excitation.ByName(l.Family)
		if err != nil {
			return solver.SearchSpace{}, fmt.Errorf("lens %s: %w", l.Name, err)
		}
		fams[i] = f
	}
	counts := solver.DefaultSearchCounts
	for i := 0; i < len(counts) && i < len(c.Search.Counts); i++ {
		counts[i] = c.Search.Counts[i]
	}
	step := c.Search.Step
	if step <= 0 {
		step = solver.DefaultSearchStep
	}
	return solver.CandidatesFrom(fams, step, counts), nil
}

// thickColumn models the active lenses of one side of the column as thick
// lenses centred on their Z, imaging onto target.  The known focal lengths
// are those of the lenses not listed in solveFor; the bounds are the entries
// of limits.  Both are indexed like the result.
func thickColumn(lens optics.ThickLens, objectZ, targetZ float64, lenses []Lens, solveFor []string, limits map[string]util.Limiter) (solver.ThickColumn, map[int]float64, map[int]util.Limiter, error) {
	col := solver.ThickColumn{Lens: lens, ObjectZ: objectZ, TargetZ: targetZ}
	known := map[int]float64{}
	bounds := map[int]util.Limiter{}
	want := map[string]bool{}
	for _, n := range solveFor {
		want[strings.ToLower(n)] = true
	}
	for _, l := range lenses {
		if !l.Active {
			continue
		}
		idx := len(col.Fronts)
		col.Fronts = append(col.Fronts, l.Z-lens.Length/2)
		if len(solveFor) > 0 && !want[strings.ToLower(l.Name)] {
			known[idx] = l.FocalLength
		}
		if lim, ok := limits[l.Name]; ok {
			bounds[idx] = lim
		}
		delete(want, strings.ToLower(l.Name))
	}
	for n := range want {
		return col, nil, nil, fmt.Errorf("%w: %q is not an active lens", ErrUnknownLens, n)
	}
	return col, known, bounds, nil
}

// ImagingTolerance is the relative miss of the screen accepted when solving
// the imaging side, tighter than the illumination default.
const ImagingTolerance = 1e-3

// SolveProblem builds the local optimizer problem for the illumination or
// imaging side.  solveFor names the lenses to solve; empty means all.  Each
// lens is bounded by its LensLimits entry.
func (c Config) SolveProblem(imaging bool, solveFor []string) (solver.ThickColumn, solver.Goal, solver.LocalSettings, error) {
	var (
		col    solver.ThickColumn
		known  map[int]float64
		bounds map[int]util.Limiter
		err    error
		goal   = solver.Demagnify
		limits map[string]util.Limiter
	)
	if c.Bounds.Valid() {
		limits = c.LensLimits()
	}
	if imaging {
		goal = solver.Magnify
		col, known, bounds, err = thickColumn(c.ThickLens, c.SampleZ, c.ScreenZ, c.Imaging, solveFor, limits)
	} else {
		col, known, bounds, err = thickColumn(c.ThickLens, c.SourceZ, c.SampleZ, c.Illumination, solveFor, limits)
	}
	set := solver.LocalSettings{Bounds: c.Bounds, LensBounds: bounds, Known: known}
	if imaging {
		set.Tolerance = ImagingTolerance
	}
	return col, goal, set, err
}

// Column is the live, mutable column configuration shared by the front end.
// Engine calls take a fresh chain from it each time.
type Column struct {
	mu  sync.RWMutex
	cfg Config
}

// New wraps cfg.
func New(cfg Config) *Column {
	return &Column{cfg: cfg.Clone()}
}

// Config returns a copy of the current configuration.
func (c *Column) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

// Replace swaps in a whole new configuration, as on a config file reload.
func (c *Column) Replace(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg.Clone()
}

// find returns a pointer to the named lens; the caller holds the lock.
func (c *Column) find(name string) (*Lens, error) {
	for _, side := range [][]Lens{c.cfg.Illumination, c.cfg.Imaging} {
		for i := range side {
			if strings.EqualFold(side[i].Name, name) {
				return &side[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLens, name)
}

// Names lists every lens, illumination side first.
func (c *Column) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, l := range c.cfg.Illumination {
		out = append(out, l.Name)
	}
	for _, l := range c.cfg.Imaging {
		out = append(out, l.Name)
	}
	return out
}

// FocalLength returns the focal length of the named lens.
func (c *Column) FocalLength(name string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, err := c.find(name)
	if err != nil {
		return 0, err
	}
	return l.FocalLength, nil
}

// SetFocalLength changes the focal length of the named lens.  It must lie
// inside the column's bounds and be reachable by the lens's family.
func (c *Column) SetFocalLength(name string, f float64) error {
	return c.SetFocalLengths(map[string]float64{name: f})
}

// SetFocalLengths changes several focal lengths at once.  Either every
// value is accepted or the column is left unchanged.
func (c *Column) SetFocalLengths(fs map[string]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lenses := make(map[*Lens]float64, len(fs))
	for name, f := range fs {
		l, err := c.find(name)
		if err != nil {
			return err
		}
		if err := c.reachable(l, f); err != nil {
			return err
		}
		lenses[l] = f
	}
	for l, f := range lenses {
		l.FocalLength = f
	}
	return nil
}

func (c *Column) reachable(l *Lens, f float64) error {
	if b := c.cfg.Bounds; b.Valid() && !b.Check(f) {
		return fmt.Errorf("%w: %s at %g outside [%g, %g]", util.ErrOutOfRange, l.Name, f, b.Min, b.Max)
	}
	if fam, err := excitation.ByName(l.Family); err == nil && !fam.Reachable(f) {
		return fmt.Errorf("%w: %s lens %s cannot reach %g, minimum %g", util.ErrOutOfRange, fam.Name, l.Name, f, fam.MinFocalLength())
	}
	return nil
}

// Active reports whether the named lens is switched on.
func (c *Column) Active(name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, err := c.find(name)
	if err != nil {
		return false, err
	}
	return l.Active, nil
}

// SetActive switches the named lens on or off.
func (c *Column) SetActive(name string, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, err := c.find(name)
	if err != nil {
		return err
	}
	l.Active = on
	return nil
}

// ApertureDiameter returns the condenser aperture diameter.
func (c *Column) ApertureDiameter() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Aperture.Diameter
}

// SetApertureDiameter changes the condenser aperture diameter, which must be
// positive.
func (c *Column) SetApertureDiameter(d float64) error {
	if !(d > 0) {
		return fmt.Errorf("%w: aperture diameter %g", util.ErrOutOfRange, d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Aperture.Diameter = d
	return nil
}

// Illumination is the current illumination chain.
func (c *Column) Illumination() (optics.Chain, error) {
	return c.Config().IlluminationChain()
}

// Imaging is the current imaging chain.
func (c *Column) Imaging() (optics.Chain, error) {
	return c.Config().ImagingChain()
}

// KohlerParams reads the Köhler formula inputs off the first three
// illumination lenses, whatever their active state.
func (c Config) KohlerParams() (optics.KohlerParams, error) {
	if len(c.Illumination) < 3 {
		return optics.KohlerParams{}, fmt.Errorf("column: Köhler illumination needs 3 lenses, have %d", len(c.Illumination))
	}
	l := c.Illumination
	return optics.KohlerParams{
		ObjectDistance:   l[0].Z - c.SourceZ,
		ApertureDiameter: c.Aperture.Diameter,
		S1:               l[1].Z - l[0].Z,
		S2:               l[2].Z - l[1].Z,
		F1:               l[0].FocalLength,
		F2:               l[1].FocalLength,
	}, nil
}

// FocusProblem builds the single lens focus problem for the named lens.
// The imaging side launches scattered rays from the sample; the
// illumination side launches the axial gun ray and one parallel to it
// from the tip edge.
func (c Config) FocusProblem(name string, mode solver.FocusMode) (solver.FocusProblem, error) {
	var (
		ch   optics.Chain
		rays [2]optics.Ray
		err  error
	)
	switch {
	case hasLens(c.Imaging, name):
		ch, err = c.ImagingChain()
		rays = [2]optics.Ray{{Angle: ScatteringAngle}, {Height: 1e-5, Angle: ScatteringAngle}}
	case hasLens(c.Illumination, name):
		ch, err = c.IlluminationChain()
		axial := c.GunRays()[optics.GunAxial]
		rays = [2]optics.Ray{axial, {Height: c.TipRadius, Angle: axial.Angle}}
	default:
		return solver.FocusProblem{}, fmt.Errorf("%w: %q", ErrUnknownLens, name)
	}
	if err != nil {
		return solver.FocusProblem{}, err
	}
	idx := -1
	for i := 0; i < ch.Len(); i++ {
		if strings.EqualFold(ch.Element(i).Name, name) {
			idx = i
		}
	}
	return solver.FocusProblem{Chain: ch, Lens: idx, Mode: mode, Rays: rays}, nil
}

func hasLens(lenses []Lens, name string) bool {
	for _, l := range lenses {
		if strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

// LensLimits are the focal lengths each lens may be set to: the column
// bounds, raised to the family's minimum where the lens has one.
func (c Config) LensLimits() map[string]util.Limiter {
	out := map[string]util.Limiter{}
	for _, side := range [][]Lens{c.Illumination, c.Imaging} {
		for _, l := range side {
			lim := c.Bounds
			if fam, err := excitation.ByName(l.Family); err == nil && fam.MinFocalLength() > lim.Min {
				lim.Min = fam.MinFocalLength()
			}
			out[l.Name] = lim
		}
	}
	return out
}
