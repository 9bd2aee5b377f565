package column

import (
	"errors"
	"math"

	"github.com/nanomi/eoptics/excitation"
	"github.com/nanomi/eoptics/optics"
)

// LensState is the computed state of one lens.  Pointer fields are nil
// where the value is undefined: inactive or degenerate lenses, or a lens
// without an excitation family.
type LensState struct {
	Name          string   `json:"name"`
	Z             float64  `json:"z"`
	FocalLength   float64  `json:"focalLength"`
	Active        bool     `json:"active"`
	Degenerate    bool     `json:"degenerate"`
	Excitation    *float64 `json:"excitation"`
	Magnification *float64 `json:"magnification"`
	ImageZ        *float64 `json:"imageZ"`
	CrossoverZ    *float64 `json:"crossoverZ"`
}

// Side is one half of the column, computed.
type Side struct {
	Lenses []LensState `json:"lenses"`

	// Magnification is the signed column magnification
	Magnification *float64 `json:"magnification"`

	// Warning describes a degenerate lens, if any
	Warning string `json:"warning,omitempty"`
}

// State is everything the front end shows for the current configuration.
type State struct {
	Illumination Side `json:"illumination"`
	Imaging      Side `json:"imaging"`

	ApertureDiameter float64 `json:"apertureDiameter"`

	// Probe is the Köhler probe diameter at the sample
	Probe *float64 `json:"probe"`

	// Beam is the extreme diameter of the gun reference rays at the sample
	Beam *float64 `json:"beam"`

	// Total is the product of the two column magnifications
	Total *float64 `json:"total"`
}

func opt(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func side(ch optics.Chain, lenses []Lens, ray optics.Ray) (Side, optics.Result, error) {
	res, err := ch.Propagate(ray)
	if err != nil && !errors.Is(err, optics.ErrDegenerate) {
		return Side{}, res, err
	}
	var s Side
	if err != nil {
		s.Warning = err.Error()
	}
	fams := map[string]string{}
	for _, l := range lenses {
		fams[l.Name] = l.Family
	}
	for _, l := range res.Lenses {
		if l.Reference {
			continue
		}
		ls := LensState{
			Name:        l.Name,
			Z:           l.Z,
			FocalLength: l.FocalLength,
			Active:      l.Active,
			Degenerate:  l.Degenerate,
		}
		if l.Active {
			ls.Magnification = opt(l.Magnification)
			ls.ImageZ = opt(l.ImageZ)
			ls.CrossoverZ = opt(l.Crossover)
		}
		if fam, err := excitation.ByName(fams[l.Name]); err == nil {
			if ur, err := fam.Excitation(l.FocalLength); err == nil {
				ls.Excitation = opt(ur)
			}
		}
		s.Lenses = append(s.Lenses, ls)
	}
	if m, err := res.Magnification(); err == nil {
		s.Magnification = opt(m)
	}
	return s, res, nil
}

// Evaluate propagates both halves of the column.  A degenerate lens is not
// an error: the affected values are left nil and a warning is set.
func Evaluate(cfg Config) (State, error) {
	st := State{ApertureDiameter: cfg.Aperture.Diameter}
	ill, err := cfg.IlluminationChain()
	if err != nil {
		return st, err
	}
	img, err := cfg.ImagingChain()
	if err != nil {
		return st, err
	}
	rays := cfg.GunRays()
	s, res, err := side(ill, cfg.Illumination, rays[optics.GunAxial])
	if err != nil {
		return st, err
	}
	st.Illumination = s
	if p, ok := res.Kohler(cfg.Aperture.Diameter / 2); ok {
		st.Probe = opt(p)
	}
	st.Beam = opt(optics.Envelope(ill, rays[:]).Diameter())

	// a ray scattered at the sample, as for the diffraction pattern
	s, _, err = side(img, cfg.Imaging, optics.Ray{Angle: ScatteringAngle})
	if err != nil {
		return st, err
	}
	st.Imaging = s
	if st.Illumination.Magnification != nil && st.Imaging.Magnification != nil {
		st.Total = opt(*st.Illumination.Magnification * *st.Imaging.Magnification)
	}
	return st, nil
}

// ScatteringAngle is the angle of the reference ray launched from the
// sample: the electron wavelength over a 10 nm feature, in radians.
const ScatteringAngle = 0.0112e-6 / 1e-5
