// Package column holds the user-editable description of an electron column
// and turns it into the immutable chains the optics engine consumes.
package column

import (
	"os"
	"strings"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/nanomi/eoptics/excitation"
	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/util"
)

// Lens is one lens of the column as the user edits it.
type Lens struct {
	Name        string  `yaml:"Name" koanf:"Name"`
	Z           float64 `yaml:"Z" koanf:"Z"`
	FocalLength float64 `yaml:"FocalLength" koanf:"FocalLength"`
	Active      bool    `yaml:"Active" koanf:"Active"`

	// Family names the excitation law of the lens, "symmetric" or
	// "asymmetric".  Empty means excitation is not reported.
	Family string `yaml:"Family" koanf:"Family"`
}

// Aperture is the condenser aperture.
type Aperture struct {
	Z        float64 `yaml:"Z" koanf:"Z"`
	Diameter float64 `yaml:"Diameter" koanf:"Diameter"`
}

// Search configures the exhaustive condenser search.
type Search struct {
	Step float64 `yaml:"Step" koanf:"Step"`

	// Counts is the number of candidates for each of C1, C2, C3
	Counts []int `yaml:"Counts" koanf:"Counts"`
}

// Throttle limits the CPU heavy routes.
type Throttle struct {
	// PerSecond is the sustained request rate, 0 for unlimited
	PerSecond float64 `yaml:"PerSecond" koanf:"PerSecond"`
	Burst     int     `yaml:"Burst" koanf:"Burst"`
}

// Config is the whole column plus the server settings.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// SourceZ is the emitter tip position, the origin of the column
	SourceZ float64 `yaml:"SourceZ" koanf:"SourceZ"`

	SampleZ float64 `yaml:"SampleZ" koanf:"SampleZ"`
	ScreenZ float64 `yaml:"ScreenZ" koanf:"ScreenZ"`

	Aperture Aperture `yaml:"Aperture" koanf:"Aperture"`

	// TipRadius is the emitter radius used for the gun reference rays
	TipRadius float64 `yaml:"TipRadius" koanf:"TipRadius"`

	ThickLens optics.ThickLens `yaml:"ThickLens" koanf:"ThickLens"`

	// ThickChains models every lens of the illumination and imaging chains
	// as ThickLens instead of a thin lens
	ThickChains bool `yaml:"ThickChains" koanf:"ThickChains"`

	// Bounds are the focal lengths the lenses can reach, for the solvers
	Bounds util.Limiter `yaml:"Bounds" koanf:"Bounds"`

	Illumination []Lens `yaml:"Illumination" koanf:"Illumination"`
	Imaging      []Lens `yaml:"Imaging" koanf:"Imaging"`

	Search   Search   `yaml:"Search" koanf:"Search"`
	Throttle Throttle `yaml:"Throttle" koanf:"Throttle"`
}

// Default is the Nano-Mi column.
func Default() Config {
	return Config{
		Addr:      ":8000",
		SourceZ:   0,
		SampleZ:   528.9,
		ScreenZ:   972.7,
		Aperture:  Aperture{Z: 192.4, Diameter: 0.02},
		TipRadius: 0.015,
		ThickLens: optics.NanomiLens,
		Bounds:    util.Limiter{Min: 6, Max: 100},
		Illumination: []Lens{
			{Name: "C1", Z: 257.03, FocalLength: 13, Active: true, Family: excitation.Symmetric.Name},
			{Name: "C2", Z: 349, FocalLength: 35, Active: true, Family: excitation.Asymmetric.Name},
			{Name: "C3", Z: 517, FocalLength: 10.68545, Active: true, Family: excitation.Asymmetric.Name},
		},
		Imaging: []Lens{
			{Name: "Objective", Z: 551.6, FocalLength: 19.67, Active: true},
			{Name: "Intermediate", Z: 706.4, FocalLength: 6.498, Active: true},
			{Name: "Projective", Z: 826.9, FocalLength: 6, Active: true},
		},
		Search:   Search{Step: 0.1, Counts: []int{41, 163, 63}},
		Throttle: Throttle{PerSecond: 2, Burst: 4},
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Illumination = append([]Lens(nil), c.Illumination...)
	c.Imaging = append([]Lens(nil), c.Imaging...)
	c.Search.Counts = append([]int(nil), c.Search.Counts...)
	return c
}

// LoadYaml converts a (path to a) yaml file into a Config struct.  Fields
// the file leaves out are zero.
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "opening column config")
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, errors.Wrapf(err, "decoding %s", path)
}

// Load layers the file at path over the defaults.  A missing file is not an
// error; the defaults are returned.
func Load(k *koanf.Koanf, path string) (Config, error) {
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, "loading defaults")
	}
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			return Config{}, errors.Wrapf(err, "loading %s", path)
		}
	}
	cfg := Config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshaling config")
	}
	return cfg, nil
}

// WriteYaml encodes c to path, as mkconf does.
func WriteYaml(c Config, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating config file")
	}
	defer f.Close()
	return errors.Wrap(yaml.NewEncoder(f).Encode(c), "encoding config")
}
