package explorer

import (
	"fmt"
	"strings"

	"github.com/nanomi/eoptics/optics"
)

// Variable is one of the geometry parameters of a Köhler condenser that can
// be swept.
type Variable int

const (
	// ObjectDistance is the source to C1 distance
	ObjectDistance Variable = iota

	// Distance1 is the C1 to C2 distance
	Distance1

	// Distance2 is the C2 to C3 distance
	Distance2

	FocalLength1
	FocalLength2
)

var variableNames = map[Variable]string{
	ObjectDistance: "do1",
	Distance1:      "s1",
	Distance2:      "s2",
	FocalLength1:   "fl1",
	FocalLength2:   "fl2",
}

// setters maps each variable onto the field of the parameters it replaces.
var setters = map[Variable]func(*optics.KohlerParams, float64){
	ObjectDistance: func(p *optics.KohlerParams, v float64) { p.ObjectDistance = v },
	Distance1:      func(p *optics.KohlerParams, v float64) { p.S1 = v },
	Distance2:      func(p *optics.KohlerParams, v float64) { p.S2 = v },
	FocalLength1:   func(p *optics.KohlerParams, v float64) { p.F1 = v },
	FocalLength2:   func(p *optics.KohlerParams, v float64) { p.F2 = v },
}

func (v Variable) String() string {
	if s, ok := variableNames[v]; ok {
		return s
	}
	return fmt.Sprintf("Variable(%d)", int(v))
}

// Valid is true for a known variable.
func (v Variable) Valid() bool {
	_, ok := setters[v]
	return ok
}

// Set returns a copy of p with the variable replaced by value.
func (v Variable) Set(p optics.KohlerParams, value float64) optics.KohlerParams {
	setters[v](&p, value)
	return p
}

// MarshalText encodes the short name.
func (v Variable) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariable, int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText accepts the short name, case insensitive.
func (v *Variable) UnmarshalText(b []byte) error {
	parsed, err := ParseVariable(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVariable converts a short name such as "fl1" into a Variable.
func ParseVariable(s string) (Variable, error) {
	for v, name := range variableNames {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariable, s)
}
