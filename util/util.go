// Package util contains misc internal utilities.
package util

import (
	"errors"
	"strconv"
	"strings"
)

// ErrOutOfRange is returned when a requested value violates a Limiter
var ErrOutOfRange = errors.New("requested value violates limits, aborted")

// ErrNotFound is wrapped by errors for a named thing that does not exist
var ErrNotFound = errors.New("not found")

// FloatSliceToCSV converts a slice of floats to CSV formatted data.
// e.g., []float64{1,2.5,3} => "1,2.5,3"
func FloatSliceToCSV(fs []float64) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	return strings.Join(s, ",")
}

// ParseFloatCSV is the inverse of FloatSliceToCSV.  Whitespace around each
// element is ignored.
func ParseFloatCSV(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return []float64{}, nil
	}
	pieces := strings.Split(s, ",")
	out := make([]float64, len(pieces))
	for i, p := range pieces {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Clamp limits a value to the range [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	}
	if input > high {
		return high
	}
	return input
}

// Limiter holds a closed interval of permitted values, such as the focal
// lengths a lens can physically reach
type Limiter struct {
	Min float64 `yaml:"Min" koanf:"Min"`
	Max float64 `yaml:"Max" koanf:"Max"`
}

// Check returns true if the value is within the limits, inclusive
func (l Limiter) Check(f float64) bool {
	return f >= l.Min && f <= l.Max
}

// Clamp limits the value to the limiter's interval
func (l Limiter) Clamp(f float64) float64 {
	return Clamp(f, l.Min, l.Max)
}

// Span is Max - Min
func (l Limiter) Span() float64 {
	return l.Max - l.Min
}

// Valid is true when Min < Max and neither is NaN
func (l Limiter) Valid() bool {
	return l.Min < l.Max
}
