package optics

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerate is matched by every *DegenerateError.
	ErrDegenerate = errors.New("optics: object at focal point, image at infinity")

	// ErrUnordered is returned when chain elements are not in strictly increasing z.
	ErrUnordered = errors.New("optics: chain elements must be in strictly increasing z")

	// ErrNoLenses is returned by operations that need at least one active lens.
	ErrNoLenses = errors.New("optics: chain has no active lenses")
)

// DegenerateError reports a lens whose object sits at its focal point (or
// whose focal length is zero).  The image of that lens is at infinity, so
// its magnification and image plane are undefined.
type DegenerateError struct {
	// Index of the element in the chain
	Index int

	// Name of the element, if it has one
	Name string

	ObjectDistance float64
	FocalLength    float64
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("optics: lens %d (%s) degenerate: object distance %g == focal length %g, image at infinity",
		e.Index, e.Name, e.ObjectDistance, e.FocalLength)
}

// Is makes errors.Is(err, ErrDegenerate) true.
func (e *DegenerateError) Is(target error) bool {
	return target == ErrDegenerate
}
