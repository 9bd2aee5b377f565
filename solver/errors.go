// Package solver chooses lens focal lengths: a multi-start local optimizer
// that puts the final image on a target plane while extremizing the column
// magnification, an exhaustive search for the smallest probe over
// excitation-limited focal length grids, and a single-lens focus solver.
package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSolution is matched by every *NoSolutionError.
	ErrNoSolution = errors.New("solver: no converged solution satisfies the constraints")

	// ErrOutOfBounds is returned when a fixed focal length lies outside its bounds.
	ErrOutOfBounds = errors.New("solver: focal length outside bounds")

	// ErrBadProblem is returned for an ill-formed problem, such as an empty
	// column or inverted bounds.
	ErrBadProblem = errors.New("solver: ill-formed problem")
)

// NoSolutionError is returned when no start converged to a point satisfying
// the constraints.  It carries the least infeasible attempt for diagnostics;
// Best is never to be used as a setting.
type NoSolutionError struct {
	// BestViolation is the smallest relative constraint violation seen among
	// converged starts, or +Inf if none converged
	BestViolation float64

	// Best holds the focal lengths of that attempt
	Best []float64

	Starts    int
	Converged int
}

func (e *NoSolutionError) Error() string {
	return fmt.Sprintf("solver: no solution from %d starts (%d converged), best relative violation %g",
		e.Starts, e.Converged, e.BestViolation)
}

// Is makes errors.Is(err, ErrNoSolution) true.
func (e *NoSolutionError) Is(target error) bool {
	return target == ErrNoSolution
}
