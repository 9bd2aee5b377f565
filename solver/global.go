package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/nanomi/eoptics/excitation"
	"github.com/nanomi/eoptics/mathx"
	"github.com/nanomi/eoptics/optics"
)

// SearchSpace holds the candidate focal lengths of the three condenser
// lenses and the lens family of each, used to report excitations.
type SearchSpace struct {
	Candidates [3][]float64
	Families   [3]excitation.Family
}

// Default candidate counts and step for the condenser search.
var (
	DefaultSearchStep   = 0.1
	DefaultSearchCounts = [3]int{41, 163, 63}
)

// CandidatesFrom seeds each lens's candidates at its family's shortest
// reachable focal length and steps upward.
func CandidatesFrom(fams [3]excitation.Family, step float64, counts [3]int) SearchSpace {
	var s SearchSpace
	s.Families = fams
	for i, fam := range fams {
		s.Candidates[i] = mathx.LinspaceStep(fam.MinFocalLength(), step, counts[i])
	}
	return s
}

// DefaultSearchSpace is the Nano-Mi condenser: a symmetric C1 and two
// asymmetric lenses.
func DefaultSearchSpace() SearchSpace {
	return CandidatesFrom(
		[3]excitation.Family{excitation.Symmetric, excitation.Asymmetric, excitation.Asymmetric},
		DefaultSearchStep, DefaultSearchCounts)
}

// Size is the number of combinations searched.
func (s SearchSpace) Size() int {
	return len(s.Candidates[0]) * len(s.Candidates[1]) * len(s.Candidates[2])
}

// SearchResult is the winner of GlobalSearch.
type SearchResult struct {
	// Radius is the smallest worst-case ray height at the terminal plane
	Radius float64 `json:"radius"`

	Index        [3]int     `json:"index"`
	FocalLengths [3]float64 `json:"focalLengths"`
	Excitations  [3]float64 `json:"excitations"`

	// Heights of each ray at the terminal plane for the winning triple
	Heights []float64 `json:"heights"`

	Evaluated int `json:"evaluated"`
}

// GlobalSearch tries every combination of candidate focal lengths on the
// three active lenses of chain, carries every ray to the terminal plane with
// the full transfer matrix (thick lenses included), and keeps the combination whose largest |height|
// is smallest.  Nothing is pruned.  Ties go to the first combination in
// (i, j, k) order, so the result is a pure function of its inputs.
//
// The context is checked once per C1 candidate.
func GlobalSearch(ctx context.Context, chain optics.Chain, rays []optics.Ray, space SearchSpace) (SearchResult, error) {
	lenses := chain.Lenses()
	if len(lenses) != 3 {
		return SearchResult{}, fmt.Errorf("%w: search needs 3 active lenses, chain has %d", ErrBadProblem, len(lenses))
	}
	if len(rays) == 0 {
		return SearchResult{}, fmt.Errorf("%w: no rays", ErrBadProblem)
	}
	if space.Size() == 0 {
		return SearchResult{}, fmt.Errorf("%w: empty candidate set", ErrBadProblem)
	}
	var e [3]optics.Element
	for n, i := range lenses {
		e[n] = chain.Element(i)
	}
	var (
		p0 = optics.Propagate(e[0].Front() - chain.ObjectZ())
		p1 = optics.Propagate(e[1].Front() - e[0].Back())
		p2 = optics.Propagate(e[2].Front() - e[1].Back())
		p3 = optics.Propagate(chain.TerminalZ() - e[2].Back())
	)
	var lens [3][]optics.Matrix
	for n := range lens {
		lens[n] = make([]optics.Matrix, len(space.Candidates[n]))
		for k, f := range space.Candidates[n] {
			lens[n][k] = e[n].Transfer(f)
		}
	}
	out := SearchResult{Radius: math.Inf(1), Index: [3]int{-1, -1, -1}}
	c1, c2, c3 := space.Candidates[0], space.Candidates[1], space.Candidates[2]
	for i := range c1 {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		a := lens[0][i].Mul(p0)
		a = p1.Mul(a)
		for j := range c2 {
			b := lens[1][j].Mul(a)
			b = p2.Mul(b)
			for k := range c3 {
				m := lens[2][k].Mul(b)
				m = p3.Mul(m)
				worst := 0.0
				for _, r := range rays {
					h := math.Abs(m.Apply(r).Height)
					if math.IsNaN(h) {
						worst = math.Inf(1)
						break
					}
					if h > worst {
						worst = h
					}
				}
				out.Evaluated++
				if worst < out.Radius {
					out.Radius = worst
					out.Index = [3]int{i, j, k}
				}
			}
		}
	}
	if out.Index[0] < 0 {
		// every combination gave NaN
		return out, fmt.Errorf("%w: no finite combination", ErrNoSolution)
	}
	for n := range out.FocalLengths {
		f := space.Candidates[n][out.Index[n]]
		out.FocalLengths[n] = f
		ur, err := space.Families[n].Excitation(f)
		if err != nil {
			ur = math.NaN()
		}
		out.Excitations[n] = ur
	}
	win := chain.WithFocalLengths(out.FocalLengths[:])
	out.Heights = optics.Envelope(win, rays).Heights
	return out, nil
}
