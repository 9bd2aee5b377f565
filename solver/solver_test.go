package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nanomi/eoptics/excitation"
	"github.com/nanomi/eoptics/mathx"
	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/util"
)

var testColumn = ThickColumn{
	Lens:    optics.NanomiLens,
	ObjectZ: 0,
	Fronts:  []float64{126.67, 253.34, 380.01},
	TargetZ: 400.01,
}

func TestEvaluateChainsImages(t *testing.T) {
	im, err := testColumn.Evaluate([]float64{20, 30, 12.040812149965015})
	if err != nil {
		t.Fatal(err)
	}
	if v := testColumn.Violation(im); v > 1e-9 {
		t.Errorf("closed form focal length should hit the target, violation %g", v)
	}
	if math.Abs(im.ImageZ-400.01) > 1e-6 {
		t.Errorf("image at %g", im.ImageZ)
	}
	if math.Abs(im.Magnification-(-0.008558760299691649)) > 1e-9 {
		t.Errorf("magnification %.16g", im.Magnification)
	}
}

func TestEvaluateDegenerate(t *testing.T) {
	// first object distance is 126.67 + 15.69
	_, err := testColumn.Evaluate([]float64{142.36, 30, 12})
	var de *optics.DegenerateError
	if !errors.As(err, &de) || de.Index != 0 {
		t.Errorf("expected lens 0 degenerate, got %v", err)
	}
}

func TestSolveLocalSingleUnknown(t *testing.T) {
	sol, err := SolveLocal(context.Background(), testColumn, Demagnify, LocalSettings{
		Known: map[int]float64{0: 20, 1: 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	if sol.FocalLengths[0] != 20 || sol.FocalLengths[1] != 30 {
		t.Errorf("known focal lengths changed: %v", sol.FocalLengths)
	}
	if math.Abs(sol.FocalLengths[2]-12.040812149965015) > 1e-3 {
		t.Errorf("f3 = %g, expected 12.0408", sol.FocalLengths[2])
	}
	if sol.Violation > DefaultTolerance {
		t.Errorf("accepted violation %g", sol.Violation)
	}
	if sol.Starts != DefaultGuesses || sol.Accepted == 0 {
		t.Errorf("starts %d accepted %d", sol.Starts, sol.Accepted)
	}
}

func TestSolveLocalTwoUnknowns(t *testing.T) {
	sol, err := SolveLocal(context.Background(), testColumn, Demagnify, LocalSettings{
		Known: map[int]float64{0: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, f := range sol.FocalLengths {
		if !DefaultBounds.Check(f) {
			t.Errorf("f%d = %g outside bounds", i+1, f)
		}
	}
	if sol.Violation > DefaultTolerance {
		t.Errorf("accepted violation %g", sol.Violation)
	}
	// along the constraint |M| grows with f2, from 0.00097 at f2 = 6 to
	// 0.0086 at f2 = 30
	if m := math.Abs(sol.Magnification); m > 0.005 {
		t.Errorf("|M| = %g is not a demagnifying optimum, f = %v", m, sol.FocalLengths)
	}
	if sol.Starts != DefaultGuesses*DefaultGuesses {
		t.Errorf("expected %d starts, got %d", DefaultGuesses*DefaultGuesses, sol.Starts)
	}
}

func TestSolveLocalInfeasible(t *testing.T) {
	_, err := SolveLocal(context.Background(), testColumn, Demagnify, LocalSettings{
		Known:      map[int]float64{0: 20, 1: 30},
		LensBounds: map[int]util.Limiter{2: {Min: 6, Max: 7}},
	})
	if !errors.Is(err, ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution, got %v", err)
	}
	var ns *NoSolutionError
	if !errors.As(err, &ns) {
		t.Fatal("expected a *NoSolutionError")
	}
	if ns.Starts != DefaultGuesses {
		t.Errorf("starts %d", ns.Starts)
	}
	if ns.Best != nil {
		if !(ns.BestViolation > DefaultTolerance) {
			t.Errorf("best violation %g should exceed the tolerance", ns.BestViolation)
		}
		if f := ns.Best[2]; f < 6 || f > 7 {
			t.Errorf("best attempt %g left its bounds", f)
		}
	}
}

func TestSolveLocalRejectsFixedOutOfBounds(t *testing.T) {
	_, err := SolveLocal(context.Background(), testColumn, Demagnify, LocalSettings{
		Known: map[int]float64{0: 200},
	})
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	_, err = SolveLocal(context.Background(), testColumn, Magnify, LocalSettings{
		Known: map[int]float64{0: 20, 1: 20, 2: 20},
	})
	if !errors.Is(err, ErrBadProblem) {
		t.Errorf("nothing to solve should be ErrBadProblem, got %v", err)
	}
}

func TestSolveLocalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SolveLocal(ctx, testColumn, Demagnify, LocalSettings{Known: map[int]float64{0: 20}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func lowerChain(t *testing.T) optics.Chain {
	t.Helper()
	c, err := optics.NewChain(528.9, 972.7,
		optics.Element{Name: "OBJ", Z: 551.6, FocalLength: 19.67, Active: true},
		optics.Element{Name: "INT", Z: 706.4, FocalLength: 6.498, Active: true},
		optics.Element{Name: "PROJ", Z: 826.9, FocalLength: 6, Active: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestInteriorGuesses(t *testing.T) {
	lim := util.Limiter{Min: 6, Max: 100}
	got := interior(lim, 4)
	want := []float64{17.75, 41.25, 64.75, 88.25}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("guesses %v, expected %v", got, want)
			break
		}
	}
	if g := interior(lim, 1); len(g) != 1 || g[0] != 53 {
		t.Errorf("single guess %v", g)
	}
	if g := interior(lim, 0); len(g) != 0 {
		t.Errorf("no guesses requested, got %v", g)
	}
}

func TestFocus(t *testing.T) {
	angle := 0.0112e-6 / 1e-5
	rays := [2]optics.Ray{{Height: 0, Angle: angle}, {Height: 1e-5, Angle: angle}}
	cases := []struct {
		lens int
		mode FocusMode
		want float64
	}{
		{0, Image, 19.68},
		{1, Image, 6.99},
		{2, Image, 46.86},
		{0, Diffraction, 147.92},
		{1, Diffraction, 61.91},
		{2, Diffraction, 63.88},
	}
	ch := lowerChain(t)
	for _, c := range cases {
		res, err := Focus(context.Background(), FocusProblem{
			Chain:     ch,
			Lens:      c.lens,
			Mode:      c.mode,
			Rays:      rays,
			Tolerance: 1e-7,
		})
		if err != nil {
			t.Errorf("lens %d %v: %v", c.lens, c.mode, err)
			continue
		}
		if math.Abs(res.FocalLength-c.want) > 0.01 {
			t.Errorf("lens %d %v: focal length %g, expected about %g", c.lens, c.mode, res.FocalLength, c.want)
		}
		if res.Residual > 1e-7 {
			t.Errorf("lens %d %v: residual %g", c.lens, c.mode, res.Residual)
		}
	}
}

func TestFocusOutOfReach(t *testing.T) {
	rays := [2]optics.Ray{{Angle: 0.00112}, {Height: 1e-5, Angle: 0.00112}}
	_, err := Focus(context.Background(), FocusProblem{
		Chain:  lowerChain(t),
		Lens:   0,
		Rays:   rays,
		Bounds: util.Limiter{Min: 100, Max: 300},
	})
	if !errors.Is(err, ErrNoSolution) {
		t.Errorf("expected ErrNoSolution, got %v", err)
	}
	_, err = Focus(context.Background(), FocusProblem{Chain: lowerChain(t), Lens: 7})
	if !errors.Is(err, ErrBadProblem) {
		t.Errorf("expected ErrBadProblem for a missing lens, got %v", err)
	}
}

func nanomiCondenser(t *testing.T) optics.Chain {
	t.Helper()
	c, err := optics.NewChain(0, 528.9,
		optics.Element{Name: "C1", Z: 257.03, FocalLength: 13, Active: true},
		optics.Element{Name: "C2", Z: 349, FocalLength: 35, Active: true},
		optics.Element{Name: "C3", Z: 517, FocalLength: 10.68545, Active: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func smallSpace() SearchSpace {
	fams := [3]excitation.Family{excitation.Symmetric, excitation.Asymmetric, excitation.Asymmetric}
	return SearchSpace{
		Families: fams,
		Candidates: [3][]float64{
			mathx.LinspaceStep(fams[0].MinFocalLength(), 1, 5),
			mathx.LinspaceStep(fams[1].MinFocalLength(), 1, 7),
			mathx.LinspaceStep(fams[2].MinFocalLength(), 0.5, 9),
		},
	}
}

func TestGlobalSearchKnownMinimum(t *testing.T) {
	rays := optics.GunRays(0.015, 0.02, 192.4)
	res, err := GlobalSearch(context.Background(), nanomiCondenser(t), rays[:], smallSpace())
	if err != nil {
		t.Fatal(err)
	}
	if res.Index != [3]int{4, 6, 8} {
		t.Errorf("winning index %v", res.Index)
	}
	if math.Abs(res.Radius-0.036639412406058516) > 1e-12 {
		t.Errorf("radius %.17g", res.Radius)
	}
	want := [3]float64{9.986, 12.779, 10.779}
	for i := range want {
		if math.Abs(res.FocalLengths[i]-want[i]) > 1e-9 {
			t.Errorf("f%d = %g, expected %g", i+1, res.FocalLengths[i], want[i])
		}
	}
	wantUR := [3]float64{0.8712430419160052, 0.8076668169928003, 0.8562185838517808}
	for i := range wantUR {
		if math.Abs(res.Excitations[i]-wantUR[i]) > 1e-12 {
			t.Errorf("UR%d = %.16g, expected %.16g", i+1, res.Excitations[i], wantUR[i])
		}
	}
	if res.Evaluated != 5*7*9 {
		t.Errorf("evaluated %d combinations", res.Evaluated)
	}
	worst := 0.0
	for _, h := range res.Heights {
		worst = math.Max(worst, math.Abs(h))
	}
	if math.Abs(worst-res.Radius) > 1e-12 {
		t.Errorf("heights %v do not reproduce radius %g", res.Heights, res.Radius)
	}
}

func TestGlobalSearchDeterministic(t *testing.T) {
	rays := optics.GunRays(0.015, 0.02, 192.4)
	ch := nanomiCondenser(t)
	first, err := GlobalSearch(context.Background(), ch, rays[:], smallSpace())
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < 3; n++ {
		again, err := GlobalSearch(context.Background(), ch, rays[:], smallSpace())
		if err != nil {
			t.Fatal(err)
		}
		if again.Radius != first.Radius || again.FocalLengths != first.FocalLengths {
			t.Fatalf("run %d gave %v %g, first %v %g", n, again.FocalLengths, again.Radius, first.FocalLengths, first.Radius)
		}
	}
}

func TestGlobalSearchTieGoesFirst(t *testing.T) {
	// every candidate identical: every combination ties
	space := SearchSpace{Candidates: [3][]float64{{10, 10}, {10, 10, 10}, {10, 10}}}
	rays := optics.GunRays(0.015, 0.02, 192.4)
	res, err := GlobalSearch(context.Background(), nanomiCondenser(t), rays[:], space)
	if err != nil {
		t.Fatal(err)
	}
	if res.Index != [3]int{0, 0, 0} {
		t.Errorf("tie should go to the first combination, got %v", res.Index)
	}
}

func TestGlobalSearchSkipsNaN(t *testing.T) {
	space := SearchSpace{Candidates: [3][]float64{{math.NaN(), 10}, {10}, {10}}}
	rays := optics.GunRays(0.015, 0.02, 192.4)
	res, err := GlobalSearch(context.Background(), nanomiCondenser(t), rays[:], space)
	if err != nil {
		t.Fatal(err)
	}
	if res.Index != [3]int{1, 0, 0} || math.IsNaN(res.Radius) {
		t.Errorf("a NaN candidate won: %v, radius %g", res.Index, res.Radius)
	}
}

func TestGlobalSearchThickLenses(t *testing.T) {
	lens := optics.NanomiLens
	c, err := optics.NewChain(0, 528.9,
		optics.Element{Name: "C1", Z: 257.03, FocalLength: 13, Active: true, Thick: &lens},
		optics.Element{Name: "C2", Z: 349, FocalLength: 35, Active: true, Thick: &lens},
		optics.Element{Name: "C3", Z: 517, FocalLength: 10.68545, Active: true, Thick: &lens},
	)
	if err != nil {
		t.Fatal(err)
	}
	rays := optics.GunRays(0.015, 0.02, 192.4)
	res, err := GlobalSearch(context.Background(), c, rays[:], smallSpace())
	if err != nil {
		t.Fatal(err)
	}
	thin, _ := GlobalSearch(context.Background(), nanomiCondenser(t), rays[:], smallSpace())
	if res.Radius == thin.Radius {
		t.Errorf("thick and thin columns gave the same radius %g", res.Radius)
	}
	// the winner's propagated envelope reproduces the searched radius
	worst := 0.0
	for _, h := range res.Heights {
		worst = math.Max(worst, math.Abs(h))
	}
	if math.Abs(worst-res.Radius) > 1e-9*math.Max(1, res.Radius) {
		t.Errorf("heights %v do not reproduce radius %g", res.Heights, res.Radius)
	}
}

func TestGlobalSearchErrors(t *testing.T) {
	rays := optics.GunRays(0.015, 0.02, 192.4)
	two, _ := optics.NewChain(0, 100, optics.Element{Z: 10, FocalLength: 5, Active: true}, optics.Element{Z: 20, FocalLength: 5, Active: true})
	if _, err := GlobalSearch(context.Background(), two, rays[:], smallSpace()); !errors.Is(err, ErrBadProblem) {
		t.Errorf("two lens chain should be rejected, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := GlobalSearch(ctx, nanomiCondenser(t), rays[:], smallSpace()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultSearchSpace(t *testing.T) {
	s := DefaultSearchSpace()
	if s.Size() != 41*163*63 {
		t.Errorf("size %d", s.Size())
	}
	if s.Candidates[0][0] != excitation.Symmetric.MinFocalLength() {
		t.Errorf("C1 candidates start at %g", s.Candidates[0][0])
	}
	if last := s.Candidates[1][162]; math.Abs(last-(6.779+16.2)) > 1e-9 {
		t.Errorf("C2 candidates end at %g", last)
	}
}

func BenchmarkGlobalSearch(b *testing.B) {
	c, _ := optics.NewChain(0, 528.9,
		optics.Element{Z: 257.03, FocalLength: 13, Active: true},
		optics.Element{Z: 349, FocalLength: 35, Active: true},
		optics.Element{Z: 517, FocalLength: 10.68545, Active: true},
	)
	rays := optics.GunRays(0.015, 0.02, 192.4)
	space := smallSpace()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GlobalSearch(context.Background(), c, rays[:], space)
	}
}
