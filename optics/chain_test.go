package optics

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func lens(name string, z, f float64) Element {
	return Element{Name: name, Z: z, FocalLength: f, Active: true}
}

func nanomiIllumination(t *testing.T) Chain {
	t.Helper()
	c, err := NewChain(0, 528.9,
		Element{Name: "CA", Z: 192.4, Reference: true, Active: true, ApertureRadius: 0.01},
		lens("C1", 257.03, 13),
		lens("C2", 349, 35),
		lens("C3", 517, 10.68545),
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewChainOrdering(t *testing.T) {
	_, err := NewChain(0, 100, lens("a", 10, 5), lens("b", 10, 5))
	if !errors.Is(err, ErrUnordered) {
		t.Errorf("coincident lenses should be rejected, got %v", err)
	}
	_, err = NewChain(0, 50, lens("a", 10, 5), lens("b", 60, 5))
	if !errors.Is(err, ErrUnordered) {
		t.Errorf("lens past the terminal plane should be rejected, got %v", err)
	}
	_, err = NewChain(20, 50, lens("a", 10, 5))
	if !errors.Is(err, ErrUnordered) {
		t.Errorf("lens before the object should be rejected, got %v", err)
	}
}

func TestChainIsolatedFromCaller(t *testing.T) {
	elems := []Element{lens("a", 10, 5)}
	c, err := NewChain(0, 50, elems...)
	if err != nil {
		t.Fatal(err)
	}
	elems[0].FocalLength = 99
	if c.Element(0).FocalLength != 5 {
		t.Error("mutating the caller's slice changed the chain")
	}
	c2 := c.WithFocalLength(0, 7)
	if c.Element(0).FocalLength != 5 || c2.Element(0).FocalLength != 7 {
		t.Error("WithFocalLength should copy")
	}
}

func TestSingleLensMatchesLensEquation(t *testing.T) {
	for _, c := range []struct{ do, f float64 }{{100, 20}, {50, 10}, {30, 20}, {257.03, 13}} {
		ch, err := NewChain(0, c.do+1000, lens("L", c.do, c.f))
		if err != nil {
			t.Fatal(err)
		}
		res, err := ch.Propagate(Ray{Height: 0, Angle: 0.01})
		if err != nil {
			t.Fatal(err)
		}
		l := res.Lenses[0]
		di := 1 / (1/c.f - 1/c.do)
		if math.Abs(l.ImageZ-c.do-di) > 1e-9 {
			t.Errorf("do=%g f=%g: image at %g, expected %g", c.do, c.f, l.ImageZ, c.do+di)
		}
		if math.Abs(l.Magnification+di/c.do) > 1e-9 {
			t.Errorf("do=%g f=%g: magnification %g, expected %g", c.do, c.f, l.Magnification, -di/c.do)
		}
		if l.Crossover != c.do+c.f {
			t.Errorf("crossover at %g, expected %g", l.Crossover, c.do+c.f)
		}
		// a ray leaving the axis crosses it again at the image
		if math.Abs(l.RayAtImage.Height) > 1e-9 {
			t.Errorf("axial ray height at image %g, expected 0", l.RayAtImage.Height)
		}
	}
}

func TestMagnificationMultiplicative(t *testing.T) {
	// the second lens sees its object inside the focal length, so its
	// magnification is positive while the others are negative
	ch, err := NewChain(0, 400, lens("A", 100, 20), lens("B", 130, 40), lens("C", 200, 30))
	if err != nil {
		t.Fatal(err)
	}
	res, err := ch.Propagate(Ray{Angle: 0.001})
	if err != nil {
		t.Fatal(err)
	}
	m := res.Lenses
	if !(m[0].Magnification < 0 && m[1].Magnification > 0 && m[2].Magnification < 0) {
		t.Fatalf("expected mixed signs, got %g %g %g", m[0].Magnification, m[1].Magnification, m[2].Magnification)
	}
	total, err := res.Magnification()
	if err != nil {
		t.Fatal(err)
	}
	prod := m[0].Magnification * m[1].Magnification * m[2].Magnification
	if math.Abs(total-prod) > 1e-12 {
		t.Errorf("column magnification %g, product %g", total, prod)
	}

	// object plane to final image plane is an imaging system: B = 0, A = M
	sys := Compose(Propagate(100), ThinLens(20), Propagate(30), ThinLens(40),
		Propagate(70), ThinLens(30), Propagate(m[2].ImageZ-200))
	if math.Abs(sys[0][1]) > 1e-9 || math.Abs(sys[0][0]-total) > 1e-9 {
		t.Errorf("system matrix %v does not image with magnification %g", sys, total)
	}
}

func TestInactiveLensIsFreeSpace(t *testing.T) {
	on, _ := NewChain(0, 300, lens("A", 100, 20), lens("C", 200, 30))
	off := lens("B", 150, 5)
	off.Active = false
	withOff, _ := NewChain(0, 300, lens("A", 100, 20), off, lens("C", 200, 30))

	in := Ray{Height: 0.01, Angle: 0.002}
	r1, err := on.Propagate(in)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := withOff.Propagate(in)
	if err != nil {
		t.Fatal(err)
	}
	m1, _ := r1.Magnification()
	m2, _ := r2.Magnification()
	if math.Abs(m1-m2) > 1e-12 {
		t.Errorf("inactive lens changed magnification: %g vs %g", m1, m2)
	}
	if math.Abs(r1.Terminal.Height-r2.Terminal.Height) > 1e-12 {
		t.Errorf("inactive lens changed terminal height: %g vs %g", r1.Terminal.Height, r2.Terminal.Height)
	}
	if !math.IsNaN(r2.Lenses[1].Magnification) {
		t.Error("inactive lens should not report a magnification")
	}
	if got := withOff.Lenses(); !cmp.Equal(got, []int{0, 2}) {
		t.Errorf("active lens indices %v", got)
	}
}

func TestAllInactive(t *testing.T) {
	a, b := lens("A", 100, 20), lens("B", 200, 30)
	a.Active, b.Active = false, false
	ch, _ := NewChain(0, 300, a, b)
	res, err := ch.Propagate(Ray{Height: 1, Angle: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	m, err := res.Magnification()
	if err != nil || m != 1 {
		t.Errorf("no active lenses should give magnification 1, got %g, %v", m, err)
	}
	if _, ok := res.Kohler(0.01); ok {
		t.Error("probe should be undefined with no active lenses")
	}
	if math.Abs(res.Terminal.Height-31) > 1e-12 {
		t.Errorf("free flight terminal height %g, expected 31", res.Terminal.Height)
	}
}

func TestDegenerateLens(t *testing.T) {
	ch, _ := NewChain(0, 200, lens("A", 20, 20), lens("B", 50, 10), lens("C", 100, 10))
	res, err := ch.Propagate(Ray{Height: 0, Angle: 0.01})
	if !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected a degenerate error, got %v", err)
	}
	var de *DegenerateError
	if !errors.As(err, &de) || de.Index != 0 || de.Name != "A" {
		t.Errorf("error should name the first lens, got %v", err)
	}
	for i, l := range res.Lenses {
		if !l.Degenerate || !math.IsNaN(l.ImageZ) || !math.IsNaN(l.Magnification) {
			t.Errorf("lens %d should be flagged with NaN image data, got %+v", i, l)
		}
	}
	// the ray itself is still well defined: leaving the focal point it runs parallel
	if out := res.Lenses[0].RayOut; math.Abs(out.Angle) > 1e-12 || math.Abs(out.Height-0.2) > 1e-12 {
		t.Errorf("ray out of the degenerate lens %+v", out)
	}
	if math.IsNaN(res.Terminal.Height) || math.IsInf(res.Terminal.Height, 0) {
		t.Errorf("terminal height %g should be finite", res.Terminal.Height)
	}
	if _, err := res.Magnification(); !errors.Is(err, ErrDegenerate) {
		t.Errorf("column magnification of a degenerate chain should fail, got %v", err)
	}
}

func TestZeroFocalLength(t *testing.T) {
	ch, _ := NewChain(0, 200, lens("A", 20, 0))
	res, err := ch.Propagate(Ray{Angle: 0.01})
	if !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected degenerate error, got %v", err)
	}
	if !math.IsNaN(res.Terminal.Height) {
		t.Errorf("ray through a zero focal length lens should be undefined, got %g", res.Terminal.Height)
	}
}

func TestEndToEndNanomi(t *testing.T) {
	ch := nanomiIllumination(t)
	rays := GunRays(0.015, 0.02, 192.4)

	res, err := ch.Propagate(rays[GunEdge])
	if err != nil {
		t.Fatal(err)
	}
	wantMags := []float64{-0.05327213867147482, -0.8087350371992739, -0.11366433042842594}
	wantImages := []float64{270.72253780272916, 412.3057263019746, 528.9000045195764}
	opt := cmpopts.EquateApprox(0, 1e-9)
	var mags, images []float64
	for _, l := range res.Lenses[1:] {
		mags = append(mags, l.Magnification)
		images = append(images, l.ImageZ)
	}
	if d := cmp.Diff(wantMags, mags, opt); d != "" {
		t.Errorf("per-lens magnifications (-want +got):\n%s", d)
	}
	if d := cmp.Diff(wantImages, images, opt); d != "" {
		t.Errorf("image planes (-want +got):\n%s", d)
	}

	m, err := res.Magnification()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m-(-0.004897005468444154)) > 1e-12 {
		t.Errorf("column magnification %.17g", m)
	}

	probe, ok := res.Kohler(ch.Element(0).ApertureRadius)
	if !ok || math.Abs(probe-0.38156891149589817) > 1e-9 {
		t.Errorf("Köhler probe %.17g, ok=%v", probe, ok)
	}

	beam := Envelope(ch, rays[:])
	wantHeights := []float64{-7.342115513725433e-05, 4.796915628602072e-08, -7.339717055909745e-05, 7.351709344982638e-05}
	if d := cmp.Diff(wantHeights, beam.Heights, cmpopts.EquateApprox(0, 1e-14)); d != "" {
		t.Errorf("heights at the sample (-want +got):\n%s", d)
	}
	if beam.Extreme != GunExtreme {
		t.Errorf("extreme ray should be %s, got %d", GunRayNames[GunExtreme], beam.Extreme)
	}
	if math.Abs(beam.Diameter()-0.00014703418689965275) > 1e-14 {
		t.Errorf("beam diameter %.17g", beam.Diameter())
	}

	// stepwise propagation and the system matrix agree
	for i, r := range rays {
		res, _ := ch.Propagate(r)
		if math.Abs(res.Terminal.Height-beam.Heights[i]) > 1e-14 {
			t.Errorf("ray %s: stepwise %g, system matrix %g", GunRayNames[i], res.Terminal.Height, beam.Heights[i])
		}
	}
}

func TestKohlerProbe(t *testing.T) {
	p, err := KohlerProbe(KohlerParams{
		ObjectDistance:   257.03,
		ApertureDiameter: 0.02,
		S1:               91.97,
		S2:               168,
		F1:               13,
		F2:               35,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := Probe{
		Diameter: 3.738549153737954,
		F3:       104.6942736980254,
		Alpha:    0.0007692306175087778,
		M1:       -0.05327213867147483,
		M2:       -0.8087350371992742,
		Di1:      13.692537802729174,
		Di2:      63.305726301974595,
	}
	if d := cmp.Diff(want, p, cmpopts.EquateApprox(1e-9, 0)); d != "" {
		t.Errorf("probe (-want +got):\n%s", d)
	}

	_, err = KohlerProbe(KohlerParams{ObjectDistance: 20, S1: 50, S2: 50, F1: 20, F2: 10})
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected degenerate first lens, got %v", err)
	}
}

func TestTrace(t *testing.T) {
	ch := nanomiIllumination(t)
	ray := GunRays(0.015, 0.02, 192.4)[GunAxial]
	path, res, err := ch.Trace(ray)
	if err != nil {
		t.Fatal(err)
	}
	if len(path.Vertices) != ch.Len()+2 {
		t.Fatalf("expected %d vertices, got %d", ch.Len()+2, len(path.Vertices))
	}
	if len(path.Images) != 3 {
		t.Errorf("expected 3 image points, got %d", len(path.Images))
	}
	last := path.Vertices[len(path.Vertices)-1]
	if last.Z != 528.9 || last.Height != res.Terminal.Height {
		t.Errorf("last vertex %+v, terminal %+v", last, res.Terminal)
	}
	// the axial ray leaves the axis and returns to it at every image
	for _, p := range path.Images {
		if math.Abs(p.Height) > 1e-9 {
			t.Errorf("axial ray at image z=%g has height %g", p.Z, p.Height)
		}
	}
	// sampled heights agree with the vertices at the lens planes
	if h := res.HeightAt(257.03); math.Abs(h-path.Vertices[2].Height) > 1e-12 {
		t.Errorf("HeightAt C1 %g, vertex %g", h, path.Vertices[2].Height)
	}
	s := Sample(res, 50)
	if len(s) != 50 || s[0] != ray.Height || math.Abs(s[49]-res.Terminal.Height) > 1e-12 {
		t.Errorf("sample endpoints %g %g", s[0], s[49])
	}
}

func thick(name string, z, f float64) Element {
	e := lens(name, z, f)
	l := NanomiLens
	e.Thick = &l
	return e
}

func TestThickLensChain(t *testing.T) {
	const z, f = 100.0, 20.0
	ch, err := NewChain(0, 300, thick("L", z, f))
	if err != nil {
		t.Fatal(err)
	}
	e := ch.Element(0)
	front, back := z-NanomiLens.Length/2, z+NanomiLens.Length/2
	p1, p2 := front+NanomiLens.H1, front+NanomiLens.H2()
	if e.Front() != front || e.Back() != back {
		t.Errorf("faces %g %g, expected %g %g", e.Front(), e.Back(), front, back)
	}

	// an axial ray from the object crosses the axis at the image, which the
	// closed form puts di behind the back principal plane
	res, err := ch.Propagate(Ray{Angle: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	l := res.Lenses[0]
	di, _ := ImageDistance(p1, f)
	if math.Abs(l.ImageZ-(p2+di)) > 1e-9 {
		t.Errorf("image at %g, expected %g", l.ImageZ, p2+di)
	}
	if math.Abs(l.Magnification+di/p1) > 1e-12 {
		t.Errorf("magnification %g, expected %g", l.Magnification, -di/p1)
	}
	if h := res.HeightAt(l.ImageZ); math.Abs(h) > 1e-9 {
		t.Errorf("axial ray at the image has height %g", h)
	}
	if h := res.HeightAt(z); math.Abs(h-(l.RayIn.Height+l.RayOut.Height)/2) > 1e-12 {
		t.Errorf("height at the lens centre %g", h)
	}

	// a parallel ray crosses at the back focal point
	par, _ := ch.Propagate(Ray{Height: 1})
	if h := par.HeightAt(par.Lenses[0].Crossover); math.Abs(h) > 1e-9 {
		t.Errorf("parallel ray at the crossover has height %g", h)
	}

	want := Compose(Propagate(front), NanomiLens.Matrix(f), Propagate(300-back))
	if !ch.System().ApproxEqual(want, 1e-12) {
		t.Errorf("system %v, expected %v", ch.System(), want)
	}

	path, _, _ := ch.Trace(Ray{Angle: 0.01})
	if len(path.Vertices) != 4 || path.Vertices[1].Z != front || path.Vertices[2].Z != back {
		t.Errorf("vertices %v", path.Vertices)
	}
}

func TestThickLensesMustNotOverlap(t *testing.T) {
	if _, err := NewChain(0, 300, thick("A", 100, 20), thick("B", 110, 20)); !errors.Is(err, ErrUnordered) {
		t.Errorf("overlapping lenses should be rejected, got %v", err)
	}
	// a thin lens may not sit inside a thick one either
	if _, err := NewChain(0, 300, thick("A", 100, 20), lens("B", 105, 20)); !errors.Is(err, ErrUnordered) {
		t.Errorf("lens inside a thick lens should be rejected, got %v", err)
	}
}

func BenchmarkEnvelope(b *testing.B) {
	ch, _ := NewChain(0, 528.9, lens("C1", 257.03, 13), lens("C2", 349, 35), lens("C3", 517, 10.68545))
	rays := GunRays(0.015, 0.02, 192.4)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Envelope(ch, rays[:])
	}
}
