package optics

import "fmt"

// Element is one plane along the column: a lens, or a reference plane such
// as the sample, an aperture or the screen.
//
// Inactive lenses are treated as free space but keep their place in the
// chain, so indices stay stable for whatever binds to them.
type Element struct {
	Name string  `json:"name" yaml:"Name"`
	Z    float64 `json:"z" yaml:"Z"`

	// FocalLength is ignored for reference planes
	FocalLength float64 `json:"focalLength" yaml:"FocalLength"`

	// Reference marks a pass-through plane with no focusing action
	Reference bool `json:"reference" yaml:"Reference"`

	Active bool `json:"active" yaml:"Active"`

	// ApertureRadius is the bore or aperture radius, 0 if unlimited
	ApertureRadius float64 `json:"apertureRadius,omitempty" yaml:"ApertureRadius"`

	// Thick, when set, makes the lens physically thick, centred on Z.  Rays
	// cross it through the thick transfer matrix and its object and image
	// distances are measured from the principal planes.
	Thick *ThickLens `json:"thick,omitempty" yaml:"Thick"`
}

// Focusing is true for an active lens.
func (e Element) Focusing() bool {
	return e.Active && !e.Reference
}

func (e Element) thick() bool {
	return e.Thick != nil && !e.Reference
}

// Front is where a ray enters the element: Z, or the front face of a thick lens.
func (e Element) Front() float64 {
	if e.thick() {
		return e.Z - e.Thick.Length/2
	}
	return e.Z
}

// Back is where a ray leaves the element: Z, or the back face of a thick lens.
func (e Element) Back() float64 {
	if e.thick() {
		return e.Z + e.Thick.Length/2
	}
	return e.Z
}

// Planes returns the front and back principal planes, both Z for a thin lens.
func (e Element) Planes() (p1, p2 float64) {
	if e.thick() {
		front := e.Front()
		return front + e.Thick.H1, front + e.Thick.H2()
	}
	return e.Z, e.Z
}

// Transfer is the matrix from the front to the back of the element with
// focal length f: a thin lens, the thick lens, or a drift across an
// inactive one.
func (e Element) Transfer(f float64) Matrix {
	switch {
	case !e.Focusing():
		return Propagate(e.Back() - e.Front())
	case e.thick():
		return e.Thick.Matrix(f)
	default:
		return ThinLens(f)
	}
}

// Chain is an ordered, immutable run of elements between an object plane
// (the source, or the sample for an imaging column) and a terminal reference
// plane.  Build one with NewChain; the zero value is an empty chain.
type Chain struct {
	objectZ   float64
	terminalZ float64
	elems     []Element
}

// NewChain copies elems into a chain, checking that objectZ, every element
// z, and terminalZ are strictly increasing.  Thick lenses must not overlap
// their neighbours.
func NewChain(objectZ, terminalZ float64, elems ...Element) (Chain, error) {
	prev := objectZ
	for i, e := range elems {
		if !(e.Front() > prev) {
			return Chain{}, fmt.Errorf("%w: element %d (%s) at z=%g follows z=%g", ErrUnordered, i, e.Name, e.Front(), prev)
		}
		prev = e.Back()
	}
	if !(terminalZ > prev) {
		return Chain{}, fmt.Errorf("%w: terminal plane z=%g follows z=%g", ErrUnordered, terminalZ, prev)
	}
	cp := make([]Element, len(elems))
	copy(cp, elems)
	return Chain{objectZ: objectZ, terminalZ: terminalZ, elems: cp}, nil
}

// ObjectZ is the axial position of the chain's object plane.
func (c Chain) ObjectZ() float64 { return c.objectZ }

// TerminalZ is the axial position of the terminal reference plane.
func (c Chain) TerminalZ() float64 { return c.terminalZ }

// Len is the number of elements, active or not.
func (c Chain) Len() int { return len(c.elems) }

// Element returns element i.
func (c Chain) Element(i int) Element { return c.elems[i] }

// Elements returns a copy of the elements.
func (c Chain) Elements() []Element {
	cp := make([]Element, len(c.elems))
	copy(cp, c.elems)
	return cp
}

// Lenses returns the indices of active, focusing elements in order.
func (c Chain) Lenses() []int {
	var idx []int
	for i, e := range c.elems {
		if e.Focusing() {
			idx = append(idx, i)
		}
	}
	return idx
}

// WithFocalLength returns a copy of the chain with element i's focal length replaced.
func (c Chain) WithFocalLength(i int, f float64) Chain {
	cp := c.Elements()
	cp[i].FocalLength = f
	return Chain{objectZ: c.objectZ, terminalZ: c.terminalZ, elems: cp}
}

// WithFocalLengths replaces the focal lengths of the active lenses, in
// order.  It panics if len(fs) differs from len(c.Lenses()).
func (c Chain) WithFocalLengths(fs []float64) Chain {
	lenses := c.Lenses()
	if len(fs) != len(lenses) {
		panic(fmt.Sprintf("optics: %d focal lengths for %d active lenses", len(fs), len(lenses)))
	}
	cp := c.Elements()
	for k, i := range lenses {
		cp[i].FocalLength = fs[k]
	}
	return Chain{objectZ: c.objectZ, terminalZ: c.terminalZ, elems: cp}
}

// System is the transfer matrix from the object plane to the terminal plane,
// composed from every active lens and the drifts between them.
func (c Chain) System() Matrix {
	zPrev := c.objectZ
	out := Identity()
	for _, e := range c.elems {
		if !e.Focusing() {
			continue
		}
		out = Compose(out, Propagate(e.Front()-zPrev), e.Transfer(e.FocalLength))
		zPrev = e.Back()
	}
	return Compose(out, Propagate(c.terminalZ-zPrev))
}
