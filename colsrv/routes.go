package colsrv

import (
	"encoding/json"
	"errors"
	"go/types"
	"io"
	"log"
	"net/http"

	"gopkg.in/yaml.v2"

	"github.com/nanomi/eoptics/column"
	"github.com/nanomi/eoptics/explorer"
	"github.com/nanomi/eoptics/export"
	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/server"
	"github.com/nanomi/eoptics/solver"
)

// decode reads an optional JSON body into v; an empty body leaves v alone
func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type lensList struct {
	Illumination []column.Lens `json:"illumination"`
	Imaging      []column.Lens `json:"imaging"`
}

func (h *HTTPWrapper) lenses(w http.ResponseWriter, r *http.Request) {
	cfg := h.Col.Config()
	server.Reply(w, lensList{Illumination: cfg.Illumination, Imaging: cfg.Imaging})
}

func (h *HTTPWrapper) getState(w http.ResponseWriter, r *http.Request) {
	st, err := h.State()
	if err != nil {
		fail(w, err)
		return
	}
	server.Reply(w, st)
}

func (h *HTTPWrapper) config(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	if err := yaml.NewEncoder(w).Encode(h.Col.Config()); err != nil {
		log.Printf("error encoding config %q", err)
	}
}

// sideView is one side of the column with the rays drawn through it
type sideView struct {
	column.Side
	Probe *float64               `json:"probe,omitempty"`
	Beam  *float64               `json:"beam,omitempty"`
	Paths map[string]optics.Path `json:"paths"`
}

func (h *HTTPWrapper) illumination(w http.ResponseWriter, r *http.Request) {
	cfg := h.Col.Config()
	st, err := column.Evaluate(cfg)
	if err != nil {
		fail(w, err)
		return
	}
	ch, err := cfg.IlluminationChain()
	if err != nil {
		fail(w, err)
		return
	}
	view := sideView{Side: st.Illumination, Probe: st.Probe, Beam: st.Beam, Paths: map[string]optics.Path{}}
	for i, ray := range cfg.GunRays() {
		p, _, _ := ch.Trace(ray)
		view.Paths[optics.GunRayNames[i]] = finite(p)
	}
	server.Reply(w, view)
}

func (h *HTTPWrapper) imaging(w http.ResponseWriter, r *http.Request) {
	cfg := h.Col.Config()
	st, err := column.Evaluate(cfg)
	if err != nil {
		fail(w, err)
		return
	}
	ch, err := cfg.ImagingChain()
	if err != nil {
		fail(w, err)
		return
	}
	p, _, _ := ch.Trace(optics.Ray{Angle: column.ScatteringAngle})
	view := sideView{Side: st.Imaging, Paths: map[string]optics.Path{"scattered": finite(p)}}
	server.Reply(w, view)
}

func (h *HTTPWrapper) exportCSV(w http.ResponseWriter, r *http.Request) {
	st, err := column.Evaluate(h.Col.Config())
	if err != nil {
		fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := export.WriteResults(w, st); err != nil {
		log.Println(err)
	}
}

// gridRequest is the body of POST /grid.  A missing base is read off the
// current column
type gridRequest struct {
	Base  *optics.KohlerParams `json:"base"`
	Axis1 explorer.Axis        `json:"axis1"`
	Axis2 explorer.Axis        `json:"axis2"`
}

type gridShape struct {
	Rows int                 `json:"rows"`
	Cols int                 `json:"cols"`
	Base optics.KohlerParams `json:"base"`
}

func (h *HTTPWrapper) buildGrid(w http.ResponseWriter, r *http.Request) {
	req := gridRequest{}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var base optics.KohlerParams
	if req.Base != nil {
		base = *req.Base
	} else {
		var err error
		base, err = h.Col.Config().KohlerParams()
		if err != nil {
			fail(w, err)
			return
		}
	}
	g, err := explorer.Build(r.Context(), base, req.Axis1, req.Axis2)
	if err != nil {
		fail(w, err)
		return
	}
	h.mu.Lock()
	h.grid = g
	h.mu.Unlock()
	n1, n2 := g.Dims()
	server.Reply(w, gridShape{Rows: n1, Cols: n2, Base: base})
}

func fieldParam(r *http.Request) (explorer.Field, error) {
	s := r.URL.Query().Get("field")
	if s == "" {
		return explorer.Probe, nil
	}
	return explorer.ParseField(s)
}

func (h *HTTPWrapper) gridValue(w http.ResponseWriter, r *http.Request) {
	g, err := h.currentGrid()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := fieldParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v1, err := floatParam(r, "v1")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v2, err := floatParam(r, "v2")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, ok := g.At(f, v1, v2)
	if !ok {
		http.Error(w, "not a point of the grid", http.StatusNotFound)
		return
	}
	hp := server.HumanPayload{T: types.Float64, Float: v}
	hp.EncodeAndRespond(w, r)
}

func (h *HTTPWrapper) gridCoords(w http.ResponseWriter, r *http.Request) {
	g, err := h.currentGrid()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := fieldParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v, err := floatParam(r, "value")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tol, err := optFloatParam(r, "tol", explorer.DefaultTolerance)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	server.Reply(w, nonNil(g.CoordsFor(v, f, tol)))
}

func (h *HTTPWrapper) gridRange(w http.ResponseWriter, r *http.Request) {
	g, err := h.currentGrid()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := fieldParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lo, err := floatParam(r, "lo")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hi, err := floatParam(r, "hi")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vals := g.ValuesInRange(lo, hi, f)
	if vals == nil {
		vals = []float64{}
	}
	server.Reply(w, vals)
}

func (h *HTTPWrapper) gridFeasible(w http.ResponseWriter, r *http.Request) {
	g, err := h.currentGrid()
	if err != nil {
		fail(w, err)
		return
	}
	lo, err := floatParam(r, "lo")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hi, err := floatParam(r, "hi")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	minFL3, err := optFloatParam(r, "minfl3", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	server.Reply(w, nonNil(g.FeasibleCoords(lo, hi, minFL3)))
}

func nonNil(cs []explorer.Coord) []explorer.Coord {
	if cs == nil {
		return []explorer.Coord{}
	}
	return cs
}

type gridMinimum struct {
	explorer.Coord
	Value float64 `json:"value"`
}

func (h *HTTPWrapper) gridMin(w http.ResponseWriter, r *http.Request) {
	g, err := h.currentGrid()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := fieldParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, v, ok := g.Min(f)
	if !ok {
		http.Error(w, "every cell of the grid is degenerate", http.StatusNotFound)
		return
	}
	server.Reply(w, gridMinimum{Coord: c, Value: v})
}

func (h *HTTPWrapper) gridFits(w http.ResponseWriter, r *http.Request) {
	g, err := h.currentGrid()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := fieldParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/fits")
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.String()+`.fits"`)
	err = export.WriteGridFits(w, g, f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// applyRequest is embedded by requests that can write their answer back
// to the column
type applyRequest struct {
	Apply bool `json:"apply"`
}

// applyActive sets the focal lengths of the active lenses of one side, in
// order.  Nothing is written unless every value is accepted.
func (h *HTTPWrapper) applyActive(side []column.Lens, fs []float64) error {
	set := map[string]float64{}
	i := 0
	for _, l := range side {
		if !l.Active || i >= len(fs) {
			continue
		}
		set[l.Name] = fs[i]
		i++
	}
	if err := h.Col.SetFocalLengths(set); err != nil {
		return err
	}
	h.Refresh()
	return nil
}

func (h *HTTPWrapper) search(w http.ResponseWriter, r *http.Request) {
	req := applyRequest{}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg := h.Col.Config()
	space, err := cfg.SearchSpace()
	if err != nil {
		fail(w, err)
		return
	}
	ch, err := cfg.IlluminationChain()
	if err != nil {
		fail(w, err)
		return
	}
	rays := cfg.GunRays()
	res, err := solver.GlobalSearch(r.Context(), ch, rays[:], space)
	if err != nil {
		fail(w, err)
		return
	}
	if req.Apply {
		if err := h.applyActive(cfg.Illumination, res.FocalLengths[:]); err != nil {
			fail(w, err)
			return
		}
	}
	server.Reply(w, res)
}

type solveRequest struct {
	applyRequest
	Imaging   bool     `json:"imaging"`
	SolveFor  []string `json:"solveFor"`
	Guesses   int      `json:"guesses"`
	Tolerance float64  `json:"tolerance"`
}

// settings overrides the problem's defaults with the fields the request set
func (req solveRequest) settings(set solver.LocalSettings) solver.LocalSettings {
	if req.Guesses > 0 {
		set.Guesses = req.Guesses
	}
	if req.Tolerance > 0 {
		set.Tolerance = req.Tolerance
	}
	return set
}

func (h *HTTPWrapper) solve(w http.ResponseWriter, r *http.Request) {
	req := solveRequest{}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg := h.Col.Config()
	col, goal, set, err := cfg.SolveProblem(req.Imaging, req.SolveFor)
	if err != nil {
		fail(w, err)
		return
	}
	set = req.settings(set)
	sol, err := solver.SolveLocal(r.Context(), col, goal, set)
	if err != nil {
		fail(w, err)
		return
	}
	if req.Apply {
		side := cfg.Illumination
		if req.Imaging {
			side = cfg.Imaging
		}
		if err := h.applyActive(side, sol.FocalLengths); err != nil {
			fail(w, err)
			return
		}
	}
	server.Reply(w, sol)
}

type focusRequest struct {
	applyRequest
	Lens string `json:"lens"`
	Mode string `json:"mode"`
}

func (h *HTTPWrapper) focus(w http.ResponseWriter, r *http.Request) {
	req := focusRequest{}
	if err := decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := solver.ParseFocusMode(req.Mode)
	if err != nil {
		fail(w, err)
		return
	}
	cfg := h.Col.Config()
	p, err := cfg.FocusProblem(req.Lens, mode)
	if err != nil {
		fail(w, err)
		return
	}
	name := p.Chain.Element(p.Lens).Name
	p.Bounds = cfg.LensLimits()[name]
	res, err := solver.Focus(r.Context(), p)
	if err != nil {
		fail(w, err)
		return
	}
	if req.Apply {
		if err := h.SetFocalLength(name, res.FocalLength); err != nil {
			fail(w, err)
			return
		}
	}
	server.Reply(w, res)
}
