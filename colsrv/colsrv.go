/*
Package colsrv exposes the electron optics engine over HTTP.

The wrapper owns the live column.  Lens changes go straight to the column
and then through a debounced recompute of the cached state, so a client
dragging a slider gets the state for its latest value without queueing a
recompute per request.  Everything else (traces, grids, searches) is
computed on request from a snapshot of the configuration.
*/
package colsrv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/nanomi/eoptics/column"
	"github.com/nanomi/eoptics/debounce"
	"github.com/nanomi/eoptics/excitation"
	"github.com/nanomi/eoptics/explorer"
	"github.com/nanomi/eoptics/generichttp"
	"github.com/nanomi/eoptics/generichttp/lens"
	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/solver"
	"github.com/nanomi/eoptics/util"
)

// errNoGrid is returned by grid queries before a grid is built
var errNoGrid = errors.New("no grid built, POST /grid first")

// HTTPWrapper binds a column to a route table
type HTTPWrapper struct {
	// Col is the live column
	Col *column.Column

	// RouteTable maps routes to handlers
	RouteTable generichttp.RouteTable

	mu    sync.RWMutex
	grid  *explorer.Grid
	state column.State
	err   error

	recompute *debounce.Func[column.Config]
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(c *column.Column) *HTTPWrapper {
	w := &HTTPWrapper{Col: c, RouteTable: generichttp.RouteTable{}}
	w.recompute = debounce.New("state", w.evaluate)
	rt := w.RouteTable
	lens.HTTPFocus(w, rt)
	lens.HTTPSwitch(w, rt)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/lenses"}] = w.lenses
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/state"}] = w.getState
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/probe"}] = generichttp.GetFloat(w.probe)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/aperture"}] = generichttp.GetFloat(w.aperture)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/aperture"}] = w.setAperture
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/illumination"}] = w.illumination
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/imaging"}] = w.imaging
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/config"}] = w.config
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/export.csv"}] = w.exportCSV
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/grid"}] = w.buildGrid
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/grid/value"}] = w.gridValue
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/grid/coords"}] = w.gridCoords
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/grid/range"}] = w.gridRange
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/grid/feasible"}] = w.gridFeasible
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/grid/min"}] = w.gridMin
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/grid.fits"}] = w.gridFits
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/search"}] = w.search
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/solve"}] = w.solve
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/focus"}] = w.focus
	w.Refresh()
	return w
}

// RT satisfies generichttp.HTTPer
func (h *HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// FocalLength satisfies lens.Focuser
func (h *HTTPWrapper) FocalLength(name string) (float64, error) {
	return h.Col.FocalLength(name)
}

// SetFocalLength satisfies lens.Focuser, and refreshes the state
func (h *HTTPWrapper) SetFocalLength(name string, f float64) error {
	if err := h.Col.SetFocalLength(name, f); err != nil {
		return err
	}
	h.Refresh()
	return nil
}

// Active satisfies lens.Switcher
func (h *HTTPWrapper) Active(name string) (bool, error) {
	return h.Col.Active(name)
}

// SetActive satisfies lens.Switcher, and refreshes the state
func (h *HTTPWrapper) SetActive(name string, on bool) error {
	if err := h.Col.SetActive(name, on); err != nil {
		return err
	}
	h.Refresh()
	return nil
}

// Replace swaps the whole configuration, as on a config file reload
func (h *HTTPWrapper) Replace(cfg column.Config) {
	h.Col.Replace(cfg)
	h.Refresh()
}

func (h *HTTPWrapper) aperture() (float64, error) {
	return h.Col.ApertureDiameter(), nil
}

// setAperture changes the aperture diameter and refreshes the state
func (h *HTTPWrapper) setAperture(w http.ResponseWriter, r *http.Request) {
	generichttp.SetFloat(func(d float64) error {
		if err := h.Col.SetApertureDiameter(d); err != nil {
			return err
		}
		h.Refresh()
		return nil
	})(w, r)
}

// probe is the Köhler probe diameter of the cached state, NaN when undefined
func (h *HTTPWrapper) probe() (float64, error) {
	st, err := h.State()
	if err != nil {
		return 0, err
	}
	if st.Probe == nil {
		return math.NaN(), nil
	}
	return *st.Probe, nil
}

// Limits returns the limit middleware for the current configuration
func (h *HTTPWrapper) Limits() *lens.LimitMiddleware {
	return &lens.LimitMiddleware{Limits: h.Col.Config().LensLimits(), Foc: h}
}

// Refresh schedules a recompute of the cached state
func (h *HTTPWrapper) Refresh() {
	h.recompute.Call(h.Col.Config())
}

// Wait blocks until the cached state is current
func (h *HTTPWrapper) Wait() {
	h.recompute.Wait()
}

// State returns the cached state and the error computing it, if any
func (h *HTTPWrapper) State() (column.State, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.err
}

func (h *HTTPWrapper) evaluate(cfg column.Config) {
	st, err := column.Evaluate(cfg)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state, h.err = st, err
}

func (h *HTTPWrapper) currentGrid() (*explorer.Grid, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.grid == nil {
		return nil, errNoGrid
	}
	return h.grid, nil
}

// fail replies with the status matching err's kind
func fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, column.ErrUnknownLens), errors.Is(err, errNoGrid):
		code = http.StatusNotFound
	case errors.Is(err, util.ErrOutOfRange),
		errors.Is(err, explorer.ErrEmptyRange),
		errors.Is(err, explorer.ErrSameVariable),
		errors.Is(err, explorer.ErrUnknownVariable),
		errors.Is(err, explorer.ErrTooLarge),
		errors.Is(err, excitation.ErrUnknownFamily),
		errors.Is(err, excitation.ErrOutOfDomain),
		errors.Is(err, optics.ErrUnordered),
		errors.Is(err, solver.ErrBadProblem),
		errors.Is(err, solver.ErrOutOfBounds):
		code = http.StatusBadRequest
	case errors.Is(err, solver.ErrNoSolution):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}

// floatParam parses a required float query parameter
func floatParam(r *http.Request, name string) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q: %w", name, err)
	}
	return f, nil
}

// optFloatParam parses an optional float query parameter
func optFloatParam(r *http.Request, name string, def float64) (float64, error) {
	if r.URL.Query().Get(name) == "" {
		return def, nil
	}
	return floatParam(r, name)
}

// finite drops the points of a path past where the ray is lost
func finite(p optics.Path) optics.Path {
	keep := func(pts []optics.Point) []optics.Point {
		out := make([]optics.Point, 0, len(pts))
		for _, pt := range pts {
			if math.IsNaN(pt.Height) || math.IsInf(pt.Height, 0) || math.IsNaN(pt.Z) || math.IsInf(pt.Z, 0) {
				continue
			}
			out = append(out, pt)
		}
		return out
	}
	return optics.Path{Vertices: keep(p.Vertices), Images: keep(p.Images)}
}
