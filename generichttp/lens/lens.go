// Package lens provides an HTTP interface to the lenses of a column
package lens

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/nanomi/eoptics/generichttp"
	"github.com/nanomi/eoptics/server"
)

// Focuser describes an interface with focal length methods for named lenses
type Focuser interface {
	// FocalLength gets the focal length of a lens
	FocalLength(string) (float64, error)

	// SetFocalLength sets the focal length of a lens
	SetFocalLength(string, float64) error
}

// HTTPFocus adds routes for the focuser to the route table
func HTTPFocus(iface Focuser, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/lens/{lens}/f"}] = GetFocalLength(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/lens/{lens}/f"}] = SetFocalLength(iface)
}

// GetFocalLength returns an HTTP handler func from a focuser that gets the focal length of a lens
func GetFocalLength(f Focuser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lens := chi.URLParam(r, "lens")
		fl, err := f.FocalLength(lens)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		hp := server.HumanPayload{T: types.Float64, Float: fl}
		hp.EncodeAndRespond(w, r)
	}
}

func relative(r *http.Request) (bool, error) {
	rel := r.URL.Query().Get("relative")
	if rel == "" {
		return false, nil
	}
	return strconv.ParseBool(rel)
}

// SetFocalLength returns an HTTP handler func from a focuser that sets the
// focal length of a lens.  With ?relative=true the body is added to the
// current value
func SetFocalLength(f Focuser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lens := chi.URLParam(r, "lens")
		rel, err := relative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fT := server.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&fT)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := fT.F64
		if rel {
			curr, err := f.FocalLength(lens)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			cmd += curr
		}
		err = f.SetFocalLength(lens, cmd)
		if err != nil {
			http.Error(w, err.Error(), generichttp.ErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Switcher describes an interface with on/off methods for named lenses
type Switcher interface {
	// Active gets if a lens is switched on
	Active(string) (bool, error)

	// SetActive switches a lens on or off
	SetActive(string, bool) error
}

// HTTPSwitch adds routes for the switcher to the route table
func HTTPSwitch(iface Switcher, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/lens/{lens}/active"}] = GetActive(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/lens/{lens}/active"}] = SetActive(iface)
}

// GetActive returns an HTTP handler func from a switcher that returns if the lens is on
func GetActive(s Switcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lens := chi.URLParam(r, "lens")
		on, err := s.Active(lens)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		hp := server.HumanPayload{T: types.Bool, Bool: on}
		hp.EncodeAndRespond(w, r)
	}
}

// SetActive returns an HTTP handler func from a switcher that switches the lens on or off
func SetActive(s Switcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lens := chi.URLParam(r, "lens")
		boolT := server.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&boolT)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = s.SetActive(lens, boolT.Bool)
		if err != nil {
			http.Error(w, err.Error(), generichttp.ErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
