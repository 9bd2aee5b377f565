// Package generichttp defines interfaces for generic devices
// and an extensible type that wraps them in an HTTP interface
package generichttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"

	"github.com/nanomi/eoptics/server"
	"github.com/nanomi/eoptics/util"
)

// MethodPath is a struct containing an HTTP method and path
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method-paths to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the routes of the table as "METHOD path", sorted by path
func (rt RouteTable) Endpoints() []string {
	keys := make([]MethodPath, 0, len(rt))
	for k := range rt {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path == keys[j].Path {
			return keys[i].Method < keys[j].Method
		}
		return keys[i].Path < keys[j].Path
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Method + " " + k.Path
	}
	return out
}

// Bind registers every route of the table on r
func (rt RouteTable) Bind(r chi.Router) {
	for mp, hndl := range rt {
		r.MethodFunc(mp.Method, mp.Path, hndl)
	}
}

// HTTPer is something that has a route table
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize turns a user supplied endpoint into a mount pattern,
// "omc/nkt/" => "/omc/nkt".  The empty string mounts at the root
func SubMuxSanitize(str string) string {
	str = strings.TrimSpace(str)
	str = strings.TrimSuffix(str, "*")
	str = strings.Trim(str, "/")
	return "/" + str
}

// ErrorStatus is the code for a setter's error: out of range values are a
// bad request, unknown names are not found, anything else is on the server
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, util.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := server.HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
		return
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.F64)
		if err != nil {
			http.Error(w, err.Error(), ErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := server.HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
		return
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := server.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			http.Error(w, err.Error(), ErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
