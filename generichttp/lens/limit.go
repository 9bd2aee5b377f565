package lens

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi"

	"github.com/nanomi/eoptics/generichttp"
	"github.com/nanomi/eoptics/server"
	"github.com/nanomi/eoptics/util"
)

// LimitMiddleware is a type that can impose lens-specific limits on focal
// lengths.  A request that would violate a limit is refused with
// StatusBadRequest before it reaches the column
type LimitMiddleware struct {
	// Limits contains the server imposed limits, by lens name
	Limits map[string]util.Limiter

	// Foc is a reference to the focuser, used for relative requests
	Foc Focuser
}

// lensOf extracts the lens name from a /lens/{lens}/f path.  Middleware
// runs before chi has matched the route, so URL params are not available
func lensOf(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "lens" && parts[i+2] == "f" {
			return parts[i+1], true
		}
	}
	return "", false
}

func (l *LimitMiddleware) limiter(name string) (util.Limiter, bool) {
	if lim, ok := l.Limits[name]; ok {
		return lim, true
	}
	for k, lim := range l.Limits {
		if strings.EqualFold(k, name) {
			return lim, true
		}
	}
	return util.Limiter{}, false
}

// Check verifies if a focal length request would violate the lens limit,
// if it exists, and if it does, responds with StatusBadRequest.
// otherwise, flows control to the next handler
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		name, ok := lensOf(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		// bail as early as possible if we don't have a limit for this lens
		limiter, ok := l.limiter(name)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		rel, err := relative(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// downstream functions want the body too;
		// read it all here, then put it back
		bodyContent, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewBuffer(bodyContent))
		f := server.FloatT{}
		err = json.NewDecoder(bytes.NewReader(bodyContent)).Decode(&f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cmd := f.F64
		if rel && l.Foc != nil {
			curr, err := l.Foc.FocalLength(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			cmd += curr
		}
		if !limiter.Check(cmd) {
			http.Error(w, util.ErrOutOfRange.Error(), http.StatusBadRequest)
			return
		}
		// at this point, all checks have passed and we can move on
		next.ServeHTTP(w, r)
	})
}

// Inject places a /lens/{lens}/limits route on the table of the HTTPer
func (l *LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/lens/{lens}/limits"}] = Limits(l)
}

// Limits returns an HTTP handler func that returns the limits for a lens,
// or null if it has none
func Limits(l *LimitMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lim, ok := l.limiter(chi.URLParam(r, "lens"))
		if !ok {
			server.Reply(w, nil)
			return
		}
		server.Reply(w, lim)
	}
}
