// Package throttle provides an HTTP middleware which rate limits expensive
// routes, returning 429 (too many requests) when the budget is spent
package throttle

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Throttle shares one token bucket between every protected path
type Throttle struct {
	lim *rate.Limiter

	// Protect is a list of path fragments the budget applies to; an empty
	// list protects everything
	Protect []string
}

// New returns a Throttle admitting perSecond requests on average, with
// bursts of up to burst.  perSecond <= 0 disables the limit
func New(perSecond float64, burst int, protect ...string) *Throttle {
	lim := rate.Inf
	if perSecond > 0 {
		lim = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{lim: rate.NewLimiter(lim, burst), Protect: protect}
}

func (t *Throttle) protected(path string) bool {
	if len(t.Protect) == 0 {
		return true
	}
	for _, str := range t.Protect {
		if strings.Contains(path, str) {
			return true
		}
	}
	return false
}

// Check is an HTTP middleware that returns http.StatusTooManyRequests when
// a protected path is requested faster than the limit allows
func (t *Throttle) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.protected(r.URL.Path) && !t.lim.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded, try again shortly", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
