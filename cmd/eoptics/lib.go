package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/file"
	"github.com/theckman/yacspin"

	"github.com/nanomi/eoptics/colsrv"
	"github.com/nanomi/eoptics/column"
	"github.com/nanomi/eoptics/debounce"
	"github.com/nanomi/eoptics/explorer"
	"github.com/nanomi/eoptics/generichttp"
	"github.com/nanomi/eoptics/server/middleware/locker"
	"github.com/nanomi/eoptics/server/middleware/throttle"
	"github.com/nanomi/eoptics/util"
)

// Endpoint is where the column's routes are mounted
const Endpoint = "column"

// expensive are the route fragments that share the throttle budget
var expensive = []string{"/grid", "/search", "/solve", "/focus"}

// BuildMux mounts the column's routes with the lock, throttle and focal
// limit middleware, plus a root /endpoints listing
func BuildMux(h *colsrv.HTTPWrapper, c column.Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	hndlS := generichttp.SubMuxSanitize(Endpoint)

	// add a lock interface for the column
	lock := locker.New()
	locker.Inject(h, lock)

	// add the limits
	limiter := h.Limits()
	limiter.Inject(h)

	// add the endpoints to the graph
	supergraph[hndlS] = h.RT().Endpoints()

	// bind to the mux
	r := chi.NewRouter()
	r.Use(lock.Check)
	r.Use(throttle.New(c.Throttle.PerSecond, c.Throttle.Burst, expensive...).Check)
	r.Use(limiter.Check)
	h.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}

// watchConfig reloads the config file into h whenever it changes.  Editors
// fire bursts of events on save; the reloads are debounced
func watchConfig(h *colsrv.HTTPWrapper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	reload := debounce.New("config", func(p string) {
		cfg, err := column.Load(koanf.New("."), p)
		if err != nil {
			log.Println("config reload failed:", err)
			return
		}
		h.Replace(cfg)
		log.Println("reloaded", p)
	})
	return file.Provider(path).Watch(func(event interface{}, err error) {
		if err != nil {
			log.Println("watching config:", err)
			return
		}
		reload.Call(path)
	})
}

// parseAxis parses "fl1", "0,10,0.5" into an axis
func parseAxis(name, span string) (explorer.Axis, error) {
	v, err := explorer.ParseVariable(name)
	if err != nil {
		return explorer.Axis{}, err
	}
	fs, err := util.ParseFloatCSV(span)
	if err != nil {
		return explorer.Axis{}, fmt.Errorf("axis %s: %w", name, err)
	}
	if len(fs) != 3 {
		return explorer.Axis{}, fmt.Errorf("axis %s: expected start,stop,step, got %q", name, span)
	}
	return explorer.Axis{Var: v, Start: fs[0], Stop: fs[1], Step: fs[2]}, nil
}

// spin starts a terminal spinner with msg; the returned func stops it
func spin(msg string) func(ok bool) {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	}
	s, err := yacspin.New(cfg)
	if err != nil || s.Start() != nil {
		return func(bool) {}
	}
	return func(ok bool) {
		if ok {
			s.Stop()
		} else {
			s.StopFail()
		}
	}
}
