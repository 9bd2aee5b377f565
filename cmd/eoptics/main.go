package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"

	yml "gopkg.in/yaml.v2"

	"github.com/nanomi/eoptics/colsrv"
	"github.com/nanomi/eoptics/column"
	"github.com/nanomi/eoptics/explorer"
	"github.com/nanomi/eoptics/export"
	"github.com/nanomi/eoptics/optics"
	"github.com/nanomi/eoptics/solver"
	"github.com/nanomi/eoptics/util"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "eoptics.yml"
	k              = koanf.New(".")
	cfg            column.Config
)

func setupconfig() {
	var err error
	cfg, err = column.Load(k, ConfigFileName)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
}

func root() {
	str := `eoptics models the electron optical column of a transmission electron microscope
with ray transfer matrices, and serves the model over HTTP for a front end.

Usage:
	eoptics <command> [arguments]

Commands:
	run
	trace [illumination|imaging]
	explore <var> <start,stop,step> <var> <start,stop,step> [out.fits]
	solve [illumination|imaging] [lens ...]
	search
	focus <lens> [image|diffraction]
	export [out.csv]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `eoptics is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration file the Nano-Mi column is used.  mkconf writes it
out for editing.  Lengths are in mm, measured along the column from the
source.  While "run" is serving, edits to the file are picked up live.

Explorer variables:
	do1  source to C1
	s1   C1 to C2
	s2   C2 to C3
	fl1  C1 focal length
	fl2  C2 focal length

Routes are mounted under /column; GET /endpoints lists them.  Writes are
refused with 423 while POST /lock {"bool": true} holds the lock, and the
grid, search, solve and focus routes are rate limited by Throttle.`
	fmt.Println(str)
}

func mkconf() {
	if err := column.WriteYaml(cfg, ConfigFileName); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	err := yml.NewEncoder(os.Stdout).Encode(cfg)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("eoptics version %v\n", Version)
}

func run() {
	h := colsrv.NewHTTPWrapper(column.New(cfg))
	if err := watchConfig(h, ConfigFileName); err != nil {
		log.Println("not watching config file:", err)
	}
	mux := BuildMux(h, cfg)
	log.Println("now listening for requests at ", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, mux))
}

func printSide(name string, s column.Side) {
	fmt.Printf("%s\n", name)
	for _, l := range s.Lenses {
		state := "off"
		if l.Active {
			state = "on"
		}
		fmt.Printf("  %-13s f %9.4f  %-3s", l.Name, l.FocalLength, state)
		if l.Magnification != nil && l.ImageZ != nil {
			fmt.Printf("  M %10.5g  image z %9.3f", *l.Magnification, *l.ImageZ)
		}
		fmt.Println()
	}
	if s.Magnification != nil {
		fmt.Printf("  column magnification %g\n", *s.Magnification)
	}
	if s.Warning != "" {
		fmt.Printf("  warning: %s\n", s.Warning)
	}
}

func trace(args []string) {
	side := "illumination"
	if len(args) > 0 {
		side = strings.ToLower(args[0])
	}
	st, err := column.Evaluate(cfg)
	if err != nil {
		log.Fatal(err)
	}
	switch side {
	case "illumination":
		ch, err := cfg.IlluminationChain()
		if err != nil {
			log.Fatal(err)
		}
		printSide("illumination", st.Illumination)
		if st.Probe != nil {
			fmt.Printf("  Köhler probe diameter %g mm\n", *st.Probe)
		}
		for i, ray := range cfg.GunRays() {
			res, _ := ch.Propagate(ray)
			fmt.Printf("\n%s ray\n", optics.GunRayNames[i])
			fmt.Println(export.PlotRay(res, 72, 8))
		}
	case "imaging":
		ch, err := cfg.ImagingChain()
		if err != nil {
			log.Fatal(err)
		}
		printSide("imaging", st.Imaging)
		res, _ := ch.Propagate(optics.Ray{Angle: column.ScatteringAngle})
		fmt.Println()
		fmt.Println(export.PlotRay(res, 72, 8))
	default:
		log.Fatalf("unknown side %q, expected illumination or imaging", side)
	}
}

func explore(args []string) {
	if len(args) < 4 {
		log.Fatal("usage: eoptics explore <var> <start,stop,step> <var> <start,stop,step> [out.fits]")
	}
	ax1, err := parseAxis(args[0], args[1])
	if err != nil {
		log.Fatal(err)
	}
	ax2, err := parseAxis(args[2], args[3])
	if err != nil {
		log.Fatal(err)
	}
	base, err := cfg.KohlerParams()
	if err != nil {
		log.Fatal(err)
	}
	done := spin(fmt.Sprintf("sweeping %s x %s", ax1.Var, ax2.Var))
	g, err := explorer.Build(context.Background(), base, ax1, ax2)
	done(err == nil)
	if err != nil {
		log.Fatal(err)
	}
	n1, n2 := g.Dims()
	fmt.Printf("%d x %d grid\n", n1, n2)
	if c, v, ok := g.Min(explorer.Probe); ok {
		fl3, _ := g.FL3At(c.V1, c.V2)
		fmt.Printf("smallest probe %g mm at %s=%g %s=%g, f3 %g mm\n", v, ax1.Var, c.V1, ax2.Var, c.V2, fl3)
	} else {
		fmt.Println("every configuration of the grid is degenerate")
	}
	if len(args) > 4 {
		f, err := os.Create(args[4])
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if err := export.WriteGridFits(f, g, explorer.Probe); err != nil {
			log.Fatal(err)
		}
	}
}

func solve(args []string) {
	imaging := false
	if len(args) > 0 && (args[0] == "imaging" || args[0] == "illumination") {
		imaging = args[0] == "imaging"
		args = args[1:]
	}
	col, goal, set, err := cfg.SolveProblem(imaging, args)
	if err != nil {
		log.Fatal(err)
	}
	done := spin(fmt.Sprintf("solving to %s", goal))
	sol, err := solver.SolveLocal(context.Background(), col, goal, set)
	done(err == nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("focal lengths %s\nmagnification %g\nimage z %g\nconstraint violation %g\n%d of %d starts accepted\n",
		util.FloatSliceToCSV(sol.FocalLengths), sol.Magnification, sol.ImageZ, sol.Violation, sol.Accepted, sol.Starts)
}

func search() {
	space, err := cfg.SearchSpace()
	if err != nil {
		log.Fatal(err)
	}
	ch, err := cfg.IlluminationChain()
	if err != nil {
		log.Fatal(err)
	}
	rays := cfg.GunRays()
	done := spin(fmt.Sprintf("searching %d condenser settings", space.Size()))
	res, err := solver.GlobalSearch(context.Background(), ch, rays[:], space)
	done(err == nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("focal lengths %s\nexcitations %s\nbeam radius at the sample %g mm\n",
		util.FloatSliceToCSV(res.FocalLengths[:]), util.FloatSliceToCSV(res.Excitations[:]), res.Radius)
}

func focus(args []string) {
	if len(args) < 1 {
		log.Fatal("usage: eoptics focus <lens> [image|diffraction]")
	}
	mode := solver.Image
	if len(args) > 1 {
		var err error
		mode, err = solver.ParseFocusMode(strings.ToLower(args[1]))
		if err != nil {
			log.Fatal(err)
		}
	}
	p, err := cfg.FocusProblem(args[0], mode)
	if err != nil {
		log.Fatal(err)
	}
	p.Bounds = cfg.LensLimits()[p.Chain.Element(p.Lens).Name]
	res, err := solver.Focus(context.Background(), p)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s %s focus at f = %g mm (residual %g)\n", args[0], mode, res.FocalLength, res.Residual)
}

func exportResults(args []string) {
	st, err := column.Evaluate(cfg)
	if err != nil {
		log.Fatal(err)
	}
	w := os.Stdout
	if len(args) > 0 {
		f, err := os.Create(args[0])
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		w = f
	}
	if err := export.WriteResults(w, st); err != nil {
		log.Fatal(err)
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	rest := args[2:]
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "trace":
		trace(rest)
	case "explore":
		explore(rest)
	case "solve":
		solve(rest)
	case "search":
		search()
	case "focus":
		focus(rest)
	case "export":
		exportResults(rest)
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
