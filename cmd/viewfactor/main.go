// Command viewfactor simulates the power a photovoltaic cell receives along a
// recorded gesture.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/viewfactor/internal/api"
	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/config"
	"github.com/banshee-data/viewfactor/internal/httputil"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/simulator"
	"github.com/banshee-data/viewfactor/internal/trajectory"
	"github.com/banshee-data/viewfactor/internal/units"
	"github.com/banshee-data/viewfactor/internal/version"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

type options struct {
	in         string
	configPath string
	model      string
	policy     string
	nR, nPhi   int
	workers    int
	jsonOut    bool
	server     string
	timeout    time.Duration
	quiet      bool
	units      string
}

func parseFlags(args []string, stderr io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("viewfactor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.StringVar(&o.in, "in", "", "Gesture JSON file to simulate (required)")
	fs.StringVar(&o.configPath, "config", "", "Simulation config JSON (default: built-in defaults)")
	fs.StringVar(&o.model, "model", "", "View-factor model: "+kindList())
	fs.StringVar(&o.policy, "policy", "", "Calibration policy: "+policyList())
	fs.IntVar(&o.nR, "n-r", 0, "Radial Simpson intervals (0 = config/model default)")
	fs.IntVar(&o.nPhi, "n-phi", 0, "Angular Simpson intervals (0 = config/model default)")
	fs.IntVar(&o.workers, "workers", 0, "Goroutines for the per-sample map (0 = config default)")
	fs.BoolVar(&o.jsonOut, "json", false, "Write the full result as JSON")
	fs.StringVar(&o.server, "server", "", "Submit to a running server (e.g. http://localhost:8080) instead of simulating locally")
	fs.DurationVar(&o.timeout, "timeout", 0, "Abort the simulation after this long (0 = no limit)")
	fs.BoolVar(&o.quiet, "quiet", false, "Suppress diagnostic logging")
	fs.StringVar(&o.units, "units", units.W, "Power units of the table: "+units.GetValidUnitsString())
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return o, true, nil
	}
	if !units.IsValid(o.units) {
		return nil, false, fmt.Errorf("invalid -units %q: must be one of %s", o.units, units.GetValidUnitsString())
	}

	if o.in == "" {
		return nil, false, errors.New("-in is required")
	}
	return o, false, nil
}

func kindList() string {
	var names []string
	for _, k := range viewfactor.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

func policyList() string {
	var names []string
	for _, p := range calibration.Policies() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// overrides returns the flag-level config overrides.
func (o *options) overrides() *config.SimulationConfig {
	c := config.EmptySimulationConfig()
	if o.model != "" {
		c.Model = &o.model
	}
	if o.policy != "" {
		c.CalibrationPolicy = &o.policy
	}
	if o.nR > 0 {
		c.NR = &o.nR
	}
	if o.nPhi > 0 {
		c.NPhi = &o.nPhi
	}
	if o.workers > 0 {
		c.Workers = &o.workers
	}
	return c
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, versionOnly, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if versionOnly {
		fmt.Fprintf(stdout, "viewfactor %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return nil
	}
	if o.quiet {
		monitoring.SetLogger(nil)
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	base := config.EmptySimulationConfig()
	if o.configPath != "" {
		base, err = config.LoadSimulationConfig(o.configPath)
		if err != nil {
			return err
		}
	}

	g, err := trajectory.NewLoader(filepath.Dir(o.in)).LoadFile(o.in)
	if err != nil {
		return err
	}
	cfg := base
	if g.LightSource != nil {
		cfg = cfg.WithLightSource(g.Light())
	}
	cfg = cfg.Merge(o.overrides())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	traj := g.Trajectory()

	var resp api.SimulateResponse
	if o.server != "" {
		url := strings.TrimSuffix(o.server, "/") + "/api/simulate"
		req := api.SimulateRequest{Trajectory: traj, Config: cfg}
		if err := httputil.PostJSON(ctx, httputil.NewStandardClient(nil), url, req, &resp); err != nil {
			return err
		}
	} else {
		res, err := simulator.Simulate(ctx, cfg.ToSimulatorConfig(), traj)
		if err != nil {
			return err
		}
		resp = api.SimulateResponse{Result: res, Summary: res.Summary()}
	}

	if o.jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	writeTable(stdout, g.Name, resp, o.units)
	return nil
}

func writeTable(w io.Writer, name string, resp api.SimulateResponse, unit string) {
	fmt.Fprintf(w, "# %s: %s, %d samples\n", name, resp.Model, len(resp.Samples))
	fmt.Fprintf(w, "%10s %10s %10s %9s %14s %14s\n", "time_s", "a_mm", "H_mm", "theta_deg", "view_factor", "power_"+unit)
	for _, s := range resp.Samples {
		theta := "-"
		if s.ThetaDeg != nil {
			theta = fmt.Sprintf("%.2f", *s.ThetaDeg)
		}
		fmt.Fprintf(w, "%10.3f %10.2f %10.2f %9s %14.6e %14.6e\n", s.Time, s.A, s.H, theta, s.ViewFactor, units.ConvertPower(s.SimulatedPower, unit))
	}

	sum := resp.Summary
	fmt.Fprintf(w, "kappa: %s\n", optional(sum.Kappa, "%.6g"))
	fmt.Fprintf(w, "rmse_uW: %s\n", optional(sum.RMSEMicroWatts, "%.3f"))
	fmt.Fprintf(w, "r2: %s\n", optional(sum.R2, "%.4f"))
	fmt.Fprintf(w, "pearson: %s\n", optional(sum.Pearson, "%.4f"))
	if resp.Degenerate > 0 {
		fmt.Fprintf(w, "degenerate samples: %d\n", resp.Degenerate)
	}
}

func optional(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
