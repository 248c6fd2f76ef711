// Command fixtures generates and verifies the regression fixtures of every
// gesture in a data directory.
//
//	fixtures generate -db fixtures.db -data gestures/
//	fixtures verify   -db fixtures.db -data gestures/
//	fixtures summary  -db fixtures.db -out summary.json
package main

import (
	"bytes"
	"context"
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

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/config"
	"github.com/banshee-data/viewfactor/internal/fixtures"
	"github.com/banshee-data/viewfactor/internal/fsutil"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/security"
	"github.com/banshee-data/viewfactor/internal/simulator"
	"github.com/banshee-data/viewfactor/internal/trajectory"
	"github.com/banshee-data/viewfactor/internal/version"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
)

// errVerifyFailed is returned when at least one fixture did not reproduce.
var errVerifyFailed = errors.New("fixture verification failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errVerifyFailed):
		os.Exit(1)
	default:
		log.Fatal(err)
	}
}

type options struct {
	db         string
	data       string
	configPath string
	models     string
	policies   string
	out        string
	split      bool
	tol        fixtures.Tolerances
}

const usage = "usage: fixtures generate|verify|summary [flags]"

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) > 0 && (args[0] == "-version" || args[0] == "--version") {
		fmt.Fprintf(stdout, "fixtures %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return nil
	}
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd := args[0]

	fs := flag.NewFlagSet("fixtures "+cmd, flag.ContinueOnError)
	o := &options{tol: fixtures.DefaultTolerances}
	fs.StringVar(&o.db, "db", "fixtures.db", "Fixture database path")
	fs.StringVar(&o.data, "data", "", "Directory of gesture JSON files")
	fs.StringVar(&o.configPath, "config", "", "Simulation config JSON (default: built-in defaults)")
	fs.StringVar(&o.models, "models", "", "Comma-separated models (default: all)")
	fs.StringVar(&o.policies, "policies", "", "Comma-separated calibration policies (default: the config's)")
	fs.StringVar(&o.out, "out", "", "summary: output file, or directory with -split (default: stdout)")
	fs.BoolVar(&o.split, "split", false, "summary: write one file per trajectory into -out")
	fs.Float64Var(&o.tol.RMSEMicroWatts, "tol-rmse-uw", o.tol.RMSEMicroWatts, "verify: RMSE tolerance in µW")
	fs.Float64Var(&o.tol.R2, "tol-r2", o.tol.R2, "verify: R² tolerance")
	fs.Float64Var(&o.tol.Pearson, "tol-pearson", o.tol.Pearson, "verify: Pearson tolerance")
	fs.Float64Var(&o.tol.PowerRelative, "tol-power", o.tol.PowerRelative, "verify: relative per-sample power tolerance")
	quiet := fs.Bool("quiet", false, "Suppress diagnostic logging")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	switch cmd {
	case "generate", "verify":
		if o.data == "" {
			return errors.New("-data is required")
		}
	case "summary":
	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}

	store, err := fixtures.Open(o.db)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.db, err)
	}
	defer store.Close()

	switch cmd {
	case "generate":
		return generate(ctx, store, o, stdout)
	case "verify":
		return verify(ctx, store, o, stdout)
	default:
		return summary(ctx, store, o, stdout)
	}
}

// configs expands the base config over the selected models and policies.
func configs(o *options) ([]simulator.Config, error) {
	base := config.EmptySimulationConfig()
	if o.configPath != "" {
		var err error
		base, err = config.LoadSimulationConfig(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	kinds := viewfactor.Kinds()
	if o.models != "" {
		kinds = nil
		for _, s := range strings.Split(o.models, ",") {
			k, err := viewfactor.ParseKind(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	policies := []calibration.Policy{base.GetCalibrationPolicy()}
	if o.policies != "" {
		policies = nil
		for _, s := range strings.Split(o.policies, ",") {
			p, err := calibration.ParsePolicy(strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			policies = append(policies, p)
		}
	}

	var out []simulator.Config
	for _, k := range kinds {
		for _, p := range policies {
			out = append(out, base.WithModel(k).WithPolicy(p).ToSimulatorConfig())
		}
	}
	return out, nil
}

// gesture is one loaded trajectory together with the configs to run on it.
type gesture struct {
	name string
	traj simulator.Trajectory
	cfgs []simulator.Config
}

// gestures loads every gesture in the data directory. A gesture that carries
// its own light pose is simulated under that pose.
func gestures(o *options) ([]gesture, error) {
	cfgs, err := configs(o)
	if err != nil {
		return nil, err
	}
	loader := trajectory.NewLoader(o.data)
	names, err := loader.List()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no gesture files in %s", o.data)
	}

	var out []gesture
	for _, name := range names {
		g, err := loader.Load(name)
		if err != nil {
			return nil, err
		}
		gc := make([]simulator.Config, len(cfgs))
		copy(gc, cfgs)
		if g.LightSource != nil {
			for i := range gc {
				gc[i].Light = g.Light()
			}
		}
		out = append(out, gesture{name: name, traj: g.Trajectory(), cfgs: gc})
	}
	return out, nil
}

func generate(ctx context.Context, store *fixtures.Store, o *options, stdout io.Writer) error {
	gs, err := gestures(o)
	if err != nil {
		return err
	}
	total := 0
	for _, g := range gs {
		runs, err := fixtures.Generate(ctx, store, g.name, g.traj, g.cfgs)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(stdout, "stored %s/%s (%d samples)\n", r.Trajectory, r.Configuration, r.SampleCount)
		}
		total += len(runs)
	}
	fmt.Fprintf(stdout, "%d fixtures written to %s\n", total, store.Path())
	return nil
}

func verify(ctx context.Context, store *fixtures.Store, o *options, stdout io.Writer) error {
	gs, err := gestures(o)
	if err != nil {
		return err
	}
	failed := 0
	for _, g := range gs {
		reports, err := fixtures.Verify(ctx, store, g.name, g.traj, g.cfgs, o.tol)
		if err != nil {
			return err
		}
		for _, r := range reports {
			key := r.Trajectory + "/" + r.Configuration
			switch {
			case r.Skipped:
				fmt.Fprintf(stdout, "SKIP %s (no measured power)\n", key)
			case r.Missing:
				fmt.Fprintf(stdout, "MISSING %s\n", key)
			case len(r.Mismatches) > 0:
				fmt.Fprintf(stdout, "FAIL %s\n", key)
				for _, m := range r.Mismatches {
					fmt.Fprintf(stdout, "    %s\n", m)
				}
			default:
				fmt.Fprintf(stdout, "ok   %s\n", key)
			}
			if !r.OK() {
				failed++
			}
		}
	}
	if failed > 0 {
		fmt.Fprintf(stdout, "%d fixtures failed\n", failed)
		return errVerifyFailed
	}
	return nil
}

func summary(ctx context.Context, store *fixtures.Store, o *options, stdout io.Writer) error {
	sums, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	if o.out == "" {
		if o.split {
			return errors.New("-split requires -out")
		}
		return sums.WriteJSON(stdout)
	}

	fsys := fsutil.OSFileSystem{}
	if !o.split {
		return writeSummary(fsys, o.out, sums, stdout)
	}
	if err := security.ValidateExportPath(o.out); err != nil {
		return err
	}
	if err := fsys.MkdirAll(o.out, 0o755); err != nil {
		return err
	}
	for traj, byConfig := range sums {
		path := filepath.Join(o.out, security.SanitizeFilename(traj)+".json")
		if err := writeSummary(fsys, path, fixtures.Summaries{traj: byConfig}, stdout); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(fsys fsutil.FileSystem, path string, sums fixtures.Summaries, stdout io.Writer) error {
	if err := security.ValidateExportPath(path); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := sums.WriteJSON(&buf); err != nil {
		return err
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}
