package fixtures

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/simulator"
)

// Report is the verification outcome for one trajectory and configuration.
type Report struct {
	Trajectory    string     `json:"trajectory"`
	Configuration string     `json:"configuration"`
	Missing       bool       `json:"missing,omitempty"`
	Skipped       bool       `json:"skipped,omitempty"`
	Mismatches    []Mismatch `json:"mismatches,omitempty"`
}

// OK reports whether the fixture exists and was reproduced.
func (r Report) OK() bool { return r.Skipped || (!r.Missing && len(r.Mismatches) == 0) }

// Generate simulates traj under every config and stores the results as the
// fixtures of trajectory name. Configs that need measured power the
// trajectory lacks are skipped.
func Generate(ctx context.Context, store *Store, name string, traj simulator.Trajectory, cfgs []simulator.Config) ([]Run, error) {
	var runs []Run
	for _, cfg := range cfgs {
		f, err := simulate(ctx, name, traj, cfg)
		if errors.Is(err, simulator.ErrMeasuredPowerMissing) {
			monitoring.Logf("fixtures: skipping %s/%s: %v", name, ConfigurationName(cfg), err)
			continue
		}
		if err != nil {
			return runs, err
		}
		if err := store.Put(ctx, f); err != nil {
			return runs, fmt.Errorf("store %s/%s: %w", name, f.Run.Configuration, err)
		}
		runs = append(runs, f.Run)
	}
	return runs, nil
}

// Verify re-simulates traj under every config and compares each result with
// its stored fixture.
func Verify(ctx context.Context, store *Store, name string, traj simulator.Trajectory, cfgs []simulator.Config, tol Tolerances) ([]Report, error) {
	var reports []Report
	for _, cfg := range cfgs {
		rep := Report{Trajectory: name, Configuration: ConfigurationName(cfg)}

		actual, err := simulate(ctx, name, traj, cfg)
		if errors.Is(err, simulator.ErrMeasuredPowerMissing) {
			rep.Skipped = true
			reports = append(reports, rep)
			continue
		}
		if err != nil {
			return reports, err
		}

		expected, err := store.Load(ctx, name, rep.Configuration)
		if errors.Is(err, ErrNotFound) {
			rep.Missing = true
			reports = append(reports, rep)
			continue
		}
		if err != nil {
			return reports, err
		}

		rep.Mismatches = Compare(expected, actual, tol)
		reports = append(reports, rep)
	}
	return reports, nil
}

func simulate(ctx context.Context, name string, traj simulator.Trajectory, cfg simulator.Config) (*Fixture, error) {
	res, err := simulator.Simulate(ctx, cfg, traj)
	if err != nil {
		return nil, fmt.Errorf("simulate %s/%s: %w", name, ConfigurationName(cfg), err)
	}
	return NewFixture(name, cfg, res), nil
}
