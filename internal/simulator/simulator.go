// Package simulator runs a view-factor model over a whole trajectory and
// calibrates the result to power.
//
// A simulation is three ordered phases: evaluate every sample (map), fit one
// calibration over the complete view-factor series (barrier and reduce), then
// scale every sample (map). Each call is independent; identical inputs give
// bit-identical output regardless of the worker count.
package simulator

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/metrics"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMeasuredPowerMissing is returned when least-squares calibration is
	// requested for a trajectory without a complete measured series.
	ErrMeasuredPowerMissing = errors.New("least-squares calibration requires measured power for every sample")

	// ErrSuperseded is returned by Runner.Submit when a newer request was
	// submitted before this one published.
	ErrSuperseded = errors.New("simulation superseded by a newer request")
)

// SampleResult is the output for one sample.
type SampleResult struct {
	Time           float64  `json:"time"`
	A              float64  `json:"a_mm"`
	H              float64  `json:"H_mm"`
	ThetaDeg       *float64 `json:"theta_deg,omitempty"`
	ViewFactor     float64  `json:"view_factor"`
	SimulatedPower float64  `json:"simulated_power_W"`
}

// Result is the output for a whole trajectory. Calibration is nil for
// PolicyNone; Metrics is nil unless measured power was available and the
// output is in watts.
type Result struct {
	Model       viewfactor.Kind     `json:"model"`
	Samples     []SampleResult      `json:"samples"`
	Calibration *calibration.Result `json:"calibration,omitempty"`
	Metrics     *metrics.Metrics    `json:"-"`
	Degenerate  int                 `json:"degenerate_samples,omitempty"`
}

// Summary is the trajectory-level record.
type Summary struct {
	Kappa          *float64 `json:"kappa"`
	RMSEMicroWatts *float64 `json:"rmse_uW"`
	R2             *float64 `json:"r2"`
	Pearson        *float64 `json:"pearson"`
}

// Summary returns kappa and the agreement metrics, leaving unavailable values
// nil.
func (r *Result) Summary() Summary {
	var s Summary
	if r.Calibration != nil {
		s.Kappa = r.Calibration.Kappa
	}
	if r.Metrics != nil {
		rmse, r2, p := r.Metrics.RMSEMicroWatts(), r.Metrics.R2, r.Metrics.Pearson
		s.RMSEMicroWatts, s.R2, s.Pearson = &rmse, &r2, &p
	}
	return s
}

// ViewFactors returns the raw view-factor series.
func (r *Result) ViewFactors() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.ViewFactor
	}
	return out
}

// Power returns the simulated power series.
func (r *Result) Power() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.SimulatedPower
	}
	return out
}

// Simulate evaluates cfg.Model over traj and calibrates the result with
// cfg.Policy. It returns ctx.Err() if cancelled during the map phase.
func Simulate(ctx context.Context, cfg Config, traj Trajectory) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	model, err := viewfactor.New(cfg.Model)
	if err != nil {
		return nil, err
	}
	measured := traj.MeasuredPower()
	if cfg.Policy == calibration.PolicyLeastSquares && measured == nil {
		return nil, ErrMeasuredPowerMissing
	}

	// Map: one model evaluation per sample.
	evals, err := evaluateAll(ctx, model, cfg, traj)
	if err != nil {
		return nil, err
	}

	res := &Result{Model: cfg.Model, Samples: make([]SampleResult, len(traj))}
	f := make([]float64, len(evals))
	for i, ev := range evals {
		f[i] = ev.ViewFactor
		sr := SampleResult{Time: traj[i].Time, A: ev.A, H: ev.H, ViewFactor: ev.ViewFactor}
		if ev.HasTheta {
			theta := ev.ThetaDeg
			sr.ThetaDeg = &theta
		}
		if ev.Degenerate {
			res.Degenerate++
		}
		res.Samples[i] = sr
	}
	if res.Degenerate > 0 {
		monitoring.Logf("simulator: %d of %d samples had a degenerate normal or light direction; view factor set to 0",
			res.Degenerate, len(traj))
	}

	// Reduce: one calibration over the complete series.
	cal, power, err := calibration.Calibrate(cfg.Policy, f, measured, calibration.Options{
		Physics:     cfg.Physics,
		TargetRange: cfg.TargetRange,
	})
	if err != nil {
		monitoring.Logf("simulator: %s calibration failed: %v", cfg.Policy, err)
		return nil, fmt.Errorf("calibrate: %w", err)
	}
	if cfg.Policy != calibration.PolicyNone {
		res.Calibration = &cal
	}

	// Map: publish scaled power.
	for i := range res.Samples {
		res.Samples[i].SimulatedPower = power[i]
	}

	if measured != nil && cfg.Policy != calibration.PolicyNone {
		m, err := metrics.Evaluate(measured, power)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		res.Metrics = &m
	}
	return res, nil
}

func evaluateAll(ctx context.Context, model viewfactor.Model, cfg Config, traj Trajectory) ([]viewfactor.Result, error) {
	res := cfg.EffectiveResolution()
	out := make([]viewfactor.Result, len(traj))

	if cfg.Workers <= 1 {
		for i, s := range traj {
			ev, err := model.Evaluate(ctx, s.Receiver(), cfg.Light, res)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range traj {
		g.Go(func() error {
			ev, err := model.Evaluate(gctx, traj[i].Receiver(), cfg.Light, res)
			if err != nil {
				return err
			}
			out[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
