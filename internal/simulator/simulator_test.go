package simulator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/quadrature"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// sweep returns n samples passing under the light from one side to the
// other, with the palm tilting as it goes.
func sweep(n int) Trajectory {
	light := geometry.DefaultLightSource()
	traj := make(Trajectory, n)
	for i := range traj {
		u := float64(i)/float64(n-1) - 0.5
		traj[i] = Sample{
			Time:     float64(i) / 100,
			Position: r3.Vec{X: light.Center.X + 600*u, Y: 250 + 40*u, Z: light.Center.Z - 100*u},
			Normal:   r3.Vec{X: 0.4 * u, Y: -1, Z: 0.1},
		}
	}
	return traj
}

func withMeasured(traj Trajectory, power []float64) Trajectory {
	out := make(Trajectory, len(traj))
	copy(out, traj)
	for i := range out {
		out[i].MeasuredPower = Float(power[i])
	}
	return out
}

func quiet(t *testing.T) *monitoring.Recorder {
	t.Helper()
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })
	rec := &monitoring.Recorder{}
	monitoring.SetLogger(rec.Logf)
	return rec
}

func config(kind viewfactor.Kind, policy calibration.Policy) Config {
	cfg := DefaultConfig()
	cfg.Model = kind
	cfg.Policy = policy
	cfg.Resolution = quadrature.Resolution{NR: 16, NPhi: 16}
	return cfg
}

func TestSimulate_LeastSquaresRecoversKappa(t *testing.T) {
	quiet(t)
	traj := sweep(25)
	raw, err := Simulate(context.Background(), config(viewfactor.KindOrientedApprox, calibration.PolicyNone), traj)
	require.NoError(t, err)

	measured := make([]float64, len(traj))
	for i, f := range raw.ViewFactors() {
		measured[i] = 3.0 * f
	}

	got, err := Simulate(context.Background(), config(viewfactor.KindOrientedApprox, calibration.PolicyLeastSquares), withMeasured(traj, measured))
	require.NoError(t, err)
	require.NotNil(t, got.Calibration)
	require.NotNil(t, got.Calibration.Kappa)
	assert.InDelta(t, 3.0, *got.Calibration.Kappa, 1e-9)
	assert.Equal(t, calibration.PolicyLeastSquares, got.Calibration.Source)

	require.NotNil(t, got.Metrics)
	assert.InDelta(t, 0, got.Metrics.RMSE, 1e-12)
	assert.InDelta(t, 1, got.Metrics.R2, 1e-9)
	assert.InDelta(t, 1, got.Metrics.Pearson, 1e-9)
	assert.InDeltaSlice(t, measured, got.Power(), 1e-12)

	s := got.Summary()
	require.NotNil(t, s.Kappa)
	require.NotNil(t, s.RMSEMicroWatts)
	assert.InDelta(t, 0, *s.RMSEMicroWatts, 1e-6)
}

func TestSimulate_ParallelMatchesSequential(t *testing.T) {
	quiet(t)
	traj := sweep(40)
	for _, kind := range viewfactor.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			cfg := config(kind, calibration.PolicyPhysicsDerived)
			cfg.Physics = calibration.PhysicsParams{Efficiency: 0.2, CellAreaMM2: 100, LightPowerW: 10, ScaleConstant: 1}

			seq, err := Simulate(context.Background(), cfg, traj)
			require.NoError(t, err)

			cfg.Workers = 6
			par, err := Simulate(context.Background(), cfg, traj)
			require.NoError(t, err)

			if diff := cmp.Diff(seq, par); diff != "" {
				t.Errorf("parallel result differs from sequential (-seq +par):\n%s", diff)
			}

			again, err := Simulate(context.Background(), cfg, traj)
			require.NoError(t, err)
			assert.Equal(t, par, again)
		})
	}
}

func TestSimulate_PreservesOrderAndTime(t *testing.T) {
	quiet(t)
	traj := sweep(12)
	cfg := config(viewfactor.KindParallel, calibration.PolicyNone)
	cfg.Workers = 4
	got, err := Simulate(context.Background(), cfg, traj)
	require.NoError(t, err)
	require.Len(t, got.Samples, len(traj))
	for i, s := range got.Samples {
		assert.Equal(t, traj[i].Time, s.Time)
		off := geometry.Resolve(traj[i].Position, cfg.Light.Center)
		assert.Equal(t, off.A, s.A)
		assert.Equal(t, off.H, s.H)
		assert.Nil(t, s.ThetaDeg, "parallel model reports no angle")
	}
}

func TestSimulate_ZeroNormalsGiveZeroPower(t *testing.T) {
	rec := quiet(t)
	traj := sweep(10)
	for i := range traj {
		traj[i].Normal = r3.Vec{}
	}
	cfg := config(viewfactor.KindOrientedApprox, calibration.PolicyPhysicsDerived)
	cfg.Physics = calibration.PhysicsParams{Efficiency: 0.2, CellAreaMM2: 100, LightPowerW: 10, ScaleConstant: 1}

	got, err := Simulate(context.Background(), cfg, traj)
	require.NoError(t, err)
	assert.Equal(t, len(traj), got.Degenerate)
	for _, s := range got.Samples {
		assert.Zero(t, s.ViewFactor)
		assert.Zero(t, s.SimulatedPower)
		assert.Nil(t, s.ThetaDeg)
	}

	lines := rec.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "10 of 10 samples")
}

func TestSimulate_LeastSquaresNeverFallsBack(t *testing.T) {
	quiet(t)
	traj := sweep(5)
	for i := range traj {
		traj[i].Normal = r3.Vec{}
	}
	traj = withMeasured(traj, []float64{1e-6, 2e-6, 3e-6, 2e-6, 1e-6})
	cfg := config(viewfactor.KindOrientedExact, calibration.PolicyLeastSquares)
	cfg.TargetRange = &calibration.Range{Min: 0, Max: 1}

	got, err := Simulate(context.Background(), cfg, traj)
	assert.Nil(t, got)
	var calErr *calibration.CalibrationError
	require.ErrorAs(t, err, &calErr)
	assert.Equal(t, calibration.PolicyLeastSquares, calErr.Policy)
}

func TestSimulate_MeasuredPowerMissing(t *testing.T) {
	traj := sweep(5)
	traj[2].MeasuredPower = Float(1e-6)
	_, err := Simulate(context.Background(), config(viewfactor.KindParallel, calibration.PolicyLeastSquares), traj)
	assert.ErrorIs(t, err, ErrMeasuredPowerMissing)
}

func TestSimulate_RangeMatchedToTarget(t *testing.T) {
	quiet(t)
	cfg := config(viewfactor.KindParallel, calibration.PolicyRangeMatched)
	cfg.TargetRange = &calibration.Range{Min: 1e-6, Max: 5e-6}
	got, err := Simulate(context.Background(), cfg, sweep(21))
	require.NoError(t, err)

	power := got.Power()
	lo, hi := power[0], power[0]
	for _, p := range power {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	assert.InDelta(t, 1e-6, lo, 1e-18)
	assert.InDelta(t, 5e-6, hi, 1e-18)
	assert.Nil(t, got.Calibration.Kappa)
	assert.Nil(t, got.Metrics)
	assert.Nil(t, got.Summary().Kappa)
}

func TestSimulate_PolicyNone(t *testing.T) {
	quiet(t)
	traj := withMeasured(sweep(6), []float64{1, 2, 3, 3, 2, 1})
	got, err := Simulate(context.Background(), config(viewfactor.KindParallel, calibration.PolicyNone), traj)
	require.NoError(t, err)
	assert.Nil(t, got.Calibration)
	assert.Nil(t, got.Metrics)
	assert.Equal(t, got.ViewFactors(), got.Power())
	assert.Equal(t, Summary{}, got.Summary())
}

func TestSimulate_Cancelled(t *testing.T) {
	quiet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{0, 4} {
		cfg := config(viewfactor.KindOrientedExact, calibration.PolicyNone)
		cfg.Workers = workers
		_, err := Simulate(ctx, cfg, sweep(8))
		assert.ErrorIs(t, err, context.Canceled, "workers=%d", workers)
	}
}

func TestSimulate_EmptyTrajectory(t *testing.T) {
	quiet(t)
	got, err := Simulate(context.Background(), config(viewfactor.KindParallel, calibration.PolicyNone), nil)
	require.NoError(t, err)
	assert.Empty(t, got.Samples)

	_, err = Simulate(context.Background(), config(viewfactor.KindParallel, calibration.PolicyLeastSquares), nil)
	assert.ErrorIs(t, err, ErrMeasuredPowerMissing)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"default", func(*Config) {}, ""},
		{"bad model", func(c *Config) { c.Model = viewfactor.Kind(9) }, "unknown view factor model"},
		{"bad diameter", func(c *Config) { c.Light.Diameter = 0 }, "diameter"},
		{"bad resolution", func(c *Config) { c.Resolution = quadrature.Resolution{NR: 2, NPhi: 50} }, "n_r"},
		{"bad policy", func(c *Config) { c.Policy = "auto" }, "calibration policy"},
		{"inverted range", func(c *Config) { c.TargetRange = &calibration.Range{Min: 2, Max: 1} }, "target range"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestEffectiveResolution(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, quadrature.DefaultResolution, cfg.EffectiveResolution())
	cfg.Model = viewfactor.KindOrientedExact
	assert.Equal(t, quadrature.ExactResolution, cfg.EffectiveResolution())
	cfg.Resolution = quadrature.Resolution{NR: 8, NPhi: 12}
	assert.Equal(t, cfg.Resolution, cfg.EffectiveResolution())
}

func TestSampleJSON(t *testing.T) {
	var traj Trajectory
	in := `[
		{"time": 0, "position": [1, 2, 3], "measured_power": 0.5},
		{"time": 0.01, "position": [4, 5, 6], "normal": [0, 0, 0]},
		{"time": 0.02, "position": [7, 8, 9], "normal": [0, 2, 0]}
	]`
	require.NoError(t, json.NewDecoder(strings.NewReader(in)).Decode(&traj))
	require.Len(t, traj, 3)

	assert.Equal(t, geometry.DefaultNormal, traj[0].Normal, "missing normal takes the default")
	assert.Equal(t, r3.Vec{}, traj[1].Normal, "zero normal is kept for the models to reject")
	assert.Equal(t, r3.Vec{Y: 2}, traj[2].Normal)
	assert.Equal(t, r3.Vec{X: 7, Y: 8, Z: 9}, traj[2].Position)
	require.NotNil(t, traj[0].MeasuredPower)
	assert.Equal(t, 0.5, *traj[0].MeasuredPower)
	assert.Nil(t, traj.MeasuredPower(), "partial measurements are not a series")

	b, err := json.Marshal(traj[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":0,"position":[1,2,3],"normal":[0,-1,0],"measured_power":0.5}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"position":"x"}`), &traj[0]))
}

func TestResultJSON(t *testing.T) {
	quiet(t)
	got, err := Simulate(context.Background(), config(viewfactor.KindOrientedApprox, calibration.PolicyNone), sweep(3))
	require.NoError(t, err)
	b, err := json.Marshal(got)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "oriented_approx", decoded["model"])
	samples := decoded["samples"].([]any)
	first := samples[0].(map[string]any)
	for _, key := range []string{"time", "a_mm", "H_mm", "theta_deg", "view_factor", "simulated_power_W"} {
		assert.Contains(t, first, key)
	}
}
