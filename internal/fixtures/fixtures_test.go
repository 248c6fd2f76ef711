package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/simulator"
	"github.com/banshee-data/viewfactor/internal/timeutil"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var epoch = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func quiet(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })
	monitoring.SetLogger(nil)
}

func openStore(t *testing.T) *Store {
	t.Helper()
	quiet(t)
	s, err := Open(filepath.Join(t.TempDir(), "fixtures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.SetClock(timeutil.NewMockClock(epoch))
	return s
}

// pass returns a trajectory under the default light whose measured power is
// exactly 3 W per unit view factor.
func pass(t *testing.T, n int) simulator.Trajectory {
	t.Helper()
	light := geometry.DefaultLightSource()
	traj := make(simulator.Trajectory, n)
	for i := range traj {
		u := float64(i)/float64(n-1) - 0.5
		traj[i] = simulator.Sample{
			Time:     float64(i) / 100,
			Position: r3.Vec{X: light.Center.X + 500*u, Y: 300, Z: light.Center.Z},
			Normal:   geometry.DefaultNormal,
		}
	}

	cfg := simulator.DefaultConfig()
	cfg.Policy = calibration.PolicyNone
	res, err := simulator.Simulate(context.Background(), cfg, traj)
	require.NoError(t, err)
	for i, vf := range res.ViewFactors() {
		traj[i].MeasuredPower = simulator.Float(3 * vf)
	}
	return traj
}

func configs() []simulator.Config {
	ls := simulator.DefaultConfig()
	approx := simulator.DefaultConfig()
	approx.Model = viewfactor.KindOrientedApprox
	approx.Policy = calibration.PolicyPhysicsDerived
	approx.Physics = calibration.PhysicsParams{Efficiency: 0.18, CellAreaMM2: 2500, LightPowerW: 10, ScaleConstant: 1e-6}
	return []simulator.Config{ls, approx}
}

func TestOpen_MigratesOnce(t *testing.T) {
	quiet(t)
	path := filepath.Join(t.TempDir(), "fixtures.db")

	s, err := Open(path)
	require.NoError(t, err)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	require.NoError(t, s.Close())

	// Reopening an up-to-date database is a no-op.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestConfigurationName(t *testing.T) {
	assert.Equal(t, "parallel+least_squares", ConfigurationName(simulator.DefaultConfig()))
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	traj := pass(t, 9)
	cfg := simulator.DefaultConfig()

	res, err := simulator.Simulate(ctx, cfg, traj)
	require.NoError(t, err)
	f := NewFixture("sweep", cfg, res)
	require.NoError(t, s.Put(ctx, f))
	assert.NotEmpty(t, f.Run.RunID)
	assert.Equal(t, 9, f.Run.SampleCount)

	got, err := s.Load(ctx, "sweep", "parallel+least_squares")
	require.NoError(t, err)
	assert.Equal(t, f.Run.RunID, got.Run.RunID)
	assert.True(t, got.Run.CreatedAt.Equal(epoch))
	assert.Equal(t, cfg, got.Run.Config)
	require.NotNil(t, got.Run.Kappa)
	assert.InEpsilon(t, 3, *got.Run.Kappa, 1e-9)
	require.NotNil(t, got.Run.R2)
	assert.InDelta(t, 1, *got.Run.R2, 1e-9)

	if diff := cmp.Diff(res.Samples, got.Samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_PutReplacesKey(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	cfg := simulator.DefaultConfig()

	res, err := simulator.Simulate(ctx, cfg, pass(t, 9))
	require.NoError(t, err)
	first := NewFixture("sweep", cfg, res)
	require.NoError(t, s.Put(ctx, first))

	res, err = simulator.Simulate(ctx, cfg, pass(t, 5))
	require.NoError(t, err)
	second := NewFixture("sweep", cfg, res)
	require.NoError(t, s.Put(ctx, second))
	assert.NotEqual(t, first.Run.RunID, second.Run.RunID)

	runs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].SampleCount)

	// The replaced run's samples are gone.
	old, err := s.Samples(ctx, first.Run.RunID)
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestStore_NotFound(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "nope", "parallel+none")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "nope", "parallel+none"), ErrNotFound)
}

func TestStore_PutRequiresKey(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Put(context.Background(), &Fixture{}))
}

func TestStore_Delete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	traj := pass(t, 5)

	_, err := Generate(ctx, s, "sweep", traj, configs())
	require.NoError(t, err)
	run, err := s.Get(ctx, "sweep", "parallel+least_squares")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "sweep", "parallel+least_squares"))
	_, err = s.Get(ctx, "sweep", "parallel+least_squares")
	assert.ErrorIs(t, err, ErrNotFound)
	samples, err := s.Samples(ctx, run.RunID)
	require.NoError(t, err)
	assert.Empty(t, samples)

	runs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGenerateAndVerify(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	traj := pass(t, 11)

	runs, err := Generate(ctx, s, "sweep", traj, configs())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "parallel+least_squares", runs[0].Configuration)
	assert.Equal(t, "oriented_approx+physics_derived", runs[1].Configuration)

	reports, err := Verify(ctx, s, "sweep", traj, configs(), DefaultTolerances)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.OK(), "%s: %v", r.Configuration, r.Mismatches)
	}
}

func TestVerify_MissingFixture(t *testing.T) {
	s := openStore(t)
	reports, err := Verify(context.Background(), s, "sweep", pass(t, 5), configs()[:1], DefaultTolerances)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Missing)
	assert.False(t, reports[0].OK())
}

func TestGenerate_SkipsLeastSquaresWithoutMeasuredPower(t *testing.T) {
	s := openStore(t)
	traj := pass(t, 5)
	for i := range traj {
		traj[i].MeasuredPower = nil
	}

	runs, err := Generate(context.Background(), s, "dry", traj, configs())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "oriented_approx+physics_derived", runs[0].Configuration)

	reports, err := Verify(context.Background(), s, "dry", traj, configs(), DefaultTolerances)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.True(t, reports[0].Skipped)
	assert.True(t, reports[0].OK())
	assert.True(t, reports[1].OK())
}

func TestSummary(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	traj := pass(t, 7)
	_, err := Generate(ctx, s, "sweep", traj, configs())
	require.NoError(t, err)

	sums, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Contains(t, sums, "sweep")
	require.Len(t, sums["sweep"], 2)

	ls := sums["sweep"]["parallel+least_squares"]
	assert.Equal(t, 7, ls.SampleCount)
	assert.Len(t, ls.SimulatedPower, 7)
	assert.Len(t, ls.ViewFactor, 7)
	require.NotNil(t, ls.Metrics.RMSEMicroWatts)
	assert.InDelta(t, 0, *ls.Metrics.RMSEMicroWatts, 1e-6)

	var buf bytes.Buffer
	require.NoError(t, sums.WriteJSON(&buf))
	var decoded map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	entry := decoded["sweep"]["oriented_approx+physics_derived"]
	for _, key := range []string{"sample_count", "kappa", "metrics", "config", "simulated_power_W"} {
		assert.Contains(t, entry, key)
	}
}

func TestCompare(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	base := func() *Fixture {
		return &Fixture{
			Run: Run{Kappa: f(3), RMSEMicroWatts: f(10), R2: f(0.95), Pearson: f(0.98)},
			Samples: []simulator.SampleResult{
				{SimulatedPower: 0.010},
				{SimulatedPower: 0.020},
				{SimulatedPower: 0},
			},
		}
	}

	t.Run("identical", func(t *testing.T) {
		assert.Empty(t, Compare(base(), base(), DefaultTolerances))
	})

	t.Run("within tolerance", func(t *testing.T) {
		a := base()
		a.Run.RMSEMicroWatts = f(10.9)
		a.Run.R2 = f(0.9505)
		a.Samples[1].SimulatedPower = 0.0201
		assert.Empty(t, Compare(base(), a, DefaultTolerances))
	})

	t.Run("drift", func(t *testing.T) {
		a := base()
		a.Run.RMSEMicroWatts = f(11.5)
		a.Run.Pearson = f(0.97)
		a.Samples[0].SimulatedPower = 0.0102
		a.Samples[2].SimulatedPower = 1e-6
		got := Compare(base(), a, DefaultTolerances)
		fields := make([]string, len(got))
		for i, m := range got {
			fields[i] = m.String()
		}
		assert.Equal(t, []string{
			"rmse_uW: expected 10, got 11.5",
			"pearson: expected 0.98, got 0.97",
			"simulated_power_W[0]: expected 0.01, got 0.0102",
			"simulated_power_W[2]: expected 0, got 1e-06",
		}, fields)
	})

	t.Run("nullability", func(t *testing.T) {
		a := base()
		a.Run.Kappa = nil
		got := Compare(base(), a, DefaultTolerances)
		require.Len(t, got, 1)
		assert.Equal(t, "kappa: expected 3, got null", got[0].String())
	})

	t.Run("sample count", func(t *testing.T) {
		a := base()
		a.Samples = a.Samples[:2]
		got := Compare(base(), a, DefaultTolerances)
		require.Len(t, got, 1)
		assert.Equal(t, "sample_count", got[0].Field)
	})
}
