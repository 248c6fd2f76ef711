// Package fixtures stores simulation results as regression fixtures in
// sqlite and compares fresh runs against them.
package fixtures

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/simulator"
	"github.com/banshee-data/viewfactor/internal/timeutil"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when no fixture exists for a key.
var ErrNotFound = errors.New("fixture not found")

// Run is the trajectory-level record of one stored fixture.
type Run struct {
	RunID          string           `json:"run_id"`
	Trajectory     string           `json:"trajectory"`
	Configuration  string           `json:"configuration"`
	SampleCount    int              `json:"sample_count"`
	Kappa          *float64         `json:"kappa"`
	RMSEMicroWatts *float64         `json:"rmse_uW"`
	R2             *float64         `json:"r2"`
	Pearson        *float64         `json:"pearson"`
	Config         simulator.Config `json:"config"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Fixture is a run together with its per-sample series.
type Fixture struct {
	Run     Run
	Samples []simulator.SampleResult
}

// NewFixture builds an unsaved fixture from a simulation result.
func NewFixture(trajectory string, cfg simulator.Config, res *simulator.Result) *Fixture {
	sum := res.Summary()
	return &Fixture{
		Run: Run{
			Trajectory:     trajectory,
			Configuration:  ConfigurationName(cfg),
			SampleCount:    len(res.Samples),
			Kappa:          sum.Kappa,
			RMSEMicroWatts: sum.RMSEMicroWatts,
			R2:             sum.R2,
			Pearson:        sum.Pearson,
			Config:         cfg,
		},
		Samples: res.Samples,
	}
}

// ConfigurationName is the fixture key for a simulation config: the model
// and calibration policy, e.g. "oriented_approx+least_squares".
func ConfigurationName(cfg simulator.Config) string {
	return fmt.Sprintf("%s+%s", cfg.Model, cfg.Policy)
}

// Store is a sqlite-backed fixture database.
type Store struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// Open opens (creating if needed) the fixture database at path and applies
// any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db, path: path, clock: timeutil.RealClock{}}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// SetClock replaces the clock used for created_at.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// MigrateUp runs all pending migrations. It is a no-op on an up-to-date
// database.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version, or 0 when none is.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Put stores f, replacing any fixture with the same trajectory and
// configuration. It assigns f.Run.RunID and f.Run.CreatedAt.
func (s *Store) Put(ctx context.Context, f *Fixture) error {
	if f.Run.Trajectory == "" || f.Run.Configuration == "" {
		return errors.New("fixture needs a trajectory and a configuration")
	}
	cfgJSON, err := json.Marshal(f.Run.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fixture_runs WHERE trajectory = ? AND configuration = ?`,
		f.Run.Trajectory, f.Run.Configuration); err != nil {
		return fmt.Errorf("replace fixture: %w", err)
	}

	runID := uuid.NewString()
	created := s.clock.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fixture_runs (
			run_id, trajectory, configuration, sample_count,
			kappa, rmse_uw, r2, pearson, config_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, f.Run.Trajectory, f.Run.Configuration, len(f.Samples),
		nullFloat(f.Run.Kappa), nullFloat(f.Run.RMSEMicroWatts), nullFloat(f.Run.R2), nullFloat(f.Run.Pearson),
		string(cfgJSON), created.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert fixture run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fixture_samples (
			run_id, idx, time, a_mm, h_mm, theta_deg, view_factor, simulated_power_w
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, smp := range f.Samples {
		if _, err := stmt.ExecContext(ctx, runID, i, smp.Time, smp.A, smp.H,
			nullFloat(smp.ThetaDeg), smp.ViewFactor, smp.SimulatedPower); err != nil {
			return fmt.Errorf("insert fixture sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	f.Run.RunID = runID
	f.Run.SampleCount = len(f.Samples)
	f.Run.CreatedAt = created
	return nil
}

const runColumns = `run_id, trajectory, configuration, sample_count,
	kappa, rmse_uw, r2, pearson, config_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                      Run
		kappa, rmse, r2, pears sql.NullFloat64
		cfgJSON, created       string
	)
	if err := row.Scan(&r.RunID, &r.Trajectory, &r.Configuration, &r.SampleCount,
		&kappa, &rmse, &r2, &pears, &cfgJSON, &created); err != nil {
		return Run{}, err
	}
	r.Kappa, r.RMSEMicroWatts, r.R2, r.Pearson = floatPtr(kappa), floatPtr(rmse), floatPtr(r2), floatPtr(pears)
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return Run{}, fmt.Errorf("decode config of run %s: %w", r.RunID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("decode created_at of run %s: %w", r.RunID, err)
	}
	r.CreatedAt = t
	return r, nil
}

// Get returns the run stored for trajectory and configuration.
func (s *Store) Get(ctx context.Context, trajectory, configuration string) (*Run, error) {
	row := s.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM fixture_runs WHERE trajectory = ? AND configuration = ?`,
		trajectory, configuration)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", trajectory, configuration, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Load returns the run and samples stored for trajectory and configuration.
func (s *Store) Load(ctx context.Context, trajectory, configuration string) (*Fixture, error) {
	run, err := s.Get(ctx, trajectory, configuration)
	if err != nil {
		return nil, err
	}
	samples, err := s.Samples(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	return &Fixture{Run: *run, Samples: samples}, nil
}

// List returns every stored run ordered by trajectory then configuration.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT `+runColumns+` FROM fixture_runs ORDER BY trajectory, configuration`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Samples returns the per-sample series of a run in sample order.
func (s *Store) Samples(ctx context.Context, runID string) ([]simulator.SampleResult, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT time, a_mm, h_mm, theta_deg, view_factor, simulated_power_w
		FROM fixture_samples WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []simulator.SampleResult{}
	for rows.Next() {
		var (
			smp   simulator.SampleResult
			theta sql.NullFloat64
		)
		if err := rows.Scan(&smp.Time, &smp.A, &smp.H, &theta, &smp.ViewFactor, &smp.SimulatedPower); err != nil {
			return nil, err
		}
		smp.ThetaDeg = floatPtr(theta)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// Delete removes the fixture for trajectory and configuration.
func (s *Store) Delete(ctx context.Context, trajectory, configuration string) error {
	res, err := s.ExecContext(ctx,
		`DELETE FROM fixture_runs WHERE trajectory = ? AND configuration = ?`,
		trajectory, configuration)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", trajectory, configuration, ErrNotFound)
	}
	return nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
