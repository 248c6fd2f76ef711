// Package config loads the JSON simulation settings shared by the CLIs and
// the HTTP server.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/fsutil"
	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/quadrature"
	"github.com/banshee-data/viewfactor/internal/simulator"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
const DefaultConfigPath = "config/simulation.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// SimulationConfig is the on-disk form of a simulation configuration. Every
// field is optional; the Get* methods supply defaults for omitted fields, so
// partial configs are safe.
type SimulationConfig struct {
	Model *string `json:"model,omitempty"`

	// Light source
	LightCenter     *[3]float64 `json:"light_center,omitempty"`
	LightDiameterMM *float64    `json:"light_diameter_mm,omitempty"`

	// Quadrature resolution; applies to every model
	NR   *int `json:"n_r,omitempty"`
	NPhi *int `json:"n_phi,omitempty"`

	// Calibration
	CalibrationPolicy *string  `json:"calibration_policy,omitempty"`
	Efficiency        *float64 `json:"efficiency,omitempty"`
	CellAreaMM2       *float64 `json:"cell_area_mm2,omitempty"`
	LightPowerW       *float64 `json:"light_power_w,omitempty"`
	ScaleConstant     *float64 `json:"scale_constant,omitempty"`
	TargetMinW        *float64 `json:"target_min_w,omitempty"`
	TargetMaxW        *float64 `json:"target_max_w,omitempty"`

	Workers *int `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// EmptySimulationConfig returns a SimulationConfig with all fields nil.
func EmptySimulationConfig() *SimulationConfig {
	return &SimulationConfig{}
}

// LoadSimulationConfig loads a SimulationConfig from a JSON file on the OS
// filesystem.
func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	return LoadSimulationConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadSimulationConfigFS loads a SimulationConfig through fsys. The file must
// have a .json extension and be under 1MB.
func LoadSimulationConfigFS(fsys fsutil.FileSystem, path string) (*SimulationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := fsutil.ReadLimited(fsys, cleanPath, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimulationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for tests and tooling.
func MustLoadDefaultConfig() *SimulationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/*/
	}
	for _, path := range candidates {
		if cfg, err := LoadSimulationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks the fields that are set.
func (c *SimulationConfig) Validate() error {
	if c.Model != nil {
		if _, err := viewfactor.ParseKind(*c.Model); err != nil {
			return err
		}
	}
	if c.CalibrationPolicy != nil {
		if _, err := calibration.ParsePolicy(*c.CalibrationPolicy); err != nil {
			return err
		}
	}
	if c.LightDiameterMM != nil && *c.LightDiameterMM <= 0 {
		return fmt.Errorf("light_diameter_mm must be positive, got %g", *c.LightDiameterMM)
	}
	if c.NR != nil && *c.NR < quadrature.MinIntervals {
		return fmt.Errorf("n_r must be >= %d, got %d", quadrature.MinIntervals, *c.NR)
	}
	if c.NPhi != nil && *c.NPhi < quadrature.MinIntervals {
		return fmt.Errorf("n_phi must be >= %d, got %d", quadrature.MinIntervals, *c.NPhi)
	}
	if (c.TargetMinW == nil) != (c.TargetMaxW == nil) {
		return fmt.Errorf("target_min_w and target_max_w must be set together")
	}
	if c.TargetMinW != nil && *c.TargetMaxW < *c.TargetMinW {
		return fmt.Errorf("target_max_w %g is below target_min_w %g", *c.TargetMaxW, *c.TargetMinW)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	return nil
}

// GetModel returns the model kind or the default (oriented_approx).
func (c *SimulationConfig) GetModel() viewfactor.Kind {
	if c.Model == nil {
		return viewfactor.KindOrientedApprox
	}
	k, err := viewfactor.ParseKind(*c.Model)
	if err != nil {
		return viewfactor.KindOrientedApprox
	}
	return k
}

// GetLightSource returns the light pose, defaulting each part to the rig.
func (c *SimulationConfig) GetLightSource() geometry.LightSource {
	light := geometry.DefaultLightSource()
	if c.LightCenter != nil {
		light.Center = geometry.FromArray(*c.LightCenter)
	}
	if c.LightDiameterMM != nil {
		light.Diameter = *c.LightDiameterMM
	}
	return light
}

// GetResolution returns the configured resolution. When neither axis is set
// it returns the zero Resolution so each model applies its own default.
func (c *SimulationConfig) GetResolution() quadrature.Resolution {
	if c.NR == nil && c.NPhi == nil {
		return quadrature.Resolution{}
	}
	def := viewfactor.DefaultResolution(c.GetModel())
	res := def
	if c.NR != nil {
		res.NR = *c.NR
	}
	if c.NPhi != nil {
		res.NPhi = *c.NPhi
	}
	return res
}

// GetCalibrationPolicy returns the policy or the default (least_squares).
func (c *SimulationConfig) GetCalibrationPolicy() calibration.Policy {
	if c.CalibrationPolicy == nil {
		return calibration.PolicyLeastSquares
	}
	p, err := calibration.ParsePolicy(*c.CalibrationPolicy)
	if err != nil {
		return calibration.PolicyLeastSquares
	}
	return p
}

// GetPhysics returns the physics-derived calibration parameters.
func (c *SimulationConfig) GetPhysics() calibration.PhysicsParams {
	return calibration.PhysicsParams{
		Efficiency:    valueOr(c.Efficiency, 0.18),
		CellAreaMM2:   valueOr(c.CellAreaMM2, 2500),
		LightPowerW:   valueOr(c.LightPowerW, 10),
		ScaleConstant: valueOr(c.ScaleConstant, 1e-6),
	}
}

// GetTargetRange returns the range-matching band, or nil when unset.
func (c *SimulationConfig) GetTargetRange() *calibration.Range {
	if c.TargetMinW == nil || c.TargetMaxW == nil {
		return nil
	}
	return &calibration.Range{Min: *c.TargetMinW, Max: *c.TargetMaxW}
}

// GetWorkers returns the map-phase worker count (default 1, sequential).
func (c *SimulationConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// ToSimulatorConfig resolves every field into a simulator.Config.
func (c *SimulationConfig) ToSimulatorConfig() simulator.Config {
	return simulator.Config{
		Model:       c.GetModel(),
		Light:       c.GetLightSource(),
		Resolution:  c.GetResolution(),
		Policy:      c.GetCalibrationPolicy(),
		Physics:     c.GetPhysics(),
		TargetRange: c.GetTargetRange(),
		Workers:     c.GetWorkers(),
	}
}

// Merge returns a copy of c with every field set in override replacing the
// corresponding field of c.
func (c *SimulationConfig) Merge(override *SimulationConfig) *SimulationConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.Model != nil {
		out.Model = override.Model
	}
	if override.LightCenter != nil {
		out.LightCenter = override.LightCenter
	}
	if override.LightDiameterMM != nil {
		out.LightDiameterMM = override.LightDiameterMM
	}
	if override.NR != nil {
		out.NR = override.NR
	}
	if override.NPhi != nil {
		out.NPhi = override.NPhi
	}
	if override.CalibrationPolicy != nil {
		out.CalibrationPolicy = override.CalibrationPolicy
	}
	if override.Efficiency != nil {
		out.Efficiency = override.Efficiency
	}
	if override.CellAreaMM2 != nil {
		out.CellAreaMM2 = override.CellAreaMM2
	}
	if override.LightPowerW != nil {
		out.LightPowerW = override.LightPowerW
	}
	if override.ScaleConstant != nil {
		out.ScaleConstant = override.ScaleConstant
	}
	if override.TargetMinW != nil {
		out.TargetMinW = override.TargetMinW
	}
	if override.TargetMaxW != nil {
		out.TargetMaxW = override.TargetMaxW
	}
	if override.Workers != nil {
		out.Workers = override.Workers
	}
	return &out
}

// WithModel returns a copy of c using model.
func (c *SimulationConfig) WithModel(model viewfactor.Kind) *SimulationConfig {
	return c.Merge(&SimulationConfig{Model: ptrString(model.String())})
}

// WithPolicy returns a copy of c using policy.
func (c *SimulationConfig) WithPolicy(policy calibration.Policy) *SimulationConfig {
	return c.Merge(&SimulationConfig{CalibrationPolicy: ptrString(string(policy))})
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// WithLightSource returns a copy of c using light.
func (c *SimulationConfig) WithLightSource(light geometry.LightSource) *SimulationConfig {
	center := geometry.ToArray(light.Center)
	return c.Merge(&SimulationConfig{LightCenter: &center, LightDiameterMM: ptrFloat64(light.Diameter)})
}
