package simulator

import (
	"fmt"

	"github.com/banshee-data/viewfactor/internal/calibration"
	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/quadrature"
	"github.com/banshee-data/viewfactor/internal/viewfactor"
)

// Config is the complete, explicit input of one simulation besides the
// trajectory itself. Nothing is read from package state.
type Config struct {
	Model       viewfactor.Kind           `json:"model"`
	Light       geometry.LightSource      `json:"light"`
	Resolution  quadrature.Resolution     `json:"resolution"`
	Policy      calibration.Policy        `json:"calibration_policy"`
	Physics     calibration.PhysicsParams `json:"physics"`
	TargetRange *calibration.Range        `json:"target_range,omitempty"`

	// Workers bounds the goroutines used by the map phase. Values <= 1 run
	// the samples sequentially.
	Workers int `json:"workers,omitempty"`
}

// DefaultConfig returns least-squares calibration of the parallel model
// against the default rig.
func DefaultConfig() Config {
	return Config{
		Model:  viewfactor.KindParallel,
		Light:  geometry.DefaultLightSource(),
		Policy: calibration.PolicyLeastSquares,
	}
}

// EffectiveResolution returns the configured resolution, or the model's
// default when unset.
func (c Config) EffectiveResolution() quadrature.Resolution {
	if c.Resolution.IsZero() {
		return viewfactor.DefaultResolution(c.Model)
	}
	return c.Resolution
}

// Validate checks every field that Simulate depends on.
func (c Config) Validate() error {
	if _, err := viewfactor.New(c.Model); err != nil {
		return err
	}
	if err := c.Light.Validate(); err != nil {
		return err
	}
	if !c.Resolution.IsZero() {
		if err := c.Resolution.Validate(); err != nil {
			return err
		}
	}
	if _, err := calibration.ParsePolicy(string(c.Policy)); err != nil {
		return err
	}
	if c.TargetRange != nil && c.TargetRange.Max < c.TargetRange.Min {
		return fmt.Errorf("target range max %g is below min %g", c.TargetRange.Max, c.TargetRange.Min)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return nil
}
