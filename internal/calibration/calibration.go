// Package calibration maps dimensionless view factors to power in watts.
//
// Three policies are available and the caller always picks one explicitly:
// a least-squares fit against measured power, a constant derived from the
// physical parameters of the rig, or an affine range match that discards
// absolute scale.
package calibration

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/viewfactor/internal/monitoring"
	"gonum.org/v1/gonum/floats"
)

// Policy names a calibration strategy.
type Policy string

const (
	PolicyLeastSquares   Policy = "least_squares"
	PolicyPhysicsDerived Policy = "physics_derived"
	PolicyRangeMatched   Policy = "range_matched"
	PolicyNone           Policy = "none"
)

// Policies lists every policy in a stable order.
func Policies() []Policy {
	return []Policy{PolicyLeastSquares, PolicyPhysicsDerived, PolicyRangeMatched, PolicyNone}
}

// ParsePolicy accepts a policy name case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Policies() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown calibration policy %q", s)
}

// PhysicsParams describes the rig for the physics-derived policy.
type PhysicsParams struct {
	Efficiency    float64 `json:"efficiency"`     // cell conversion efficiency, 0..1
	CellAreaMM2   float64 `json:"cell_area_mm2"`  // active cell area
	LightPowerW   float64 `json:"light_power_w"`  // radiant power of the source
	ScaleConstant float64 `json:"scale_constant"` // empirical correction
}

// Range is a closed interval of power values in watts.
type Range struct {
	Min float64 `json:"min_w"`
	Max float64 `json:"max_w"`
}

// Options carries the inputs that only some policies need.
type Options struct {
	Physics PhysicsParams
	// TargetRange is the band used by PolicyRangeMatched when no measured
	// power is supplied.
	TargetRange *Range
}

// Result records how a series was calibrated. Kappa is set for the
// proportional policies; Range for PolicyRangeMatched.
type Result struct {
	Source Policy   `json:"source"`
	Kappa  *float64 `json:"kappa"`
	Range  *Range   `json:"range,omitempty"`
}

// FitLeastSquares returns κ minimising Σ(pᵢ − κ·fᵢ)², i.e. (f·p)/(f·f).
func FitLeastSquares(f, p []float64) (float64, error) {
	if len(f) != len(p) {
		return 0, &InputError{Op: "FitLeastSquares", Msg: fmt.Sprintf("length mismatch: %d view factors, %d measurements", len(f), len(p))}
	}
	den := floats.Dot(f, f)
	if den == 0 {
		return 0, &CalibrationError{Policy: PolicyLeastSquares, Reason: "all view factors are zero"}
	}
	kappa := floats.Dot(f, p) / den
	if kappa <= 0 {
		monitoring.Logf("calibration: least-squares kappa %.6g is not positive", kappa)
	}
	return kappa, nil
}

// ApplyScaling returns f scaled by kappa. f is not modified.
func ApplyScaling(f []float64, kappa float64) []float64 {
	out := make([]float64, len(f))
	floats.ScaleTo(out, kappa, f)
	return out
}

// PhysicsDerived returns κ = efficiency × area × power × scale.
func PhysicsDerived(p PhysicsParams) (float64, error) {
	kappa := p.Efficiency * p.CellAreaMM2 * p.LightPowerW * p.ScaleConstant
	if math.IsNaN(kappa) || math.IsInf(kappa, 0) || kappa <= 0 {
		return 0, &CalibrationError{
			Policy: PolicyPhysicsDerived,
			Reason: fmt.Sprintf("kappa must be positive, got %g (efficiency=%g area=%g power=%g scale=%g)",
				kappa, p.Efficiency, p.CellAreaMM2, p.LightPowerW, p.ScaleConstant),
		}
	}
	return kappa, nil
}

// RangeMatch normalises sim to [0, 1] by its own extremes and maps the result
// onto [lo, hi]. A constant series maps entirely to lo.
func RangeMatch(sim []float64, lo, hi float64) []float64 {
	out := make([]float64, len(sim))
	if len(sim) == 0 {
		return out
	}
	smin, smax := floats.Min(sim), floats.Max(sim)
	span := smax - smin
	for i, v := range sim {
		if span == 0 {
			out[i] = lo
			continue
		}
		out[i] = lo + (v-smin)/span*(hi-lo)
	}
	return out
}

// Calibrate applies policy to the view factors f. p is the measured power
// aligned with f, or nil when none was recorded. The scaled series is
// returned alongside the calibration record.
func Calibrate(policy Policy, f, p []float64, opts Options) (Result, []float64, error) {
	switch policy {
	case PolicyLeastSquares:
		if p == nil {
			return Result{}, nil, &InputError{Op: "Calibrate", Msg: "least_squares requires measured power"}
		}
		kappa, err := FitLeastSquares(f, p)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Source: policy, Kappa: &kappa}, ApplyScaling(f, kappa), nil

	case PolicyPhysicsDerived:
		kappa, err := PhysicsDerived(opts.Physics)
		if err != nil {
			return Result{}, nil, err
		}
		return Result{Source: policy, Kappa: &kappa}, ApplyScaling(f, kappa), nil

	case PolicyRangeMatched:
		var target Range
		switch {
		case len(p) > 0:
			if len(p) != len(f) {
				return Result{}, nil, &InputError{Op: "Calibrate", Msg: fmt.Sprintf("length mismatch: %d view factors, %d measurements", len(f), len(p))}
			}
			target = Range{Min: floats.Min(p), Max: floats.Max(p)}
		case opts.TargetRange != nil:
			target = *opts.TargetRange
		default:
			return Result{}, nil, &CalibrationError{Policy: policy, Reason: "no measured power and no target range"}
		}
		return Result{Source: policy, Range: &target}, RangeMatch(f, target.Min, target.Max), nil

	case PolicyNone:
		out := make([]float64, len(f))
		copy(out, f)
		return Result{Source: policy}, out, nil

	default:
		return Result{}, nil, &InputError{Op: "Calibrate", Msg: fmt.Sprintf("unknown policy %q", policy)}
	}
}
