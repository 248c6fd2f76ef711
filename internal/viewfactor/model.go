// Package viewfactor computes the geometric view factor from a flat circular
// light source to a small receiver cell. Three models are provided; they share
// the quadrature in package quadrature and differ only in how they treat the
// orientation of the receiver.
package viewfactor

import (
	"context"
	"fmt"

	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/quadrature"
)

// Result is the output of a single model evaluation.
type Result struct {
	A          float64 // lateral offset, mm
	H          float64 // height of the light above the receiver, mm
	ThetaDeg   float64 // incidence angle; valid only when HasTheta
	HasTheta   bool
	ViewFactor float64 // in [0, 1]

	// Degenerate is set when the receiver normal or the direction to the
	// light was too short to define, which forces ViewFactor to 0.
	Degenerate bool
}

// Model evaluates the view factor for one receiver pose.
//
// Physical degeneracies (receiver at or above the light plane, zero-length
// normals) produce a zero view factor rather than an error. The only error a
// Model returns is ctx.Err() when the evaluation is cancelled.
type Model interface {
	Kind() Kind
	Evaluate(ctx context.Context, rx geometry.Receiver, light geometry.LightSource, res quadrature.Resolution) (Result, error)
}

// New returns the model for kind.
func New(kind Kind) (Model, error) {
	switch kind {
	case KindParallel:
		return Parallel{}, nil
	case KindOrientedApprox:
		return OrientedApprox{}, nil
	case KindOrientedExact:
		return OrientedExact{}, nil
	default:
		return nil, fmt.Errorf("unknown view factor model %d", int(kind))
	}
}

// DefaultResolution returns the resolution a model of kind uses when the
// caller leaves it unset.
func DefaultResolution(kind Kind) quadrature.Resolution {
	if kind == KindOrientedExact {
		return quadrature.ExactResolution
	}
	return quadrature.DefaultResolution
}

func resolutionOr(res quadrature.Resolution, kind Kind) quadrature.Resolution {
	if res.IsZero() {
		return DefaultResolution(kind)
	}
	return res
}

// clamp01 bounds quadrature round-off to the physical range.
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
