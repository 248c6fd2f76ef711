package viewfactor

import (
	"context"
	"math"

	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/quadrature"
)

// Parallel treats the receiver as parallel to the light disk, ignoring its
// normal.
type Parallel struct{}

func (Parallel) Kind() Kind { return KindParallel }

func (Parallel) Evaluate(ctx context.Context, rx geometry.Receiver, light geometry.LightSource, res quadrature.Resolution) (Result, error) {
	off := geometry.Resolve(rx.Position, light.Center)
	f, err := parallelDisk(ctx, off.A, off.H, light.Radius(), resolutionOr(res, KindParallel))
	if err != nil {
		return Result{}, err
	}
	return Result{A: off.A, H: off.H, ViewFactor: f}, nil
}

// ParallelDisk returns the view factor from a differential element to a
// parallel coaxial-plane disk of diameter d, offset laterally by a at height h.
func ParallelDisk(a, h, d float64, res quadrature.Resolution) float64 {
	f, _ := parallelDisk(context.Background(), a, h, d/2, resolutionOr(res, KindParallel))
	return f
}

// parallelDisk integrates (H²/π) r / (r² − 2ar·cos φ + a² + H²)² over the
// disk of the given radius. A receiver at or above the disk plane sees nothing.
func parallelDisk(ctx context.Context, a, h, radius float64, res quadrature.Resolution) (float64, error) {
	if h <= 0 || radius <= 0 {
		return 0, nil
	}
	h2 := h * h
	c := a*a + h2
	integrand := func(r, phi float64) float64 {
		den := r*r - 2*a*r*math.Cos(phi) + c
		if den == 0 {
			return 0
		}
		return r / (den * den)
	}
	sum, err := quadrature.Integrate2DContext(ctx, integrand, radius, res.NR, res.NPhi)
	if err != nil {
		return 0, err
	}
	return clamp01(h2 / math.Pi * sum), nil
}
