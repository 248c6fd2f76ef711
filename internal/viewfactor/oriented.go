package viewfactor

import (
	"context"
	"math"

	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/quadrature"
	"gonum.org/v1/gonum/spatial/r3"
)

// OrientedApprox scales the parallel-disk value by the cosine of the angle
// between the cell's outward normal and the direction to the light centre.
// Surfaces facing away from the light receive nothing.
type OrientedApprox struct{}

func (OrientedApprox) Kind() Kind { return KindOrientedApprox }

func (OrientedApprox) Evaluate(ctx context.Context, rx geometry.Receiver, light geometry.LightSource, res quadrature.Resolution) (Result, error) {
	off := geometry.Resolve(rx.Position, light.Center)
	out := Result{A: off.A, H: off.H}

	cos, ok := geometry.CosIncidence(rx.Position, rx.Normal, light.Center)
	if !ok {
		out.Degenerate = true
		return out, nil
	}
	out.ThetaDeg = math.Acos(cos) * 180 / math.Pi
	out.HasTheta = true

	f, err := parallelDisk(ctx, off.A, off.H, light.Radius(), resolutionOr(res, KindOrientedApprox))
	if err != nil {
		return Result{}, err
	}
	out.ViewFactor = clamp01(f * math.Max(0, cos))
	return out, nil
}

// OrientedExact integrates the differential view factor directly over the
// disk surface, applying the emitter and receiver cosines per patch and
// culling patches that either surface cannot see.
//
//	F = (1/π) ∬ (R·n_emit)(−R·n_cell) / |R|⁴ · r dr dφ,  R = receiver − patch
type OrientedExact struct{}

func (OrientedExact) Kind() Kind { return KindOrientedExact }

func (OrientedExact) Evaluate(ctx context.Context, rx geometry.Receiver, light geometry.LightSource, res quadrature.Resolution) (Result, error) {
	off := geometry.Resolve(rx.Position, light.Center)
	out := Result{A: off.A, H: off.H}

	cos, ok := geometry.CosIncidence(rx.Position, rx.Normal, light.Center)
	if !ok {
		out.Degenerate = true
		return out, nil
	}
	out.ThetaDeg = math.Acos(cos) * 180 / math.Pi
	out.HasTheta = true

	if off.H <= 0 {
		return out, nil
	}
	nCell, _ := geometry.OutwardNormal(rx.Normal)
	f, err := orientedExact(ctx, rx.Position, nCell, light, resolutionOr(res, KindOrientedExact))
	if err != nil {
		return Result{}, err
	}
	out.ViewFactor = f
	return out, nil
}

func orientedExact(ctx context.Context, p, nCell r3.Vec, light geometry.LightSource, res quadrature.Resolution) (float64, error) {
	nEmit := geometry.EmissionNormal
	u, v := geometry.DiskBasis(nEmit)
	c := light.Center

	integrand := func(r, phi float64) float64 {
		if r == 0 {
			return 0
		}
		patch := r3.Add(c, r3.Add(r3.Scale(r*math.Cos(phi), u), r3.Scale(r*math.Sin(phi), v)))
		R := r3.Sub(p, patch)
		emit := r3.Dot(R, nEmit)
		recv := r3.Dot(R, nCell)
		if emit <= 0 || recv >= 0 {
			return 0
		}
		d2 := r3.Norm2(R)
		return emit * -recv / (d2 * d2) * r
	}
	sum, err := quadrature.Integrate2DContext(ctx, integrand, light.Radius(), res.NR, res.NPhi)
	if err != nil {
		return 0, err
	}
	return clamp01(sum / math.Pi), nil
}
