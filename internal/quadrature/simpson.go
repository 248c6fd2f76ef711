// Package quadrature provides the composite Simpson integration used by the
// view-factor models. It integrates a function of polar coordinates (r, phi)
// over a disk of radius rMax.
package quadrature

import (
	"context"
	"fmt"
	"math"
)

// Resolution is the number of Simpson intervals along each polar axis.
type Resolution struct {
	NR   int `json:"n_r"`
	NPhi int `json:"n_phi"`
}

// MinIntervals is the smallest interval count accepted along either axis.
const MinIntervals = 4

var (
	// DefaultResolution is used by the cheap closed-kernel models.
	DefaultResolution = Resolution{NR: 50, NPhi: 50}
	// ExactResolution is the default for the direct disk-surface integral,
	// which costs a vector evaluation and two visibility tests per node.
	ExactResolution = Resolution{NR: 20, NPhi: 20}
)

// Validate checks that both axes meet MinIntervals.
func (r Resolution) Validate() error {
	if r.NR < MinIntervals {
		return fmt.Errorf("n_r must be >= %d, got %d", MinIntervals, r.NR)
	}
	if r.NPhi < MinIntervals {
		return fmt.Errorf("n_phi must be >= %d, got %d", MinIntervals, r.NPhi)
	}
	return nil
}

// IsZero reports whether r is unset.
func (r Resolution) IsZero() bool { return r.NR == 0 && r.NPhi == 0 }

// Nodes returns the number of integrand evaluations Integrate2D performs.
func (r Resolution) Nodes() int {
	return (EvenIntervals(r.NR) + 1) * (EvenIntervals(r.NPhi) + 1)
}

// EvenIntervals rounds n up to the next even count. Simpson's rule pairs
// intervals, so an odd count cannot be integrated.
func EvenIntervals(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

// Weights returns the composite Simpson weights 1,4,2,4,...,4,1 for n
// intervals (n+1 nodes). n is coerced to even first.
func Weights(n int) []float64 {
	n = EvenIntervals(n)
	w := make([]float64, n+1)
	for i := range w {
		switch {
		case i == 0 || i == n:
			w[i] = 1
		case i%2 == 1:
			w[i] = 4
		default:
			w[i] = 2
		}
	}
	return w
}

// Integrate2D integrates f(r, phi) over r in [0, rMax] and phi in [0, 2π]
// using composite Simpson's rule in each dimension. The integrand is
// responsible for its own singularities and should return 0 there.
func Integrate2D(f func(r, phi float64) float64, rMax float64, nR, nPhi int) float64 {
	// Background is never cancelled, so the error is always nil.
	v, _ := Integrate2DContext(context.Background(), f, rMax, nR, nPhi)
	return v
}

// Integrate2DContext is Integrate2D with cancellation. ctx is polled once per
// radial row; on cancellation the partial sum is discarded and ctx.Err() is
// returned.
func Integrate2DContext(ctx context.Context, f func(r, phi float64) float64, rMax float64, nR, nPhi int) (float64, error) {
	nR = EvenIntervals(nR)
	nPhi = EvenIntervals(nPhi)
	if nR <= 0 || nPhi <= 0 || rMax <= 0 {
		return 0, nil
	}

	hR := rMax / float64(nR)
	hPhi := 2 * math.Pi / float64(nPhi)
	wR := Weights(nR)
	wPhi := Weights(nPhi)

	// Precompute the angular nodes so every row sees identical phi values.
	phis := make([]float64, nPhi+1)
	for j := range phis {
		phis[j] = float64(j) * hPhi
	}

	var total float64
	for i := 0; i <= nR; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r := float64(i) * hR
		var row float64
		for j, phi := range phis {
			row += wPhi[j] * f(r, phi)
		}
		total += wR[i] * row
	}
	return total * (hR / 3) * (hPhi / 3), nil
}
