package viewfactor

import "math"

// ParallelDiskAnalytic is the closed-form view factor from a differential
// element to a parallel disk of diameter d whose centre is offset laterally by
// a and vertically by h:
//
//	F = ½ (1 − (h² + a² − R²) / √((h² + a² + R²)² − 4R²a²))
//
// On axis this reduces to R² / (R² + h²).
func ParallelDiskAnalytic(a, h, d float64) float64 {
	if h <= 0 || d <= 0 {
		return 0
	}
	r := d / 2
	h2, a2, r2 := h*h, a*a, r*r
	x := h2 + a2 + r2
	root := math.Sqrt(x*x - 4*r2*a2)
	if root == 0 {
		return 0
	}
	return clamp01(0.5 * (1 - (h2+a2-r2)/root))
}
