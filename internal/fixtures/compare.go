package fixtures

import (
	"fmt"
	"math"
)

// Tolerances bound the accepted drift between a stored fixture and a fresh
// run.
type Tolerances struct {
	RMSEMicroWatts float64 `json:"rmse_uW"`
	R2             float64 `json:"r2"`
	Pearson        float64 `json:"pearson"`
	// PowerRelative is the per-sample relative tolerance on simulated power.
	// It also applies to kappa.
	PowerRelative float64 `json:"power_relative"`
}

// DefaultTolerances are 1 µW RMSE, 0.001 on R² and Pearson, and 1% per sample.
var DefaultTolerances = Tolerances{
	RMSEMicroWatts: 1.0,
	R2:             0.001,
	Pearson:        0.001,
	PowerRelative:  0.01,
}

// absFloor keeps the relative check meaningful when the expected value is 0.
const absFloor = 1e-12

// Mismatch is one value that drifted past its tolerance. Index is the sample
// index, or -1 for trajectory-level fields.
type Mismatch struct {
	Field    string  `json:"field"`
	Index    int     `json:"index"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Message  string  `json:"message,omitempty"`
}

func (m Mismatch) String() string {
	if m.Message != "" {
		return fmt.Sprintf("%s: %s", m.Field, m.Message)
	}
	if m.Index >= 0 {
		return fmt.Sprintf("%s[%d]: expected %g, got %g", m.Field, m.Index, m.Expected, m.Actual)
	}
	return fmt.Sprintf("%s: expected %g, got %g", m.Field, m.Expected, m.Actual)
}

// Compare checks actual against expected and returns every mismatch. An
// empty result means the run reproduces the fixture.
func Compare(expected, actual *Fixture, tol Tolerances) []Mismatch {
	var out []Mismatch

	if len(expected.Samples) != len(actual.Samples) {
		return append(out, Mismatch{
			Field:    "sample_count",
			Index:    -1,
			Expected: float64(len(expected.Samples)),
			Actual:   float64(len(actual.Samples)),
			Message:  fmt.Sprintf("expected %d samples, got %d", len(expected.Samples), len(actual.Samples)),
		})
	}

	e, a := expected.Run, actual.Run
	out = appendOptional(out, "kappa", e.Kappa, a.Kappa, func(x, y float64) bool {
		return withinRelative(x, y, tol.PowerRelative)
	})
	out = appendOptional(out, "rmse_uW", e.RMSEMicroWatts, a.RMSEMicroWatts, func(x, y float64) bool {
		return math.Abs(x-y) <= tol.RMSEMicroWatts
	})
	out = appendOptional(out, "r2", e.R2, a.R2, func(x, y float64) bool {
		return math.Abs(x-y) <= tol.R2
	})
	out = appendOptional(out, "pearson", e.Pearson, a.Pearson, func(x, y float64) bool {
		return math.Abs(x-y) <= tol.Pearson
	})

	for i := range expected.Samples {
		ep, ap := expected.Samples[i].SimulatedPower, actual.Samples[i].SimulatedPower
		if !withinRelative(ep, ap, tol.PowerRelative) {
			out = append(out, Mismatch{Field: "simulated_power_W", Index: i, Expected: ep, Actual: ap})
		}
	}
	return out
}

func appendOptional(out []Mismatch, field string, e, a *float64, ok func(x, y float64) bool) []Mismatch {
	switch {
	case e == nil && a == nil:
		return out
	case e == nil:
		return append(out, Mismatch{Field: field, Index: -1, Actual: *a, Message: fmt.Sprintf("expected null, got %g", *a)})
	case a == nil:
		return append(out, Mismatch{Field: field, Index: -1, Expected: *e, Message: fmt.Sprintf("expected %g, got null", *e)})
	case !ok(*e, *a):
		return append(out, Mismatch{Field: field, Index: -1, Expected: *e, Actual: *a})
	}
	return out
}

func withinRelative(expected, actual, rel float64) bool {
	limit := math.Max(rel*math.Abs(expected), absFloor)
	return math.Abs(actual-expected) <= limit
}
