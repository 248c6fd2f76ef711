// Package metrics scores a simulated power series against measurements.
package metrics

import (
	"fmt"
	"math"

	"github.com/banshee-data/viewfactor/internal/units"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// InputError reports series that cannot be compared. It is scoped to the
// single call that returned it.
type InputError struct {
	Op  string
	Msg string
}

func (e *InputError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }

func checkPair(op string, a, b []float64) error {
	if len(a) != len(b) {
		return &InputError{Op: op, Msg: fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))}
	}
	if len(a) == 0 {
		return &InputError{Op: op, Msg: "empty series"}
	}
	return nil
}

// RMSE returns sqrt(mean((aᵢ − bᵢ)²)).
func RMSE(a, b []float64) (float64, error) {
	if err := checkPair("RMSE", a, b); err != nil {
		return 0, err
	}
	return floats.Distance(a, b, 2) / math.Sqrt(float64(len(a))), nil
}

// R2 returns the coefficient of determination 1 − SS_res/SS_tot. When actual
// is constant SS_tot is zero and R2 returns 0.
func R2(actual, predicted []float64) (float64, error) {
	if err := checkPair("R2", actual, predicted); err != nil {
		return 0, err
	}
	if len(actual) < 2 || stat.Variance(actual, nil) == 0 {
		return 0, nil
	}
	return stat.RSquaredFrom(predicted, actual, nil), nil
}

// Pearson returns the correlation coefficient of a and b, or 0 when either
// series has zero variance.
func Pearson(a, b []float64) (float64, error) {
	if err := checkPair("Pearson", a, b); err != nil {
		return 0, err
	}
	if len(a) < 2 || stat.Variance(a, nil) == 0 || stat.Variance(b, nil) == 0 {
		return 0, nil
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0, nil
	}
	return math.Max(-1, math.Min(1, r)), nil
}

// Metrics bundles the agreement scores for one trajectory. RMSE is in the
// units of the inputs (watts).
type Metrics struct {
	RMSE    float64 `json:"rmse"`
	R2      float64 `json:"r2"`
	Pearson float64 `json:"pearson"`
}

// RMSEMicroWatts returns RMSE in µW.
func (m Metrics) RMSEMicroWatts() float64 { return units.ConvertPower(m.RMSE, units.UW) }

// Evaluate computes all three metrics of predicted against actual.
func Evaluate(actual, predicted []float64) (Metrics, error) {
	rmse, err := RMSE(actual, predicted)
	if err != nil {
		return Metrics{}, err
	}
	r2, err := R2(actual, predicted)
	if err != nil {
		return Metrics{}, err
	}
	r, err := Pearson(actual, predicted)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{RMSE: rmse, R2: r2, Pearson: r}, nil
}
