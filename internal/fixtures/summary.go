package fixtures

import (
	"context"
	"encoding/json"
	"io"

	"github.com/banshee-data/viewfactor/internal/simulator"
)

// SummaryMetrics is the agreement block of a fixture summary.
type SummaryMetrics struct {
	RMSEMicroWatts *float64 `json:"rmse_uW"`
	R2             *float64 `json:"r2"`
	Pearson        *float64 `json:"pearson"`
}

// Summary is the exported form of one fixture.
type Summary struct {
	SampleCount    int              `json:"sample_count"`
	Kappa          *float64         `json:"kappa"`
	Metrics        SummaryMetrics   `json:"metrics"`
	Config         simulator.Config `json:"config"`
	Time           []float64        `json:"time"`
	ViewFactor     []float64        `json:"view_factor"`
	SimulatedPower []float64        `json:"simulated_power_W"`
}

// Summaries is keyed by trajectory, then configuration.
type Summaries map[string]map[string]Summary

// Summary returns every stored fixture keyed by trajectory and configuration.
func (s *Store) Summary(ctx context.Context) (Summaries, error) {
	runs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := Summaries{}
	for _, r := range runs {
		samples, err := s.Samples(ctx, r.RunID)
		if err != nil {
			return nil, err
		}
		sum := Summary{
			SampleCount:    r.SampleCount,
			Kappa:          r.Kappa,
			Metrics:        SummaryMetrics{RMSEMicroWatts: r.RMSEMicroWatts, R2: r.R2, Pearson: r.Pearson},
			Config:         r.Config,
			Time:           make([]float64, len(samples)),
			ViewFactor:     make([]float64, len(samples)),
			SimulatedPower: make([]float64, len(samples)),
		}
		for i, smp := range samples {
			sum.Time[i] = smp.Time
			sum.ViewFactor[i] = smp.ViewFactor
			sum.SimulatedPower[i] = smp.SimulatedPower
		}
		if out[r.Trajectory] == nil {
			out[r.Trajectory] = map[string]Summary{}
		}
		out[r.Trajectory][r.Configuration] = sum
	}
	return out, nil
}

// WriteJSON writes the summaries as indented JSON.
func (s Summaries) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
