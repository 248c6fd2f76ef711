package simulator

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/viewfactor/internal/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sample is one pose of the receiver along a trajectory.
type Sample struct {
	Time          float64 // seconds
	Position      r3.Vec  // mm
	Normal        r3.Vec  // surface normal, not necessarily unit length
	MeasuredPower *float64
}

// Receiver returns the pose handed to the view-factor models.
func (s Sample) Receiver() geometry.Receiver {
	return geometry.Receiver{Position: s.Position, Normal: s.Normal}
}

type sampleJSON struct {
	Time          float64     `json:"time"`
	Position      [3]float64  `json:"position"`
	Normal        *[3]float64 `json:"normal,omitempty"`
	MeasuredPower *float64    `json:"measured_power,omitempty"`
}

// MarshalJSON writes {time, position[3], normal[3], measured_power?}.
func (s Sample) MarshalJSON() ([]byte, error) {
	n := geometry.ToArray(s.Normal)
	return json.Marshal(sampleJSON{
		Time:          s.Time,
		Position:      geometry.ToArray(s.Position),
		Normal:        &n,
		MeasuredPower: s.MeasuredPower,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON. A missing normal is
// replaced with geometry.DefaultNormal; a present but zero normal is kept so
// that the oriented models report it as degenerate.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var w sampleJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode sample: %w", err)
	}
	out := Sample{
		Time:          w.Time,
		Position:      geometry.FromArray(w.Position),
		Normal:        geometry.DefaultNormal,
		MeasuredPower: w.MeasuredPower,
	}
	if w.Normal != nil {
		out.Normal = geometry.FromArray(*w.Normal)
	}
	*s = out
	return nil
}

// Trajectory is an ordered, chronological sequence of samples.
type Trajectory []Sample

// MeasuredPower returns the measured series, or nil unless every sample
// carries a measurement.
func (t Trajectory) MeasuredPower() []float64 {
	if len(t) == 0 {
		return nil
	}
	out := make([]float64, len(t))
	for i, s := range t {
		if s.MeasuredPower == nil {
			return nil
		}
		out[i] = *s.MeasuredPower
	}
	return out
}

// Float returns a pointer to v, for building samples with measured power.
func Float(v float64) *float64 { return &v }
