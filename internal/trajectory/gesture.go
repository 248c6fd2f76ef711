// Package trajectory reads recorded hand gestures into simulator input.
//
// A gesture file holds one segment of a recording: palm positions and
// normals sampled at a fixed rate, the cell's measured power, and the pose of
// the light used during the session. Files exported by the analysis scripts
// may contain the non-standard literals NaN and Infinity; samples carrying
// them are dropped on load.
package trajectory

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/viewfactor/internal/geometry"
	"github.com/banshee-data/viewfactor/internal/monitoring"
	"github.com/banshee-data/viewfactor/internal/simulator"
)

// DefaultSamplingRate is the capture rate of the recording rig, in Hz.
const DefaultSamplingRate = 100.0

// Gesture is the decoded form of a gesture file. Coordinates are pointers so
// that null (and the NaN literals rewritten to null) survive decoding.
type Gesture struct {
	Name         string        `json:"name"`
	SegmentIndex int           `json:"segment_index"`
	Duration     float64       `json:"duration"`
	NumSamples   int           `json:"num_samples"`
	SamplingRate float64       `json:"sampling_rate"`
	Positions    [][3]*float64 `json:"positions"`
	Normals      [][3]*float64 `json:"normals,omitempty"`
	RealPower    []*float64    `json:"real_power,omitempty"`
	LightSource  *gestureLight `json:"light_source,omitempty"`
}

type gestureLight struct {
	Position [3]float64 `json:"position"`
	Diameter float64    `json:"diameter"`
}

// Decode reads one gesture file.
func Decode(r io.Reader) (*Gesture, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gesture: %w", err)
	}
	var g Gesture
	if err := json.Unmarshal(nullNonFinite(raw), &g); err != nil {
		return nil, fmt.Errorf("parse gesture: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks that the per-sample arrays line up.
func (g *Gesture) Validate() error {
	n := len(g.Positions)
	if n == 0 {
		return fmt.Errorf("gesture %q has no positions", g.Name)
	}
	if len(g.Normals) != 0 && len(g.Normals) != n {
		return fmt.Errorf("gesture %q: %d normals for %d positions", g.Name, len(g.Normals), n)
	}
	if len(g.RealPower) != 0 && len(g.RealPower) != n {
		return fmt.Errorf("gesture %q: %d power readings for %d positions", g.Name, len(g.RealPower), n)
	}
	if g.SamplingRate < 0 {
		return fmt.Errorf("gesture %q: negative sampling rate %g", g.Name, g.SamplingRate)
	}
	if g.LightSource != nil {
		if err := g.Light().Validate(); err != nil {
			return fmt.Errorf("gesture %q: %w", g.Name, err)
		}
	}
	return nil
}

// Light returns the recorded light pose, or the rig default.
func (g *Gesture) Light() geometry.LightSource {
	if g.LightSource == nil {
		return geometry.DefaultLightSource()
	}
	return geometry.LightSource{
		Center:   geometry.FromArray(g.LightSource.Position),
		Diameter: g.LightSource.Diameter,
	}
}

// Rate returns the sampling rate, falling back to DefaultSamplingRate.
func (g *Gesture) Rate() float64 {
	if g.SamplingRate > 0 {
		return g.SamplingRate
	}
	return DefaultSamplingRate
}

// Trajectory converts the gesture to simulator samples. Sample i is stamped
// i / rate seconds. Samples with a non-finite position, normal component or
// power reading are dropped. Missing normals take geometry.DefaultNormal.
func (g *Gesture) Trajectory() simulator.Trajectory {
	rate := g.Rate()
	out := make(simulator.Trajectory, 0, len(g.Positions))
	dropped := 0
	for i, p := range g.Positions {
		pos, ok := vec(p)
		if !ok {
			dropped++
			continue
		}
		s := simulator.Sample{Time: float64(i) / rate, Position: geometry.FromArray(pos), Normal: geometry.DefaultNormal}
		if len(g.Normals) > 0 {
			n, ok := vec(g.Normals[i])
			if !ok {
				dropped++
				continue
			}
			s.Normal = geometry.FromArray(n)
		}
		if len(g.RealPower) > 0 {
			pw := g.RealPower[i]
			if pw == nil || !finite(*pw) {
				dropped++
				continue
			}
			s.MeasuredPower = simulator.Float(*pw)
		}
		out = append(out, s)
	}
	if dropped > 0 {
		monitoring.Logf("trajectory %s: dropped %d of %d samples with missing or non-finite values", g.Name, dropped, len(g.Positions))
	}
	return out
}

// FromTrajectory builds a gesture file for traj, the inverse of Trajectory
// for finite input.
func FromTrajectory(name string, traj simulator.Trajectory, light geometry.LightSource, rate float64) *Gesture {
	g := &Gesture{
		Name:         name,
		NumSamples:   len(traj),
		SamplingRate: rate,
		Positions:    make([][3]*float64, len(traj)),
		Normals:      make([][3]*float64, len(traj)),
		LightSource:  &gestureLight{Position: geometry.ToArray(light.Center), Diameter: light.Diameter},
	}
	if rate > 0 && len(traj) > 0 {
		g.Duration = float64(len(traj)) / rate
	}
	measured := traj.MeasuredPower()
	if measured != nil {
		g.RealPower = make([]*float64, len(traj))
	}
	for i, s := range traj {
		g.Positions[i] = ptrs(geometry.ToArray(s.Position))
		g.Normals[i] = ptrs(geometry.ToArray(s.Normal))
		if measured != nil {
			g.RealPower[i] = simulator.Float(measured[i])
		}
	}
	return g
}

func ptrs(a [3]float64) [3]*float64 {
	x, y, z := a[0], a[1], a[2]
	return [3]*float64{&x, &y, &z}
}

func vec(a [3]*float64) (v [3]float64, ok bool) {
	for i, c := range a {
		if c == nil || !finite(*c) {
			return v, false
		}
		v[i] = *c
	}
	return v, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
