// Package geometry holds the receiver and light-source types and the resolver
// that turns a 3D pose into the scalar parameters the view-factor models use.
//
// Coordinates are millimetres with Y up. The light is a flat disk that emits
// downward (-Y); a receiver is only illuminated when it is strictly below the
// light plane. This convention is a precondition: callers whose data uses
// another up axis must rotate it before it reaches this package.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DegenerateEpsilon is the magnitude below which a direction vector is
// treated as undefined.
const DegenerateEpsilon = 1e-6

var (
	// DefaultNormal is the palm normal assumed when none was recorded: facing
	// down, so the cell on the back of the hand faces up.
	DefaultNormal = r3.Vec{X: 0, Y: -1, Z: 0}

	// EmissionNormal is the fixed emission axis of the light disk.
	EmissionNormal = r3.Vec{X: 0, Y: -1, Z: 0}
)

// Receiver is the pose of the photovoltaic cell for one sample. Normal is the
// surface (palm) normal as recorded; the cell faces the opposite way.
type Receiver struct {
	Position r3.Vec
	Normal   r3.Vec
}

// LightSource is a flat circular emitter centred at Center.
type LightSource struct {
	Center   r3.Vec
	Diameter float64 // mm
}

// DefaultLightSource returns the lamp pose of the recording rig.
func DefaultLightSource() LightSource {
	return LightSource{
		Center:   r3.Vec{X: -159.81, Y: 868.82, Z: 168.23},
		Diameter: 200,
	}
}

// Radius returns half the diameter.
func (l LightSource) Radius() float64 { return l.Diameter / 2 }

// Validate checks that the diameter is positive and the pose is finite.
func (l LightSource) Validate() error {
	if math.IsNaN(l.Diameter) || math.IsInf(l.Diameter, 0) || l.Diameter <= 0 {
		return fmt.Errorf("light diameter must be positive and finite, got %v", l.Diameter)
	}
	if !finite(l.Center) {
		return fmt.Errorf("light center must be finite, got %v", l.Center)
	}
	return nil
}

type lightSourceJSON struct {
	Center   [3]float64 `json:"center"`
	Diameter float64    `json:"diameter"`
}

// MarshalJSON encodes the light as {"center":[x,y,z],"diameter":d}.
func (l LightSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(lightSourceJSON{Center: ToArray(l.Center), Diameter: l.Diameter})
}

// UnmarshalJSON decodes the form written by MarshalJSON. It does not
// validate; call Validate.
func (l *LightSource) UnmarshalJSON(b []byte) error {
	var w lightSourceJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*l = LightSource{Center: FromArray(w.Center), Diameter: w.Diameter}
	return nil
}

// FromArray converts an [x, y, z] triple.
func FromArray(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// ToArray converts v to an [x, y, z] triple.
func ToArray(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Offset is the receiver position relative to the light centre.
type Offset struct {
	A float64 // horizontal (XZ-plane) distance, mm
	H float64 // height of the light above the receiver, mm
}

// Resolve computes the lateral offset and height of the light centre relative
// to position.
func Resolve(position, lightCenter r3.Vec) Offset {
	dx := lightCenter.X - position.X
	dz := lightCenter.Z - position.Z
	return Offset{
		A: math.Sqrt(dx*dx + dz*dz),
		H: lightCenter.Y - position.Y,
	}
}

// IsDegenerate reports whether v is too short to define a direction.
func IsDegenerate(v r3.Vec) bool {
	return r3.Norm(v) < DegenerateEpsilon
}

// NormalizeNormal returns v as a unit vector, or DefaultNormal when v is
// degenerate.
func NormalizeNormal(v r3.Vec) r3.Vec {
	if IsDegenerate(v) {
		return DefaultNormal
	}
	return r3.Unit(v)
}

// OutwardNormal returns the unit normal of the cell face, which points away
// from the surface it is mounted on. ok is false when normal is degenerate.
func OutwardNormal(normal r3.Vec) (n r3.Vec, ok bool) {
	if IsDegenerate(normal) {
		return r3.Vec{}, false
	}
	return r3.Scale(-1, r3.Unit(normal)), true
}

// CosIncidence returns the cosine of the angle between the cell's outward
// normal and the direction from position to lightCenter, clamped to [-1, 1].
// ok is false when either vector is degenerate.
func CosIncidence(position, normal, lightCenter r3.Vec) (cos float64, ok bool) {
	out, ok := OutwardNormal(normal)
	if !ok {
		return 0, false
	}
	toLight := r3.Sub(lightCenter, position)
	dist := r3.Norm(toLight)
	if dist < DegenerateEpsilon {
		return 0, false
	}
	return clamp(r3.Dot(out, toLight)/dist, -1, 1), true
}

// IncidenceAngle returns the incidence angle in degrees. See CosIncidence.
func IncidenceAngle(position, normal, lightCenter r3.Vec) (deg float64, ok bool) {
	cos, ok := CosIncidence(position, normal, lightCenter)
	if !ok {
		return 0, false
	}
	return math.Acos(cos) * 180 / math.Pi, true
}

// DiskBasis returns two unit vectors spanning the plane orthogonal to axis.
// axis must be non-degenerate.
func DiskBasis(axis r3.Vec) (u, v r3.Vec) {
	n := r3.Unit(axis)
	helper := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		helper = r3.Vec{Y: 1}
	}
	u = r3.Unit(r3.Cross(helper, n))
	v = r3.Cross(n, u)
	return u, v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v r3.Vec) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
