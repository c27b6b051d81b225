// Package mission holds the waypoint mission model: the altitude-encoded
// metadata decode and the ordered waypoint list.
package mission

import (
	"fmt"

	"github.com/ridgeline-robotics/conenav/internal/geometry"
)

// Waypoint is a single mission point. Z carries the overloaded NXYY
// metadata encoding decoded below; decoded fields are derived, never
// stored, so they can never drift from Z.
type Waypoint struct {
	Lat, Lon float64
	X, Y     float64 // map-frame coordinates, populated by the (external) transformer
	Z        float64 // altitude field, overloaded with NXYY metadata
}

// Point returns the waypoint's map-frame position.
func (w Waypoint) Point() geometry.Point2D {
	return geometry.Point2D{X: w.X, Y: w.Y}
}

// Decoded is the triple the core actually reasons about, derived from Z.
type Decoded struct {
	IsCone          bool
	IsLastCone      bool
	CruiseFactor    float64 // (0, 1], nominal cruise speed as a fraction of NormalSpeed
	ConeMinSpeedPct float64 // [0, 1], minimum-speed-toward-cone as a fraction of nominal
}

// Decode splits a waypoint's Z field into its three metadata dimensions,
// using an NXYY encoding: N in {0,1,2}, X in {0..9}, YY in {00..99}.
func Decode(z float64) Decoded {
	n := int(z) / 1000
	rem := int(z) - n*1000
	x := rem / 100
	yy := rem % 100

	cruise := float64(x) * 0.1
	if x == 0 {
		cruise = 1.0
	}

	return Decoded{
		IsCone:          n >= 1,
		IsLastCone:      n == 2,
		CruiseFactor:    cruise,
		ConeMinSpeedPct: float64(yy) * 0.01,
	}
}

// Encode is the inverse of Decode, used by tests and any offline mission
// authoring tooling to build a valid Z value from the triple.
func Encode(isCone, isLastCone bool, cruiseFactor, coneMinSpeedPct float64) float64 {
	n := 0
	if isLastCone {
		n = 2
	} else if isCone {
		n = 1
	}

	x := int(cruiseFactor*10 + 0.5)
	if x >= 10 {
		x = 0 // 100% round-trips through the "0 means 100%" convention
	}

	yy := int(coneMinSpeedPct*100 + 0.5)
	if yy > 99 {
		yy = 99
	}

	return float64(n*1000 + x*100 + yy)
}

// Pose is the robot's estimated position and orientation in the map frame.
type Pose struct {
	X, Y, Z float64
	Orient  geometry.Quaternion
}

// Point returns the pose's map-frame position.
func (p Pose) Point() geometry.Point2D {
	return geometry.Point2D{X: p.X, Y: p.Y}
}

// Heading returns the yaw extracted from the pose's orientation.
func (p Pose) Heading() float64 {
	return geometry.Yaw(p.Orient)
}

// Mission is the ordered waypoint list plus the autopilot-owned index of
// the waypoint currently being navigated toward.
type Mission struct {
	Waypoints  []Waypoint
	CurrentSeq int
}

// Validate rejects a mission the state machine cannot safely start or
// adjust: fewer than two waypoints, or a current_seq pointing outside the
// list. It is shared by both the START handler and any offline mission
// authoring tool.
func (m Mission) Validate() error {
	if len(m.Waypoints) < 2 {
		return fmt.Errorf("mission has %d waypoints, need at least 2", len(m.Waypoints))
	}
	if m.CurrentSeq < 0 || m.CurrentSeq >= len(m.Waypoints) {
		return fmt.Errorf("current_seq %d out of range [0,%d)", m.CurrentSeq, len(m.Waypoints))
	}
	return nil
}

// CruiseSpeed returns normalSpeed * cruiseFactor(i) for waypoint i.
func (m Mission) CruiseSpeed(i int, normalSpeed float64) float64 {
	if i < 0 || i >= len(m.Waypoints) {
		return normalSpeed
	}
	return normalSpeed * Decode(m.Waypoints[i].Z).CruiseFactor
}

// LastIndex returns the index of the final waypoint.
func (m Mission) LastIndex() int {
	return len(m.Waypoints) - 1
}

// AdjustToOrigin rewrites a map-frame waypoint list so every point is
// relative to waypoint 0. Z is copied unchanged; this intentionally
// carries no rotational correction for the origin waypoint's own heading.
func AdjustToOrigin(waypoints []Waypoint) []Waypoint {
	if len(waypoints) == 0 {
		return nil
	}
	origin := waypoints[0]
	out := make([]Waypoint, len(waypoints))
	for i, wp := range waypoints {
		out[i] = Waypoint{
			Lat: wp.Lat,
			Lon: wp.Lon,
			X:   wp.X - origin.X,
			Y:   wp.Y - origin.Y,
			Z:   wp.Z,
		}
	}
	return out
}
