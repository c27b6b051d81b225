// Package geometry provides the pose math the navigation core needs:
// quaternion-to-yaw extraction, angle normalization and point-to-point
// bearing.
package geometry

import "math"

// Quaternion is a unit quaternion (w, x, y, z).
type Quaternion struct {
	W, X, Y, Z float64
}

// Point2D is a position in the metric map frame; Z is carried separately
// by callers that need it (mission.Waypoint, mission.Pose).
type Point2D struct {
	X, Y float64
}

// Yaw extracts the yaw (rotation about Z) from a unit quaternion using the
// standard ZYX Euler decomposition.
func Yaw(q Quaternion) float64 {
	sinYaw := 2 * (q.W*q.Z + q.X*q.Y)
	cosYaw := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	return math.Atan2(sinYaw, cosYaw)
}

// Normalize reduces an angle in radians to the range (-π, π].
func Normalize(theta float64) float64 {
	theta = math.Mod(theta, 2*math.Pi)
	if theta <= -math.Pi {
		theta += 2 * math.Pi
	} else if theta > math.Pi {
		theta -= 2 * math.Pi
	}
	return theta
}

// Bearing returns the heading from `from` to `to`, measured the same way
// as Yaw (0 along +X, increasing toward +Y).
func Bearing(from, to Point2D) float64 {
	return math.Atan2(to.Y-from.Y, to.X-from.X)
}
