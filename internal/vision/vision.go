// Package vision adapts pre-extracted cone detections (pixel offset and
// area) into a selected target with heading and distance estimates.
// Image processing itself is out of scope; detections arrive already
// extracted from the external vision node.
package vision

import "math"

// Detection is a single candidate cone bounding box, as received from the
// external vision node. Only XOffsetPixels and AreaPixels are used by this
// core; the remaining fields are carried for completeness.
type Detection struct {
	XOffsetPixels float64
	YOffsetPixels float64
	AreaPixels    float64
	Width         float64
	Height        float64
	Depth         float64
}

// Intrinsics describes the camera's horizontal field of view, used to
// convert a pixel offset into a heading angle.
type Intrinsics struct {
	HorzFOVRadians float64
	HorzPixels     float64
}

// focalPixels returns f = (horz_pixels/2) / tan(horz_fov/2).
func (in Intrinsics) focalPixels() float64 {
	return (in.HorzPixels / 2) / math.Tan(in.HorzFOVRadians/2)
}

// referenceAreaPixels and referenceDistanceMeters calibrate Distance:
// an object of ReferenceAreaPixels at ReferenceDistanceMeters.
const (
	referenceAreaPixels     = 3900.0
	referenceDistanceMeters = 3.0
)

// Select returns the first detection whose area qualifies at or above
// minArea; order within the list is input-defined and preserved.
// Returns false if none qualify.
func Select(detections []Detection, minArea float64) (Detection, bool) {
	for _, d := range detections {
		if d.AreaPixels >= minArea {
			return d, true
		}
	}
	return Detection{}, false
}

// Heading returns the detection's heading in radians: a positive offset
// (right of center) yields a positive heading, interpreted as "turn right".
func Heading(d Detection, in Intrinsics) float64 {
	return math.Atan2(d.XOffsetPixels, in.focalPixels())
}

// Distance returns the estimated distance to the detection in meters,
// calibrated against a reference of ~3900 px^2 area at 3m.
func Distance(d Detection) float64 {
	if d.AreaPixels <= 0 {
		return math.Inf(1)
	}
	return referenceDistanceMeters * math.Sqrt(referenceAreaPixels/d.AreaPixels)
}
