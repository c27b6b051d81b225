package vision

import (
	"math"
	"testing"
)

func TestSelectFirstQualifying(t *testing.T) {
	detections := []Detection{
		{AreaPixels: 50},
		{AreaPixels: 150, XOffsetPixels: 7},
		{AreaPixels: 500},
	}
	got, ok := Select(detections, 100)
	if !ok {
		t.Fatal("expected a qualifying detection")
	}
	if got.AreaPixels != 150 {
		t.Errorf("got area %v, want 150 (first qualifying)", got.AreaPixels)
	}
}

func TestSelectThresholdIsInclusive(t *testing.T) {
	detections := []Detection{{AreaPixels: 100}}
	got, ok := Select(detections, 100)
	if !ok || got.AreaPixels != 100 {
		t.Error("area exactly equal to threshold should qualify")
	}
}

func TestSelectNone(t *testing.T) {
	_, ok := Select(nil, 100)
	if ok {
		t.Error("expected no selection for empty detection list")
	}
	_, ok = Select([]Detection{{AreaPixels: 10}}, 100)
	if ok {
		t.Error("expected no selection when nothing qualifies")
	}
}

func TestDistanceCalibration(t *testing.T) {
	// distance(area) * sqrt(area/3900) == 3, within epsilon.
	for _, area := range []float64{100, 400, 900, 3900, 9000} {
		d := Distance(Detection{AreaPixels: area})
		product := d * math.Sqrt(area/3900.0)
		if math.Abs(product-3.0) > 1e-9 {
			t.Errorf("area=%v: distance*sqrt(area/3900) = %v, want 3", area, product)
		}
	}
}

func TestScenarioTwoDistanceAndHeading(t *testing.T) {
	in := Intrinsics{HorzFOVRadians: 70 * math.Pi / 180, HorzPixels: 640}
	d := Detection{XOffsetPixels: 64, AreaPixels: 400}

	dist := Distance(d)
	wantDist := 3 * math.Sqrt(3900.0/400.0)
	if math.Abs(dist-wantDist) > 1e-6 {
		t.Errorf("distance = %v, want %v", dist, wantDist)
	}
	if math.Abs(dist-9.37) > 0.01 {
		t.Errorf("distance = %v, want approx 9.37", dist)
	}

	heading := Heading(d, in)
	if math.Abs(heading-0.139) > 0.01 {
		t.Errorf("heading = %v, want approx 0.139", heading)
	}
}

func TestHeadingSign(t *testing.T) {
	in := Intrinsics{HorzFOVRadians: 70 * math.Pi / 180, HorzPixels: 640}
	right := Heading(Detection{XOffsetPixels: 50}, in)
	left := Heading(Detection{XOffsetPixels: -50}, in)
	if right <= 0 {
		t.Errorf("positive offset should give positive heading, got %v", right)
	}
	if left >= 0 {
		t.Errorf("negative offset should give negative heading, got %v", left)
	}
}
