package mission

import (
	"math"
	"testing"
)

func TestDecodeScenarioWaypoints(t *testing.T) {
	d := Decode(1030)
	if !d.IsCone || d.IsLastCone {
		t.Errorf("1030: got IsCone=%v IsLastCone=%v, want true/false", d.IsCone, d.IsLastCone)
	}
	if d.CruiseFactor != 1.0 {
		t.Errorf("1030: cruise factor = %v, want 1.0", d.CruiseFactor)
	}
	if math.Abs(d.ConeMinSpeedPct-0.30) > 1e-9 {
		t.Errorf("1030: min speed pct = %v, want 0.30", d.ConeMinSpeedPct)
	}

	last := Decode(2000)
	if !last.IsCone || !last.IsLastCone {
		t.Errorf("2000: got IsCone=%v IsLastCone=%v, want true/true", last.IsCone, last.IsLastCone)
	}
	if last.CruiseFactor != 1.0 {
		t.Errorf("2000: cruise factor = %v, want 1.0", last.CruiseFactor)
	}

	plain := Decode(0)
	if plain.IsCone {
		t.Error("0: should not be a cone waypoint")
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []struct {
		isCone, isLast     bool
		cruise, coneMinPct float64
	}{
		{false, false, 1.0, 0},
		{true, false, 0.3, 0.45},
		{true, true, 1.0, 0},
		{true, false, 0.7, 0.99},
		{true, false, 0.1, 0.01},
	}
	for _, c := range cases {
		z := Encode(c.isCone, c.isLast, c.cruise, c.coneMinPct)
		got := Decode(z)
		if got.IsCone != c.isCone || got.IsLastCone != c.isLast {
			t.Errorf("Decode(Encode(%v,%v,...)) flags = (%v,%v), want (%v,%v)", c.isCone, c.isLast, got.IsCone, got.IsLastCone, c.isCone, c.isLast)
		}
		if math.Abs(got.CruiseFactor-c.cruise) > 1e-9 {
			t.Errorf("cruise round-trip: got %v, want %v (z=%v)", got.CruiseFactor, c.cruise, z)
		}
		if math.Abs(got.ConeMinSpeedPct-c.coneMinPct) > 1e-9 {
			t.Errorf("cone min pct round-trip: got %v, want %v (z=%v)", got.ConeMinSpeedPct, c.coneMinPct, z)
		}
	}
}

func TestMissionValidate(t *testing.T) {
	m := Mission{Waypoints: []Waypoint{{}}, CurrentSeq: 0}
	if err := m.Validate(); err == nil {
		t.Error("expected error for single-waypoint mission")
	}

	m = Mission{Waypoints: []Waypoint{{}, {}}, CurrentSeq: 5}
	if err := m.Validate(); err == nil {
		t.Error("expected error for out-of-range current_seq")
	}

	m = Mission{Waypoints: []Waypoint{{}, {}}, CurrentSeq: 1}
	if err := m.Validate(); err != nil {
		t.Errorf("expected valid mission, got %v", err)
	}
}

func TestCruiseSpeed(t *testing.T) {
	m := Mission{Waypoints: []Waypoint{{Z: 1030}, {Z: 1250}}}
	if got := m.CruiseSpeed(0, 2.0); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("wp0 cruise speed = %v, want 2.0", got)
	}
	if got := m.CruiseSpeed(1, 2.0); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("wp1 cruise speed = %v, want 0.4", got)
	}
}

func TestAdjustToOrigin(t *testing.T) {
	waypoints := []Waypoint{
		{X: 10, Y: 20, Z: 1030},
		{X: 15, Y: 25, Z: 0},
		{X: 5, Y: 5, Z: 2000},
	}
	adjusted := AdjustToOrigin(waypoints)
	if adjusted[0].X != 0 || adjusted[0].Y != 0 {
		t.Errorf("origin should be zeroed, got %+v", adjusted[0])
	}
	if adjusted[1].X != 5 || adjusted[1].Y != 5 {
		t.Errorf("wp1 relative = %+v, want (5,5)", adjusted[1])
	}
	if adjusted[2].Z != 2000 {
		t.Errorf("Z must be copied unchanged, got %v", adjusted[2].Z)
	}
}

func TestAdjustToOriginEmpty(t *testing.T) {
	if got := AdjustToOrigin(nil); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}
}
