package telemetry

import "testing"

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatal("Get() returned distinct instances; expected a process-wide singleton")
	}
}

func TestRecordTransitionDoesNotPanic(t *testing.T) {
	m := Get()
	m.RecordTransition("WAITING_FOR_START", "FOLLOWING_WAYPOINTS")
	m.RecordTransition("FOLLOWING_WAYPOINTS", "CIRCLING_BACK")
}

func TestRecordCommandTracksErrors(t *testing.T) {
	m := Get()
	m.RecordCommand("arm", nil)
	m.RecordCommand("arm", errBoom)
}

var errBoom = testErr("boom")

type testErr string

func (e testErr) Error() string { return string(e) }
