package autopilot

import (
	"context"

	"github.com/ridgeline-robotics/conenav/internal/mission"
)

// RecordingBridge is a Bridge that records every call instead of writing to
// a real autopilot. Used by this package's own tests and by the navigator
// package to assert on the sequence of commands a transition issues.
type RecordingBridge struct {
	Modes    []Mode
	ArmCalls []bool
	Params   []struct {
		Name  string
		Value ParamValue
	}
	Waypoints      [][]int
	Overrides      []ServoOverride
	Velocities     []Velocity
	PushedMissions [][]mission.Waypoint

	// Err, when set, is returned by every method instead of recording.
	Err error
}

func (f *RecordingBridge) SetMode(ctx context.Context, mode Mode) error {
	if f.Err != nil {
		return f.Err
	}
	f.Modes = append(f.Modes, mode)
	return nil
}

func (f *RecordingBridge) Arm(ctx context.Context, armed bool) error {
	if f.Err != nil {
		return f.Err
	}
	f.ArmCalls = append(f.ArmCalls, armed)
	return nil
}

func (f *RecordingBridge) SetParameter(ctx context.Context, name string, value ParamValue) error {
	if f.Err != nil {
		return f.Err
	}
	f.Params = append(f.Params, struct {
		Name  string
		Value ParamValue
	}{name, value})
	return nil
}

func (f *RecordingBridge) SetCurrentWaypoint(ctx context.Context, index int) error {
	if f.Err != nil {
		return f.Err
	}
	f.Waypoints = append(f.Waypoints, []int{index})
	return nil
}

func (f *RecordingBridge) OverrideRC(ctx context.Context, override ServoOverride) error {
	if f.Err != nil {
		return f.Err
	}
	f.Overrides = append(f.Overrides, override)
	return nil
}

func (f *RecordingBridge) PublishVelocity(ctx context.Context, v Velocity) error {
	if f.Err != nil {
		return f.Err
	}
	f.Velocities = append(f.Velocities, v)
	return nil
}

func (f *RecordingBridge) PushWaypoints(ctx context.Context, waypoints []mission.Waypoint) error {
	if f.Err != nil {
		return f.Err
	}
	f.PushedMissions = append(f.PushedMissions, waypoints)
	return nil
}
