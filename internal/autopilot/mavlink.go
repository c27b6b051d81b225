package autopilot

import (
	"context"
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/ridgeline-robotics/conenav/internal/mission"
)

// customModeFor maps a Mode to ArduRover's custom_mode numbering. ArduRover
// does not share PX4's mode table, so these are rover-specific.
var customModeFor = map[Mode]uint32{
	ModeManual: 0,
	ModeHold:   4,
	ModeAuto:   10,
	ModeGuided: 15,
	ModeRTL:    11,
}

// SetMode sends DO_SET_MODE with MAV_MODE_FLAG_CUSTOM_MODE_ENABLED, the
// same two-parameter encoding every ArduPilot variant uses for its
// non-standard mode table.
func (b *MAVLinkBridge) SetMode(ctx context.Context, mode Mode) error {
	custom, ok := customModeFor[mode]
	if !ok {
		return fmt.Errorf("autopilot bridge: set mode: unrecognized mode %q", mode)
	}

	b.log.WithField("mode", mode).Debug("setting mode")
	err := b.send(&common.MessageCommandLong{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		Command:         common.MAV_CMD_DO_SET_MODE,
		Param1:          float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		Param2:          float32(custom),
	}, "set mode")
	if err != nil {
		return err
	}
	b.settle(ctx)
	return nil
}

// Arm sends MAV_CMD_COMPONENT_ARM_DISARM, then waits out the settle delay
// so a caller that immediately issues a waypoint command doesn't race the
// autopilot's own arming sequence.
func (b *MAVLinkBridge) Arm(ctx context.Context, armed bool) error {
	param1 := float32(0)
	if armed {
		param1 = 1
	}

	b.log.WithField("armed", armed).Debug("arming")
	err := b.send(&common.MessageCommandLong{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		Command:         common.MAV_CMD_COMPONENT_ARM_DISARM,
		Param1:          param1,
	}, "arm")
	if err != nil {
		return err
	}
	b.settle(ctx)
	return nil
}

// SetParameter writes a single PARAM_SET. ParamId is at most 16 characters
// per the MAVLink wire format.
func (b *MAVLinkBridge) SetParameter(ctx context.Context, name string, value ParamValue) error {
	if len(name) > 16 {
		return fmt.Errorf("autopilot bridge: set parameter: name %q exceeds 16 characters", name)
	}

	paramType := common.MAV_PARAM_TYPE_INT32
	if value.Kind == ParamFloat {
		paramType = common.MAV_PARAM_TYPE_REAL32
	}

	b.log.WithFields(map[string]any{"param": name, "kind": value.Kind}).Debug("setting parameter")
	err := b.send(&common.MessageParamSet{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		ParamId:         name,
		ParamValue:      value.Float32(),
		ParamType:       paramType,
	}, "set parameter")
	if err != nil {
		return err
	}
	b.settle(ctx)
	return nil
}

// SetCurrentWaypoint sends MISSION_SET_CURRENT, the command that tells the
// autopilot which mission item to resume from, used when re-entering
// FOLLOWING_WAYPOINTS after a cone detour.
func (b *MAVLinkBridge) SetCurrentWaypoint(ctx context.Context, index int) error {
	err := b.send(&common.MessageMissionSetCurrent{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		Seq:             uint16(index),
	}, "set current waypoint")
	if err != nil {
		return err
	}
	b.settle(ctx)
	return nil
}

// OverrideRC sends RC_CHANNELS_OVERRIDE, the servo-override mechanism this
// core uses instead of GUIDED-mode position targets when driving the final
// approach to a cone.
func (b *MAVLinkBridge) OverrideRC(ctx context.Context, override ServoOverride) error {
	return b.send(&common.MessageRcChannelsOverride{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		Chan1Raw:        override[0],
		Chan2Raw:        override[1],
		Chan3Raw:        override[2],
		Chan4Raw:        override[3],
		Chan5Raw:        override[4],
		Chan6Raw:        override[5],
		Chan7Raw:        override[6],
		Chan8Raw:        override[7],
	}, "override rc")
}

// PublishVelocity sends a GUIDED-mode velocity setpoint via
// SET_POSITION_TARGET_LOCAL_NED with every field but Vx/Yaw-rate masked
// out, the minimal subset a ground rover needs (no altitude, no
// acceleration, no attitude — those targets belong to an airframe).
func (b *MAVLinkBridge) PublishVelocity(ctx context.Context, v Velocity) error {
	const typeMask = common.POSITION_TARGET_TYPEMASK(
		0b0000000000000001 | // x ignore
			0b0000000000000010 | // y ignore
			0b0000000000000100 | // z ignore
			0b0000000000010000 | // vy ignore
			0b0000000000100000 | // vz ignore
			0b0000000001000000 | // ax ignore
			0b0000000010000000 | // ay ignore
			0b0000000100000000 | // az ignore
			0b0000010000000000, // yaw ignore
	)

	return b.send(&common.MessageSetPositionTargetLocalNed{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		CoordinateFrame: common.MAV_FRAME_BODY_OFFSET_NED,
		TypeMask:        typeMask,
		Vx:              float32(v.LinearX),
		YawRate:         float32(v.AngularZ),
	}, "publish velocity")
}

// PushWaypoints uploads the whole mission as a flat MISSION_COUNT +
// MISSION_ITEM_INT sequence. This core owns mission construction; it never
// waits for MISSION_REQUEST handshaking from the autopilot side; this
// bridge is a fire-and-forget write surface.
func (b *MAVLinkBridge) PushWaypoints(ctx context.Context, waypoints []mission.Waypoint) error {
	err := b.send(&common.MessageMissionCount{
		TargetSystem:    b.targetSys,
		TargetComponent: b.componentID,
		Count:           uint16(len(waypoints)),
	}, "push waypoints: count")
	if err != nil {
		return err
	}

	for i, wp := range waypoints {
		current := uint8(0)
		if i == 0 {
			current = 1
		}
		err := b.send(&common.MessageMissionItemInt{
			TargetSystem:    b.targetSys,
			TargetComponent: b.componentID,
			Seq:             uint16(i),
			Frame:           common.MAV_FRAME_GLOBAL_RELATIVE_ALT,
			Command:         common.MAV_CMD_NAV_WAYPOINT,
			Current:         current,
			Autocontinue:    1,
			X:               int32(wp.Lat * 1e7),
			Y:               int32(wp.Lon * 1e7),
			Z:               float32(wp.Z),
		}, "push waypoints: item")
		if err != nil {
			return err
		}
	}

	return nil
}
