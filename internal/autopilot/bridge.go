// Package autopilot implements the sole writer that turns navigator
// decisions into mode changes, arming, parameter writes, current-waypoint
// requests, servo overrides and velocity setpoints sent to an external
// flight-controller-style autopilot. It never reads sensors and never
// makes navigation decisions.
package autopilot

import (
	"context"
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/ridgeline-robotics/conenav/internal/mission"
	"github.com/ridgeline-robotics/conenav/pkg/logging"
)

// Mode is a recognized autopilot flight mode.
type Mode string

const (
	ModeManual Mode = "MANUAL"
	ModeHold   Mode = "HOLD"
	ModeAuto   Mode = "AUTO"
	ModeGuided Mode = "GUIDED"
	ModeRTL    Mode = "RTL"
)

// settleDelay is the pause enforced after arm/set-current-waypoint/certain
// parameter writes to avoid autopilot busy errors. This is an
// implementation contract, not a user-visible feature.
const settleDelay = 200 * time.Millisecond

// ParamKind distinguishes the two wire representations MAVLink's
// PARAM_SET message accepts, modeled as a tagged value variant instead
// of dynamic dispatch on an interface{}.
type ParamKind uint8

const (
	ParamInt ParamKind = iota
	ParamFloat
)

// ParamValue is a tagged int-or-float parameter value.
type ParamValue struct {
	Kind ParamKind
	Int  int64
	Flt  float64
}

// IntParam builds an integer-valued parameter.
func IntParam(v int64) ParamValue { return ParamValue{Kind: ParamInt, Int: v} }

// FloatParam builds a float-valued parameter.
func FloatParam(v float64) ParamValue { return ParamValue{Kind: ParamFloat, Flt: v} }

// Float32 returns the value coerced to the float32 MAVLink's wire format
// uses for both int- and float-typed parameters.
func (p ParamValue) Float32() float32 {
	if p.Kind == ParamInt {
		return float32(p.Int)
	}
	return float32(p.Flt)
}

// Velocity is a GUIDED-mode velocity setpoint.
type Velocity struct {
	LinearX  float64 // m/s
	AngularZ float64 // rad/s
}

// Bridge is the Autopilot Bridge contract. Exactly one goroutine may call
// these methods — the navigator's single event-loop goroutine.
type Bridge interface {
	SetMode(ctx context.Context, mode Mode) error
	Arm(ctx context.Context, armed bool) error
	SetParameter(ctx context.Context, name string, value ParamValue) error
	SetCurrentWaypoint(ctx context.Context, index int) error
	OverrideRC(ctx context.Context, override ServoOverride) error
	PublishVelocity(ctx context.Context, v Velocity) error
	PushWaypoints(ctx context.Context, waypoints []mission.Waypoint) error
}

// Sender is the minimal MAVLink transport the bridge needs: write one
// message to every connected endpoint. gomavlib's *gomavlib.Node
// satisfies this directly via WriteMessageAll.
type Sender interface {
	WriteMessageAll(msg message.Message) error
}

// Sleeper abstracts time.Sleep so the settle delay can be faked in tests.
type Sleeper func(time.Duration)

// MAVLinkBridge implements Bridge over a MAVLink Sender, targeting the
// small rover command surface this core needs (no attitude/position
// targets — those belong to a fixed-wing/multirotor autopilot, not a
// ground rover).
type MAVLinkBridge struct {
	sender      Sender
	systemID    uint8
	componentID uint8
	targetSys   uint8
	sleep       Sleeper
	log         *logging.Entry
}

// NewMAVLinkBridge builds a bridge over the given Sender.
func NewMAVLinkBridge(sender Sender, systemID, componentID, targetSystem uint8) *MAVLinkBridge {
	return &MAVLinkBridge{
		sender:      sender,
		systemID:    systemID,
		componentID: componentID,
		targetSys:   targetSystem,
		sleep:       time.Sleep,
		log:         logging.For("autopilot"),
	}
}

// settle pauses for the autopilot's busy-avoidance window unless the
// context is already done.
func (b *MAVLinkBridge) settle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	b.sleep(settleDelay)
}

func (b *MAVLinkBridge) send(msg message.Message, action string) error {
	if err := b.sender.WriteMessageAll(msg); err != nil {
		return fmt.Errorf("autopilot bridge: %s: %w", action, err)
	}
	return nil
}
