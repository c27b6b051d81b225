package navigator

import (
	"context"
	"time"

	"github.com/ridgeline-robotics/conenav/internal/autopilot"
	"github.com/ridgeline-robotics/conenav/internal/config"
	"github.com/ridgeline-robotics/conenav/internal/control"
	"github.com/ridgeline-robotics/conenav/internal/geometry"
	"github.com/ridgeline-robotics/conenav/internal/httpapi"
	"github.com/ridgeline-robotics/conenav/internal/mission"
	"github.com/ridgeline-robotics/conenav/internal/telemetry"
	"github.com/ridgeline-robotics/conenav/internal/vision"
	"github.com/ridgeline-robotics/conenav/pkg/logging"
)

// EventSource is the set of channels the navigator's event loop selects
// over. *bus.Bus satisfies this directly.
type EventSource interface {
	WaypointsCh() <-chan mission.Mission
	PoseCh() <-chan mission.Pose
	ConeLocationsCh() <-chan []vision.Detection
	TouchCh() <-chan bool
	MapWaypointsCh() <-chan []mission.Waypoint
	ExecCmdCh() <-chan string
	AutopilotStateCh() <-chan string
}

// Publisher is the navigator's outbound command/status surface.
type Publisher interface {
	PublishServoOverride(autopilot.ServoOverride) error
	PublishVelocity(autopilot.Velocity) error
	PublishNavigatorState(string) error
	PublishAdjustedWaypoints([]mission.Waypoint) error
}

// Navigator owns the navigation state machine's context and runs its
// event loop. Exactly one goroutine — the one running Run, or a test
// calling the Handle* methods directly — may touch its fields; this is
// enforced by convention, not locks.
type Navigator struct {
	bridge    autopilot.Bridge
	publisher Publisher
	cfg       config.Config
	intrin    vision.Intrinsics
	metrics   *telemetry.Metrics
	log       *logging.Entry

	// schedule arranges for a LIMBO continuation to run later without
	// blocking the event loop. The default posts onto limboCh, which only
	// Run's own goroutine drains, so the continuation still executes
	// single-threaded with every other handler even though the timer
	// firing is a separate goroutine. Tests may swap this for a
	// synchronous stub.
	schedule func(d time.Duration, f func())
	limboCh  chan func()

	state State

	mission     mission.Mission
	haveMission bool
	pose        mission.Pose
	havePose    bool

	coneWpIndex       int
	haveConeWpIndex   bool
	coneIsClose       bool
	coneLostCount     int
	coneApproachStart time.Time

	mapWaypoints []mission.Waypoint

	sweepTarget float64
	phase       sweepPhase

	escapeTargetHeading float64

	lastStatusPublish time.Time
}

// New builds a Navigator in WAITING_FOR_START.
func New(bridge autopilot.Bridge, publisher Publisher, cfg config.Config) *Navigator {
	n := &Navigator{
		bridge:    bridge,
		publisher: publisher,
		cfg:       cfg,
		intrin:    vision.Intrinsics{HorzFOVRadians: cfg.HorzFOVDegrees * (3.141592653589793 / 180), HorzPixels: float64(cfg.HorzPixels)},
		metrics:   telemetry.Get(),
		log:       logging.For("navigator"),
		limboCh:   make(chan func(), 4),
		state:     StateWaitingForStart,
	}
	n.schedule = func(d time.Duration, f func()) {
		time.AfterFunc(d, func() {
			n.limboCh <- f
		})
	}
	return n
}

// State returns the navigator's current state.
func (n *Navigator) State() State { return n.state }

// Status snapshots the navigator's publicly observable state for the
// HTTP/websocket surface.
func (n *Navigator) Status() httpapi.Status {
	idx := 0
	if n.haveConeWpIndex {
		idx = n.coneWpIndex
	}
	return httpapi.Status{
		State:       n.state.String(),
		MissionSeq:  n.mission.CurrentSeq,
		ConeWpIndex: idx,
		LastTick:    n.lastStatusPublish,
	}
}

// Run drives the event loop until ctx is cancelled. No command is sent
// on shutdown; in-flight LIMBO timers are allowed to complete
// independently.
func (n *Navigator) Run(ctx context.Context, events EventSource) error {
	ticker := time.NewTicker(n.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m := <-events.WaypointsCh():
			n.HandleWaypoints(ctx, m)

		case p := <-events.PoseCh():
			n.HandlePose(ctx, p)

		case detections := <-events.ConeLocationsCh():
			n.HandleConeLocations(ctx, detections)

		case touched := <-events.TouchCh():
			n.HandleTouch(ctx, touched)

		case wps := <-events.MapWaypointsCh():
			n.mapWaypoints = wps

		case cmd := <-events.ExecCmdCh():
			n.HandleExecCmd(ctx, cmd)

		case mode := <-events.AutopilotStateCh():
			n.HandleAutopilotState(ctx, mode)

		case fn := <-n.limboCh:
			fn()

		case <-ticker.C:
			n.Tick(ctx)
		}
	}
}

// setState republishes the latched navigator-state topic whenever it
// changes, so the topic always matches the state variable.
func (n *Navigator) setState(ctx context.Context, s State) {
	if s == n.state {
		return
	}
	n.metrics.RecordTransition(n.state.String(), s.String())
	n.log.WithField("from", n.state.String()).WithField("to", s.String()).Info("state transition")
	n.state = s
	if err := n.publisher.PublishNavigatorState(s.String()); err != nil {
		n.log.WithError(err).Warn("failed to publish navigator state")
	}
}

func (n *Navigator) enterLimbo(ctx context.Context, after time.Duration, next func()) {
	n.setState(ctx, StateLimbo)
	n.schedule(after, next)
}

// Tick republishes the current state (status topic latching) and is the
// only place periodic housekeeping happens; LIMBO ignores all events,
// including the tick.
func (n *Navigator) Tick(ctx context.Context) {
	n.lastStatusPublish = time.Now()
	if n.state == StateLimbo {
		return
	}
	if n.state == StateDrivingToCone && n.cfg.ConeTimeoutSeconds > 0 {
		limit := time.Duration(n.cfg.ConeTimeoutSeconds) * time.Second
		if time.Since(n.coneApproachStart) > limit {
			n.log.WithField("cone_wp_index", n.coneWpIndex).Warn("cone approach timed out, returning to circling back")
			n.beginCirclingBack(ctx)
			return
		}
	}
	if err := n.publisher.PublishNavigatorState(n.state.String()); err != nil {
		n.log.WithError(err).Warn("failed to publish navigator state on tick")
	}
}

// HandleExecCmd implements transition rules 1 and 12.
func (n *Navigator) HandleExecCmd(ctx context.Context, cmd string) {
	if n.state == StateLimbo {
		return
	}

	switch cmd {
	case "START":
		if n.state != StateWaitingForStart {
			return
		}
		if err := n.mission.Validate(); err != nil {
			n.log.WithError(err).Warn("refusing START: invalid mission")
			return
		}
		if err := n.bridge.Arm(ctx, true); err != nil {
			n.metrics.RecordCommand("arm", err)
			n.log.WithError(err).Warn("arm failed on START")
		} else {
			n.metrics.RecordCommand("arm", nil)
		}
		n.enterLimbo(ctx, 1*time.Second, func() {
			n.beginFollowingWaypoints(ctx)
		})

	case "RESET":
		n.sendManualCommand(ctx, control.Command{})
		n.coneWpIndex = 0
		n.haveConeWpIndex = false
		n.coneIsClose = false
		n.coneLostCount = 0
		n.setState(ctx, StateWaitingForStart)

	case "ADJUST_WAYPOINTS":
		if len(n.mapWaypoints) == 0 {
			n.log.Warn("refusing ADJUST_WAYPOINTS: no map waypoints available")
			return
		}
		adjusted := mission.AdjustToOrigin(n.mapWaypoints)
		if err := n.publisher.PublishAdjustedWaypoints(adjusted); err != nil {
			n.log.WithError(err).Warn("failed to publish adjusted waypoints")
		}
	}
}

func (n *Navigator) beginFollowingWaypoints(ctx context.Context) {
	if err := n.bridge.PushWaypoints(ctx, n.mission.Waypoints); err != nil {
		n.metrics.RecordCommand("push_waypoints", err)
		n.log.WithError(err).Warn("push waypoints failed")
	} else {
		n.metrics.RecordCommand("push_waypoints", nil)
	}
	if err := n.bridge.SetMode(ctx, autopilot.ModeAuto); err != nil {
		n.metrics.RecordCommand("set_mode", err)
		n.log.WithError(err).Warn("set mode AUTO failed")
	} else {
		n.metrics.RecordCommand("set_mode", nil)
	}
	n.setState(ctx, StateFollowingWaypoints)
}

// HandleWaypoints implements transition rules 2 (via HandleAutopilotState),
// 3 and 4.
func (n *Navigator) HandleWaypoints(ctx context.Context, m mission.Mission) {
	if n.state == StateLimbo {
		return
	}

	prevSeq := n.mission.CurrentSeq
	prevMission := n.mission
	n.mission = m
	n.haveMission = true

	if n.state != StateFollowingWaypoints {
		return
	}

	if n.haveConeWpIndex && m.CurrentSeq > n.coneWpIndex {
		// Missed cone: mission advanced past it without a touch.
		n.beginCirclingBack(ctx)
		return
	}

	if m.CurrentSeq == prevSeq {
		return
	}

	oldSpeed := prevMission.CruiseSpeed(prevSeq, n.cfg.NormalSpeed)
	newSpeed := m.CruiseSpeed(m.CurrentSeq, n.cfg.NormalSpeed)
	if newSpeed != oldSpeed {
		n.applyCruiseSpeed(ctx, newSpeed)
	}

	decoded := mission.Decode(m.Waypoints[m.CurrentSeq].Z)
	if decoded.IsCone {
		n.coneWpIndex = m.CurrentSeq
		n.haveConeWpIndex = true
		n.coneIsClose = false
	}
}

// applyCruiseSpeed performs the HOLD -> CRUISE_SPEED -> AUTO dance the
// autopilot requires before accepting a new cruise speed.
func (n *Navigator) applyCruiseSpeed(ctx context.Context, speed float64) {
	if err := n.bridge.SetMode(ctx, autopilot.ModeHold); err != nil {
		n.metrics.RecordCommand("set_mode", err)
		n.log.WithError(err).Warn("set mode HOLD failed (cruise speed update)")
	}
	if err := n.bridge.SetParameter(ctx, "CRUISE_SPEED", autopilot.FloatParam(speed)); err != nil {
		n.metrics.RecordCommand("set_parameter", err)
		n.log.WithError(err).Warn("set CRUISE_SPEED failed")
	} else {
		n.metrics.RecordCommand("set_parameter", nil)
	}
	if err := n.bridge.SetMode(ctx, autopilot.ModeAuto); err != nil {
		n.metrics.RecordCommand("set_mode", err)
		n.log.WithError(err).Warn("set mode AUTO failed (cruise speed update)")
	}
}

// HandleAutopilotState implements transition rule 2.
func (n *Navigator) HandleAutopilotState(ctx context.Context, mode string) {
	if n.state == StateLimbo {
		return
	}
	if n.state == StateFollowingWaypoints && mode == string(autopilot.ModeHold) {
		n.beginCirclingBack(ctx)
	}
}

func (n *Navigator) beginCirclingBack(ctx context.Context) {
	if !n.havePose {
		n.setState(ctx, StateCirclingBack)
		return
	}
	if err := n.bridge.SetMode(ctx, autopilot.ModeManual); err != nil {
		n.metrics.RecordCommand("set_mode", err)
	}
	n.sweepTarget = geometry.Normalize(n.pose.Heading() + sweepIncrement)
	n.phase = sweepBack
	n.metrics.SearchSweeps.WithLabelValues("back").Inc()
	n.setState(ctx, StateCirclingBack)
}

const sweepIncrement = 175 * (3.141592653589793 / 180)

// HandleConeLocations implements transition rules 5, 6, 7 and 10.
func (n *Navigator) HandleConeLocations(ctx context.Context, detections []vision.Detection) {
	if n.state == StateLimbo {
		return
	}

	switch n.state {
	case StateFollowingWaypoints, StateCirclingBack, StateCirclingForward:
		if !n.haveConeWpIndex {
			if n.state == StateCirclingBack || n.state == StateCirclingForward {
				n.advanceSweep(ctx, nil)
			}
			return
		}
		if d, ok := vision.Select(detections, n.cfg.ConeRecoveryMinArea); ok {
			n.metrics.ConeDetectionsTotal.WithLabelValues("recovery").Inc()
			n.beginDrivingToCone(ctx, d)
			return
		}
		if n.state == StateCirclingBack || n.state == StateCirclingForward {
			n.advanceSweep(ctx, nil)
		}

	case StateDrivingToCone:
		if d, ok := vision.Select(detections, n.cfg.ConeNormalMinArea); ok {
			n.metrics.ConeDetectionsTotal.WithLabelValues("normal").Inc()
			n.coneLostCount = 0
			n.applyApproach(ctx, d)
			return
		}
		n.coneLostCount++
		n.metrics.ConeLostStreak.Set(float64(n.coneLostCount))
		if n.coneLostCount > n.cfg.ConeLostLimit {
			n.beginCirclingBack(ctx)
		}
	}
}

func (n *Navigator) beginDrivingToCone(ctx context.Context, d vision.Detection) {
	n.coneLostCount = 0
	n.coneApproachStart = time.Now()
	n.setState(ctx, StateDrivingToCone)
	n.applyApproach(ctx, d)
}

func (n *Navigator) applyApproach(ctx context.Context, d vision.Detection) {
	distance := vision.Distance(d)
	heading := vision.Heading(d, n.intrin)

	decoded := mission.Decode(n.mission.Waypoints[n.coneWpIndex].Z)
	params := control.ApproachParams{
		KSpeed:            n.cfg.ConeApproachKSpeed,
		KTurning:          n.cfg.ConeApproachKTurning,
		MaxTurning:        n.cfg.MaxTurning,
		NormalSpeed:       n.cfg.NormalSpeed,
		MinSpeed:          n.cfg.MinSpeed,
		MaxSpeedFactor:    decoded.CruiseFactor,
		ConeCloseDistance: n.cfg.ConeCloseDistance,
	}
	cmd, isClose := control.Approach(distance, heading, n.coneIsClose, params)
	n.coneIsClose = isClose
	n.metrics.ConeApproachSpeed.Set(cmd.Speed)
	n.metrics.ConeApproachTurning.Set(cmd.Turning)

	if n.cfg.ConeApproachUseThrottle {
		n.sendManualCommand(ctx, cmd)
		return
	}

	linearX, angularZ := control.GuidedVelocity(cmd, n.cfg.NormalSpeed, n.cfg.MinSpeed, n.cfg.MaxTurning)
	if err := n.bridge.SetMode(ctx, autopilot.ModeGuided); err != nil {
		n.metrics.RecordCommand("set_mode", err)
	}
	v := autopilot.Velocity{LinearX: linearX, AngularZ: angularZ}
	if err := n.bridge.PublishVelocity(ctx, v); err != nil {
		n.metrics.RecordCommand("publish_velocity", err)
		n.log.WithError(err).Warn("publish velocity failed")
		return
	}
	n.metrics.RecordCommand("publish_velocity", nil)
	if err := n.publisher.PublishVelocity(v); err != nil {
		n.log.WithError(err).Warn("failed to publish velocity to status topic")
	}
}

func (n *Navigator) sendManualCommand(ctx context.Context, cmd control.Command) {
	throttle := autopilot.PWMLimits{
		Neutral: uint16(n.cfg.ThrottleNeutral), FwdMin: uint16(n.cfg.ThrottleFwdMin), FwdMax: uint16(n.cfg.ThrottleFwdMax),
		RevMin: uint16(n.cfg.ThrottleReverseMin), RevMax: uint16(n.cfg.ThrottleReverseMax),
	}
	steering := autopilot.PWMLimits{
		Neutral: uint16(n.cfg.SteeringNeutral), FwdMax: uint16(n.cfg.SteeringRightMax), RevMax: uint16(n.cfg.SteeringLeftMax),
	}
	override := autopilot.Override(cmd.Speed, cmd.Turning, throttle, steering)
	if err := n.bridge.OverrideRC(ctx, override); err != nil {
		n.metrics.RecordCommand("override_rc", err)
		n.log.WithError(err).Warn("servo override failed")
		return
	}
	n.metrics.RecordCommand("override_rc", nil)
	if err := n.publisher.PublishServoOverride(override); err != nil {
		n.log.WithError(err).Warn("failed to publish servo override to status topic")
	}
}

// advanceSweep implements the two-phase recovery sweep.
func (n *Navigator) advanceSweep(ctx context.Context, detections []vision.Detection) {
	if len(detections) > 0 {
		if d, ok := vision.Select(detections, n.cfg.ConeRecoveryMinArea); ok {
			n.beginDrivingToCone(ctx, d)
			return
		}
	}
	if !n.havePose {
		return
	}

	diff := geometry.Normalize(n.sweepTarget - n.pose.Heading())
	params := control.SweepParams{
		Speed:          minf(n.cfg.MinSpeed*n.cfg.CirclingRelativeSpeed, 1.0),
		MaxTurning:     n.cfg.MaxTurning,
		AngleTolerance: n.cfg.CirclingAngleTolerance,
	}
	cmd, aligned := control.SweepTick(diff, params)
	if !aligned {
		n.sendManualCommand(ctx, cmd)
		return
	}

	switch n.phase {
	case sweepBack:
		n.sweepTarget = geometry.Normalize(n.sweepTarget + sweepIncrement)
		n.phase = sweepForward
		n.metrics.SearchSweeps.WithLabelValues("forward").Inc()
		n.setState(ctx, StateCirclingForward)

	case sweepForward:
		// Second sweep completed without recovering the cone.
		if n.haveConeWpIndex && n.coneWpIndex < n.mission.LastIndex() {
			n.resumeFollowingAt(ctx, n.coneWpIndex+1)
			return
		}
		if err := n.bridge.SetMode(ctx, autopilot.ModeHold); err != nil {
			n.metrics.RecordCommand("set_mode", err)
		}
		n.metrics.MissionsCompleted.WithLabelValues("failed").Inc()
		n.setState(ctx, StateFailed)
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// HandlePose implements transition rule 11 and feeds sweep/escape tracking.
func (n *Navigator) HandlePose(ctx context.Context, p mission.Pose) {
	if n.state == StateLimbo {
		return
	}
	n.pose = p
	n.havePose = true

	if n.state == StateEscapingCone {
		n.alignedBackupTick(ctx)
	}
}

func (n *Navigator) alignedBackupTick(ctx context.Context) {
	diff := geometry.Normalize(n.escapeTargetHeading - n.pose.Heading())
	params := control.AlignedBackupParams{
		KSpeed: n.cfg.EscapeKSpeed, KTurning: n.cfg.EscapeKTurning,
		MinSpeed: n.cfg.EscapeMinSpeed, MaxSpeed: 1.0, MaxTurning: n.cfg.MaxTurning,
		AngleTolerance: n.cfg.EscapeAngleTolerance,
	}
	cmd, aligned := control.AlignedBackupTick(diff, params)
	if !aligned {
		n.sendManualCommand(ctx, cmd)
		return
	}

	n.sendManualCommand(ctx, control.Command{})
	nextIndex := n.coneWpIndex + 1
	n.enterLimbo(ctx, time.Duration(n.cfg.DirectionChangeIdleDuration*float64(time.Second)), func() {
		n.resumeFollowingAt(ctx, nextIndex)
	})
}

func (n *Navigator) resumeFollowingAt(ctx context.Context, index int) {
	n.haveConeWpIndex = false
	n.coneIsClose = false
	if index > n.mission.LastIndex() {
		if err := n.bridge.SetMode(ctx, autopilot.ModeHold); err != nil {
			n.metrics.RecordCommand("set_mode", err)
		}
		n.metrics.MissionsCompleted.WithLabelValues("completed").Inc()
		n.setState(ctx, StateFinished)
		return
	}
	if err := n.bridge.SetCurrentWaypoint(ctx, index); err != nil {
		n.metrics.RecordCommand("set_current_waypoint", err)
		n.log.WithError(err).Warn("set current waypoint failed")
	} else {
		n.metrics.RecordCommand("set_current_waypoint", nil)
	}
	if err := n.bridge.SetMode(ctx, autopilot.ModeAuto); err != nil {
		n.metrics.RecordCommand("set_mode", err)
	}
	n.setState(ctx, StateFollowingWaypoints)
}

// HandleTouch implements transition rules 8 and 9.
func (n *Navigator) HandleTouch(ctx context.Context, touched bool) {
	if n.state != StateDrivingToCone || !touched {
		return
	}

	if n.haveConeWpIndex && n.coneWpIndex == n.mission.LastIndex() {
		n.sendManualCommand(ctx, control.Command{})
		if err := n.bridge.SetMode(ctx, autopilot.ModeHold); err != nil {
			n.metrics.RecordCommand("set_mode", err)
		}
		n.metrics.MissionsCompleted.WithLabelValues("completed").Inc()
		n.setState(ctx, StateFinished)
		return
	}

	coneWpIndex := n.coneWpIndex
	reverseSpeed := n.cfg.DirectionChangeReverseSpeed
	reverseDuration := time.Duration(n.cfg.DirectionChangeReverseDuration * float64(time.Second))
	idleDuration := time.Duration(n.cfg.DirectionChangeIdleDuration * float64(time.Second))

	n.sendManualCommand(ctx, control.Command{Speed: reverseSpeed})
	n.enterLimbo(ctx, reverseDuration, func() {
		n.sendManualCommand(ctx, control.Command{})
		n.schedule(idleDuration, func() {
			n.dispatchEscape(ctx, coneWpIndex)
		})
	})
}

func (n *Navigator) dispatchEscape(ctx context.Context, coneWpIndex int) {
	switch n.cfg.EscapeStrategy {
	case config.EscapeAlignedBackup:
		if coneWpIndex < len(n.mapWaypoints) && coneWpIndex+1 < len(n.mapWaypoints) {
			n.escapeTargetHeading = geometry.Bearing(n.mapWaypoints[coneWpIndex].Point(), n.mapWaypoints[coneWpIndex+1].Point())
		} else if coneWpIndex < len(n.mission.Waypoints) && coneWpIndex+1 < len(n.mission.Waypoints) {
			n.escapeTargetHeading = geometry.Bearing(n.mission.Waypoints[coneWpIndex].Point(), n.mission.Waypoints[coneWpIndex+1].Point())
		}
		n.setState(ctx, StateEscapingCone)

	default: // simple_backup
		backupDuration := time.Duration(n.cfg.EscapeBackupDuration * float64(time.Second))
		n.sendManualCommand(ctx, control.Command{Speed: -n.cfg.EscapeMinSpeed})
		n.enterLimbo(ctx, backupDuration, func() {
			n.sendManualCommand(ctx, control.Command{})
			n.schedule(2*time.Second, func() {
				n.resumeFollowingAt(ctx, coneWpIndex+1)
			})
		})
	}
}
