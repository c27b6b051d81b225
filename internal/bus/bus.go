// Package bus binds the rover's external event topics to NATS subjects.
// Every inbound topic is delivered onto a buffered Go channel instead of a
// spawned handler goroutine: the navigator's event loop is the only
// consumer, and its handlers must never run concurrently with each other,
// so message delivery must never fan out into its own goroutine the way a
// generic pub/sub bridge would.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ridgeline-robotics/conenav/internal/autopilot"
	"github.com/ridgeline-robotics/conenav/internal/mission"
	"github.com/ridgeline-robotics/conenav/internal/vision"
	"github.com/ridgeline-robotics/conenav/pkg/logging"
)

// Subjects this core binds.
const (
	SubjectMissionWaypoints  = "mission.waypoints"
	SubjectRobotPose         = "robot.pose"
	SubjectConeLocations     = "cone.locations"
	SubjectSensorTouch       = "sensor.touch"
	SubjectMapWaypoints      = "map.waypoints"
	SubjectExecCmd           = "exec.cmd"
	SubjectAutopilotState    = "autopilot.state"
	SubjectServoOverride     = "servo.override"
	SubjectVelocitySetpoint  = "velocity.setpoint"
	SubjectNavigatorState    = "navigator.state"
	SubjectWaypointsAdjusted = "waypoints.adjusted"
)

// Config holds connection settings for the event bus. This is
// infrastructure wiring, not a navigation tunable, so it lives alongside
// the bus rather than in internal/config.
type Config struct {
	URL           string
	ClientName    string
	ReconnectWait time.Duration
	MaxReconnects int
	BufferSize    int
}

// DefaultConfig returns sane local-broker defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		ClientName:    "conenav",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
		BufferSize:    64,
	}
}

// Bus is the navigator's event bus connection. All subscriptions deliver
// onto the channel fields below; Start must be called exactly once before
// the channels are read.
type Bus struct {
	mu   sync.RWMutex
	nc   *nats.Conn
	subs []*nats.Subscription
	cfg  Config
	log  *logging.Entry

	Waypoints      chan mission.Mission
	Pose           chan mission.Pose
	ConeLocations  chan []vision.Detection
	Touch          chan bool
	MapWaypoints   chan []mission.Waypoint
	ExecCmd        chan string
	AutopilotState chan string
}

// New builds an unconnected Bus; call Connect then Start.
func New(cfg Config) *Bus {
	return &Bus{
		cfg:            cfg,
		log:            logging.For("bus"),
		Waypoints:      make(chan mission.Mission, cfg.BufferSize),
		Pose:           make(chan mission.Pose, cfg.BufferSize),
		ConeLocations:  make(chan []vision.Detection, cfg.BufferSize),
		Touch:          make(chan bool, cfg.BufferSize),
		MapWaypoints:   make(chan []mission.Waypoint, cfg.BufferSize),
		ExecCmd:        make(chan string, cfg.BufferSize),
		AutopilotState: make(chan string, cfg.BufferSize),
	}
}

// Connect dials the NATS server.
func (b *Bus) Connect() error {
	nc, err := nats.Connect(b.cfg.URL,
		nats.Name(b.cfg.ClientName),
		nats.ReconnectWait(b.cfg.ReconnectWait),
		nats.MaxReconnects(b.cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.log.WithError(err).Warn("disconnected from event bus")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.log.WithField("url", nc.ConnectedUrl()).Info("reconnected to event bus")
		}),
	)
	if err != nil {
		return fmt.Errorf("bus: connect: %w", err)
	}
	b.mu.Lock()
	b.nc = nc
	b.mu.Unlock()
	return nil
}

// Start subscribes every inbound topic onto its channel.
func (b *Bus) Start() error {
	b.mu.RLock()
	nc := b.nc
	b.mu.RUnlock()
	if nc == nil {
		return fmt.Errorf("bus: start: not connected")
	}

	subs := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{SubjectMissionWaypoints, b.onWaypoints},
		{SubjectRobotPose, b.onPose},
		{SubjectConeLocations, b.onConeLocations},
		{SubjectSensorTouch, b.onTouch},
		{SubjectMapWaypoints, b.onMapWaypoints},
		{SubjectExecCmd, b.onExecCmd},
		{SubjectAutopilotState, b.onAutopilotState},
	}

	for _, s := range subs {
		sub, err := nc.Subscribe(s.subject, s.handler)
		if err != nil {
			return fmt.Errorf("bus: subscribe %s: %w", s.subject, err)
		}
		b.mu.Lock()
		b.subs = append(b.subs, sub)
		b.mu.Unlock()
		b.log.WithField("subject", s.subject).Info("subscribed")
	}
	return nil
}

// Stop unsubscribes and drains the connection.
func (b *Bus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}

func (b *Bus) deliver(err error, subject string, send func()) {
	if err != nil {
		b.log.WithError(err).WithField("subject", subject).Warn("failed to decode message")
		return
	}
	send()
}

func (b *Bus) onWaypoints(msg *nats.Msg) {
	var m mission.Mission
	err := json.Unmarshal(msg.Data, &m)
	b.deliver(err, msg.Subject, func() {
		select {
		case b.Waypoints <- m:
		default:
			b.log.Warn("waypoints channel full, dropping update")
		}
	})
}

func (b *Bus) onPose(msg *nats.Msg) {
	var p mission.Pose
	err := json.Unmarshal(msg.Data, &p)
	b.deliver(err, msg.Subject, func() {
		select {
		case b.Pose <- p:
		default:
			// Pose is high-frequency; drop oldest rather than block.
			select {
			case <-b.Pose:
			default:
			}
			b.Pose <- p
		}
	})
}

func (b *Bus) onConeLocations(msg *nats.Msg) {
	var detections []vision.Detection
	err := json.Unmarshal(msg.Data, &detections)
	b.deliver(err, msg.Subject, func() {
		select {
		case b.ConeLocations <- detections:
		default:
			<-b.ConeLocations
			b.ConeLocations <- detections
		}
	})
}

func (b *Bus) onTouch(msg *nats.Msg) {
	var touched bool
	err := json.Unmarshal(msg.Data, &touched)
	b.deliver(err, msg.Subject, func() {
		select {
		case b.Touch <- touched:
		default:
			b.log.Warn("touch channel full, dropping event")
		}
	})
}

func (b *Bus) onMapWaypoints(msg *nats.Msg) {
	var waypoints []mission.Waypoint
	err := json.Unmarshal(msg.Data, &waypoints)
	b.deliver(err, msg.Subject, func() {
		select {
		case b.MapWaypoints <- waypoints:
		default:
			<-b.MapWaypoints
			b.MapWaypoints <- waypoints
		}
	})
}

func (b *Bus) onExecCmd(msg *nats.Msg) {
	cmd := string(msg.Data)
	select {
	case b.ExecCmd <- cmd:
	default:
		b.log.Warn("exec_cmd channel full, dropping command")
	}
}

func (b *Bus) onAutopilotState(msg *nats.Msg) {
	mode := string(msg.Data)
	select {
	case b.AutopilotState <- mode:
	default:
		<-b.AutopilotState
		b.AutopilotState <- mode
	}
}

// publish marshals v as JSON and publishes it to subject.
func (b *Bus) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal for %s: %w", subject, err)
	}
	b.mu.RLock()
	nc := b.nc
	b.mu.RUnlock()
	if nc == nil {
		return fmt.Errorf("bus: publish %s: not connected", subject)
	}
	return nc.Publish(subject, data)
}

// WaypointsCh exposes the mission-waypoints channel for the navigator's
// event loop (internal/navigator.EventSource).
func (b *Bus) WaypointsCh() <-chan mission.Mission { return b.Waypoints }

// PoseCh exposes the robot-pose channel.
func (b *Bus) PoseCh() <-chan mission.Pose { return b.Pose }

// ConeLocationsCh exposes the cone-detections channel.
func (b *Bus) ConeLocationsCh() <-chan []vision.Detection { return b.ConeLocations }

// TouchCh exposes the touch-sensor channel.
func (b *Bus) TouchCh() <-chan bool { return b.Touch }

// MapWaypointsCh exposes the map-waypoints channel.
func (b *Bus) MapWaypointsCh() <-chan []mission.Waypoint { return b.MapWaypoints }

// ExecCmdCh exposes the exec-command channel.
func (b *Bus) ExecCmdCh() <-chan string { return b.ExecCmd }

// AutopilotStateCh exposes the autopilot-mode channel.
func (b *Bus) AutopilotStateCh() <-chan string { return b.AutopilotState }

// PublishServoOverride publishes the latest servo override.
func (b *Bus) PublishServoOverride(o autopilot.ServoOverride) error {
	return b.publish(SubjectServoOverride, o)
}

// PublishVelocity publishes a GUIDED-mode velocity setpoint.
func (b *Bus) PublishVelocity(v autopilot.Velocity) error {
	return b.publish(SubjectVelocitySetpoint, v)
}

// PublishNavigatorState publishes the latched current-state name.
func (b *Bus) PublishNavigatorState(state string) error {
	return b.publish(SubjectNavigatorState, state)
}

// PublishAdjustedWaypoints publishes the origin-relative waypoint list
// produced by ADJUST_WAYPOINTS.
func (b *Bus) PublishAdjustedWaypoints(waypoints []mission.Waypoint) error {
	return b.publish(SubjectWaypointsAdjusted, waypoints)
}
