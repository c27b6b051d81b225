// Package telemetry provides the navigation core's Prometheus metrics,
// sized to what the state machine actually produces: state transitions,
// command counts, and cone-approach/search activity.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every navigation core Prometheus metric.
type Metrics struct {
	StateTransitions    *prometheus.CounterVec
	CurrentState        *prometheus.GaugeVec
	TickDuration        prometheus.Histogram
	AutopilotCommands   *prometheus.CounterVec
	AutopilotErrors     *prometheus.CounterVec
	ConeDetectionsTotal *prometheus.CounterVec
	ConeLostStreak      prometheus.Gauge
	ConeApproachSpeed   prometheus.Gauge
	ConeApproachTurning prometheus.Gauge
	SearchSweeps        *prometheus.CounterVec
	MissionsCompleted   *prometheus.CounterVec
	BusMessagesIn       *prometheus.CounterVec
	BusMessagesOut      *prometheus.CounterVec
}

var (
	global *Metrics
	once   sync.Once
)

// Get returns the process-wide metrics instance, creating it on first use.
func Get() *Metrics {
	once.Do(func() {
		global = newMetrics()
	})
	return global
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "state_transitions_total",
			Help:      "Total navigator state transitions by source and target state",
		},
		[]string{"from", "to"},
	)

	m.CurrentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "conenav",
			Name:      "current_state",
			Help:      "1 for the navigator's current state, 0 for all others",
		},
		[]string{"state"},
	)

	m.TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "conenav",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent processing one event-loop iteration",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
	)

	m.AutopilotCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "autopilot_commands_total",
			Help:      "Total commands sent through the autopilot bridge",
		},
		[]string{"kind"},
	)

	m.AutopilotErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "autopilot_errors_total",
			Help:      "Total autopilot bridge command failures",
		},
		[]string{"kind"},
	)

	m.ConeDetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "cone_detections_total",
			Help:      "Total qualifying cone detections processed",
		},
		[]string{"phase"},
	)

	m.ConeLostStreak = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conenav",
			Name:      "cone_lost_streak",
			Help:      "Current consecutive-tick count with no qualifying cone detection",
		},
	)

	m.ConeApproachSpeed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conenav",
			Name:      "cone_approach_speed",
			Help:      "Last normalized speed command issued by the cone-approach controller",
		},
	)

	m.ConeApproachTurning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conenav",
			Name:      "cone_approach_turning",
			Help:      "Last turning command issued by the cone-approach controller",
		},
	)

	m.SearchSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "search_sweeps_total",
			Help:      "Total recovery sweeps started, by phase",
		},
		[]string{"phase"},
	)

	m.MissionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "missions_completed_total",
			Help:      "Total missions ending in FINISHED or FAILED",
		},
		[]string{"outcome"},
	)

	m.BusMessagesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "bus_messages_in_total",
			Help:      "Total inbound event bus messages by subject",
		},
		[]string{"subject"},
	)

	m.BusMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conenav",
			Name:      "bus_messages_out_total",
			Help:      "Total outbound event bus messages by subject",
		},
		[]string{"subject"},
	)

	return m
}

// RecordTransition records a state change and latches the gauge set.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
	m.CurrentState.WithLabelValues(from).Set(0)
	m.CurrentState.WithLabelValues(to).Set(1)
}

// RecordTick observes one event-loop iteration's duration.
func (m *Metrics) RecordTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

// RecordCommand records a successful or failed autopilot bridge call.
func (m *Metrics) RecordCommand(kind string, err error) {
	m.AutopilotCommands.WithLabelValues(kind).Inc()
	if err != nil {
		m.AutopilotErrors.WithLabelValues(kind).Inc()
	}
}
