// Package httpapi exposes the navigation core's read-only observability
// surface: health, current status and Prometheus metrics. It never issues
// navigator commands — the bus is the only command path.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider is satisfied by the navigator: a read-only snapshot of
// its current state for /statusz and the live status stream.
type StatusProvider interface {
	Status() Status
}

// Status is the navigator's latched, publicly observable state.
type Status struct {
	State       string    `json:"state"`
	MissionSeq  int       `json:"mission_seq"`
	ConeWpIndex int       `json:"cone_wp_index,omitempty"`
	LastTick    time.Time `json:"last_tick"`
}

// NewRouter builds the HTTP surface. startedAt is reported by /healthz for
// uptime; provider supplies /statusz and the live status stream.
func NewRouter(provider StatusProvider, startedAt time.Time) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"uptime_seconds": time.Since(startedAt).Seconds(),
		})
	})

	r.Get("/statusz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(provider.Status())
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws/status", NewStatusStream(provider).HandleWebSocket)

	return r
}
