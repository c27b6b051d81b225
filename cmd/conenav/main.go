// Command conenav runs the Robo-Magellan cone-navigation core: it drives
// the navigator state machine against an autopilot reachable over MAVLink
// and an event bus reachable over NATS, and exposes a read-only HTTP/WS
// status surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/ridgeline-robotics/conenav/internal/autopilot"
	"github.com/ridgeline-robotics/conenav/internal/bus"
	"github.com/ridgeline-robotics/conenav/internal/config"
	"github.com/ridgeline-robotics/conenav/internal/httpapi"
	"github.com/ridgeline-robotics/conenav/internal/navigator"
	"github.com/ridgeline-robotics/conenav/internal/telemetry"
	"github.com/ridgeline-robotics/conenav/pkg/logging"
)

const appName = "conenav"

func main() {
	startedAt := time.Now()

	configPath := flag.String("config", "", "path to a YAML config file overlaying defaults")
	mavlinkAddr := flag.String("mavlink-addr", "127.0.0.1:14550", "UDP endpoint the autopilot publishes MAVLink on")
	systemID := flag.Uint("system-id", 255, "MAVLink system ID this core identifies as")
	componentID := flag.Uint("component-id", 1, "MAVLink component ID this core identifies as")
	targetSystem := flag.Uint("target-system", 1, "MAVLink system ID of the autopilot being driven")
	natsURL := flag.String("nats-url", "", "NATS server URL (overrides the bus default)")
	httpAddr := flag.String("http-addr", ":8080", "address for the read-only HTTP/WS status surface")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logging.SetLevel(*logLevel)
	log := logging.For(appName)

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointUDPClient{Address: *mavlinkAddr},
		},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: byte(*systemID),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open MAVLink node")
	}
	defer node.Close()

	bridge := autopilot.NewMAVLinkBridge(node, byte(*systemID), byte(*componentID), byte(*targetSystem))

	if cfg.GCSID != nil {
		gcsCtx, gcsCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := bridge.SetParameter(gcsCtx, "SYSID_MYGCS", autopilot.IntParam(int64(*cfg.GCSID))); err != nil {
			log.WithError(err).Warn("failed to set SYSID_MYGCS")
		}
		gcsCancel()
	}

	busCfg := bus.DefaultConfig()
	if *natsURL != "" {
		busCfg.URL = *natsURL
	}
	eventBus := bus.New(busCfg)
	if err := eventBus.Connect(); err != nil {
		log.WithError(err).Fatal("failed to connect to event bus")
	}
	if err := eventBus.Start(); err != nil {
		log.WithError(err).Fatal("failed to subscribe event bus topics")
	}
	defer eventBus.Stop()

	telemetry.Get()

	nav := navigator.New(bridge, eventBus, cfg)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: httpapi.NewRouter(nav, startedAt),
	}
	go func() {
		log.WithField("addr", *httpAddr).Info("status surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("status surface stopped unexpectedly")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	navErrCh := make(chan error, 1)
	go func() {
		navErrCh <- nav.Run(ctx, eventBus)
	}()

	log.Info(fmt.Sprintf("%s ready: mavlink=%s nats=%s http=%s", appName, *mavlinkAddr, busCfg.URL, *httpAddr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-navErrCh:
		if err != nil && err != context.Canceled {
			log.WithError(err).Error("navigator event loop exited")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("status surface shutdown did not complete cleanly")
	}

	log.Info("shutdown complete")
}
