// Package cmd implements the ncpbridge subcommands.
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/wpantools/ncpbridge/internal/config"
	"github.com/wpantools/ncpbridge/internal/dbus"
	"github.com/wpantools/ncpbridge/internal/events"
	"github.com/wpantools/ncpbridge/internal/logging"
	"github.com/wpantools/ncpbridge/internal/ncp"
	"github.com/wpantools/ncpbridge/internal/netif"
)

// selectTimeout bounds each pass of the I/O loop so signals and hub
// events are picked up even on an idle bus.
const selectTimeout = 500 * time.Millisecond

// RunDaemon runs the bridge in the foreground until SIGINT or SIGTERM.
func RunDaemon(configFile, ifaceOverride string) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return err
	}
	if ifaceOverride != "" {
		cfg.Interface = ifaceOverride
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if err := setupLogging(cfg.Log); err != nil {
		return err
	}
	log := logging.WithComponent("daemon")

	// Pre-flight only: the daemon may bring the link up later, so a
	// missing or down interface is worth a warning, not a refusal.
	if st, err := netif.Lookup(cfg.Interface); err != nil {
		log.Warn("interface not present yet", "interface", cfg.Interface, "error", err)
	} else if !st.Up {
		log.Warn("interface is down", "interface", cfg.Interface, "operstate", st.OperState)
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, log)
	}

	hub := events.NewHub()

	opts := []ncp.Option{
		ncp.WithAgentNamePrefix(cfg.AgentNamePrefix),
		ncp.WithTimeout(time.Duration(cfg.RPCTimeoutSeconds) * time.Second),
	}
	switch cfg.Bus {
	case config.BusSession:
		conn, err := dbus.Connect(dbus.SessionBus)
		if err != nil {
			return fmt.Errorf("connect session bus: %w", err)
		}
		opts = append(opts, ncp.WithBus(conn))
	case config.BusSystem:
		conn, err := dbus.Connect(dbus.SystemBus)
		if err != nil {
			return fmt.Errorf("connect system bus: %w", err)
		}
		opts = append(opts, ncp.WithBus(conn))
	}

	ctrl := ncp.New(cfg.Interface, hub, opts...)
	if err := ctrl.Init(); err != nil {
		return err
	}
	defer ctrl.Close()

	if err := ctrl.ProxyStart(); err != nil {
		// The daemon answers PropertyChanged-driven rebinding later,
		// so a cold start without wpantund is fine.
		log.Warn("proxy session not started", "error", err)
	}

	sub := hub.Subscribe(64,
		events.EventNCPState, events.EventNetworkName, events.EventExtPanID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigCh)

	log.Info("bridge running", "interface", cfg.Interface, "bus", cfg.Bus)

	for {
		select {
		case s := <-sigCh:
			log.Info("shutting down", "signal", s.String())
			return nil
		default:
		}
		drainEvents(log, sub)

		var readSet, writeSet, errorSet unix.FdSet
		maxFd := -1
		ctrl.UpdateFdSet(&readSet, &writeSet, &errorSet, &maxFd)
		if maxFd < 0 {
			time.Sleep(selectTimeout)
			continue
		}

		tv := unix.NsecToTimeval(int64(selectTimeout))
		n, err := unix.Select(maxFd+1, &readSet, &writeSet, &errorSet, &tv)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("select: %w", err)
		}
		if n > 0 {
			ctrl.Process(&readSet, &writeSet, &errorSet)
		}
	}
}

func setupLogging(lc *config.LogConfig) error {
	level := logging.LevelInfo
	if lc.Level != "" {
		var err error
		level, err = logging.ParseLevel(lc.Level)
		if err != nil {
			return err
		}
	}
	logging.SetDefault(logging.New(logging.Config{
		Level: level,
		JSON:  lc.JSON,
	}))
	return nil
}

func serveMetrics(listen string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", "listen", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Error("metrics server failed", "error", err)
	}
}

// drainEvents logs already-queued hub events without blocking.
func drainEvents(log *logging.Logger, sub <-chan events.Event) {
	for {
		select {
		case e := <-sub:
			logEvent(log, e)
		default:
			return
		}
	}
}

func logEvent(log *logging.Logger, e events.Event) {
	switch data := e.Data.(type) {
	case events.NCPStateData:
		log.Info("NCP association changed", "associated", data.Associated)
	case events.NetworkNameData:
		log.Info("network name changed", "name", data.Name)
	case events.ExtPanIDData:
		log.Info("extended PAN id changed", "xpanid", fmt.Sprintf("%x", data.ExtPanID))
	}
}
