// Package ncp bridges a border-router application to the wpantund NCP
// management daemon over a message bus. The controller resolves the
// daemon's bus identity for one interface, turns its PropertyChanged
// signals into typed events, and exposes synchronous property RPC and
// the proxy stream. All I/O is driven by a caller-owned select loop;
// nothing here spawns goroutines, and the controller must only be
// used from the loop's goroutine.
package ncp

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wpantools/ncpbridge/internal/dbus"
	"github.com/wpantools/ncpbridge/internal/events"
	"github.com/wpantools/ncpbridge/internal/logging"
	"github.com/wpantools/ncpbridge/internal/metrics"
)

// defaultAgentNamePrefix forms the well-known name the bridge claims;
// the interface name is appended.
const defaultAgentNamePrefix = "net.ncpbridge"

// Controller owns the bus connection and the daemon binding for one
// interface.
type Controller struct {
	ifname  string
	hub     *events.Hub
	log     *logging.Logger
	metrics *metrics.Registry

	bus         BusConn
	injectedBus bool
	agentPrefix string
	timeout     time.Duration

	// Daemon binding: unique bus name and object path of the daemon
	// instance serving ifname. Empty until resolved.
	daemonName string
	daemonPath dbus.ObjectPath

	// Watch registry: enabled flag per announced watch. Mutated only
	// by the bus session's callbacks during Init or dispatch.
	watches map[*dbus.Watch]bool

	// Hardware address cache; nil until fetched, never partial.
	eui64 []byte
}

// Option tweaks a Controller at construction.
type Option func(*Controller)

// WithBus injects a bus connection; Init then skips connecting.
func WithBus(bus BusConn) Option {
	return func(c *Controller) {
		c.bus = bus
		c.injectedBus = true
	}
}

// WithTimeout overrides the synchronous RPC timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithLogger overrides the default component logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithAgentNamePrefix overrides the well-known name prefix the bridge
// registers under.
func WithAgentNamePrefix(prefix string) Option {
	return func(c *Controller) { c.agentPrefix = prefix }
}

// New creates a controller for the named interface. Events go to hub.
func New(ifname string, hub *events.Hub, opts ...Option) *Controller {
	c := &Controller{
		ifname:      ifname,
		hub:         hub,
		log:         logging.WithComponent("ncp"),
		metrics:     metrics.Get(),
		agentPrefix: defaultAgentNamePrefix,
		timeout:     dbus.DefaultTimeout,
		watches:     make(map[*dbus.Watch]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init binds to the bus: session scope first, system scope as the
// fallback, then name registration, watch callbacks, the match rule
// and the signal filter. A partially acquired connection is released
// on failure.
func (c *Controller) Init() error {
	if c.bus == nil {
		conn, err := dbus.Connect(dbus.SessionBus)
		if err != nil {
			c.log.Debug("session bus unavailable, trying system bus", "error", err)
			conn, err = dbus.Connect(dbus.SystemBus)
		}
		if err != nil {
			return fmt.Errorf("ncp: connect bus: %w", err)
		}
		c.bus = conn
	}

	if err := c.setup(); err != nil {
		c.bus.Close() //nolint:errcheck // already failing
		if !c.injectedBus {
			c.bus = nil
		}
		c.log.Error("failed to initialize", "error", err)
		return err
	}
	return nil
}

func (c *Controller) setup() error {
	agentName := c.agentPrefix + "." + c.ifname
	c.log.Info("requesting bus name", "name", agentName)
	result, err := c.bus.RequestName(agentName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("ncp: request name %s: %w", agentName, err)
	}
	if result != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("ncp: not primary owner of %s (reply %d)", agentName, result)
	}

	c.bus.SetWatchFunctions(c.addWatch, c.removeWatch, c.toggleWatch)

	if err := c.bus.AddMatch(matchPropertyChanged); err != nil {
		return fmt.Errorf("ncp: add match: %w", err)
	}

	c.bus.AddFilter(c.handleMessage)
	return nil
}

// Close disables the proxy session best-effort and releases the bus.
// Safe to call at any point, including after a failed Init.
func (c *Controller) Close() error {
	if err := c.ProxyStop(); err != nil {
		c.log.Warn("failed to stop proxy on close", "error", err)
	}
	if c.bus == nil {
		return nil
	}
	err := c.bus.Close()
	c.watches = make(map[*dbus.Watch]bool)
	return err
}

// Watch registry callbacks. Only the bus session calls these.

func (c *Controller) addWatch(w *dbus.Watch) bool {
	c.watches[w] = true
	return true
}

func (c *Controller) removeWatch(w *dbus.Watch) {
	delete(c.watches, w)
}

func (c *Controller) toggleWatch(w *dbus.Watch) {
	c.watches[w] = w.Enabled()
}

// UpdateFdSet projects the enabled watches into select(2) descriptor
// sets. Read and error interest are unconditional; write interest
// only counts while the bus has outbound data pending. Repeatable;
// no state is consumed.
func (c *Controller) UpdateFdSet(readSet, writeSet, errorSet *unix.FdSet, maxFd *int) {
	for w, enabled := range c.watches {
		if !enabled {
			continue
		}
		fd := w.Fd()
		if fd < 0 {
			continue
		}

		flags := w.Flags()
		if flags&dbus.WatchReadable != 0 {
			readSet.Set(fd)
		}
		if flags&dbus.WatchWritable != 0 && c.bus.HasMessagesToSend() {
			writeSet.Set(fd)
		}
		errorSet.Set(fd)

		if fd > *maxFd {
			*maxFd = fd
		}
	}
}

// Process hands actual readiness back to the bus session and drains
// every already-queued inbound message, running the signal filter
// synchronously.
func (c *Controller) Process(readSet, writeSet, errorSet *unix.FdSet) {
	for w, enabled := range c.watches {
		if !enabled {
			continue
		}
		fd := w.Fd()
		if fd < 0 {
			continue
		}

		flags := w.Flags()
		if flags&dbus.WatchReadable != 0 && !readSet.IsSet(fd) {
			flags &^= dbus.WatchReadable
		}
		if flags&dbus.WatchWritable != 0 && !writeSet.IsSet(fd) {
			flags &^= dbus.WatchWritable
		}
		if errorSet.IsSet(fd) {
			flags |= dbus.WatchError
		}

		c.bus.HandleWatch(w, flags)
	}

	for c.bus.DispatchPending() {
	}
}

// needsRestart is the restart heuristic: a message from a sender other
// than the bound daemon, on an object path naming our interface, means
// the daemon came back under a new bus identity.
func needsRestart(boundName, sender, path, ifname string) bool {
	return sender != "" && path != "" && sender != boundName &&
		strings.Contains(path, ifname)
}

// handleMessage is the dispatch filter: restart detection first, then
// PropertyChanged decoding. Returns whether the message was consumed.
func (c *Controller) handleMessage(m *dbus.Message) bool {
	if needsRestart(c.daemonName, m.Sender, string(m.Path), c.ifname) {
		c.log.Warn("daemon bus name changed, restarting proxy session",
			"sender", m.Sender, "bound", c.daemonName)
		c.metrics.DaemonRestarts.Inc()
		if err := c.ProxyStart(); err != nil {
			c.log.Error("proxy restart failed", "error", err)
		}
	}

	if !m.IsSignal(daemonInterface, signalPropertyChanged) {
		return false
	}
	if len(m.Body) == 0 {
		return false
	}
	key, ok := m.Body[0].(string)
	if !ok || key == "" {
		return false
	}

	c.log.Debug("property changed", "property", key)
	if err := c.decodeProperty(key, m.Body[1:]); err != nil {
		c.metrics.DecodeErrors.WithLabelValues(key).Inc()
		c.log.Warn("undecodable property payload", "property", key, "error", err)
	} else {
		c.metrics.PropertyChanges.WithLabelValues(key).Inc()
	}
	return true
}
