package ncp

import (
	"time"

	"github.com/wpantools/ncpbridge/internal/dbus"
)

// BusConn is the bus-session surface the controller consumes. The
// production implementation is *dbus.Conn; tests substitute a mock.
type BusConn interface {
	// UniqueName returns the connection's unique bus name.
	UniqueName() string

	// RequestName asks the bus driver for a well-known name.
	RequestName(name string, flags uint32) (uint32, error)

	// SetWatchFunctions installs watch lifecycle callbacks and
	// announces existing watches through them.
	SetWatchFunctions(add func(*dbus.Watch) bool, remove func(*dbus.Watch), toggle func(*dbus.Watch))

	// AddMatch installs a bus-side match rule.
	AddMatch(rule string) error

	// AddFilter appends a dispatch filter.
	AddFilter(fn dbus.FilterFunc)

	// Send queues a message without waiting for a reply.
	Send(m *dbus.Message) error

	// SendWithReply sends a method call and blocks for its reply.
	SendWithReply(m *dbus.Message, timeout time.Duration) (*dbus.Message, error)

	// GetNameOwner resolves the unique name owning a well-known name.
	GetNameOwner(name string) (string, error)

	// HasMessagesToSend reports pending outbound data.
	HasMessagesToSend() bool

	// HandleWatch performs the I/O selected by the readiness flags.
	HandleWatch(w *dbus.Watch, flags dbus.WatchFlags)

	// DispatchPending dispatches one queued message and reports
	// whether more remain.
	DispatchPending() bool

	// Close tears the connection down.
	Close() error
}

// compile-time check that the real connection satisfies the contract.
var _ BusConn = (*dbus.Conn)(nil)
