package dbus

// WatchFlags describes the I/O interest of a watch, or the readiness
// handed back to HandleWatch.
type WatchFlags uint

const (
	WatchReadable WatchFlags = 1 << iota
	WatchWritable
	WatchError
)

// Watch is a registration of interest in readiness on one descriptor.
// The connection owns the descriptor; holders of a Watch only observe
// it and hand readiness back via Conn.HandleWatch.
type Watch struct {
	fd      int
	flags   WatchFlags
	enabled bool
}

// NewWatch constructs a watch. Outside of this package it is only
// useful to tests; connections mint their own watches.
func NewWatch(fd int, flags WatchFlags, enabled bool) *Watch {
	return &Watch{fd: fd, flags: flags, enabled: enabled}
}

// Fd returns the OS descriptor, or -1 if the watch is not backed by
// one.
func (w *Watch) Fd() int { return w.fd }

// Flags returns the current interest flags.
func (w *Watch) Flags() WatchFlags { return w.flags }

// Enabled reports whether the watch should be polled.
func (w *Watch) Enabled() bool { return w.enabled }
