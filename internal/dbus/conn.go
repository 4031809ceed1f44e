package dbus

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// FilterFunc inspects an inbound message during dispatch. Returning
// true marks the message handled and stops the filter chain.
type FilterFunc func(*Message) bool

// DefaultTimeout bounds blocking calls that do not specify their own
// timeout.
const DefaultTimeout = 10 * time.Second

const readChunk = 4096

// Conn is a connection to a message bus. It is single-threaded by
// contract: every method must be called from the goroutine that runs
// the readiness loop.
type Conn struct {
	fd         int
	uniqueName string
	serial     uint32

	watch       *Watch
	addWatch    func(*Watch) bool
	removeWatch func(*Watch)
	toggleWatch func(*Watch)

	filters []FilterFunc

	inBuf []byte     // partial wire data
	in    []*Message // parsed, not yet dispatched
	out   []byte     // marshaled, not yet flushed

	closed bool
	broken bool
}

// Connect opens, authenticates and registers a connection to the bus
// of the given scope.
func Connect(scope Scope) (*Conn, error) {
	addr, err := busAddress(scope)
	if err != nil {
		return nil, err
	}
	return Dial(addr)
}

// Dial connects to an explicit bus address ("unix:path=..." or
// "unix:abstract=...").
func Dial(address string) (*Conn, error) {
	fd, err := dialUnix(address)
	if err != nil {
		return nil, err
	}
	if err := authExternal(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dbus: set nonblock: %w", err)
	}

	c := &Conn{
		fd:    fd,
		watch: &Watch{fd: fd, flags: WatchReadable | WatchWritable, enabled: true},
	}
	if err := c.hello(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// UniqueName returns the connection's unique bus name (":1.42").
func (c *Conn) UniqueName() string { return c.uniqueName }

// Close tears the connection down, announcing watch removal first.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.removeWatch != nil {
		c.removeWatch(c.watch)
	}
	return unix.Close(c.fd)
}

// SetWatchFunctions installs the watch lifecycle callbacks and
// announces the connection's existing watches through them.
func (c *Conn) SetWatchFunctions(add func(*Watch) bool, remove func(*Watch), toggle func(*Watch)) {
	c.addWatch, c.removeWatch, c.toggleWatch = add, remove, toggle
	if add != nil {
		add(c.watch)
	}
}

// AddFilter appends a dispatch filter. Filters run in installation
// order until one handles the message.
func (c *Conn) AddFilter(fn FilterFunc) {
	c.filters = append(c.filters, fn)
}

// HasMessagesToSend reports whether outbound data is pending flush.
func (c *Conn) HasMessagesToSend() bool { return len(c.out) > 0 }

// nextSerial mints the serial for an outgoing message. Serial 0 is
// reserved.
func (c *Conn) nextSerial() uint32 {
	c.serial++
	if c.serial == 0 {
		c.serial = 1
	}
	return c.serial
}

// Send queues a message and flushes opportunistically. A full socket
// is not an error; the remainder goes out when the readiness loop
// reports the descriptor writable.
func (c *Conn) Send(m *Message) error {
	if c.closed || c.broken {
		return ErrDisconnected
	}
	m.Serial = c.nextSerial()
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	c.out = append(c.out, data...)
	return c.flushSome()
}

// flushSome writes as much pending outbound data as the socket takes.
func (c *Conn) flushSome() error {
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		if n > 0 {
			c.out = c.out[n:]
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return nil
			}
			c.broken = true
			return fmt.Errorf("dbus: write: %w", err)
		}
	}
	return nil
}

// HandleWatch performs the socket I/O selected by the readiness flags.
func (c *Conn) HandleWatch(w *Watch, flags WatchFlags) {
	if c.closed || w != c.watch {
		return
	}
	if flags&WatchError != 0 {
		c.broken = true
		return
	}
	if flags&WatchWritable != 0 {
		c.flushSome() //nolint:errcheck // broken flag records the failure
	}
	if flags&WatchReadable != 0 {
		c.readAvailable()
	}
}

// readAvailable drains the socket and parses complete messages into
// the dispatch queue.
func (c *Conn) readAvailable() {
	var chunk [readChunk]byte
	for {
		n, err := unix.Read(c.fd, chunk[:])
		if n > 0 {
			c.inBuf = append(c.inBuf, chunk[:n]...)
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err != unix.EAGAIN {
				c.broken = true
			}
			break
		}
		if n == 0 { // peer closed
			c.broken = true
			break
		}
		if n < readChunk {
			break
		}
	}
	c.parseQueued()
}

// parseQueued slices complete messages off the inbound buffer.
func (c *Conn) parseQueued() {
	for {
		total, err := messageSize(c.inBuf)
		if err != nil {
			c.broken = true
			return
		}
		if total == 0 {
			return
		}
		m, err := Unmarshal(c.inBuf[:total])
		c.inBuf = c.inBuf[total:]
		if err != nil {
			// A single undecodable message is dropped, not fatal:
			// framing is already re-synchronized.
			continue
		}
		c.in = append(c.in, m)
	}
}

// DispatchPending dispatches one queued inbound message through the
// filter chain and reports whether more remain.
func (c *Conn) DispatchPending() bool {
	if len(c.in) == 0 {
		return false
	}
	m := c.in[0]
	c.in = c.in[1:]
	for _, f := range c.filters {
		if f(m) {
			break
		}
	}
	return len(c.in) > 0
}

// SendWithReply sends a method call and blocks until its reply, an
// error reply, or the timeout. Unrelated inbound messages observed
// while waiting are queued for later dispatch.
func (c *Conn) SendWithReply(m *Message, timeout time.Duration) (*Message, error) {
	if c.closed || c.broken {
		return nil, ErrDisconnected
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	m.Serial = c.nextSerial()
	data, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	c.out = append(c.out, data...)

	deadline := time.Now().Add(timeout)
	if err := c.flushAll(deadline); err != nil {
		return nil, err
	}

	for {
		// Consume whatever is already buffered before blocking.
		c.parseQueued()
		for i, qm := range c.in {
			if qm.isReplyTo(m.Serial) {
				c.in = append(c.in[:i:i], c.in[i+1:]...)
				if qm.Type == TypeError {
					return nil, qm.asError()
				}
				return qm, nil
			}
		}
		if c.broken {
			return nil, ErrDisconnected
		}
		if err := c.waitReadable(deadline); err != nil {
			return nil, err
		}
		c.readAvailable()
	}
}

// flushAll blocks until the outbound buffer is empty or the deadline
// passes.
func (c *Conn) flushAll(deadline time.Time) error {
	for len(c.out) > 0 {
		if err := c.flushSome(); err != nil {
			return err
		}
		if len(c.out) == 0 {
			break
		}
		if err := c.wait(unix.POLLOUT, deadline); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) waitReadable(deadline time.Time) error {
	return c.wait(unix.POLLIN, deadline)
}

// wait polls the socket for the given events until the deadline.
func (c *Conn) wait(events int16, deadline time.Time) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		fds := []unix.PollFd{{Fd: int32(c.fd), Events: events}}
		n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			c.broken = true
			return fmt.Errorf("dbus: poll: %w", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			c.broken = true
			return ErrDisconnected
		}
		return nil
	}
}

// hello registers the connection with the bus driver and records the
// unique name it assigns.
func (c *Conn) hello() error {
	reply, err := c.SendWithReply(
		NewMethodCall(BusName, BusPath, BusInterface, "Hello"), DefaultTimeout)
	if err != nil {
		return fmt.Errorf("dbus: hello: %w", err)
	}
	name, ok := firstString(reply.Body)
	if !ok {
		return fmt.Errorf("dbus: hello reply carried no name")
	}
	c.uniqueName = name
	return nil
}

// RequestName asks the bus driver for ownership of a well-known name.
func (c *Conn) RequestName(name string, flags uint32) (uint32, error) {
	reply, err := c.SendWithReply(
		NewMethodCall(BusName, BusPath, BusInterface, "RequestName", name, flags),
		DefaultTimeout)
	if err != nil {
		return 0, err
	}
	if len(reply.Body) == 0 {
		return 0, fmt.Errorf("dbus: empty RequestName reply")
	}
	result, ok := reply.Body[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("dbus: unexpected RequestName reply %T", reply.Body[0])
	}
	return result, nil
}

// AddMatch installs a bus-side match rule.
func (c *Conn) AddMatch(rule string) error {
	_, err := c.SendWithReply(
		NewMethodCall(BusName, BusPath, BusInterface, "AddMatch", rule),
		DefaultTimeout)
	return err
}

// GetNameOwner resolves the unique name owning a well-known name.
func (c *Conn) GetNameOwner(name string) (string, error) {
	reply, err := c.SendWithReply(
		NewMethodCall(BusName, BusPath, BusInterface, "GetNameOwner", name),
		DefaultTimeout)
	if err != nil {
		return "", err
	}
	owner, ok := firstString(reply.Body)
	if !ok {
		return "", fmt.Errorf("dbus: GetNameOwner reply carried no owner")
	}
	return owner, nil
}

func firstString(body []any) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	s, ok := body[0].(string)
	return s, ok
}
