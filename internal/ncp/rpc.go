package ncp

import (
	"fmt"

	"github.com/wpantools/ncpbridge/internal/dbus"
	"github.com/wpantools/ncpbridge/internal/events"
)

// eventProperties maps an event kind to the property that backs it,
// for on-demand reads.
var eventProperties = map[events.EventType]string{
	events.EventNCPState:    PropNCPState,
	events.EventNetworkName: PropNetworkName,
	events.EventExtPanID:    PropNetworkXPANID,
	events.EventPSKc:        PropNetworkPSKc,
}

// RequestProperty performs a blocking PropGet for one property and
// returns the raw reply. Transport faults (timeout, no route) surface
// as errors; the reply's status prefix is the caller's to check.
func (c *Controller) RequestProperty(key string) (*dbus.Message, error) {
	if c.daemonName == "" {
		return nil, fmt.Errorf("%w: %s: daemon binding not resolved", ErrDeviceNotFound, c.ifname)
	}

	c.metrics.RPCRequests.WithLabelValues(key).Inc()
	msg := dbus.NewMethodCall(c.daemonName, c.daemonPath, daemonInterface, methodPropGet, key)
	reply, err := c.bus.SendWithReply(msg, c.timeout)
	if err != nil {
		c.metrics.RPCErrors.WithLabelValues(key).Inc()
		return nil, fmt.Errorf("ncp: request %s: %w", key, err)
	}
	return reply, nil
}

// RequestEvent reads a property on demand and emits it through the
// same decode path the signal filter uses, so read-now and
// notified-later are indistinguishable to subscribers.
func (c *Controller) RequestEvent(kind events.EventType) error {
	key, ok := eventProperties[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}

	c.log.Debug("requesting property", "property", key)
	reply, err := c.RequestProperty(key)
	if err != nil {
		return err
	}

	if len(reply.Body) == 0 {
		return protocolErrorf("%s reply without status", key)
	}
	if status, ok := replyStatus(reply.Body[0]); !ok || status != spinelStatusOK {
		return protocolErrorf("%s reply status %v", key, reply.Body[0])
	}

	if err := c.decodeProperty(key, reply.Body[1:]); err != nil {
		c.log.Warn("error requesting property", "property", key, "error", err)
		return err
	}
	return nil
}

// GetProperty performs a typed read of a status-prefixed byte-array
// property, copies the value into buf and returns the copied length.
func (c *Controller) GetProperty(key string, buf []byte) (int, error) {
	reply, err := c.RequestProperty(key)
	if err != nil {
		return 0, err
	}

	if len(reply.Body) < 2 {
		return 0, protocolErrorf("%s reply with %d arguments, want status and value", key, len(reply.Body))
	}
	status, ok := replyStatus(reply.Body[0])
	if !ok || status != spinelStatusOK {
		return 0, protocolErrorf("%s reply status %v", key, reply.Body[0])
	}
	value, ok := reply.Body[1].([]byte)
	if !ok {
		return 0, protocolErrorf("%s value has type %T, want byte array", key, reply.Body[1])
	}
	if len(value) > len(buf) {
		return 0, protocolErrorf("%s value of %d bytes exceeds %d-byte buffer", key, len(value), len(buf))
	}
	return copy(buf, value), nil
}

// Eui64 returns the NCP's hardware address, fetching it once and
// caching it for the controller's lifetime. The cache is either the
// full 8 bytes or absent; a mis-sized reply is never retained.
func (c *Controller) Eui64() ([]byte, error) {
	if c.eui64 != nil {
		return c.eui64, nil
	}

	var buf [SizeEui64]byte
	n, err := c.GetProperty(PropNCPHardwareAddress, buf[:])
	if err != nil {
		return nil, err
	}
	if n != SizeEui64 {
		return nil, protocolErrorf("hardware address of %d bytes, want %d", n, SizeEui64)
	}

	c.eui64 = append([]byte(nil), buf[:]...)
	return c.eui64, nil
}

// replyStatus normalizes the status argument, which the daemon may
// encode signed or unsigned.
func replyStatus(arg any) (int64, bool) {
	switch v := arg.(type) {
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	default:
		return 0, false
	}
}
