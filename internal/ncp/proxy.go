package ncp

import "fmt"

// Proxy session states: unbound (no daemon binding), bound (binding
// resolved), active (proxy enabled). The binding doubles as the state:
// empty means unbound, and enable/disable toggles are fire-and-forget.

// ProxyStart resolves the daemon binding for the interface and
// enables the proxy stream. It is also the restart path: a fresh
// resolution always precedes re-enabling.
func (c *Controller) ProxyStart() error {
	owner, err := c.bus.GetNameOwner(daemonNamePrefix + "." + c.ifname)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeviceNotFound, c.ifname, err)
	}
	c.daemonName = owner
	c.daemonPath = dbusPath(c.ifname)
	c.log.Info("bound to daemon", "name", owner, "path", c.daemonPath)

	return c.setProxyEnabled(true)
}

// ProxyStop disables the proxy stream and clears the binding. A stop
// without a prior start is a successful no-op.
func (c *Controller) ProxyStop() error {
	if c.daemonName == "" {
		return nil
	}
	err := c.setProxyEnabled(false)
	c.daemonName = ""
	c.daemonPath = ""
	return err
}

// ProxySend forwards a datagram through the proxy stream, tagging it
// with the big-endian locator/port trailer.
func (c *Controller) ProxySend(body []byte, locator, port uint16) error {
	if c.daemonName == "" {
		return fmt.Errorf("%w: proxy session not started", ErrDeviceNotFound)
	}
	msg := newPropSetBytes(c.daemonName, c.daemonPath, PropTmfProxyStream,
		packProxyStream(body, locator, port))
	if err := c.bus.Send(msg); err != nil {
		return fmt.Errorf("ncp: proxy send: %w", err)
	}
	c.metrics.ProxyTxDatagrams.Inc()
	return nil
}

func (c *Controller) setProxyEnabled(enable bool) error {
	msg := newPropSetBool(c.daemonName, c.daemonPath, PropTmfProxyEnabled, enable)
	if err := c.bus.Send(msg); err != nil {
		return fmt.Errorf("ncp: toggle proxy: %w", err)
	}
	return nil
}
