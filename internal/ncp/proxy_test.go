package ncp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wpantools/ncpbridge/internal/dbus"
)

func TestProxyStartResolvesBindingAndEnables(t *testing.T) {
	c, bus, _ := newTestController(t)

	var enable *dbus.Message
	bus.On("GetNameOwner", "com.nestlabs.WPANTund.wpan0").Return(":1.42", nil)
	bus.On("Send", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		enable = args.Get(0).(*dbus.Message)
	})

	require.NoError(t, c.ProxyStart())
	assert.Equal(t, ":1.42", c.daemonName)
	assert.Equal(t, dbus.ObjectPath("/com/nestlabs/WPANTund/wpan0"), c.daemonPath)

	require.NotNil(t, enable)
	assert.Equal(t, ":1.42", enable.Destination)
	assert.Equal(t, dbus.ObjectPath("/com/nestlabs/WPANTund/wpan0"), enable.Path)
	assert.Equal(t, methodPropSet, enable.Member)
	assert.Equal(t, []any{PropTmfProxyEnabled, true}, enable.Body)
}

func TestProxyStartDaemonNotRunning(t *testing.T) {
	c, bus, _ := newTestController(t)

	bus.On("GetNameOwner", mock.Anything).Return("", errors.New("no such name"))

	err := c.ProxyStart()
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Empty(t, c.daemonName)
	bus.AssertNotCalled(t, "Send", mock.Anything)
}

func TestProxyStopBeforeStartIsNoop(t *testing.T) {
	c, bus, _ := newTestController(t)

	assert.NoError(t, c.ProxyStop())
	bus.AssertNotCalled(t, "Send", mock.Anything)
}

func TestProxyStopDisablesAndUnbinds(t *testing.T) {
	c, bus, _ := newTestController(t)
	c.daemonName = ":1.42"
	c.daemonPath = dbusPath("wpan0")

	var disable *dbus.Message
	bus.On("Send", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		disable = args.Get(0).(*dbus.Message)
	})

	require.NoError(t, c.ProxyStop())
	assert.Empty(t, c.daemonName)
	assert.Empty(t, c.daemonPath)
	require.NotNil(t, disable)
	assert.Equal(t, []any{PropTmfProxyEnabled, false}, disable.Body)

	// A second stop is already unbound and sends nothing.
	require.NoError(t, c.ProxyStop())
	bus.AssertNumberOfCalls(t, "Send", 1)
}

func TestProxySendAppendsTrailer(t *testing.T) {
	c, bus, _ := newTestController(t)
	c.daemonName = ":1.42"
	c.daemonPath = dbusPath("wpan0")

	var sent *dbus.Message
	bus.On("Send", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		sent = args.Get(0).(*dbus.Message)
	})

	body := []byte{0xde, 0xad, 0xbe, 0xef}
	require.NoError(t, c.ProxySend(body, 0xFC00, 61631))

	require.NotNil(t, sent)
	assert.Equal(t, methodPropSet, sent.Member)
	require.Len(t, sent.Body, 2)
	assert.Equal(t, PropTmfProxyStream, sent.Body[0])
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef, 0xFC, 0x00, 0xF0, 0xBF}, sent.Body[1])
}

func TestProxySendWithoutSession(t *testing.T) {
	c, bus, _ := newTestController(t)

	err := c.ProxySend([]byte{1}, 0, 0)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	bus.AssertNotCalled(t, "Send", mock.Anything)
}

func TestProxySendBusError(t *testing.T) {
	c, bus, _ := newTestController(t)
	c.daemonName = ":1.42"
	c.daemonPath = dbusPath("wpan0")

	bus.On("Send", mock.Anything).Return(errors.New("connection is broken"))

	err := c.ProxySend([]byte{1, 2}, 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy send")
}
