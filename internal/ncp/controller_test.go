package ncp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wpantools/ncpbridge/internal/dbus"
	"github.com/wpantools/ncpbridge/internal/events"
)

// initController runs Init against the mock and captures the watch
// callbacks and the signal filter the controller installs.
func initController(t *testing.T, c *Controller, bus *MockBusConn) (addWatch func(*dbus.Watch) bool, toggleWatch func(*dbus.Watch), filter dbus.FilterFunc) {
	t.Helper()

	bus.On("RequestName", "net.ncpbridge.wpan0", uint32(dbus.NameFlagDoNotQueue)).
		Return(uint32(dbus.RequestNameReplyPrimaryOwner), nil)
	bus.On("SetWatchFunctions", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			addWatch = args.Get(0).(func(*dbus.Watch) bool)
			toggleWatch = args.Get(2).(func(*dbus.Watch))
		})
	bus.On("AddMatch", matchPropertyChanged).Return(nil)
	bus.On("AddFilter", mock.Anything).Run(func(args mock.Arguments) {
		filter = args.Get(0).(dbus.FilterFunc)
	})

	require.NoError(t, c.Init())
	require.NotNil(t, addWatch)
	require.NotNil(t, filter)
	return addWatch, toggleWatch, filter
}

func propertyChangedSignal(sender, ifname, key string, args ...any) *dbus.Message {
	return &dbus.Message{
		Type:      dbus.TypeSignal,
		Sender:    sender,
		Path:      dbusPath(ifname),
		Interface: daemonInterface,
		Member:    signalPropertyChanged,
		Body:      append([]any{key}, args...),
	}
}

func TestInitInstallsMatchAndFilter(t *testing.T) {
	c, bus, _ := newTestController(t)
	initController(t, c, bus)
	bus.AssertExpectations(t)
}

func TestInitNotPrimaryOwner(t *testing.T) {
	c, bus, _ := newTestController(t)

	bus.On("RequestName", "net.ncpbridge.wpan0", uint32(dbus.NameFlagDoNotQueue)).
		Return(uint32(3), nil) // in queue
	bus.On("Close").Return(nil)

	err := c.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not primary owner")
	bus.AssertCalled(t, "Close")
}

func TestInitAddMatchFailureClosesBus(t *testing.T) {
	c, bus, _ := newTestController(t)

	bus.On("RequestName", mock.Anything, mock.Anything).
		Return(uint32(dbus.RequestNameReplyPrimaryOwner), nil)
	bus.On("SetWatchFunctions", mock.Anything, mock.Anything, mock.Anything)
	bus.On("AddMatch", mock.Anything).Return(errors.New("access denied"))
	bus.On("Close").Return(nil)

	require.Error(t, c.Init())
	bus.AssertCalled(t, "Close")
	bus.AssertNotCalled(t, "AddFilter", mock.Anything)
}

func TestAgentNamePrefixOption(t *testing.T) {
	hub := events.NewHub()
	bus := &MockBusConn{}
	c := New("wpan1", hub, WithBus(bus), WithAgentNamePrefix("org.example.border"))

	bus.On("RequestName", "org.example.border.wpan1", mock.Anything).
		Return(uint32(dbus.RequestNameReplyPrimaryOwner), nil)
	bus.On("SetWatchFunctions", mock.Anything, mock.Anything, mock.Anything)
	bus.On("AddMatch", mock.Anything).Return(nil)
	bus.On("AddFilter", mock.Anything)

	require.NoError(t, c.Init())
	bus.AssertExpectations(t)
}

func TestUpdateFdSetProjectsWatches(t *testing.T) {
	c, bus, _ := newTestController(t)
	addWatch, _, _ := initController(t, c, bus)

	addWatch(dbus.NewWatch(7, dbus.WatchReadable|dbus.WatchWritable, true))
	bus.On("HasMessagesToSend").Return(false).Once()

	var readSet, writeSet, errorSet unix.FdSet
	maxFd := -1
	c.UpdateFdSet(&readSet, &writeSet, &errorSet, &maxFd)

	assert.True(t, readSet.IsSet(7))
	assert.False(t, writeSet.IsSet(7), "no write interest without pending output")
	assert.True(t, errorSet.IsSet(7))
	assert.Equal(t, 7, maxFd)

	// With output pending the write bit appears too.
	bus.On("HasMessagesToSend").Return(true).Once()
	writeSet.Zero()
	c.UpdateFdSet(&readSet, &writeSet, &errorSet, &maxFd)
	assert.True(t, writeSet.IsSet(7))
}

func TestUpdateFdSetSkipsDisabledWatch(t *testing.T) {
	c, bus, _ := newTestController(t)
	addWatch, toggleWatch, _ := initController(t, c, bus)

	w := dbus.NewWatch(5, dbus.WatchReadable, false)
	addWatch(w)
	toggleWatch(w)

	var readSet, writeSet, errorSet unix.FdSet
	maxFd := -1
	c.UpdateFdSet(&readSet, &writeSet, &errorSet, &maxFd)

	assert.False(t, readSet.IsSet(5))
	assert.False(t, errorSet.IsSet(5))
	assert.Equal(t, -1, maxFd)
}

func TestUpdateFdSetKeepsMaxFd(t *testing.T) {
	c, bus, _ := newTestController(t)
	addWatch, _, _ := initController(t, c, bus)

	addWatch(dbus.NewWatch(4, dbus.WatchReadable, true))
	bus.On("HasMessagesToSend").Return(false)

	var readSet, writeSet, errorSet unix.FdSet
	maxFd := 30
	c.UpdateFdSet(&readSet, &writeSet, &errorSet, &maxFd)
	assert.Equal(t, 30, maxFd, "a larger caller descriptor must win")
}

func TestProcessIntersectsReadiness(t *testing.T) {
	c, bus, _ := newTestController(t)
	addWatch, _, _ := initController(t, c, bus)

	w := dbus.NewWatch(9, dbus.WatchReadable|dbus.WatchWritable, true)
	addWatch(w)

	// Only the write side fired; the read bit must be stripped before
	// the watch is handled.
	var readSet, writeSet, errorSet unix.FdSet
	writeSet.Set(9)

	bus.On("HandleWatch", w, dbus.WatchWritable).Once()
	bus.On("DispatchPending").Return(false).Once()

	c.Process(&readSet, &writeSet, &errorSet)
	bus.AssertExpectations(t)
}

func TestProcessAddsErrorFlag(t *testing.T) {
	c, bus, _ := newTestController(t)
	addWatch, _, _ := initController(t, c, bus)

	w := dbus.NewWatch(9, dbus.WatchReadable, true)
	addWatch(w)

	var readSet, writeSet, errorSet unix.FdSet
	readSet.Set(9)
	errorSet.Set(9)

	bus.On("HandleWatch", w, dbus.WatchReadable|dbus.WatchError).Once()
	bus.On("DispatchPending").Return(false).Once()

	c.Process(&readSet, &writeSet, &errorSet)
	bus.AssertExpectations(t)
}

func TestProcessDrainsQueuedMessages(t *testing.T) {
	c, bus, _ := newTestController(t)
	initController(t, c, bus)

	// Two messages queued, then empty.
	bus.On("DispatchPending").Return(true).Twice()
	bus.On("DispatchPending").Return(false).Once()

	var readSet, writeSet, errorSet unix.FdSet
	c.Process(&readSet, &writeSet, &errorSet)
	bus.AssertNumberOfCalls(t, "DispatchPending", 3)
}

func TestFilterDecodesPropertyChanged(t *testing.T) {
	c, bus, ch := newTestController(t)
	_, _, filter := initController(t, c, bus)

	handled := filter(propertyChangedSignal("", "wpan0", PropNetworkName, "BorderNet"))
	assert.True(t, handled)

	e := expectEvent(t, ch)
	assert.Equal(t, events.NetworkNameData{Name: "BorderNet"}, e.Data)
}

func TestFilterConsumesUndecodablePayload(t *testing.T) {
	c, bus, ch := newTestController(t)
	_, _, filter := initController(t, c, bus)

	// A recognized property with a broken payload is still consumed,
	// so no other filter sees a half-decoded signal.
	handled := filter(propertyChangedSignal("", "wpan0", PropNetworkPSKc, make([]byte, 5)))
	assert.True(t, handled)
	expectNoEvent(t, ch)
}

func TestFilterPassesUnrelatedMessages(t *testing.T) {
	c, bus, _ := newTestController(t)
	_, _, filter := initController(t, c, bus)

	reply := &dbus.Message{Type: dbus.TypeMethodReturn, ReplySerial: 12}
	assert.False(t, filter(reply))

	other := &dbus.Message{
		Type:      dbus.TypeSignal,
		Interface: "org.freedesktop.DBus",
		Member:    "NameOwnerChanged",
	}
	assert.False(t, filter(other))
}

func TestFilterIgnoresEmptyPropertyKey(t *testing.T) {
	c, bus, _ := newTestController(t)
	_, _, filter := initController(t, c, bus)

	assert.False(t, filter(propertyChangedSignal("", "wpan0", "")))

	noBody := propertyChangedSignal("", "wpan0", PropNCPState)
	noBody.Body = nil
	assert.False(t, filter(noBody))
}

func TestNeedsRestart(t *testing.T) {
	tests := []struct {
		name   string
		bound  string
		sender string
		path   string
		want   bool
	}{
		{"sender matches binding", ":1.5", ":1.5", "/com/nestlabs/WPANTund/wpan0", false},
		{"new sender on our path", ":1.5", ":1.9", "/com/nestlabs/WPANTund/wpan0", true},
		{"new sender, other interface", ":1.5", ":1.9", "/com/nestlabs/WPANTund/wpan1", false},
		{"empty sender", ":1.5", "", "/com/nestlabs/WPANTund/wpan0", false},
		{"empty path", ":1.5", ":1.9", "", false},
		{"unbound but daemon visible", "", ":1.9", "/com/nestlabs/WPANTund/wpan0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsRestart(tt.bound, tt.sender, tt.path, "wpan0"))
		})
	}
}

func TestFilterRestartsProxyOnSenderChange(t *testing.T) {
	c, bus, ch := newTestController(t)
	_, _, filter := initController(t, c, bus)

	c.daemonName = ":1.5"
	c.daemonPath = dbusPath("wpan0")

	// Exactly one rebind: GetNameOwner plus the proxy enable write.
	bus.On("GetNameOwner", daemonNamePrefix+".wpan0").Return(":1.9", nil).Once()
	bus.On("Send", mock.Anything).Return(nil).Once()

	handled := filter(propertyChangedSignal(":1.9", "wpan0", PropNCPState, "associated"))
	assert.True(t, handled)
	assert.Equal(t, ":1.9", c.daemonName)
	bus.AssertExpectations(t)

	// The signal itself is still decoded after the rebind.
	e := expectEvent(t, ch)
	assert.Equal(t, events.NCPStateData{Associated: true}, e.Data)
}

func TestFilterRestartFailureIsNotFatal(t *testing.T) {
	c, bus, ch := newTestController(t)
	_, _, filter := initController(t, c, bus)

	c.daemonName = ":1.5"
	bus.On("GetNameOwner", mock.Anything).Return("", errors.New("no such name")).Once()

	handled := filter(propertyChangedSignal(":1.9", "wpan0", PropNetworkName, "BorderNet"))
	assert.True(t, handled)

	e := expectEvent(t, ch)
	assert.Equal(t, events.NetworkNameData{Name: "BorderNet"}, e.Data)
}

func TestCloseWithoutInit(t *testing.T) {
	hub := events.NewHub()
	c := New("wpan0", hub)
	assert.NoError(t, c.Close())
}

func TestCloseStopsProxyAndReleasesBus(t *testing.T) {
	c, bus, _ := newTestController(t)
	initController(t, c, bus)

	c.daemonName = ":1.5"
	c.daemonPath = dbusPath("wpan0")

	bus.On("Send", mock.Anything).Return(nil).Once() // proxy disable
	bus.On("Close").Return(nil).Once()

	require.NoError(t, c.Close())
	assert.Empty(t, c.daemonName)
	bus.AssertExpectations(t)
}
