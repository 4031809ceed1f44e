package ncp

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wpantools/ncpbridge/internal/dbus"
)

// MockBusConn is a mock implementation of BusConn for testing.
type MockBusConn struct {
	mock.Mock
}

func (m *MockBusConn) UniqueName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBusConn) RequestName(name string, flags uint32) (uint32, error) {
	args := m.Called(name, flags)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *MockBusConn) SetWatchFunctions(add func(*dbus.Watch) bool, remove func(*dbus.Watch), toggle func(*dbus.Watch)) {
	m.Called(add, remove, toggle)
}

func (m *MockBusConn) AddMatch(rule string) error {
	args := m.Called(rule)
	return args.Error(0)
}

func (m *MockBusConn) AddFilter(fn dbus.FilterFunc) {
	m.Called(fn)
}

func (m *MockBusConn) Send(msg *dbus.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

func (m *MockBusConn) SendWithReply(msg *dbus.Message, timeout time.Duration) (*dbus.Message, error) {
	args := m.Called(msg, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbus.Message), args.Error(1)
}

func (m *MockBusConn) GetNameOwner(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *MockBusConn) HasMessagesToSend() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBusConn) HandleWatch(w *dbus.Watch, flags dbus.WatchFlags) {
	m.Called(w, flags)
}

func (m *MockBusConn) DispatchPending() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockBusConn) Close() error {
	args := m.Called()
	return args.Error(0)
}
