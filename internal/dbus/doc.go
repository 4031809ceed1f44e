// Package dbus is a minimal D-Bus client used to reach the wpantund
// management daemon. It deliberately exposes the transport the way
// libdbus does: a non-blocking socket behind one or more watches, a
// caller-driven dispatch queue, and a blocking call-with-reply for
// synchronous RPC. The readiness loop that drives it lives in the
// caller; this package never spawns goroutines.
//
// Only the message subset the wpantund vocabulary needs is
// implemented: method calls, method returns, errors and signals, with
// body types s, o, g, y, b, u, i, t, ay and v.
package dbus
