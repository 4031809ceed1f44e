package ncp

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound reports that no daemon instance serves the
	// configured interface on the bus.
	ErrDeviceNotFound = errors.New("ncp: no daemon for interface")

	// ErrProtocol reports a malformed or mis-sized property payload
	// or an unexpected status code. The connection stays up; only
	// the specific decode is abandoned.
	ErrProtocol = errors.New("ncp: protocol error")

	// ErrUnknownEvent reports a RequestEvent call with an event kind
	// that maps to no property. Purely local; never sent on the bus.
	ErrUnknownEvent = errors.New("ncp: unknown event kind")
)

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
