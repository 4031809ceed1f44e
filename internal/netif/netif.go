// Package netif inspects the kernel's view of the managed interface.
// The bridge only warns on problems: wpantund may create the link
// after we start.
package netif

import (
	"errors"
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// ErrNotFound reports that the interface does not exist.
var ErrNotFound = errors.New("netif: link not found")

// Status describes the kernel state of one link.
type Status struct {
	Index     int
	OperState string
	Up        bool
}

// Lookup queries the kernel for the named link.
func Lookup(name string) (*Status, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("netif: lookup %s: %w", name, err)
	}

	attrs := link.Attrs()
	return &Status{
		Index:     attrs.Index,
		OperState: attrs.OperState.String(),
		Up:        attrs.Flags&net.FlagUp != 0,
	}, nil
}
