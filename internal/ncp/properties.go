package ncp

import (
	"encoding/binary"

	"github.com/wpantools/ncpbridge/internal/dbus"
)

// wpantund's D-Bus vocabulary. These must match the daemon exactly.
const (
	daemonNamePrefix = "com.nestlabs.WPANTund"
	daemonPathPrefix = "/com/nestlabs/WPANTund"
	daemonInterface  = "com.nestlabs.WPANTund.v1"

	signalPropertyChanged = "PropertyChanged"
	methodPropGet         = "PropGet"
	methodPropSet         = "PropSet"

	// matchPropertyChanged filters the daemon's property-change
	// signals; it must be installed before any can be observed.
	matchPropertyChanged = "type='signal',interface='" + daemonInterface +
		"',member='" + signalPropertyChanged + "'"
)

// dbusPath is the daemon's object path for an interface, mirroring
// how wpanctl constructs it.
func dbusPath(ifname string) dbus.ObjectPath {
	return dbus.ObjectPath(daemonPathPrefix + "/" + ifname)
}

// Property names.
const (
	PropTmfProxyEnabled    = "TmfProxy:Enabled"
	PropTmfProxyStream     = "TmfProxy:Stream"
	PropNCPState           = "NCP:State"
	PropNetworkName        = "Network:Name"
	PropNetworkXPANID      = "Network:XPANID"
	PropNetworkPSKc        = "Network:PSKc"
	PropNCPHardwareAddress = "NCP:HardwareAddress"
)

// Fixed payload sizes.
const (
	SizeExtPanID = 8
	SizePSKc     = 16
	SizeEui64    = 8
)

// ncpStateAssociated is the one NCP:State value that maps to true;
// every other state is a plain false, not an error.
const ncpStateAssociated = "associated"

// spinelStatusOK is the success sentinel prefixed to PropGet replies.
const spinelStatusOK = 0

// propertyDecoders is the decode table keyed by property name. A
// property absent from the table is handled but inert.
var propertyDecoders = map[string]func(*Controller, []any) error{
	PropTmfProxyStream: (*Controller).decodeProxyStream,
	PropNCPState:       (*Controller).decodeNCPState,
	PropNetworkName:    (*Controller).decodeNetworkName,
	PropNetworkXPANID:  (*Controller).decodeExtPanID,
	PropNetworkPSKc:    (*Controller).decodePSKc,
}

// decodeProperty dispatches a property payload to its decoder and
// emits the resulting event. Unknown properties are not an error.
func (c *Controller) decodeProperty(key string, args []any) error {
	dec, ok := propertyDecoders[key]
	if !ok {
		return nil
	}
	return dec(c, args)
}

// decodeProxyStream splits a proxy datagram into body, locator and
// port. The trailing four bytes are big-endian locator then port.
func (c *Controller) decodeProxyStream(args []any) error {
	buf, err := argBytes(args)
	if err != nil {
		return err
	}
	if len(buf) < 4 {
		return protocolErrorf("proxy datagram of %d bytes lacks locator/port trailer", len(buf))
	}

	n := len(buf) - 4
	locator := binary.BigEndian.Uint16(buf[n:])
	port := binary.BigEndian.Uint16(buf[n+2:])
	body := make([]byte, n)
	copy(body, buf[:n])

	c.metrics.ProxyRxDatagrams.Inc()
	c.hub.EmitProxyStream(body, locator, port)
	return nil
}

func (c *Controller) decodeNCPState(args []any) error {
	state, err := argString(args)
	if err != nil {
		return err
	}
	c.log.Info("NCP state", "state", state)
	c.hub.EmitNCPState(state == ncpStateAssociated)
	return nil
}

func (c *Controller) decodeNetworkName(args []any) error {
	name, err := argString(args)
	if err != nil {
		return err
	}
	c.hub.EmitNetworkName(name)
	return nil
}

// decodeExtPanID accepts the extended PAN id in either of the wire
// shapes the daemon uses: a 64-bit integer or a raw 8-byte array. The
// emitted value is always in network byte order.
func (c *Controller) decodeExtPanID(args []any) error {
	if len(args) == 0 {
		return protocolErrorf("%s without payload", PropNetworkXPANID)
	}

	var xpanid [SizeExtPanID]byte
	switch v := args[0].(type) {
	case uint64:
		binary.BigEndian.PutUint64(xpanid[:], v)
	case []byte:
		if len(v) != SizeExtPanID {
			return protocolErrorf("%s array of %d bytes, want %d", PropNetworkXPANID, len(v), SizeExtPanID)
		}
		copy(xpanid[:], v)
	default:
		return protocolErrorf("%s payload has type %T", PropNetworkXPANID, v)
	}

	c.hub.EmitExtPanID(xpanid)
	return nil
}

func (c *Controller) decodePSKc(args []any) error {
	buf, err := argBytes(args)
	if err != nil {
		return err
	}
	if len(buf) != SizePSKc {
		return protocolErrorf("%s of %d bytes, want %d", PropNetworkPSKc, len(buf), SizePSKc)
	}

	var pskc [SizePSKc]byte
	copy(pskc[:], buf)
	c.hub.EmitPSKc(pskc)
	return nil
}

func argBytes(args []any) ([]byte, error) {
	if len(args) == 0 {
		return nil, protocolErrorf("missing byte-array payload")
	}
	buf, ok := args[0].([]byte)
	if !ok {
		return nil, protocolErrorf("payload has type %T, want byte array", args[0])
	}
	return buf, nil
}

func argString(args []any) (string, error) {
	if len(args) == 0 {
		return "", protocolErrorf("missing string payload")
	}
	s, ok := args[0].(string)
	if !ok {
		return "", protocolErrorf("payload has type %T, want string", args[0])
	}
	return s, nil
}

// newPropSetBool builds a boolean-toggle property write.
func newPropSetBool(dest string, path dbus.ObjectPath, key string, value bool) *dbus.Message {
	return dbus.NewMethodCall(dest, path, daemonInterface, methodPropSet, key, value)
}

// newPropSetBytes builds a byte-buffer property write.
func newPropSetBytes(dest string, path dbus.ObjectPath, key string, value []byte) *dbus.Message {
	return dbus.NewMethodCall(dest, path, daemonInterface, methodPropSet, key, value)
}

// packProxyStream appends the big-endian locator/port trailer to a
// datagram body, the inverse of decodeProxyStream.
func packProxyStream(body []byte, locator, port uint16) []byte {
	data := make([]byte, len(body), len(body)+4)
	copy(data, body)
	data = binary.BigEndian.AppendUint16(data, locator)
	data = binary.BigEndian.AppendUint16(data, port)
	return data
}
