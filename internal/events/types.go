// Package events provides the pub/sub hub the NCP bridge emits into.
// Everything the daemon reports (association state, network identity,
// credentials, proxied datagrams) flows through here as typed events.
package events

import "time"

// EventType identifies the category of event.
type EventType string

const (
	// EventNCPState reports NCP association changes.
	EventNCPState EventType = "ncp.state"

	// EventNetworkName reports the network name property.
	EventNetworkName EventType = "network.name"

	// EventExtPanID reports the extended PAN identifier.
	EventExtPanID EventType = "network.xpanid"

	// EventPSKc reports the pre-shared network credential.
	EventPSKc EventType = "network.pskc"

	// EventProxyStream carries a datagram relayed through the
	// daemon's proxy stream.
	EventProxyStream EventType = "proxy.stream"
)

// Event is the message passed through the hub.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // component that emitted, e.g. "ncp"
	Data      any       `json:"data"`   // type-specific payload
}

// NCPStateData is the payload for EventNCPState.
type NCPStateData struct {
	Associated bool `json:"associated"`
}

// NetworkNameData is the payload for EventNetworkName.
type NetworkNameData struct {
	Name string `json:"name"`
}

// ExtPanIDData is the payload for EventExtPanID. The value is always
// in network byte order.
type ExtPanIDData struct {
	ExtPanID [8]byte `json:"xpanid"`
}

// PSKcData is the payload for EventPSKc.
type PSKcData struct {
	PSKc [16]byte `json:"pskc"`
}

// ProxyStreamData is the payload for EventProxyStream. Payload is the
// datagram body with the locator/port trailer already stripped.
type ProxyStreamData struct {
	Payload []byte `json:"payload"`
	Locator uint16 `json:"locator"`
	Port    uint16 `json:"port"`
}
