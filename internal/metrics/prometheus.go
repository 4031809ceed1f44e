// Package metrics holds the bridge's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all bridge metrics.
type Registry struct {
	// Property-change plane
	PropertyChanges *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec

	// Restart detection
	DaemonRestarts prometheus.Counter

	// Proxy stream
	ProxyRxDatagrams prometheus.Counter
	ProxyTxDatagrams prometheus.Counter

	// Synchronous RPC
	RPCRequests *prometheus.CounterVec
	RPCErrors   *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.PropertyChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncpbridge_property_changes_total",
		Help: "PropertyChanged signals decoded, by property",
	}, []string{"property"})

	r.DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncpbridge_decode_errors_total",
		Help: "Malformed property payloads, by property",
	}, []string{"property"})

	r.DaemonRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncpbridge_daemon_restarts_total",
		Help: "Daemon bus identity changes that triggered a proxy restart",
	})

	r.ProxyRxDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncpbridge_proxy_rx_datagrams_total",
		Help: "Datagrams received from the proxy stream",
	})

	r.ProxyTxDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ncpbridge_proxy_tx_datagrams_total",
		Help: "Datagrams forwarded into the proxy stream",
	})

	r.RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncpbridge_rpc_requests_total",
		Help: "Synchronous property requests, by property",
	}, []string{"property"})

	r.RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncpbridge_rpc_errors_total",
		Help: "Failed synchronous property requests, by property",
	}, []string{"property"})

	return r
}
