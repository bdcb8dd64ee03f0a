// Package metrics exposes prometheus counters/gauges for the card's
// virtual-network activity, the same collector shapes
// intel-PerfSpect's cmd/metrics/metrics_server.go registers for its
// own sampled counters. Nothing here serves an HTTP endpoint — there
// is no such surface in this specification's scope — the Registry
// exists so an embedding frontend can scrape it if it wants to.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds the gauges/counters this module updates as a side
// effect of state transitions in the device layer.
type Registry struct {
	SocketsOpen        prometheus.Gauge
	DHCPLeasesIssued   prometheus.Counter
	ARPRepliesSent     prometheus.Counter
	TCPFlowsTerminated prometheus.Counter
	FramesDropped      prometheus.Counter

	reg *prometheus.Registry
}

// NewRegistry creates a fresh, unregistered-with-the-default-registry
// collector set. Each Registry owns its own prometheus.Registry so
// that tests can create many of them without tripping
// "duplicate metrics collector registration" panics.
func NewRegistry() *Registry {
	r := &Registry{
		SocketsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uthernet2_sockets_open",
			Help: "Number of W5100 sockets with an open host handle.",
		}),
		DHCPLeasesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uthernet2_dhcp_leases_issued_total",
			Help: "DHCPACKs sent by the virtual DHCP responder.",
		}),
		ARPRepliesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uthernet2_arp_replies_sent_total",
			Help: "ARP replies sent by the virtual ARP responder.",
		}),
		TCPFlowsTerminated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uthernet2_tcp_flows_terminated_total",
			Help: "Virtual TCP sessions ended: FIN from either side, or dropped by a failed reconnect.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uthernet2_frames_dropped_total",
			Help: "MACRAW frames dropped: malformed, oversized, or unroutable.",
		}),
		reg: prometheus.NewRegistry(),
	}
	r.reg.MustRegister(r.SocketsOpen, r.DHCPLeasesIssued, r.ARPRepliesSent, r.TCPFlowsTerminated, r.FramesDropped)
	return r
}

// Gatherer exposes the underlying prometheus.Registry for an embedder
// that wants to serve /metrics itself.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
