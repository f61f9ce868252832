package dhcpd

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace and subsystem for the server's metrics.
const (
	namespace = "dhcpd"
	subsystem = "server"
)

// metrics is the set of counters the server maintains.
type metrics struct {
	// received counts all inbound DHCP packets.
	received prometheus.Counter

	// dropped counts inbound packets discarded without a reply.
	dropped prometheus.Counter

	// replies counts outgoing replies partitioned by message type.
	replies *prometheus.CounterVec
}

// newMetrics creates the server's metrics and registers them on reg, if reg
// is not nil.
func newMetrics(reg prometheus.Registerer) (m *metrics, err error) {
	m = &metrics{
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "The total number of received DHCP packets.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "The total number of dropped DHCP packets.",
		}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replies_sent_total",
			Help:      "The total number of replies sent, by message type.",
		}, []string{"type"}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.received, m.dropped, m.replies} {
		err = reg.Register(c)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return m, nil
}

// incReply increments the reply counter for the given message type.
func (m *metrics) incReply(typ layers.DHCPMsgType) {
	m.replies.WithLabelValues(typ.String()).Inc()
}
