// Package metrics exposes Prometheus collectors for the connection pump and
// the protocol engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ankesh2004/go-commun/pkg/wire"
)

// Drop reasons for FrameDropped.
const (
	DropSize     = "size"
	DropChecksum = "checksum"
)

// Transfer directions and outcomes for TransferDone.
const (
	Outbound = "outbound"
	Inbound  = "inbound"

	Completed = "completed"
	Rejected  = "rejected"
	Aborted   = "aborted"
)

type Options struct {
	// Namespace defaults to "commun".
	Namespace   string
	ConstLabels prometheus.Labels
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type Metrics struct {
	framesSent           *prometheus.CounterVec
	framesReceived       *prometheus.CounterVec
	framesDropped        *prometheus.CounterVec
	bytesSent            prometheus.Counter
	bytesReceived        prometheus.Counter
	connected            prometheus.Gauge
	transfers            *prometheus.CounterVec
	transferBytes        *prometheus.HistogramVec
	pingsSent            prometheus.Counter
	keepaliveDisconnects prometheus.Counter
}

func New(opts Options) *Metrics {
	if opts.Namespace == "" {
		opts.Namespace = "commun"
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(opts.Registry)

	return &Metrics{
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "endpoint",
			Name:        "frames_sent_total",
			Help:        "Frames written to the transport by command",
			ConstLabels: opts.ConstLabels,
		}, []string{"command"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "endpoint",
			Name:        "frames_received_total",
			Help:        "Valid frames read from the transport by command",
			ConstLabels: opts.ConstLabels,
		}, []string{"command"}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "endpoint",
			Name:        "frames_dropped_total",
			Help:        "Incoming frames discarded by reason",
			ConstLabels: opts.ConstLabels,
		}, []string{"reason"}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "endpoint",
			Name:        "bytes_sent_total",
			Help:        "Encoded frame bytes written",
			ConstLabels: opts.ConstLabels,
		}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "endpoint",
			Name:        "bytes_received_total",
			Help:        "Encoded frame bytes read",
			ConstLabels: opts.ConstLabels,
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "endpoint",
			Name:        "connected",
			Help:        "1 while a peer is connected",
			ConstLabels: opts.ConstLabels,
		}),

		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "engine",
			Name:        "transfers_total",
			Help:        "Fragmented transfers by direction and outcome",
			ConstLabels: opts.ConstLabels,
		}, []string{"direction", "outcome"}),

		transferBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "engine",
			Name:        "transfer_bytes",
			Help:        "Size of completed fragmented transfers",
			ConstLabels: opts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(4096, 4, 8),
		}, []string{"direction"}),

		pingsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "engine",
			Name:        "pings_sent_total",
			Help:        "Keepalive pings sent",
			ConstLabels: opts.ConstLabels,
		}),

		keepaliveDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   "engine",
			Name:        "keepalive_disconnects_total",
			Help:        "Connections dropped after too many lost pings",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

func (m *Metrics) FrameSent(cmd wire.Command, size int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(cmd.String()).Inc()
	m.bytesSent.Add(float64(size))
}

func (m *Metrics) FrameReceived(cmd wire.Command, size int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(cmd.String()).Inc()
	m.bytesReceived.Add(float64(size))
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) TransferDone(direction, outcome string, size int) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(direction, outcome).Inc()
	if outcome == Completed {
		m.transferBytes.WithLabelValues(direction).Observe(float64(size))
	}
}

func (m *Metrics) PingSent() {
	if m == nil {
		return
	}
	m.pingsSent.Inc()
}

func (m *Metrics) KeepaliveDisconnect() {
	if m == nil {
		return
	}
	m.keepaliveDisconnects.Inc()
}
