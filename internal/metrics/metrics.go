// Package metrics exposes the bridge's operational counters as
// Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters holds every collector the receive and publish pipelines
// update. A single instance is constructed at startup and shared by
// both execution contexts.
type Counters struct {
	ReceivedOK         prometheus.Counter
	Dropped            prometheus.Counter
	DuplicatesFiltered prometheus.Counter
	AckFailures        prometheus.Counter
	DecodeErrors       *prometheus.CounterVec

	Published       prometheus.Counter
	PublishErrors   prometheus.Counter
	BrokerConnected prometheus.Gauge

	CommandsEnqueued  prometheus.Counter
	CommandsQueueFull prometheus.Counter
	CommandRetries    prometheus.Counter

	RegistrySize      prometheus.Gauge
	DecodedQueueDepth prometheus.Gauge
}

// New registers and returns the full collector set against the default
// Prometheus registry.
func New() *Counters {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collector set against reg instead of
// the global default registry, so tests can use their own throwaway
// registry and construct a Counters more than once per process.
func NewWithRegisterer(reg prometheus.Registerer) *Counters {
	f := promauto.With(reg)
	return &Counters{
		ReceivedOK: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "receive",
			Name:      "frames_accepted_total",
			Help:      "Valid, non-duplicate frames accepted by the receive pipeline.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "receive",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped: decode failures, or a queued record evicted because the decoded-record queue stayed full past its enqueue timeout.",
		}),
		DuplicatesFiltered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "receive",
			Name:      "duplicates_filtered_total",
			Help:      "Frames discarded because the sequence number was already present in the device's dedup ring.",
		}),
		AckFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "receive",
			Name:      "ack_failures_total",
			Help:      "Failed attempts to transmit an ACK frame back to a device.",
		}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "receive",
			Name:      "decode_errors_total",
			Help:      "Frame decode failures by reason.",
		}, []string{"reason"}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "publish",
			Name:      "messages_published_total",
			Help:      "Messages successfully published to the broker.",
		}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "publish",
			Name:      "publish_errors_total",
			Help:      "Broker publish attempts that returned an error.",
		}),
		BrokerConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "publish",
			Name:      "broker_connected",
			Help:      "1 if the broker connection is currently up, 0 otherwise.",
		}),
		CommandsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "command",
			Name:      "enqueued_total",
			Help:      "Commands successfully enqueued (including coalesced updates).",
		}),
		CommandsQueueFull: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "command",
			Name:      "queue_full_total",
			Help:      "Command enqueue attempts rejected because the queue was at capacity.",
		}),
		CommandRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "command",
			Name:      "retries_total",
			Help:      "Command retransmission attempts driven by observed device traffic.",
		}),
		RegistrySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "registry",
			Name:      "devices",
			Help:      "Current number of known devices in the registry.",
		}),
		DecodedQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Subsystem: "receive",
			Name:      "decoded_queue_depth",
			Help:      "Approximate current depth of the decoded-record queue.",
		}),
	}
}
