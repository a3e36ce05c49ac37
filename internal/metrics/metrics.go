// Package metrics exposes Prometheus instrumentation for the ingest and
// publish pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	MessagesReceived    *prometheus.CounterVec
	DecodeErrors        prometheus.Counter
	ParseErrors         prometheus.Counter
	FramingViolations   prometheus.Counter
	ConnectionsAccepted prometheus.Counter
	PointsPublished     prometheus.Counter
	PublishErrors       prometheus.Counter
	PublishThrottled    prometheus.Counter
}

// New builds and registers the metric set on reg. Tests pass a fresh
// prometheus.NewRegistry to avoid cross-test registration conflicts.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempest_messages_received_total",
			Help: "Station messages decoded, by message type.",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_decode_errors_total",
			Help: "Frames or datagrams that were not valid JSON.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_parse_errors_total",
			Help: "Structurally invalid payloads recorded as error readings.",
		}),
		FramingViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_framing_violations_total",
			Help: "TCP connections closed for an out-of-range length prefix.",
		}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_connections_accepted_total",
			Help: "TCP connections accepted from the station hub.",
		}),
		PointsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_points_published_total",
			Help: "Telemetry points written to the bus, heartbeats included.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_publish_errors_total",
			Help: "Failed attempts to write a point to the bus.",
		}),
		PublishThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tempest_publish_throttled_total",
			Help: "Data publishes suppressed by the per-type interval.",
		}),
	}

	reg.MustRegister(
		m.MessagesReceived,
		m.DecodeErrors,
		m.ParseErrors,
		m.FramingViolations,
		m.ConnectionsAccepted,
		m.PointsPublished,
		m.PublishErrors,
		m.PublishThrottled,
	)
	return m
}
