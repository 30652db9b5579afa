// Package prometheus provides the Prometheus-backed implementations of the
// metrics contracts declared in pkg/metrics.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/ajpd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ajpMetrics is the Prometheus implementation of metrics.AJPMetrics.
type ajpMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
	connectionsForceClosed prometheus.Counter
	processorsCreated      prometheus.Counter
	processorsRecycled     prometheus.Counter
	processorsDiscarded    prometheus.Counter
	processorsTrimmed      prometheus.Counter
	processorsIdle         prometheus.Gauge
	releases               *prometheus.CounterVec
	upgrades               prometheus.Counter
}

// NewAJPMetrics creates a new Prometheus-backed AJPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewAJPMetrics() metrics.AJPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopAJPMetrics()
	}
	return newAJPMetrics(metrics.GetRegistry())
}

func newAJPMetrics(reg prometheus.Registerer) *ajpMetrics {
	f := promauto.With(reg)

	return &ajpMetrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ajpd_requests_total",
				Help: "Total number of forwarded requests by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ajpd_request_duration_milliseconds",
				Help: "Duration of forwarded requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method"},
		),
		bytesTransferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ajpd_bytes_transferred_total",
				Help: "Total bytes read from and written to AJP sockets",
			},
			[]string{"direction"},
		),
		activeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ajpd_active_connections",
				Help: "Current number of open AJP connections",
			},
		),
		connectionsAccepted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_connections_accepted_total",
				Help: "Total number of AJP connections accepted",
			},
		),
		connectionsClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_connections_closed_total",
				Help: "Total number of AJP connections closed",
			},
		),
		connectionsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ajpd_connections_rejected_total",
				Help: "Total number of AJP connections rejected before being served",
			},
			[]string{"reason"},
		),
		connectionsForceClosed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_connections_force_closed_total",
				Help: "Total number of AJP connections force-closed after the shutdown timeout",
			},
		),
		processorsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_processors_created_total",
				Help: "Total number of processors constructed",
			},
		),
		processorsRecycled: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_processors_recycled_total",
				Help: "Total number of processors returned to the pool",
			},
		),
		processorsDiscarded: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_processors_discarded_total",
				Help: "Total number of processors dropped because the pool was full",
			},
		),
		processorsTrimmed: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_processors_trimmed_total",
				Help: "Total number of idle processors dropped by the trimmer",
			},
		),
		processorsIdle: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ajpd_processors_idle",
				Help: "Current number of processors waiting in the pool",
			},
		),
		releases: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ajpd_releases_total",
				Help: "Total number of connection releases by kind",
			},
			[]string{"kind"},
		),
		upgrades: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ajpd_upgrades_total",
				Help: "Total number of connections handed off by a protocol upgrade",
			},
		),
	}
}

func (m *ajpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds() * 1000)
}

func (m *ajpMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *ajpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *ajpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *ajpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *ajpMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *ajpMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *ajpMetrics) RecordProcessorCreated() {
	m.processorsCreated.Inc()
}

func (m *ajpMetrics) RecordProcessorRecycled() {
	m.processorsRecycled.Inc()
}

func (m *ajpMetrics) RecordProcessorDiscarded() {
	m.processorsDiscarded.Inc()
}

func (m *ajpMetrics) RecordProcessorsTrimmed(count int) {
	m.processorsTrimmed.Add(float64(count))
}

func (m *ajpMetrics) SetIdleProcessors(count int) {
	m.processorsIdle.Set(float64(count))
}

func (m *ajpMetrics) RecordRelease(kind string) {
	m.releases.WithLabelValues(kind).Inc()
}

func (m *ajpMetrics) RecordUpgrade() {
	m.upgrades.Inc()
}
