package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/audiolibrelab/audiobridge/internal/audio"
)

// Metrics contains all Prometheus metrics for the audio bridge
type Metrics struct {
	// Recording session metrics
	Recording         prometheus.Gauge
	RecordingsStarted prometheus.Counter
	RecordingsStopped prometheus.Counter
	RecordingsFailed  prometheus.Counter
	StartFailures     prometheus.Counter
	RecordingDuration prometheus.Histogram
	RecordingBytes    prometheus.Histogram

	// Device graph metrics
	AggregatesCreated prometheus.Counter
	DefaultSwitches   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "audiobridge_recording",
			Help: "1 while a recording session is active",
		}),
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiobridge_recordings_started_total",
			Help: "Total number of recording sessions started",
		}),
		RecordingsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiobridge_recordings_stopped_total",
			Help: "Total number of recording sessions stopped and finalized",
		}),
		RecordingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiobridge_recordings_failed_total",
			Help: "Total number of recording sessions whose capture process exited unexpectedly",
		}),
		StartFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiobridge_recording_start_failures_total",
			Help: "Total number of capture processes that could not be started",
		}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobridge_recording_duration_seconds",
			Help:    "Duration of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
		}),
		RecordingBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audiobridge_recording_size_bytes",
			Help:    "Size of finalized recording files",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 10), // 16KB to ~4GB
		}),

		AggregatesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiobridge_aggregates_created_total",
			Help: "Total number of aggregate devices created",
		}),
		DefaultSwitches: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiobridge_default_output_switches_total",
			Help: "Total number of successful default output changes requested through the API",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiobridge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audiobridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// OnSessionEvent updates the session metrics from manager events
func (m *Metrics) OnSessionEvent(e audio.Event) {
	switch e.Type {
	case audio.EventRecordingStarted:
		m.RecordingsStarted.Inc()
		m.Recording.Set(1)
	case audio.EventRecordingStopped:
		m.RecordingsStopped.Inc()
		m.Recording.Set(0)
		if e.Result != nil {
			m.RecordingDuration.Observe(e.Result.Duration.Seconds())
			m.RecordingBytes.Observe(float64(e.Result.Size))
		}
	case audio.EventRecordingFailed:
		m.RecordingsFailed.Inc()
		m.Recording.Set(0)
	case audio.EventStartFailed:
		m.StartFailures.Inc()
	}
}

// RecordAggregateCreated increments the aggregates created counter
func (m *Metrics) RecordAggregateCreated() {
	m.AggregatesCreated.Inc()
}

// RecordDefaultSwitch increments the default output switch counter
func (m *Metrics) RecordDefaultSwitch() {
	m.DefaultSwitches.Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
