package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// owns its registry, so metrics from different services (or tests) never
// collide.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec

	// Call Metrics
	callsTotal         *prometheus.CounterVec
	callsActive        prometheus.Gauge
	callsDuration      *prometheus.HistogramVec
	callTransitions    *prometheus.CounterVec
	invalidTransitions *prometheus.CounterVec

	// Recording Metrics
	recordingsTotal      *prometheus.CounterVec
	recordingBytesTotal  prometheus.Counter
	recordingsInProgress prometheus.Gauge

	// Transcription Metrics
	transcriptionsTotal   *prometheus.CounterVec
	transcriptionDuration prometheus.Histogram

	// Push Notification Metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics on a fresh registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,

		// HTTP Request Metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// WebSocket Metrics
		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type", "direction"},
		),

		// Call Metrics
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of calls by terminal status",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type", "status"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of active calls",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		callsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Call duration in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),
		callTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_transitions_total",
				Help:        "Total number of call state transitions",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"event", "to_status"},
		),
		invalidTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_invalid_transitions_total",
				Help:        "Total number of rejected call state transitions",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"event"},
		),

		// Recording Metrics
		recordingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "recordings_total",
				Help:        "Total number of call recordings",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"status"},
		),
		recordingBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "recording_bytes_total",
				Help:        "Total bytes of recorded audio uploaded",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		recordingsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "recordings_in_progress",
				Help:        "Number of captures currently open",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		// Transcription Metrics
		transcriptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "transcriptions_total",
				Help:        "Total number of transcription requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"status"},
		),
		transcriptionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "transcription_duration_seconds",
				Help:        "Speech-to-text round trip latency in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),

		// Push Notification Metrics
		pushNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications sent",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type", "platform"},
		),
		pushNotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Total number of failed push notifications",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"type", "platform", "reason"},
		),
	}

	return m
}

// GetRegistry returns the registry backing this instance's metrics
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	m.websocketConnections.Set(float64(count))
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.websocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
}

// Call Metrics Methods

// RecordCall records a call reaching a terminal status
func (m *Metrics) RecordCall(callType, status string) {
	m.callsTotal.WithLabelValues(callType, status).Inc()
}

// IncrementActiveCalls increments the active call gauge
func (m *Metrics) IncrementActiveCalls() {
	m.callsActive.Inc()
}

// DecrementActiveCalls decrements the active call gauge
func (m *Metrics) DecrementActiveCalls() {
	m.callsActive.Dec()
}

// RecordCallDuration records the duration of a call
func (m *Metrics) RecordCallDuration(callType string, duration time.Duration) {
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// RecordCallTransition records an accepted state transition
func (m *Metrics) RecordCallTransition(event, toStatus string) {
	m.callTransitions.WithLabelValues(event, toStatus).Inc()
}

// RecordInvalidTransition records a rejected state transition
func (m *Metrics) RecordInvalidTransition(event string) {
	m.invalidTransitions.WithLabelValues(event).Inc()
}

// Recording Metrics Methods

// RecordRecording records a recording outcome (started, completed, failed)
func (m *Metrics) RecordRecording(status string) {
	m.recordingsTotal.WithLabelValues(status).Inc()
}

// AddRecordingBytes accumulates uploaded recording bytes
func (m *Metrics) AddRecordingBytes(n int64) {
	m.recordingBytesTotal.Add(float64(n))
}

// SetRecordingsInProgress sets the number of open captures
func (m *Metrics) SetRecordingsInProgress(count int) {
	m.recordingsInProgress.Set(float64(count))
}

// Transcription Metrics Methods

// RecordTranscription records a transcription outcome (completed, failed)
func (m *Metrics) RecordTranscription(status string) {
	m.transcriptionsTotal.WithLabelValues(status).Inc()
}

// RecordTranscriptionDuration records the speech-to-text round trip time
func (m *Metrics) RecordTranscriptionDuration(duration time.Duration) {
	m.transcriptionDuration.Observe(duration.Seconds())
}

// Push Notification Metrics Methods

// RecordPushNotification records a delivered push notification
func (m *Metrics) RecordPushNotification(notifType, platform string) {
	m.pushNotificationsTotal.WithLabelValues(notifType, platform).Inc()
}

// RecordPushNotificationFailure records a failed push notification
func (m *Metrics) RecordPushNotificationFailure(notifType, platform, reason string) {
	m.pushNotificationsFailed.WithLabelValues(notifType, platform, reason).Inc()
}
