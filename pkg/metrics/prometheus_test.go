package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Each instance owns its registry, so two services (or two tests)
	// registering the same families must not collide.
	a := NewMetrics("service-a")
	b := NewMetrics("service-b")

	a.RecordCallTransition("accept", "active")

	assert.Equal(t, float64(1), testutil.ToFloat64(a.callTransitions.WithLabelValues("accept", "active")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.callTransitions.WithLabelValues("accept", "active")))
}

func TestCallMetrics(t *testing.T) {
	m := NewMetrics("test")

	m.IncrementActiveCalls()
	m.IncrementActiveCalls()
	m.DecrementActiveCalls()
	m.RecordCall("audio", "ended")
	m.RecordCall("audio", "ended")
	m.RecordInvalidTransition("accept")
	m.RecordCallDuration("audio", 90*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.callsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.callsTotal.WithLabelValues("audio", "ended")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.invalidTransitions.WithLabelValues("accept")))
}

func TestRecordingAndTranscriptionMetrics(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRecording("started")
	m.RecordRecording("completed")
	m.AddRecordingBytes(2048)
	m.SetRecordingsInProgress(1)
	m.RecordTranscription("completed")
	m.RecordTranscriptionDuration(3 * time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordingsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(2048), testutil.ToFloat64(m.recordingBytesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordingsInProgress))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transcriptionsTotal.WithLabelValues("completed")))
}

func TestRegistryExposesRecordedFamilies(t *testing.T) {
	m := NewMetrics("test")

	m.RecordHTTPRequest("GET", "/v1/calls", 200, 10*time.Millisecond)
	m.RecordPushNotification("INCOMING_CALL", "fcm")
	m.RecordWebSocketMessage("call_ended", "out")

	count, err := testutil.GatherAndCount(m.GetRegistry(),
		"http_requests_total", "push_notifications_total", "websocket_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
