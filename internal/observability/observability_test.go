package observability

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/session"
	"github.com/tphakala/vocalcoach/internal/target"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func counterWithLabel(f *dto.MetricFamily, label, value string) float64 {
	for _, metric := range f.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestSessionMetricsObserveCycles(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	voiced := analysis.Result{
		Pitch:  analysis.PitchEstimate{FrequencyHz: 440, Voiced: true},
		Volume: analysis.VolumeEstimate{Normalized: 0.6, Level: analysis.LevelHigh},
	}
	m.Session.CycleCompleted(voiced, target.ComparisonResult{Status: target.StatusAvailable, Accuracy: 0.9, CentError: 10}, 2*time.Millisecond)
	m.Session.CycleCompleted(voiced, target.ComparisonResult{Status: target.StatusAvailable, Accuracy: 1}, time.Millisecond)
	m.Session.CycleCompleted(analysis.Result{Volume: analysis.VolumeEstimate{Level: analysis.LevelVeryLow}},
		target.ComparisonResult{Status: target.StatusSilence}, time.Millisecond)

	cycles := findFamily(t, m, "vocalcoach_analysis_cycles_total")
	assert.InDelta(t, 2, counterWithLabel(cycles, "status", "available"), 0)
	assert.InDelta(t, 1, counterWithLabel(cycles, "status", "silence"), 0)

	acc := findFamily(t, m, "vocalcoach_pitch_accuracy")
	assert.Equal(t, uint64(2), acc.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.InDelta(t, 1.9, acc.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)

	pitch := findFamily(t, m, "vocalcoach_pitch_hz")
	assert.Zero(t, pitch.GetMetric()[0].GetGauge().GetValue())

	levels := findFamily(t, m, "vocalcoach_volume_level_cycles_total")
	assert.InDelta(t, 2, counterWithLabel(levels, "level", "high"), 0)
}

func TestSessionMetricsSessionFinished(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Session.SessionFinished(&session.Result{
		Samples:       make([]float32, 22050*4),
		SampleRate:    22050,
		Duration:      4 * time.Second,
		DroppedFrames: 3,
		Glitches:      1,
	})

	assert.InDelta(t, 1, findFamily(t, m, "vocalcoach_sessions_total").GetMetric()[0].GetCounter().GetValue(), 0)
	assert.InDelta(t, 3, findFamily(t, m, "vocalcoach_dropped_frames_total").GetMetric()[0].GetCounter().GetValue(), 0)
	dur := findFamily(t, m, "vocalcoach_session_duration_seconds").GetMetric()[0].GetHistogram()
	assert.InDelta(t, 4, dur.GetSampleSum(), 1e-9)
}

func TestMQTTMetricsConnectionStatus(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.MQTT.UpdateConnectionStatus(true)
	m.MQTT.IncrementMessagesDelivered()
	m.MQTT.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, findFamily(t, m, "vocalcoach_mqtt_connection_status").GetMetric()[0].GetGauge().GetValue(), 0)
	assert.Positive(t, findFamily(t, m, "vocalcoach_mqtt_last_connect_time_seconds").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, uint64(1), findFamily(t, m, "vocalcoach_mqtt_publish_latency_seconds").GetMetric()[0].GetHistogram().GetSampleCount())

	m.MQTT.UpdateConnectionStatus(false)
	assert.Zero(t, findFamily(t, m, "vocalcoach_mqtt_connection_status").GetMetric()[0].GetGauge().GetValue())
}

func TestTrackErrorsCountsBuiltErrors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	untrack := m.TrackErrors()
	t.Cleanup(untrack)

	_ = errors.New(errors.NewStd("device vanished")).
		Component("capture").
		Category(errors.CategoryAudioSource).
		Priority(errors.PriorityHigh).
		Build()
	_ = errors.Newf("publish failed").Component("mqtt").Category(errors.CategoryMQTTPublish).Build()

	family := findFamily(t, m, "vocalcoach_errors_total")
	assert.InDelta(t, 1, counterWithLabel(family, "priority", "high"), 0)
	assert.InDelta(t, 1, counterWithLabel(family, "category", "mqtt-publish"), 0)

	untrack()
	_ = errors.Newf("after untrack").Component("mqtt").Category(errors.CategoryMQTTPublish).Build()
	assert.InDelta(t, 1, counterWithLabel(findFamily(t, m, "vocalcoach_errors_total"), "category", "mqtt-publish"), 0)
}

func TestNewEndpointDisabled(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewEndpoint(&conf.MetricsSettings{Enabled: false}, m)
	require.Error(t, err)
}

func TestEndpointServesMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Session.Sessions.Inc()

	ep, err := NewEndpoint(&conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}, m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, ep.Start(ctx))

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ep.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "vocalcoach_sessions_total 1")
	client.CloseIdleConnections()

	cancel()
	ep.Wait()
}

func TestEndpointBindFailure(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	ep, err := NewEndpoint(&conf.MetricsSettings{Enabled: true, Listen: "256.0.0.1:1"}, m)
	require.NoError(t, err)
	require.Error(t, ep.Start(t.Context()))
}
