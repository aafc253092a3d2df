package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/session"
	"github.com/tphakala/vocalcoach/internal/target"
)

// SessionMetrics tracks analysis cycles and finished sessions. It
// implements session.Observer.
type SessionMetrics struct {
	Cycles          *prometheus.CounterVec // by comparison status
	AnalysisLatency prometheus.Histogram
	CentError       prometheus.Histogram
	Accuracy        prometheus.Histogram
	PitchHz         prometheus.Gauge
	Volume          prometheus.Gauge
	VolumeLevels    *prometheus.CounterVec
	Sessions        prometheus.Counter
	SessionDuration prometheus.Histogram
	DroppedFrames   prometheus.Counter
	Glitches        prometheus.Counter
}

// NewSessionMetrics creates and registers session metrics on registry.
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "analysis_cycles_total",
			Help:      "Analysis cycles by comparison status",
		}, []string{LabelStatus}),
		AnalysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "analysis_cycle_seconds",
			Help:      "Time spent analysing, comparing and dispatching one cycle",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		CentError: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pitch_cent_error",
			Help:      "Cent error of available comparisons",
			Buckets:   prometheus.LinearBuckets(-100, 20, 11),
		}),
		Accuracy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "pitch_accuracy",
			Help:      "Accuracy of available comparisons",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		PitchHz: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "pitch_hz",
			Help:      "Most recent detected pitch, 0 when unvoiced",
		}),
		Volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "volume_normalized",
			Help:      "Most recent normalized volume",
		}),
		VolumeLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "volume_level_cycles_total",
			Help:      "Analysis cycles by volume level",
		}, []string{LabelLevel}),
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "session_duration_seconds",
			Help:      "Recorded duration of finished sessions",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dropped_frames_total",
			Help:      "Frames evicted from the capture channel",
		}),
		Glitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "capture_glitches_total",
			Help:      "Capture callbacks that could not produce a frame",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

// CycleCompleted implements session.Observer
func (m *SessionMetrics) CycleCompleted(r analysis.Result, cmp target.ComparisonResult, took time.Duration) {
	m.Cycles.WithLabelValues(string(cmp.Status)).Inc()
	m.AnalysisLatency.Observe(took.Seconds())
	m.PitchHz.Set(r.Pitch.FrequencyHz)
	m.Volume.Set(r.Volume.Normalized)
	m.VolumeLevels.WithLabelValues(string(r.Volume.Level)).Inc()
	if cmp.Available() {
		m.CentError.Observe(cmp.CentError)
		m.Accuracy.Observe(cmp.Accuracy)
	}
}

// SessionFinished implements session.Observer
func (m *SessionMetrics) SessionFinished(res *session.Result) {
	m.Sessions.Inc()
	m.SessionDuration.Observe(res.DurationSeconds())
	m.DroppedFrames.Add(float64(res.DroppedFrames))
	m.Glitches.Add(float64(res.Glitches))
}

func (m *SessionMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Cycles, m.AnalysisLatency, m.CentError, m.Accuracy, m.PitchHz, m.Volume,
		m.VolumeLevels, m.Sessions, m.SessionDuration, m.DroppedFrames, m.Glitches,
	}
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

var _ session.Observer = (*SessionMetrics)(nil)
