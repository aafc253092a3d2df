package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Audio:    AudioSettings{SampleRate: 22050, PeriodFrames: 2048, ChannelSeconds: 3},
		Analysis: AnalysisSettings{WindowSeconds: 1, Overlap: 0.25, PitchMinHz: 80, PitchMaxHz: 800, FFTSize: 4096, NoiseFloor: 0.01},
		Feedback: FeedbackSettings{Sensitivity: SensitivityMedium, HistorySize: 30},
		Target:   TargetSettings{MaxGapSeconds: 0.5},
		Session:  SessionSettings{JoinTimeout: 2 * time.Second, MaxSeconds: 600, RecordingsDir: "recordings"},
		Telemetry: TelemetrySettings{
			Metrics: MetricsSettings{Listen: "localhost:8090"},
		},
		MQTT:      MQTTSettings{Broker: "tcp://localhost:1883", Topic: "vocalcoach/feedback"},
		Datastore: DatastoreSettings{Enabled: true, Path: "vocalcoach.db"},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid defaults", func(*Settings) {}, ""},
		{"channel too short", func(s *Settings) { s.Audio.ChannelSeconds = 1 }, "audio.channelseconds"},
		{"sample rate too low", func(s *Settings) { s.Audio.SampleRate = 4000 }, "audio.samplerate"},
		{"overlap below 25 percent", func(s *Settings) { s.Analysis.Overlap = 0.2 }, "analysis.overlap"},
		{"inverted pitch band", func(s *Settings) { s.Analysis.PitchMinHz = 900 }, "pitch band"},
		{"band above nyquist", func(s *Settings) { s.Analysis.PitchMaxHz = 12000 }, "Nyquist"},
		{"fft not power of two", func(s *Settings) { s.Analysis.FFTSize = 3000 }, "power of two"},
		{"fft longer than window", func(s *Settings) { s.Analysis.WindowSeconds = 0.25; s.Analysis.FFTSize = 8192 }, "exceeds the window"},
		{"unknown sensitivity", func(s *Settings) { s.Feedback.Sensitivity = "max" }, "feedback.sensitivity"},
		{"zero join timeout", func(s *Settings) { s.Session.JoinTimeout = 0 }, "jointimeout"},
		{"recording without dir", func(s *Settings) { s.Session.SaveRecording = true; s.Session.RecordingsDir = "" }, "recordingsdir"},
		{"bad metrics listen", func(s *Settings) { s.Telemetry.Metrics.Enabled = true; s.Telemetry.Metrics.Listen = "8090" }, "metrics.listen"},
		{"sentry without dsn", func(s *Settings) { s.Telemetry.Sentry.Enabled = true }, "sentry.dsn"},
		{"mqtt disabled ignores broker", func(s *Settings) { s.MQTT.Broker = "" }, ""},
		{"mqtt enabled bad broker", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Broker = "localhost" }, "mqtt.broker"},
		{"mqtt bad qos", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.QoS = 3 }, "mqtt.qos"},
		{"datastore without path", func(s *Settings) { s.Datastore.Path = "" }, "datastore.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	s := validSettings()
	s.Audio.PeriodFrames = 0
	s.Feedback.HistorySize = 0
	s.Target.MaxGapSeconds = 0

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}
