// validate.go contains validation logic for the configuration settings
package conf

import (
	"fmt"
	"math/bits"
	"net"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates all settings and returns a ValidationError
// listing every problem found, or nil.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		func(s *Settings) []string { return validateAudioSettings(&s.Audio) },
		func(s *Settings) []string { return validateAnalysisSettings(&s.Analysis, s.Audio.SampleRate) },
		func(s *Settings) []string { return validateFeedbackSettings(&s.Feedback) },
		func(s *Settings) []string { return validateSessionSettings(&s.Session, &s.Target) },
		func(s *Settings) []string { return validateTelemetrySettings(&s.Telemetry) },
		func(s *Settings) []string { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) []string { return validateDatastoreSettings(&s.Datastore) },
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) []string {
	var errs []string
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		errs = append(errs, fmt.Sprintf("audio.samplerate must be between 8000 and 192000, got %d", a.SampleRate))
	}
	if a.PeriodFrames < 64 {
		errs = append(errs, fmt.Sprintf("audio.periodframes must be at least 64, got %d", a.PeriodFrames))
	}
	if a.ChannelSeconds < 2 || a.ChannelSeconds > 5 {
		errs = append(errs, fmt.Sprintf("audio.channelseconds must be between 2 and 5, got %g", a.ChannelSeconds))
	}
	return errs
}

func validateAnalysisSettings(a *AnalysisSettings, sampleRate int) []string {
	var errs []string
	if a.WindowSeconds < 0.25 || a.WindowSeconds > 5 {
		errs = append(errs, fmt.Sprintf("analysis.windowseconds must be between 0.25 and 5, got %g", a.WindowSeconds))
	}
	if a.Overlap < 0.25 || a.Overlap > 0.9 {
		errs = append(errs, fmt.Sprintf("analysis.overlap must be between 0.25 and 0.9, got %g", a.Overlap))
	}
	if a.PitchMinHz <= 0 || a.PitchMaxHz <= a.PitchMinHz {
		errs = append(errs, fmt.Sprintf("analysis pitch band is invalid: [%g, %g]", a.PitchMinHz, a.PitchMaxHz))
	}
	if sampleRate > 0 && a.PitchMaxHz >= float64(sampleRate)/2 {
		errs = append(errs, fmt.Sprintf("analysis.pitchmaxhz %g must be below Nyquist (%d Hz)", a.PitchMaxHz, sampleRate/2))
	}
	if a.FFTSize < 512 || bits.OnesCount(uint(a.FFTSize)) != 1 {
		errs = append(errs, fmt.Sprintf("analysis.fftsize must be a power of two >= 512, got %d", a.FFTSize))
	}
	if sampleRate > 0 && float64(a.FFTSize) > a.WindowSeconds*float64(sampleRate) {
		errs = append(errs, fmt.Sprintf("analysis.fftsize %d exceeds the window length", a.FFTSize))
	}
	if a.NoiseFloor < 0 || a.NoiseFloor >= 1 {
		errs = append(errs, fmt.Sprintf("analysis.noisefloor must be in [0, 1), got %g", a.NoiseFloor))
	}
	return errs
}

func validateFeedbackSettings(f *FeedbackSettings) []string {
	var errs []string
	if !slices.Contains([]string{SensitivityHigh, SensitivityMedium, SensitivityLow}, strings.ToLower(f.Sensitivity)) {
		errs = append(errs, fmt.Sprintf("feedback.sensitivity must be high, medium or low, got %q", f.Sensitivity))
	}
	if f.HistorySize < 1 || f.HistorySize > 1000 {
		errs = append(errs, fmt.Sprintf("feedback.historysize must be between 1 and 1000, got %d", f.HistorySize))
	}
	return errs
}

func validateSessionSettings(s *SessionSettings, t *TargetSettings) []string {
	var errs []string
	if s.JoinTimeout <= 0 {
		errs = append(errs, "session.jointimeout must be positive")
	}
	if s.MaxSeconds < 1 {
		errs = append(errs, fmt.Sprintf("session.maxseconds must be at least 1, got %d", s.MaxSeconds))
	}
	if s.SaveRecording && s.RecordingsDir == "" {
		errs = append(errs, "session.recordingsdir must be set when session.saverecording is enabled")
	}
	if t.MaxGapSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("target.maxgapseconds must be positive, got %g", t.MaxGapSeconds))
	}
	return errs
}

func validateTelemetrySettings(t *TelemetrySettings) []string {
	var errs []string
	if t.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(t.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("telemetry.metrics.listen is not host:port: %v", err))
		}
	}
	if t.Sentry.Enabled && t.Sentry.DSN == "" {
		errs = append(errs, "telemetry.sentry.dsn must be set when sentry is enabled")
	}
	return errs
}

func validateMQTTSettings(m *MQTTSettings) []string {
	if !m.Enabled {
		return nil
	}
	var errs []string
	u, err := url.Parse(m.Broker)
	if err != nil || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker is not a valid URL: %q", m.Broker))
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt.topic must be set when mqtt is enabled")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos must be 0, 1 or 2, got %d", m.QoS))
	}
	return errs
}

func validateDatastoreSettings(d *DatastoreSettings) []string {
	if d.Enabled && d.Path == "" {
		return []string{"datastore.path must be set when the datastore is enabled"}
	}
	return nil
}
