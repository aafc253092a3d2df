// config.go: settings structure and loading for vocalcoach
package conf

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// EnvPrefix is prepended to upper-cased config keys for environment overrides,
// e.g. VOCALCOACH_FEEDBACK_SENSITIVITY.
const EnvPrefix = "VOCALCOACH"

// Feedback sensitivity presets
const (
	SensitivityHigh   = "high"
	SensitivityMedium = "medium"
	SensitivityLow    = "low"
)

// AudioSettings controls the capture device and frame hand-off
type AudioSettings struct {
	Device         string  // "", device index, exact name, decoded ID or name substring
	SampleRate     int     // capture sample rate in Hz
	PeriodFrames   int     // samples per hardware period (one AudioFrame)
	ChannelSeconds float64 // frame channel capacity expressed in seconds of audio
}

// ChannelCapacity returns the frame channel capacity in frames, at least 1.
func (a *AudioSettings) ChannelCapacity() int {
	if a.SampleRate <= 0 || a.PeriodFrames <= 0 {
		return 1
	}
	frames := int(a.ChannelSeconds*float64(a.SampleRate)+float64(a.PeriodFrames)-1) / a.PeriodFrames
	return max(frames, 1)
}

// PeriodDuration is the wall-clock length of one capture period
func (a *AudioSettings) PeriodDuration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(a.PeriodFrames) / float64(a.SampleRate) * float64(time.Second))
}

// AnalysisSettings controls the sliding analysis window and pitch detector
type AnalysisSettings struct {
	WindowSeconds float64 // analysis window length
	Overlap       float64 // fraction of the window retained between cycles
	PitchMinHz    float64 // lower edge of the pitch search band
	PitchMaxHz    float64 // upper edge of the pitch search band
	FFTSize       int     // short-time FFT frame length in samples
	NoiseFloor    float64 // minimum normalized peak magnitude for a voiced frame
}

// FeedbackSettings controls the dispatcher
type FeedbackSettings struct {
	Sensitivity string // high, medium or low
	HistorySize int    // cycles retained per metric
}

// Interval resolves the sensitivity preset to a minimum dispatch interval.
// Unknown values fall back to medium.
func (f *FeedbackSettings) Interval() time.Duration {
	switch strings.ToLower(f.Sensitivity) {
	case SensitivityHigh:
		return 200 * time.Millisecond
	case SensitivityLow:
		return time.Second
	default:
		return 500 * time.Millisecond
	}
}

// TargetSettings controls target trace lookup
type TargetSettings struct {
	MaxGapSeconds float64 // max distance to a trace point before the target is unavailable
}

// SessionSettings controls a rehearsal session
type SessionSettings struct {
	JoinTimeout   time.Duration // bounded wait for the analysis goroutine on stop
	MaxSeconds    int           // upper bound for the full-session buffer
	RecordingsDir string        // directory for exported WAV files
	SaveRecording bool          // export the session audio on stop
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool
	Listen  string // host:port
}

// SentrySettings configures error telemetry
type SentrySettings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

// TelemetrySettings groups metrics and error reporting
type TelemetrySettings struct {
	Metrics MetricsSettings
	Sentry  SentrySettings
}

// MQTTSettings configures feedback publishing
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:1883
	Topic    string // base topic, events are published under <topic>/<session>
	ClientID string
	Username string
	Password string
	QoS      int
	Retain   bool
}

// DatastoreSettings configures session history storage
type DatastoreSettings struct {
	Enabled bool
	Path    string // SQLite database file
}

// Settings contains all configuration options for vocalcoach.
type Settings struct {
	Debug bool // true to enable debug mode

	Logging   logger.LoggingConfig
	Audio     AudioSettings
	Analysis  AnalysisSettings
	Feedback  FeedbackSettings
	Target    TargetSettings
	Session   SessionSettings
	Telemetry TelemetrySettings
	MQTT      MQTTSettings
	Datastore DatastoreSettings
}

// FeedbackInterval is shorthand for s.Feedback.Interval()
func (s *Settings) FeedbackInterval() time.Duration {
	return s.Feedback.Interval()
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables
// into a validated Settings. An empty configFile searches the default paths;
// a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-config").
			Build()
	}

	if settings.Debug && settings.Logging.DefaultLevel == logger.DefaultLogLevel {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "validate-config").
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, env bindings and reads the config file.
func initViper(configFile string) error {
	setDefaultConfig()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml:
// the working directory and the user config directory.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "vocalcoach"))
	}
	return paths
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetLogger returns the conf module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("conf")
}
