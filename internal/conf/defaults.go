// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/vocalcoach/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("audio.device", "")
	viper.SetDefault("audio.samplerate", 22050)
	viper.SetDefault("audio.periodframes", 2048)
	viper.SetDefault("audio.channelseconds", 3.0)

	viper.SetDefault("analysis.windowseconds", 1.0)
	viper.SetDefault("analysis.overlap", 0.25)
	viper.SetDefault("analysis.pitchminhz", 80.0)
	viper.SetDefault("analysis.pitchmaxhz", 800.0)
	viper.SetDefault("analysis.fftsize", 4096)
	viper.SetDefault("analysis.noisefloor", 0.01)

	viper.SetDefault("feedback.sensitivity", SensitivityMedium)
	viper.SetDefault("feedback.historysize", 30)

	viper.SetDefault("target.maxgapseconds", 0.5)

	viper.SetDefault("session.jointimeout", 2*time.Second)
	viper.SetDefault("session.maxseconds", 600)
	viper.SetDefault("session.recordingsdir", "recordings")
	viper.SetDefault("session.saverecording", false)

	viper.SetDefault("telemetry.metrics.enabled", false)
	viper.SetDefault("telemetry.metrics.listen", "localhost:8090")
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")
	viper.SetDefault("telemetry.sentry.debug", false)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "vocalcoach/feedback")
	viper.SetDefault("mqtt.clientid", "vocalcoach")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("datastore.enabled", true)
	viper.SetDefault("datastore.path", "vocalcoach.db")
}
