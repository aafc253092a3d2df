package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/vocalcoach/cmd/devices"
	"github.com/tphakala/vocalcoach/cmd/history"
	"github.com/tphakala/vocalcoach/cmd/mqtt"
	"github.com/tphakala/vocalcoach/cmd/rehearse"
	"github.com/tphakala/vocalcoach/internal/buildinfo"
	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/telemetry"
)

type globalFlags struct {
	configFile string
	debug      bool
	logLevel   string
}

// RootCommand creates and returns the root command. settings is filled in
// place before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "vocalcoach",
		Short:         "Real-time singing feedback",
		Long:          "Capture a singer's voice, track pitch and volume and compare them against a target melody.",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, flags); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		devices.Command(settings),
		rehearse.Command(settings),
		history.Command(settings),
		mqtt.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(cmd, settings, build, flags)
	}

	return rootCmd
}

// initialize loads settings, installs the global logger and starts error
// reporting. Flags bound to viper take precedence over the config file.
func initialize(cmd *cobra.Command, settings *conf.Settings, build *buildinfo.Context, flags *globalFlags) error {
	loaded, err := conf.Load(flags.configFile)
	if err != nil {
		return err
	}
	*settings = *loaded

	if cmd.Flags().Changed("log-level") {
		settings.Logging.DefaultLevel = flags.logLevel
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = flags.logLevel
		}
	} else if settings.Debug && settings.Logging.Console != nil {
		settings.Logging.Console.Level = string(logger.LogLevelDebug)
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.InitSentry(&settings.Telemetry.Sentry, build, nil); err != nil {
		// Error reporting is optional
		logger.Global().Module("main").Warn("sentry initialization failed", logger.Error(err))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, flags *globalFlags) error {
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to config.yaml (default: ./config.yaml or the user config directory)")
	rootCmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", logger.DefaultLogLevel, "Log level (debug, info, warn, error)")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// Shutdown flushes telemetry and the global logger
func Shutdown() {
	telemetry.Shutdown(telemetry.DefaultFlushTimeout)
	_ = logger.Global().Flush()
	_ = logger.Global().Close()
}
