package rehearse

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/vocalcoach/internal/conf"
)

type options struct {
	tracePath  string
	simulateHz float64
	inputPath  string
	duration   time.Duration
	jsonOutput bool
	quiet      bool
}

// Command creates the rehearse command
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "rehearse",
		Short: "Run a rehearsal session with live feedback",
		Long: `Capture audio, print pitch and volume feedback while singing and compare
against a target melody trace. The session ends on Ctrl-C, after --duration
or when the --input file has been played.`,
		Example: `  vocalcoach rehearse --trace melody.yaml
  vocalcoach rehearse --simulate 440 --duration 10s
  vocalcoach rehearse --input take1.wav --trace melody.yaml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.simulateHz > 0 && opts.inputPath != "" {
				return fmt.Errorf("--simulate and --input are mutually exclusive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err := run(ctx, cmd.OutOrStdout(), settings, opts)
			return err
		},
	}

	if err := setupFlags(cmd, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the rehearse command.
func setupFlags(cmd *cobra.Command, opts *options) error {
	cmd.Flags().StringVarP(&opts.tracePath, "trace", "t", "", "Target melody trace (YAML or JSON)")
	cmd.Flags().Float64Var(&opts.simulateHz, "simulate", 0, "Use a synthetic tone at this frequency instead of a microphone")
	cmd.Flags().StringVarP(&opts.inputPath, "input", "i", "", "Replay a WAV file instead of capturing")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop automatically after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print feedback events as JSON lines")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the session summary")

	cmd.Flags().String("device", "", "Capture device: index, name, ID or substring")
	cmd.Flags().String("sensitivity", "", "Feedback rate: high, medium or low")
	cmd.Flags().Bool("save", false, "Save the session audio as WAV")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics while the session runs")

	bindings := map[string]string{
		"audio.device":              "device",
		"feedback.sensitivity":      "sensitivity",
		"session.saverecording":     "save",
		"telemetry.metrics.enabled": "metrics",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
