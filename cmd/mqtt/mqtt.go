package mqtt

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/mqtt"
)

const testTimeout = 30 * time.Second

// Command creates the mqtt command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mqtt",
		Short: "MQTT feedback publishing tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Check DNS, TCP, MQTT connect and publish against the configured broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), testTimeout)
			defer cancel()
			return runTest(ctx, cmd.OutOrStdout(), mqtt.ConfigFromSettings(&settings.MQTT))
		},
	})
	return cmd
}

func runTest(ctx context.Context, out io.Writer, config mqtt.Config) error {
	results := make(chan mqtt.TestResult)
	go mqtt.TestConnection(ctx, config, results)

	failed := false
	for r := range results {
		mark := "ok  "
		if !r.Success {
			mark = "FAIL"
			failed = true
		}
		line := fmt.Sprintf("[%s] %s: %s", mark, r.Stage, r.Message)
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	if failed {
		return fmt.Errorf("MQTT connection test failed for %s", config.Broker)
	}
	return nil
}
