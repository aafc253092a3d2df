package devices

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/conf"
)

type options struct {
	jsonOutput bool
	probe      bool
}

// Command creates the devices command
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "List input devices. With --probe the configured device is opened and closed to check it is usable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := capture.NewCatalog(nil, 0)
			return run(cmd.OutOrStdout(), catalog.List, settings, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print devices as JSON")
	cmd.Flags().BoolVar(&opts.probe, "probe", false, "Open and close the configured capture device")

	return cmd
}

func run(out io.Writer, list capture.EnumerateFunc, settings *conf.Settings, opts *options) error {
	devices, err := list()
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(devices); err != nil {
			return err
		}
	} else {
		if len(devices) == 0 {
			_, _ = fmt.Fprintln(out, "No capture devices found")
		}
		for _, d := range devices {
			_, _ = fmt.Fprintln(out, d.String())
		}
	}

	if !opts.probe {
		return nil
	}

	selected, err := capture.SelectDevice(devices, settings.Audio.Device)
	if err != nil {
		return err
	}
	config := capture.Config{
		SampleRate:   uint32(settings.Audio.SampleRate),   // #nosec G115 -- validated positive
		PeriodFrames: uint32(settings.Audio.PeriodFrames), // #nosec G115
	}
	if err := capture.TestDevice(settings.Audio.Device, config); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Device %q opened successfully\n", selected.Name)
	return nil
}
