package history

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/datastore"
)

type options struct {
	limit      int
	offset     int
	jsonOutput bool
}

// Command creates the history command with its list, show, stats and
// delete subcommands
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse stored rehearsal sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				return list(cmd.OutOrStdout(), store, opts)
			})
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print JSON instead of a table")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Number of sessions to list")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Skip this many sessions")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <session-id>",
			Short: "Show one session with its feedback events",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(settings, func(store datastore.Interface) error {
					return show(cmd.OutOrStdout(), store, args[0], opts)
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Summarize all stored sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(settings, func(store datastore.Interface) error {
					return stats(cmd.OutOrStdout(), store, opts)
				})
			},
		},
		&cobra.Command{
			Use:   "delete <session-id>",
			Short: "Delete a stored session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(settings, func(store datastore.Interface) error {
					if err := store.DeleteSession(args[0]); err != nil {
						return err
					}
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
					return err
				})
			},
		},
	)
	return cmd
}

func withStore(settings *conf.Settings, fn func(datastore.Interface) error) error {
	if !settings.Datastore.Enabled {
		return fmt.Errorf("session history is disabled (datastore.enabled: false)")
	}
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func accuracyText(s *datastore.Session) string {
	if !s.HasAccuracy {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", s.AverageAccuracy*100)
}

func list(out io.Writer, store datastore.Interface, opts *options) error {
	sessions, err := store.ListSessions(opts.limit, opts.offset)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return writeJSON(out, sessions)
	}
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(out, "No sessions recorded yet")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tACCURACY\tVOLUME\tCYCLES\tDROPPED\tRECORDING")
	for i := range sessions {
		s := &sessions[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1fs\t%s\t%.2f\t%d\t%d\t%s\n",
			s.SessionID,
			s.StartedAt.Local().Format(time.DateTime),
			s.DurationSeconds,
			accuracyText(s),
			s.AverageVolume,
			s.CycleCount,
			s.DroppedFrames,
			s.RecordingPath)
	}
	return w.Flush()
}

func show(out io.Writer, store datastore.Interface, sessionID string, opts *options) error {
	s, err := store.GetSession(sessionID)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return writeJSON(out, s)
	}

	_, _ = fmt.Fprintf(out, "Session %s\n", s.SessionID)
	_, _ = fmt.Fprintf(out, "  Started:   %s\n", s.StartedAt.Local().Format(time.DateTime))
	_, _ = fmt.Fprintf(out, "  Device:    %s\n", s.Device)
	if s.TracePath != "" {
		_, _ = fmt.Fprintf(out, "  Target:    %s\n", s.TracePath)
	}
	_, _ = fmt.Fprintf(out, "  Duration:  %.1f s\n", s.DurationSeconds)
	_, _ = fmt.Fprintf(out, "  Accuracy:  %s\n", accuracyText(&s))
	_, _ = fmt.Fprintf(out, "  Volume:    %.2f\n", s.AverageVolume)
	if s.RecordingPath != "" {
		_, _ = fmt.Fprintf(out, "  Recording: %s\n", s.RecordingPath)
	}
	if len(s.Events) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tNOTE\tHZ\tCENTS\tACCURACY\tVOLUME\tFEEDBACK")
	for _, e := range s.Events {
		cents, acc := "-", "-"
		if e.Status == "available" {
			cents = fmt.Sprintf("%+.1f", e.CentError)
			acc = fmt.Sprintf("%.2f", e.Accuracy)
		}
		note := e.Note
		if note == "" {
			note = "-"
		}
		_, _ = fmt.Fprintf(w, "%.1fs\t%s\t%.1f\t%s\t%s\t%.2f\t%s\n",
			e.ElapsedSeconds, note, e.FrequencyHz, cents, acc, e.Volume,
			strings.ReplaceAll(e.Messages, "\n", ", "))
	}
	return w.Flush()
}

func stats(out io.Writer, store datastore.Interface, opts *options) error {
	st, err := store.GetStats()
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return writeJSON(out, st)
	}
	_, _ = fmt.Fprintf(out, "Sessions:          %d\n", st.Sessions)
	_, _ = fmt.Fprintf(out, "Total time:        %s\n", time.Duration(st.TotalSeconds*float64(time.Second)).Round(time.Second))
	_, _ = fmt.Fprintf(out, "Average accuracy:  %.0f%%\n", st.AverageAccuracy*100)
	_, err = fmt.Fprintf(out, "Best accuracy:     %.0f%%\n", st.BestAccuracy*100)
	return err
}
