package rehearse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/session"
	"github.com/tphakala/vocalcoach/internal/target"
)

func printHeader(out io.Writer, sessionID, device string, trace *target.Trace) {
	_, _ = fmt.Fprintf(out, "Session %s on %s\n", sessionID, device)
	if trace != nil {
		_, _ = fmt.Fprintf(out, "Target: %d points, %.1f s\n", trace.Len(), trace.Duration())
	} else {
		_, _ = fmt.Fprintln(out, "Target: none, pitch and volume only")
	}
	_, _ = fmt.Fprintln(out, "Press Ctrl-C to stop")
}

// printEvents drains events until the channel is closed
func printEvents(out io.Writer, events <-chan feedback.Event, opts *options) error {
	var enc *json.Encoder
	if opts.jsonOutput {
		enc = json.NewEncoder(out)
	}
	for e := range events {
		if opts.quiet {
			continue
		}
		var err error
		if enc != nil {
			err = enc.Encode(&e)
		} else {
			_, err = fmt.Fprintln(out, formatEvent(&e))
		}
		if err != nil {
			// drain so Close is never raced by a full buffer
			for range events {
			}
			return err
		}
	}
	return nil
}

// formatEvent renders one feedback line, e.g.
// "[  2.5s] A4  441.0 Hz   +3.9c acc 0.96 | vol 0.52 | good pitch, good volume"
func formatEvent(e *feedback.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%6.1fs] ", e.Elapsed.Seconds())

	if e.Pitch.Voiced {
		fmt.Fprintf(&b, "%-4s %6.1f Hz ", e.Pitch.Note, e.Pitch.FrequencyHz)
	} else {
		b.WriteString("--          ")
	}

	switch e.Comparison.Status {
	case target.StatusAvailable:
		fmt.Fprintf(&b, "%+6.1fc acc %.2f", e.Comparison.CentError, e.Comparison.Accuracy)
	default:
		fmt.Fprintf(&b, "%-16s", e.Comparison.Message)
	}

	fmt.Fprintf(&b, " | vol %.2f", e.Volume.Normalized)
	if len(e.Coaching.Messages) > 0 {
		b.WriteString(" | ")
		b.WriteString(strings.Join(e.Coaching.Messages, ", "))
	}
	return b.String()
}

func printSummary(out io.Writer, res *session.Result) error {
	if res.Empty() {
		_, err := fmt.Fprintln(out, "No audio was recorded")
		return err
	}
	var b strings.Builder
	b.WriteString("\nSession summary\n")
	fmt.Fprintf(&b, "  ID:        %s\n", res.SessionID)
	fmt.Fprintf(&b, "  Duration:  %.1f s\n", res.DurationSeconds())
	if res.HasAccuracy {
		fmt.Fprintf(&b, "  Accuracy:  %.0f%% (mean error %.1f cents over %d cycles)\n",
			res.AverageAccuracy*100, res.MeanAbsCents, res.ComparedCount)
	} else {
		b.WriteString("  Accuracy:  n/a\n")
	}
	fmt.Fprintf(&b, "  Volume:    %.2f\n", res.AverageVolume)
	fmt.Fprintf(&b, "  Cycles:    %d\n", res.CycleCount)
	if res.DroppedFrames > 0 || res.Glitches > 0 {
		fmt.Fprintf(&b, "  Dropped:   %d frames, %d glitches\n", res.DroppedFrames, res.Glitches)
	}
	if res.Truncated {
		b.WriteString("  Recording truncated at the session length limit\n")
	}
	if res.RecordingPath != "" {
		fmt.Fprintf(&b, "  Recording: %s\n", res.RecordingPath)
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func printSummaryJSON(out io.Writer, res *session.Result) error {
	return json.NewEncoder(out).Encode(struct {
		Summary *session.Result `json:"summary"`
	}{res})
}
