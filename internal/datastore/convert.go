package datastore

import (
	"strings"

	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/session"
)

// FromResult maps a finished session and the events it dispatched to
// database records
func FromResult(res *session.Result, tracePath string, events []feedback.Event) (*Session, []FeedbackEvent) {
	s := &Session{
		SessionID:       res.SessionID,
		Device:          res.Device,
		TracePath:       tracePath,
		StartedAt:       res.StartedAt,
		DurationSeconds: res.DurationSeconds(),
		SampleRate:      res.SampleRate,
		AverageAccuracy: res.AverageAccuracy,
		HasAccuracy:     res.HasAccuracy,
		MeanAbsCents:    res.MeanAbsCents,
		AverageVolume:   res.AverageVolume,
		CycleCount:      res.CycleCount,
		ComparedCount:   res.ComparedCount,
		DroppedFrames:   res.DroppedFrames,
		Glitches:        res.Glitches,
		Truncated:       res.Truncated,
		RecordingPath:   res.RecordingPath,
	}

	records := make([]FeedbackEvent, 0, len(events))
	for i := range events {
		e := &events[i]
		records = append(records, FeedbackEvent{
			ElapsedSeconds: e.Elapsed.Seconds(),
			FrequencyHz:    e.Pitch.FrequencyHz,
			Note:           e.Pitch.Note,
			ExpectedHz:     e.Comparison.ExpectedHz,
			CentError:      e.Comparison.CentError,
			Accuracy:       e.Comparison.Accuracy,
			Status:         string(e.Comparison.Status),
			Volume:         e.Volume.Normalized,
			Messages:       strings.Join(e.Coaching.Messages, "\n"),
		})
	}
	return s, records
}
