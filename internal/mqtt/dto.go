package mqtt

import (
	"time"

	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/session"
)

// FeedbackDTO is the payload published for every dispatched feedback event.
// Field names are part of the published contract.
type FeedbackDTO struct {
	SessionID      string   `json:"sessionId"`
	Timestamp      string   `json:"timestamp"` // RFC3339 with milliseconds
	ElapsedSeconds float64  `json:"elapsedSeconds"`
	Cycle          uint64   `json:"cycle"`
	FrequencyHz    float64  `json:"frequencyHz"`
	Voiced         bool     `json:"voiced"`
	Note           string   `json:"note,omitempty"`
	Volume         float64  `json:"volume"`
	VolumeLevel    string   `json:"volumeLevel"`
	PitchStability float64  `json:"pitchStability"`
	Status         string   `json:"status"`
	ExpectedHz     float64  `json:"expectedHz,omitempty"`
	CentError      *float64 `json:"centError,omitempty"`
	Accuracy       *float64 `json:"accuracy,omitempty"`
	Messages       []string `json:"messages"`
}

// NewFeedbackDTO converts a feedback event
func NewFeedbackDTO(sessionID string, e *feedback.Event) *FeedbackDTO {
	dto := &FeedbackDTO{
		SessionID:      sessionID,
		Timestamp:      e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		ElapsedSeconds: e.Elapsed.Seconds(),
		Cycle:          e.Cycle,
		FrequencyHz:    e.Pitch.FrequencyHz,
		Voiced:         e.Pitch.Voiced,
		Note:           e.Pitch.Note,
		Volume:         e.Volume.Normalized,
		VolumeLevel:    string(e.Volume.Level),
		PitchStability: e.Stability.Pitch,
		Status:         string(e.Comparison.Status),
		Messages:       e.Coaching.Messages,
	}
	if e.Comparison.Available() {
		cents, acc := e.Comparison.CentError, e.Comparison.Accuracy
		dto.ExpectedHz = e.Comparison.ExpectedHz
		dto.CentError = &cents
		dto.Accuracy = &acc
	}
	if dto.Messages == nil {
		dto.Messages = []string{}
	}
	return dto
}

// SummaryDTO is published once when a session ends
type SummaryDTO struct {
	SessionID       string   `json:"sessionId"`
	StartedAt       string   `json:"startedAt"`
	DurationSeconds float64  `json:"durationSeconds"`
	AverageAccuracy *float64 `json:"averageAccuracy,omitempty"`
	AverageVolume   float64  `json:"averageVolume"`
	Cycles          uint64   `json:"cycles"`
	DroppedFrames   uint64   `json:"droppedFrames"`
	Truncated       bool     `json:"truncated,omitempty"`
}

// NewSummaryDTO converts a session result
func NewSummaryDTO(res *session.Result) *SummaryDTO {
	dto := &SummaryDTO{
		SessionID:       res.SessionID,
		StartedAt:       res.StartedAt.Format(time.RFC3339),
		DurationSeconds: res.DurationSeconds(),
		AverageVolume:   res.AverageVolume,
		Cycles:          res.CycleCount,
		DroppedFrames:   res.DroppedFrames,
		Truncated:       res.Truncated,
	}
	if res.HasAccuracy {
		acc := res.AverageAccuracy
		dto.AverageAccuracy = &acc
	}
	return dto
}
