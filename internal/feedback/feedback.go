// Package feedback throttles per-cycle analysis results into feedback events
// and delivers them to a Listener.
package feedback

import (
	"time"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/target"
)

// Event is one dispatched feedback update. It is passed by value.
type Event struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Elapsed    time.Duration              `json:"elapsed"`
	Cycle      uint64                     `json:"cycle"`
	Pitch      analysis.PitchEstimate     `json:"pitch"`
	Volume     analysis.VolumeEstimate    `json:"volume"`
	Stability  analysis.StabilityEstimate `json:"stability"`
	Comparison target.ComparisonResult    `json:"comparison"`
	Coaching   Coaching                   `json:"coaching"`
}

// Listener receives feedback on the analysis goroutine. OnPitch and
// OnVolume are called every analysis cycle, OnFeedback at most once per
// dispatch interval. Implementations must return quickly; a slow listener
// delays dispatch.
type Listener interface {
	OnPitch(analysis.PitchEstimate)
	OnVolume(analysis.VolumeEstimate)
	OnFeedback(Event)
}

// ListenerFuncs adapts plain functions to Listener; nil fields are skipped
type ListenerFuncs struct {
	Pitch    func(analysis.PitchEstimate)
	Volume   func(analysis.VolumeEstimate)
	Feedback func(Event)
}

func (f ListenerFuncs) OnPitch(p analysis.PitchEstimate) {
	if f.Pitch != nil {
		f.Pitch(p)
	}
}

func (f ListenerFuncs) OnVolume(v analysis.VolumeEstimate) {
	if f.Volume != nil {
		f.Volume(v)
	}
}

func (f ListenerFuncs) OnFeedback(e Event) {
	if f.Feedback != nil {
		f.Feedback(e)
	}
}

// Multi fans out to several listeners in order
type Multi []Listener

func (m Multi) OnPitch(p analysis.PitchEstimate) {
	for _, l := range m {
		l.OnPitch(p)
	}
}

func (m Multi) OnVolume(v analysis.VolumeEstimate) {
	for _, l := range m {
		l.OnVolume(v)
	}
}

func (m Multi) OnFeedback(e Event) {
	for _, l := range m {
		l.OnFeedback(e)
	}
}

// Nop discards everything
type Nop struct{}

func (Nop) OnPitch(analysis.PitchEstimate)   {}
func (Nop) OnVolume(analysis.VolumeEstimate) {}
func (Nop) OnFeedback(Event)                 {}

// GetLogger returns the feedback module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("feedback")
}
