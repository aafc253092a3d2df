package feedback

import (
	"math"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/target"
)

// Coaching messages
const (
	MessageGoodPitch   = "good pitch"
	MessageFairPitch   = "fair pitch"
	MessageAdjustPitch = "adjust your pitch"
	MessageSingLouder  = "sing louder"
	MessageSingSofter  = "sing softer"
	MessageGoodVolume  = "good volume"
)

const (
	goodPitchAccuracy = 0.8
	fairPitchAccuracy = 0.6
	quietVolume       = 0.2
	loudVolume        = 0.8
)

// Coaching is the human-facing part of an Event. PitchScore is only set
// when a comparison was available.
type Coaching struct {
	Messages    []string `json:"messages"`
	PitchScore  *float64 `json:"pitch_score,omitempty"`
	VolumeScore float64  `json:"volume_score"`
}

// Coach derives coaching messages and scores for one cycle
func Coach(volume analysis.VolumeEstimate, cmp target.ComparisonResult) Coaching {
	var c Coaching

	if cmp.Available() {
		switch {
		case cmp.Accuracy >= goodPitchAccuracy:
			c.Messages = append(c.Messages, MessageGoodPitch)
		case cmp.Accuracy >= fairPitchAccuracy:
			c.Messages = append(c.Messages, MessageFairPitch)
		default:
			c.Messages = append(c.Messages, MessageAdjustPitch)
		}
		score := cmp.Accuracy
		c.PitchScore = &score
	}

	switch v := volume.Normalized; {
	case v < quietVolume:
		c.Messages = append(c.Messages, MessageSingLouder)
	case v > loudVolume:
		c.Messages = append(c.Messages, MessageSingSofter)
	default:
		c.Messages = append(c.Messages, MessageGoodVolume)
	}
	c.VolumeScore = math.Min(1, 2*volume.Normalized)

	return c
}
