// Package analysis turns a stream of audio frames into per-cycle pitch,
// volume and stability estimates over a sliding window.
package analysis

import (
	"github.com/tphakala/vocalcoach/internal/logger"
)

// VolumeLevel is a coarse loudness label
type VolumeLevel string

const (
	LevelVeryLow  VolumeLevel = "very_low"
	LevelLow      VolumeLevel = "low"
	LevelModerate VolumeLevel = "moderate"
	LevelHigh     VolumeLevel = "high"
	LevelVeryHigh VolumeLevel = "very_high"
)

// PitchEstimate is the dominant frequency of one analysis window. When
// Voiced is false FrequencyHz is 0 and the window was silent or unvoiced.
type PitchEstimate struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Voiced      bool    `json:"voiced"`
	Stability   float64 `json:"stability"`  // 1 - CV of per-frame frequencies, [0,1]
	Confidence  float64 `json:"confidence"` // fraction of voiced frames, [0,1]
	Note        string  `json:"note,omitempty"`
}

// VolumeEstimate is the loudness of one analysis window
type VolumeEstimate struct {
	RMS        float64     `json:"rms"`
	DB         float64     `json:"db"`         // dBFS, floored at FloorDB
	Normalized float64     `json:"normalized"` // FloorDB..0 dB mapped to [0,1]
	Level      VolumeLevel `json:"level"`
}

// StabilityEstimate groups the two stability measures
type StabilityEstimate struct {
	Pitch  float64 `json:"pitch"`
	Energy float64 `json:"energy"`
}

// Result is one analysis cycle
type Result struct {
	Cycle     uint64            `json:"cycle"`
	Pitch     PitchEstimate     `json:"pitch"`
	Volume    VolumeEstimate    `json:"volume"`
	Stability StabilityEstimate `json:"stability"`
	// EndSample is the stream position, in samples, just past the window
	EndSample uint64 `json:"end_sample"`
}

// Silent reports whether the window carried no detectable pitch
func (r *Result) Silent() bool {
	return !r.Pitch.Voiced
}

// GetLogger returns the analysis module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
