package session

import "time"

// Result is returned by Stop. A Stop that did not end a recording returns
// a Result with no samples.
type Result struct {
	SessionID  string    `json:"session_id"`
	Samples    []float32 `json:"-"`
	SampleRate uint32    `json:"sample_rate"`
	Device     string    `json:"device"`

	// Duration is derived from the captured samples
	Duration     time.Duration `json:"duration"`
	WallDuration time.Duration `json:"wall_duration"`
	StartedAt    time.Time     `json:"started_at"`
	StoppedAt    time.Time     `json:"stopped_at"`

	// AverageAccuracy covers cycles with an available comparison only;
	// HasAccuracy is false when there were none.
	AverageAccuracy float64 `json:"average_accuracy"`
	HasAccuracy     bool    `json:"has_accuracy"`
	MeanAbsCents    float64 `json:"mean_abs_cents"`
	AverageVolume   float64 `json:"average_volume"`

	CycleCount    uint64 `json:"cycle_count"`
	ComparedCount int    `json:"compared_count"`
	DroppedFrames uint64 `json:"dropped_frames"`
	Glitches      uint64 `json:"glitches"`
	Truncated     bool   `json:"truncated"`
	JoinTimedOut  bool   `json:"join_timed_out"`

	RecordingPath string `json:"recording_path,omitempty"`
}

// Empty reports whether the result carries no recording
func (r *Result) Empty() bool {
	return r.StartedAt.IsZero()
}

// DurationSeconds is Duration in seconds
func (r *Result) DurationSeconds() float64 {
	return r.Duration.Seconds()
}
