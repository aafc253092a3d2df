// model.go: persisted rehearsal history
package datastore

import "time"

// Session is one finished rehearsal
type Session struct {
	ID              uint   `gorm:"primaryKey"`
	SessionID       string `gorm:"uniqueIndex;size:36;not null"`
	Device          string
	TracePath       string
	StartedAt       time.Time `gorm:"index:idx_sessions_started_at"`
	DurationSeconds float64
	SampleRate      uint32
	AverageAccuracy float64
	HasAccuracy     bool
	MeanAbsCents    float64
	AverageVolume   float64
	CycleCount      uint64
	ComparedCount   int
	DroppedFrames   uint64
	Glitches        uint64
	Truncated       bool
	RecordingPath   string
	CreatedAt       time.Time

	Events []FeedbackEvent `gorm:"foreignKey:SessionRefID;constraint:OnDelete:CASCADE"`
}

// FeedbackEvent is one dispatched feedback update belonging to a Session
type FeedbackEvent struct {
	ID             uint `gorm:"primaryKey"`
	SessionRefID   uint `gorm:"index;not null"`
	ElapsedSeconds float64
	FrequencyHz    float64
	Note           string `gorm:"size:8"`
	ExpectedHz     float64
	CentError      float64
	Accuracy       float64
	Status         string `gorm:"size:16"`
	Volume         float64
	Messages       string // newline separated coaching messages
}

// Stats aggregates all stored sessions
type Stats struct {
	Sessions        int64
	TotalSeconds    float64
	AverageAccuracy float64
	BestAccuracy    float64
}
