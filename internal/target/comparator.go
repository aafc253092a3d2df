package target

import (
	"math"
	"time"

	"github.com/tphakala/vocalcoach/internal/analysis"
)

// Status tells whether a comparison produced a usable accuracy
type Status string

const (
	StatusAvailable Status = "available"
	StatusSilence   Status = "silence"   // no pitch detected in the window
	StatusNoTarget  Status = "no_target" // no trace point near the current time
)

// Message thresholds in cents
const (
	OnTargetCents = 20.0
	maxErrorCents = 100.0
)

// Qualitative messages
const (
	MessageOnTarget = "on target"
	MessageTooHigh  = "too high"
	MessageTooLow   = "too low"
	MessageSilence  = "no pitch detected"
	MessageNoTarget = "no target at this time"
)

// ComparisonResult is the verdict for one analysis cycle. Accuracy and
// CentError are only meaningful when Status is StatusAvailable.
type ComparisonResult struct {
	Status     Status  `json:"status"`
	Accuracy   float64 `json:"accuracy"`
	CentError  float64 `json:"cent_error"`
	Message    string  `json:"message"`
	ExpectedHz float64 `json:"expected_hz"`
	ObservedHz float64 `json:"observed_hz"`
}

// Available reports whether the result counts toward running statistics
func (r ComparisonResult) Available() bool {
	return r.Status == StatusAvailable
}

// Comparator compares pitch estimates against a trace. A nil trace makes
// every result StatusNoTarget.
type Comparator struct {
	trace         *Trace
	maxGap        float64
	minConfidence float64
}

// DefaultMaxGapSeconds is how far the nearest trace point may be
const DefaultMaxGapSeconds = 0.5

// NewComparator creates a comparator; maxGap <= 0 uses the default
func NewComparator(trace *Trace, maxGap float64) *Comparator {
	if maxGap <= 0 {
		maxGap = DefaultMaxGapSeconds
	}
	return &Comparator{trace: trace, maxGap: maxGap}
}

// WithMinConfidence treats trace points below conf as unvoiced
func (c *Comparator) WithMinConfidence(conf float64) *Comparator {
	c.minConfidence = conf
	return c
}

// Compare evaluates pitch at elapsed session time
func (c *Comparator) Compare(pitch analysis.PitchEstimate, elapsed time.Duration) ComparisonResult {
	observed := pitch.FrequencyHz
	if !pitch.Voiced || observed <= 0 {
		return ComparisonResult{Status: StatusSilence, Message: MessageSilence}
	}

	expected, ok := c.trace.ExpectedAt(elapsed.Seconds(), c.maxGap, c.minConfidence)
	if !ok || expected <= 0 {
		return ComparisonResult{Status: StatusNoTarget, Message: MessageNoTarget, ObservedHz: observed}
	}

	cents := analysis.Cents(observed, expected)
	return ComparisonResult{
		Status:     StatusAvailable,
		Accuracy:   AccuracyFromCents(cents),
		CentError:  cents,
		Message:    MessageForCents(cents),
		ExpectedHz: expected,
		ObservedHz: observed,
	}
}

// AccuracyFromCents decays linearly from 1 at 0 cents to 0 at ±100 cents
func AccuracyFromCents(cents float64) float64 {
	return math.Max(0, 1-math.Abs(cents)/maxErrorCents)
}

// MessageForCents returns the qualitative message for a cent error
func MessageForCents(cents float64) string {
	switch {
	case cents > OnTargetCents:
		return MessageTooHigh
	case cents < -OnTargetCents:
		return MessageTooLow
	default:
		return MessageOnTarget
	}
}

// Tracker accumulates running statistics over available results only
type Tracker struct {
	count       int
	accuracySum float64
	absCentsSum float64
	skipped     int
}

// Add records r; unavailable results are counted but not averaged
func (t *Tracker) Add(r ComparisonResult) {
	if !r.Available() {
		t.skipped++
		return
	}
	t.count++
	t.accuracySum += r.Accuracy
	t.absCentsSum += math.Abs(r.CentError)
}

// AverageAccuracy returns the mean accuracy and whether any result counted
func (t *Tracker) AverageAccuracy() (float64, bool) {
	if t.count == 0 {
		return 0, false
	}
	return t.accuracySum / float64(t.count), true
}

// MeanAbsCents is the mean absolute cent error of available results
func (t *Tracker) MeanAbsCents() float64 {
	if t.count == 0 {
		return 0
	}
	return t.absCentsSum / float64(t.count)
}

// Available is the number of results averaged
func (t *Tracker) Available() int { return t.count }

// Skipped is the number of unavailable results
func (t *Tracker) Skipped() int { return t.skipped }
