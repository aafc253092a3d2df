package feedback

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/target"
)

// Defaults
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultHistorySize = 30
)

// Config configures a Dispatcher
type Config struct {
	Interval    time.Duration
	HistorySize int
	// Now overrides the clock, for tests
	Now func() time.Time
}

// Averages over the rolling histories; the Has flags are false for an
// empty history.
type Averages struct {
	FrequencyHz  float64 `json:"frequency_hz"`
	HasFrequency bool    `json:"has_frequency"`
	Volume       float64 `json:"volume"`
	HasVolume    bool    `json:"has_volume"`
	Accuracy     float64 `json:"accuracy"`
	HasAccuracy  bool    `json:"has_accuracy"`
}

// Snapshot is a copy of the histories
type Snapshot struct {
	Pitch    []Sample `json:"pitch"`
	Volume   []Sample `json:"volume"`
	Accuracy []Sample `json:"accuracy"`
}

// Dispatcher records every cycle into rolling histories and forwards an
// Event to its listener at most once per interval. Process is called from
// one goroutine; Snapshot, Averages and Reset may be called from others.
type Dispatcher struct {
	listener Listener
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	limiter    *rate.Limiter
	pitch      *History // voiced frequencies
	volume     *History // normalized volume, every cycle
	accuracy   *History // available comparisons only
	cycles     uint64
	dispatched uint64
	last       Event

	log logger.Logger
}

// NewDispatcher creates a dispatcher; a nil listener discards events
func NewDispatcher(listener Listener, config Config) *Dispatcher {
	if listener == nil {
		listener = Nop{}
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Dispatcher{
		listener: listener,
		interval: config.Interval,
		now:      config.Now,
		limiter:  newLimiter(config.Interval),
		pitch:    NewHistory(config.HistorySize),
		volume:   NewHistory(config.HistorySize),
		accuracy: NewHistory(config.HistorySize),
		log:      GetLogger(),
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Interval is the minimum spacing between events
func (d *Dispatcher) Interval() time.Duration { return d.interval }

// Process records one analysis cycle. OnPitch and OnVolume fire every
// cycle; an Event is dispatched to OnFeedback only when the interval has
// elapsed since the previous one. It returns the event and whether it was
// dispatched. Listener callbacks run synchronously.
func (d *Dispatcher) Process(r analysis.Result, cmp target.ComparisonResult, elapsed time.Duration) (Event, bool) {
	now := d.now()

	d.mu.Lock()
	d.cycles++
	if r.Pitch.Voiced {
		d.pitch.Add(Sample{Value: r.Pitch.FrequencyHz, At: now})
	}
	d.volume.Add(Sample{Value: r.Volume.Normalized, At: now})
	if cmp.Available() {
		d.accuracy.Add(Sample{Value: cmp.Accuracy, At: now})
	}

	if !d.limiter.AllowN(now, 1) {
		d.mu.Unlock()
		d.listener.OnPitch(r.Pitch)
		d.listener.OnVolume(r.Volume)
		return Event{}, false
	}

	ev := Event{
		Timestamp:  now,
		Elapsed:    elapsed,
		Cycle:      r.Cycle,
		Pitch:      r.Pitch,
		Volume:     r.Volume,
		Stability:  r.Stability,
		Comparison: cmp,
		Coaching:   Coach(r.Volume, cmp),
	}
	d.dispatched++
	d.last = ev
	d.mu.Unlock()

	d.log.Trace("dispatching feedback",
		logger.Uint64("cycle", ev.Cycle),
		logger.String("status", string(cmp.Status)),
		logger.Float64("accuracy", cmp.Accuracy))

	d.listener.OnPitch(ev.Pitch)
	d.listener.OnVolume(ev.Volume)
	d.listener.OnFeedback(ev)

	return ev, true
}

// Reset clears histories, counters and the dispatch timer
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pitch.Clear()
	d.volume.Clear()
	d.accuracy.Clear()
	d.limiter = newLimiter(d.interval)
	d.cycles = 0
	d.dispatched = 0
	d.last = Event{}
}

// Snapshot copies the rolling histories
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Pitch:    d.pitch.Snapshot(),
		Volume:   d.volume.Snapshot(),
		Accuracy: d.accuracy.Snapshot(),
	}
}

// Averages returns the means of the rolling histories
func (d *Dispatcher) Averages() Averages {
	d.mu.Lock()
	defer d.mu.Unlock()

	var a Averages
	a.FrequencyHz, a.HasFrequency = d.pitch.Mean()
	a.Volume, a.HasVolume = d.volume.Mean()
	a.Accuracy, a.HasAccuracy = d.accuracy.Mean()
	return a
}

// Last returns the most recently dispatched event
func (d *Dispatcher) Last() (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.dispatched > 0
}

// Counts returns processed cycles and dispatched events since the last Reset
func (d *Dispatcher) Counts() (cycles, dispatched uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cycles, d.dispatched
}
