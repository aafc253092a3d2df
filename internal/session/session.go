// Package session supervises one rehearsal: it opens capture, runs the
// analysis goroutine that feeds the comparator and dispatcher, and returns
// the recorded audio when stopped.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/framechan"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/target"
)

const componentSession = "session"

// Defaults
const (
	DefaultJoinTimeout     = 2 * time.Second
	DefaultMaxSeconds      = 600
	DefaultChannelCapacity = 33
)

// Config configures a Session
type Config struct {
	Analysis         analysis.Config
	ChannelCapacity  int           // frames buffered between capture and analysis
	FeedbackInterval time.Duration // minimum spacing of feedback events
	HistorySize      int
	MaxGapSeconds    float64       // target lookup tolerance
	JoinTimeout      time.Duration // bounded wait for the analysis goroutine
	MaxSeconds       int           // cap on the full-session buffer
	PopTimeout       time.Duration
	// Now overrides the dispatcher clock, for tests
	Now func() time.Time
}

// ConfigFromSettings maps loaded settings to a session Config
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		Analysis: analysis.Config{
			SampleRate:    s.Audio.SampleRate,
			WindowSeconds: s.Analysis.WindowSeconds,
			Overlap:       s.Analysis.Overlap,
			PitchMinHz:    s.Analysis.PitchMinHz,
			PitchMaxHz:    s.Analysis.PitchMaxHz,
			FFTSize:       s.Analysis.FFTSize,
			NoiseFloor:    s.Analysis.NoiseFloor,
		},
		ChannelCapacity:  s.Audio.ChannelCapacity(),
		FeedbackInterval: s.FeedbackInterval(),
		HistorySize:      s.Feedback.HistorySize,
		MaxGapSeconds:    s.Target.MaxGapSeconds,
		JoinTimeout:      s.Session.JoinTimeout,
		MaxSeconds:       s.Session.MaxSeconds,
	}
}

func (c *Config) applyDefaults() {
	if c.Analysis.SampleRate == 0 {
		c.Analysis = analysis.DefaultConfig()
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = DefaultJoinTimeout
	}
	if c.MaxSeconds <= 0 {
		c.MaxSeconds = DefaultMaxSeconds
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = framechan.DefaultPopTimeout
	}
}

// Observer receives per-cycle and per-session notifications, typically
// metrics. Calls happen on the analysis goroutine and Stop's caller.
type Observer interface {
	CycleCompleted(r analysis.Result, cmp target.ComparisonResult, took time.Duration)
	SessionFinished(res *Result)
}

// Observers fans out to several observers in order
type Observers []Observer

func (o Observers) CycleCompleted(r analysis.Result, cmp target.ComparisonResult, took time.Duration) {
	for _, ob := range o {
		ob.CycleCompleted(r, cmp, took)
	}
}

func (o Observers) SessionFinished(res *Result) {
	for _, ob := range o {
		ob.SessionFinished(res)
	}
}

// Option configures a Session
type Option func(*Session)

// WithObserver attaches an observer
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithCatalog sets the device catalog used by ListDevices
func WithCatalog(c *capture.Catalog) Option {
	return func(s *Session) { s.catalog = c }
}

// WithID overrides the generated session ID
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is one rehearsal. Start and Stop are serialized; State may be
// read from any goroutine.
type Session struct {
	id       string
	config   Config
	source   capture.Source
	observer Observer
	catalog  *capture.Catalog

	mu      sync.Mutex // serializes Start and Stop
	state   atomic.Int32
	failure error

	active     *recording
	dispatcher *feedback.Dispatcher
	startedAt  time.Time
	device     capture.DeviceInfo

	// written by the analysis goroutine, read by Stop
	statsMu   sync.Mutex
	tracker   target.Tracker
	volumeSum float64
	cycles    uint64

	log logger.Logger
}

// recording is the state of one Start. Capture is halted once, by Stop or
// by cancellation of the Start context, whichever comes first.
type recording struct {
	frames *framechan.Channel[capture.Frame]
	audio  *audioBuffer
	cancel context.CancelFunc
	done   chan struct{}

	halt     sync.Once
	haltedAt time.Time
	haltErr  error
}

// New creates an idle session reading from source
func New(source capture.Source, config Config, opts ...Option) *Session {
	config.applyDefaults()
	s := &Session{
		id:     uuid.NewString(),
		config: config,
		source: source,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("session_id", s.id))
	return s
}

// ID is the session identifier
func (s *Session) ID() string { return s.id }

// State returns the current state
func (s *Session) State() State { return State(s.state.Load()) }

// Failure returns the reason for StateFailed, nil otherwise
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateFailed {
		return nil
	}
	return s.failure
}

// Dispatcher exposes feedback histories and averages while recording. Nil
// before the first Start.
func (s *Session) Dispatcher() *feedback.Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

func (s *Session) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.log.Debug("session state changed",
		logger.String("from", prev.String()),
		logger.String("to", st.String()))
}

// ListDevices lists capture devices. Valid in any state.
func (s *Session) ListDevices() ([]capture.DeviceInfo, error) {
	if s.catalog != nil {
		return s.catalog.List()
	}
	return capture.EnumerateDevices()
}

// Start opens capture on device and begins analysis. trace may be nil, in
// which case every comparison is unavailable. It is allowed from Idle and,
// as a retry, from Failed. Capture failures are returned synchronously and
// leave the session Failed. Cancelling ctx halts capture; buffered frames
// are still analysed.
func (s *Session) Start(ctx context.Context, trace *target.Trace, listener feedback.Listener, device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateIdle && st != StateFailed {
		return invalidTransition(st, StateStarting)
	}
	s.setState(StateStarting)
	s.failure = nil

	window, err := analysis.NewWindow(s.config.Analysis)
	if err != nil {
		return s.fail(err)
	}
	if rate := s.source.SampleRate(); rate != uint32(s.config.Analysis.SampleRate) {
		return s.fail(errors.New(fmt.Errorf("%w: source rate %d, analysis rate %d",
			capture.ErrUnsupportedFormat, rate, s.config.Analysis.SampleRate)).
			Component(componentSession).
			Category(errors.CategoryAudioSource).
			Build())
	}

	frames := framechan.New[capture.Frame](s.config.ChannelCapacity)
	dispatcher := feedback.NewDispatcher(listener, feedback.Config{
		Interval:    s.config.FeedbackInterval,
		HistorySize: s.config.HistorySize,
		Now:         s.config.Now,
	})
	comparator := target.NewComparator(trace, s.config.MaxGapSeconds)

	rate := s.config.Analysis.SampleRate
	s.statsMu.Lock()
	s.tracker = target.Tracker{}
	s.volumeSum = 0
	s.cycles = 0
	s.statsMu.Unlock()

	rec := &recording{
		frames: frames,
		audio:  newAudioBuffer(s.config.MaxSeconds*rate, recordingChunkSeconds*rate),
		done:   make(chan struct{}),
	}

	// Every frame reaches the recording, including frames the channel
	// later evicts
	handler := func(f capture.Frame) {
		rec.audio.write(f.Samples)
		if !frames.Push(f) {
			s.log.Debug("frame channel overflow, oldest frame dropped",
				logger.Uint64("seq", f.Seq),
				logger.Uint64("dropped_total", frames.Dropped()))
		}
	}

	startedAt := time.Now()
	if err := s.source.Start(device, handler); err != nil {
		_ = s.source.Stop()
		return s.fail(err)
	}

	// Analysis ends when the channel is drained, not when ctx ends
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rec.cancel = cancel
	s.active = rec
	s.dispatcher = dispatcher
	s.startedAt = startedAt
	s.device = s.source.Device()

	go s.run(workerCtx, window, comparator, dispatcher, rec)
	go s.watch(ctx, rec)

	s.setState(StateRecording)
	s.log.Info("session recording",
		logger.String("device", s.device.Name),
		logger.Int("sample_rate", rate),
		logger.Int("channel_capacity", frames.Cap()),
		logger.Int("trace_points", trace.Len()),
		logger.Duration("feedback_interval", dispatcher.Interval()))
	return nil
}

// watch halts capture when ctx ends before Stop. Stop still has to be
// called to collect the result.
func (s *Session) watch(ctx context.Context, rec *recording) {
	select {
	case <-ctx.Done():
		s.halt(rec, "context cancelled")
	case <-rec.done:
	}
}

// halt stops capture and closes the frame channel so analysis drains and
// exits. Only the first call has an effect.
func (s *Session) halt(rec *recording, reason string) {
	rec.halt.Do(func() {
		rec.haltedAt = time.Now()
		if err := s.source.Stop(); err != nil {
			s.log.Warn("capture stop failed", logger.Error(err))
			rec.haltErr = errors.New(err).
				Component(componentSession).
				Category(errors.CategoryAudioSource).
				Context("operation", "stop_capture").
				Build()
		}
		rec.frames.Close()
		s.log.Debug("capture halted", logger.String("reason", reason))
	})
}

func (s *Session) fail(err error) error {
	s.failure = err
	s.setState(StateFailed)
	s.log.Error("session start failed", logger.Error(err))
	return err
}

// Stop ends a recording and returns the captured audio with its metadata.
// Outside Recording it is a no-op returning an empty Result and nil. The
// analysis goroutine is given the join timeout to drain; a timeout is
// logged and the partial result still returned. When the Start context
// ended first, capture halted then and the result ends at that point. The
// error reports a failure to release the capture device.
func (s *Session) Stop() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateRecording {
		s.log.Debug("stop ignored", logger.String("state", st.String()))
		return Result{SessionID: s.id, SampleRate: uint32(s.config.Analysis.SampleRate)}, nil
	}
	s.setState(StateStopping)
	rec := s.active
	s.halt(rec, "stop")

	joinTimedOut := false
	timer := time.NewTimer(s.config.JoinTimeout)
	select {
	case <-rec.done:
		timer.Stop()
	case <-timer.C:
		joinTimedOut = true
		s.log.Warn("analysis did not finish within join timeout", logger.Error(
			errors.Newf("analysis goroutine still running after %s", s.config.JoinTimeout).
				Component("session").
				Category(errors.CategoryTimeout).
				Priority(errors.PriorityHigh).
				Timing("join_analysis", s.config.JoinTimeout).
				Build()))
	}
	rec.cancel()

	res := s.buildResult(rec, joinTimedOut)
	s.active = nil
	s.setState(StateStopped)

	if res.Truncated {
		s.log.Warn("session buffer full, recording truncated",
			logger.Int("max_seconds", s.config.MaxSeconds))
	}
	s.log.Info("session stopped",
		logger.Float64("duration_s", res.DurationSeconds()),
		logger.Uint64("cycles", res.CycleCount),
		logger.Float64("average_accuracy", res.AverageAccuracy),
		logger.Uint64("dropped_frames", res.DroppedFrames),
		logger.Uint64("glitches", res.Glitches))

	if s.observer != nil {
		s.observer.SessionFinished(&res)
	}
	return res, rec.haltErr
}

func (s *Session) buildResult(rec *recording, joinTimedOut bool) Result {
	rate := uint32(s.config.Analysis.SampleRate)
	samples := rec.audio.snapshot()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	res := Result{
		SessionID:     s.id,
		Samples:       samples,
		SampleRate:    rate,
		Device:        s.device.Name,
		Duration:      time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second)),
		WallDuration:  rec.haltedAt.Sub(s.startedAt),
		StartedAt:     s.startedAt,
		StoppedAt:     rec.haltedAt,
		MeanAbsCents:  s.tracker.MeanAbsCents(),
		CycleCount:    s.cycles,
		ComparedCount: s.tracker.Available(),
		DroppedFrames: rec.frames.Dropped(),
		Glitches:      s.source.Glitches(),
		Truncated:     rec.audio.Truncated(),
		JoinTimedOut:  joinTimedOut,
	}
	res.AverageAccuracy, res.HasAccuracy = s.tracker.AverageAccuracy()
	if s.cycles > 0 {
		res.AverageVolume = s.volumeSum / float64(s.cycles)
	}
	return res
}

// GetLogger returns the session module logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentSession)
}
