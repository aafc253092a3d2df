package rehearse

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/datastore"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/mqtt"
	"github.com/tphakala/vocalcoach/internal/observability"
	obsmetrics "github.com/tphakala/vocalcoach/internal/observability/metrics"
	"github.com/tphakala/vocalcoach/internal/recording"
	"github.com/tphakala/vocalcoach/internal/session"
	"github.com/tphakala/vocalcoach/internal/target"
)

const (
	eventBuffer        = 32
	mqttConnectTimeout = 10 * time.Second
)

// GetLogger returns the rehearse command logger
func GetLogger() logger.Logger {
	return logger.Global().Module("rehearse")
}

// eventRecorder keeps every dispatched event for the session history
type eventRecorder struct {
	mu     sync.Mutex
	events []feedback.Event
}

func (r *eventRecorder) add(e feedback.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) snapshot() []feedback.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]feedback.Event(nil), r.events...)
}

// newSource picks the input: a WAV replay, a synthetic tone or the
// microphone. finished is closed when a replay runs out, nil otherwise.
func newSource(settings *conf.Settings, opts *options) (src capture.Source, finished <-chan struct{}, err error) {
	config := capture.Config{
		SampleRate:   uint32(settings.Audio.SampleRate),   // #nosec G115 -- validated positive
		PeriodFrames: uint32(settings.Audio.PeriodFrames), // #nosec G115
	}
	switch {
	case opts.inputPath != "":
		fs, err := recording.NewFileSource(opts.inputPath, config.PeriodFrames, true)
		if err != nil {
			return nil, nil, err
		}
		return fs, fs.Finished(), nil
	case opts.simulateHz > 0:
		return capture.NewToneSource(capture.ToneConfig{
			Config:    config,
			Frequency: capture.ConstantTone(opts.simulateHz),
			Realtime:  true,
		}), nil, nil
	default:
		return capture.NewMalgoSource(config), nil, nil
	}
}

// run executes one session end to end and returns its result
func run(ctx context.Context, out io.Writer, settings *conf.Settings, opts *options) (*session.Result, error) {
	log := GetLogger()

	var trace *target.Trace
	if opts.tracePath != "" {
		t, err := target.LoadTrace(opts.tracePath)
		if err != nil {
			return nil, err
		}
		trace = t
	}

	source, finished, err := newSource(settings, opts)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var observers session.Observers
	var metrics *observability.Metrics
	var endpoint *observability.Endpoint
	if settings.Telemetry.Metrics.Enabled {
		if metrics, err = observability.NewMetrics(); err != nil {
			return nil, err
		}
		defer metrics.TrackErrors()()
		if endpoint, err = observability.NewEndpoint(&settings.Telemetry.Metrics, metrics); err != nil {
			return nil, err
		}
		if err := endpoint.Start(runCtx); err != nil {
			return nil, err
		}
		observers = append(observers, metrics.Session)
	}
	stopEndpoint := func() {
		if endpoint != nil {
			cancel()
			endpoint.Wait()
		}
	}
	defer stopEndpoint()

	sessionID := uuid.NewString()
	printer := feedback.NewChannelListener(eventBuffer)
	recorder := &eventRecorder{}
	listeners := feedback.Multi{printer, feedback.ListenerFuncs{Feedback: recorder.add}}

	publisher, disconnect := startPublisher(runCtx, settings, sessionID, metrics)
	if publisher != nil {
		listeners = append(listeners, publisher)
		observers = append(observers, publisher)
	}

	sess := session.New(source, session.ConfigFromSettings(settings),
		session.WithID(sessionID),
		session.WithObserver(observers),
		session.WithCatalog(capture.NewCatalog(nil, 0)))

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return printEvents(out, printer.Events(), opts)
	})

	if err := sess.Start(gctx, trace, listeners, settings.Audio.Device); err != nil {
		printer.Close()
		_ = g.Wait()
		closePublisher(publisher, disconnect)
		return nil, err
	}
	log.Info("session started",
		logger.String("session_id", sess.ID()),
		logger.String("device", source.Device().Name))
	if !opts.quiet && !opts.jsonOutput {
		printHeader(out, sess.ID(), source.Device().Name, trace)
	}

	reason := waitForStop(gctx, opts.duration, finished)
	log.Info("stopping session", logger.String("reason", reason))

	res, stopErr := sess.Stop()
	printer.Close()
	printErr := g.Wait()
	closePublisher(publisher, disconnect)
	if stopErr != nil {
		log.Warn("capture device did not stop cleanly", logger.Error(stopErr))
	}
	if printErr != nil {
		return &res, errors.New(printErr).
			Component("rehearse").
			Category(errors.CategoryFileIO).
			Context("operation", "print_feedback").
			Build()
	}
	if d := printer.Dropped(); d > 0 {
		log.Warn("console fell behind, feedback events skipped", logger.Uint64("dropped", d))
	}

	if settings.Session.SaveRecording && len(res.Samples) > 0 {
		path, err := recording.Save(settings.Session.RecordingsDir, res.SessionID, res.Samples, res.SampleRate)
		if err != nil {
			log.Error("failed to save recording", logger.Error(err))
		} else {
			res.RecordingPath = path
		}
	}

	if settings.Datastore.Enabled && !res.Empty() {
		if err := saveHistory(settings, &res, opts.tracePath, recorder.snapshot()); err != nil {
			log.Error("failed to save session history", logger.Error(err))
		}
	}

	if opts.jsonOutput {
		err = printSummaryJSON(out, &res)
	} else {
		err = printSummary(out, &res)
	}
	return &res, err
}

// startPublisher connects to the broker when MQTT is enabled. A broker that
// cannot be reached disables publishing for this session only.
func startPublisher(ctx context.Context, settings *conf.Settings, sessionID string, metrics *observability.Metrics) (*mqtt.Publisher, func()) {
	if !settings.MQTT.Enabled {
		return nil, nil
	}
	log := GetLogger()

	var mqttMetrics *obsmetrics.MQTTMetrics
	if metrics != nil {
		mqttMetrics = metrics.MQTT
	}
	config := mqtt.ConfigFromSettings(&settings.MQTT)
	client := mqtt.NewClient(config, mqttMetrics)

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		log.Warn("MQTT broker unavailable, feedback will not be published", logger.Error(err))
		return nil, nil
	}

	publisher := mqtt.NewPublisher(client, config.Topic, sessionID, mqtt.WithMetrics(mqttMetrics))
	publisher.Start(ctx)
	log.Info("publishing feedback", logger.String("topic", publisher.Topic()))
	return publisher, client.Disconnect
}

func closePublisher(p *mqtt.Publisher, disconnect func()) {
	if p == nil {
		return
	}
	p.Close()
	disconnect()
}

// waitForStop blocks until the session should end and reports why
func waitForStop(ctx context.Context, duration time.Duration, finished <-chan struct{}) string {
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return "interrupted"
	case <-timeout:
		return "duration reached"
	case <-finished:
		return "input finished"
	}
}

func saveHistory(settings *conf.Settings, res *session.Result, tracePath string, events []feedback.Event) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			GetLogger().Warn("failed to close datastore", logger.Error(err))
		}
	}()
	rec, evs := datastore.FromResult(res, tracePath, events)
	return store.SaveSession(rec, evs)
}
