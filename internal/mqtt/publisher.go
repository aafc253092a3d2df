package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/logger"
	"github.com/tphakala/vocalcoach/internal/observability/metrics"
	"github.com/tphakala/vocalcoach/internal/session"
	"github.com/tphakala/vocalcoach/internal/target"
)

// DefaultQueueSize bounds the events waiting for the broker
const DefaultQueueSize = 64

type message struct {
	topic   string
	payload []byte
}

// Publisher forwards feedback events to the broker. It implements
// feedback.Listener and session.Observer; neither blocks the analysis
// goroutine, events are dropped when the queue is full.
type Publisher struct {
	client    Client
	baseTopic string
	sessionID string
	metrics   *metrics.MQTTMetrics // may be nil
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan message
	wg     sync.WaitGroup

	published uint64
	dropped   uint64
	failed    uint64
	countMu   sync.Mutex
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithQueueSize sets the publish queue capacity
func WithQueueSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan message, n)
		}
	}
}

// WithMetrics attaches MQTT metrics
func WithMetrics(m *metrics.MQTTMetrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// WithPublishTimeout bounds each publish
func WithPublishTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.timeout = d }
}

// NewPublisher creates a publisher for one session. Events go to
// <baseTopic>/<sessionID>, the summary to <baseTopic>/<sessionID>/summary.
func NewPublisher(client Client, baseTopic, sessionID string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		client:    client,
		baseTopic: baseTopic,
		sessionID: sessionID,
		timeout:   DefaultConfig().PublishTimeout,
		queue:     make(chan message, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Topic returns the event topic
func (p *Publisher) Topic() string {
	return p.baseTopic + "/" + p.sessionID
}

// SummaryTopic returns the topic of the end-of-session summary
func (p *Publisher) SummaryTopic() string {
	return p.Topic() + "/summary"
}

// Start launches the publish worker. The worker runs until Close has
// drained the queue; ending ctx does not discard queued messages, each
// publish is bounded by the publish timeout instead.
func (p *Publisher) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Go(func() { p.run(ctx) })
}

func (p *Publisher) run(ctx context.Context) {
	log := GetLogger().With(logger.String("session_id", p.sessionID))
	for msg := range p.queue {
		start := time.Now()
		pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.client.Publish(pubCtx, msg.topic, msg.payload)
		cancel()

		p.countMu.Lock()
		if err != nil {
			p.failed++
		} else {
			p.published++
		}
		p.countMu.Unlock()

		if err != nil {
			category := errors.CategoryMQTTPublish
			if errors.Is(err, context.DeadlineExceeded) {
				category = errors.CategoryTimeout
			}
			log.Warn("failed to publish feedback",
				logger.String("topic", msg.topic),
				logger.Error(errors.New(err).
					Component("mqtt").
					Category(category).
					Timing("publish", time.Since(start)).
					Build()))
		}
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
// Safe to call more than once.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Publisher) enqueue(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		GetLogger().Error("failed to encode MQTT payload", logger.Error(
			errors.New(err).Component("mqtt").Category(errors.CategoryMQTTPublish).Build()))
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload}:
	default:
		p.countMu.Lock()
		p.dropped++
		p.countMu.Unlock()
		if p.metrics != nil {
			p.metrics.IncrementMessagesDropped()
		}
	}
}

// Stats returns published, dropped and failed message counts
func (p *Publisher) Stats() (published, dropped, failed uint64) {
	p.countMu.Lock()
	defer p.countMu.Unlock()
	return p.published, p.dropped, p.failed
}

// OnPitch implements feedback.Listener
func (p *Publisher) OnPitch(analysis.PitchEstimate) {}

// OnVolume implements feedback.Listener
func (p *Publisher) OnVolume(analysis.VolumeEstimate) {}

// OnFeedback implements feedback.Listener
func (p *Publisher) OnFeedback(e feedback.Event) {
	p.enqueue(p.Topic(), NewFeedbackDTO(p.sessionID, &e))
}

// CycleCompleted implements session.Observer
func (p *Publisher) CycleCompleted(analysis.Result, target.ComparisonResult, time.Duration) {}

// SessionFinished implements session.Observer
func (p *Publisher) SessionFinished(res *session.Result) {
	p.enqueue(p.SummaryTopic(), NewSummaryDTO(res))
}

var (
	_ feedback.Listener = (*Publisher)(nil)
	_ session.Observer  = (*Publisher)(nil)
)
