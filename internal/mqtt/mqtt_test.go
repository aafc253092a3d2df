package mqtt

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vocalcoach/internal/analysis"
	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/feedback"
	"github.com/tphakala/vocalcoach/internal/observability/metrics"
	"github.com/tphakala/vocalcoach/internal/session"
	"github.com/tphakala/vocalcoach/internal/target"
	"github.com/tphakala/vocalcoach/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic   string
	payload []byte
}

// fakeClient records publishes; block, when set, holds every publish
// until it is closed
type fakeClient struct {
	mu    sync.Mutex
	msgs  []published
	block chan struct{}
	err   error
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool             { return true }
func (f *fakeClient) Disconnect()                   {}

func (f *fakeClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload})
	return nil
}

func (f *fakeClient) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func testEvent(cycle uint64) feedback.Event {
	return feedback.Event{
		Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Elapsed:   1500 * time.Millisecond,
		Cycle:     cycle,
		Pitch:     analysis.PitchEstimate{FrequencyHz: 442, Voiced: true, Note: "A4"},
		Volume:    analysis.VolumeEstimate{Normalized: 0.5, Level: analysis.LevelModerate},
		Comparison: target.ComparisonResult{
			Status: target.StatusAvailable, Accuracy: 0.92, CentError: 7.85, ExpectedHz: 440,
		},
		Coaching: feedback.Coaching{Messages: []string{feedback.MessageGoodPitch}},
	}
}

func TestPublisherDeliversEventsInOrder(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "vocalcoach/feedback", "abc")
	p.Start(t.Context())

	for i := range uint64(5) {
		p.OnPitch(analysis.PitchEstimate{})
		p.OnVolume(analysis.VolumeEstimate{})
		p.OnFeedback(testEvent(i))
	}
	p.SessionFinished(&session.Result{SessionID: "abc", StartedAt: time.Now(), CycleCount: 5})
	p.Close()
	p.Close()

	msgs := client.messages()
	require.Len(t, msgs, 6)
	for i := range 5 {
		assert.Equal(t, "vocalcoach/feedback/abc", msgs[i].topic)
		var dto FeedbackDTO
		require.NoError(t, json.Unmarshal(msgs[i].payload, &dto))
		assert.Equal(t, uint64(i), dto.Cycle)
	}
	assert.Equal(t, "vocalcoach/feedback/abc/summary", msgs[5].topic)

	pub, dropped, failed := p.Stats()
	assert.Equal(t, uint64(6), pub)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)

	// Events after Close are ignored
	p.OnFeedback(testEvent(9))
	assert.Len(t, client.messages(), 6)
}

func TestPublisherDeliversSummaryAfterContextEnds(t *testing.T) {
	client := &fakeClient{}
	ctx, cancel := context.WithCancel(t.Context())
	p := NewPublisher(client, "vocalcoach/feedback", "abc", WithPublishTimeout(time.Second))
	p.Start(ctx)

	p.OnFeedback(testEvent(0))
	cancel()
	p.SessionFinished(&session.Result{SessionID: "abc", StartedAt: time.Now()})
	p.Close()

	msgs := client.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "vocalcoach/feedback/abc/summary", msgs[1].topic)

	pub, dropped, failed := p.Stats()
	assert.Equal(t, uint64(2), pub)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewMQTTMetrics(reg)
	require.NoError(t, err)

	client := &fakeClient{block: make(chan struct{})}
	p := NewPublisher(client, "t", "s", WithQueueSize(2), WithMetrics(m))
	p.Start(t.Context())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range uint64(20) {
			p.OnFeedback(testEvent(i))
		}
	}()
	testutil.WaitForChannel(t, done, testutil.ShortTestTimeout, "OnFeedback blocked on a slow broker")

	close(client.block)
	p.Close()

	pub, dropped, _ := p.Stats()
	assert.Equal(t, uint64(20), pub+dropped)
	assert.GreaterOrEqual(t, dropped, uint64(17))
	assert.InDelta(t, float64(dropped), promtest.ToFloat64(m.MessagesDropped), 0)
}

func TestPublisherCountsFailures(t *testing.T) {
	client := &fakeClient{err: errors.NewStd("broker gone")}
	p := NewPublisher(client, "t", "s")
	p.Start(t.Context())
	p.OnFeedback(testEvent(1))
	p.Close()

	_, _, failed := p.Stats()
	assert.Equal(t, uint64(1), failed)
}

func TestPublisherReportsTimedOutPublish(t *testing.T) {
	var mu sync.Mutex
	var reported []*errors.EnhancedError
	errors.AddErrorHook(func(ee *errors.EnhancedError) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, ee)
	})
	t.Cleanup(errors.ClearErrorHooks)

	client := &fakeClient{block: make(chan struct{})}
	p := NewPublisher(client, "t", "s", WithPublishTimeout(20*time.Millisecond))
	p.Start(t.Context())
	p.OnFeedback(testEvent(1))
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	var timeout *errors.EnhancedError
	for _, ee := range reported {
		if ee.Category == errors.CategoryTimeout {
			timeout = ee
		}
	}
	require.NotNil(t, timeout)
	assert.Equal(t, "mqtt", timeout.GetComponent())
	assert.Equal(t, "publish", timeout.GetContext()["operation"])
	assert.GreaterOrEqual(t, timeout.GetContext()["duration_ms"], int64(20))
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
}

func TestFeedbackDTO(t *testing.T) {
	e := testEvent(3)
	dto := NewFeedbackDTO("abc", &e)
	assert.Equal(t, "2026-05-01T10:00:00.000Z", dto.Timestamp)
	assert.InDelta(t, 1.5, dto.ElapsedSeconds, 1e-9)
	require.NotNil(t, dto.Accuracy)
	assert.InDelta(t, 0.92, *dto.Accuracy, 1e-9)
	assert.Equal(t, "moderate", dto.VolumeLevel)

	silent := feedback.Event{Comparison: target.ComparisonResult{Status: target.StatusSilence}}
	dto = NewFeedbackDTO("abc", &silent)
	assert.Nil(t, dto.Accuracy)
	assert.Nil(t, dto.CentError)
	assert.NotNil(t, dto.Messages)

	raw, err := json.Marshal(dto)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "accuracy")
	assert.Contains(t, string(raw), `"messages":[]`)
}

func TestSummaryDTO(t *testing.T) {
	dto := NewSummaryDTO(&session.Result{SessionID: "x", Duration: 2 * time.Second, HasAccuracy: false})
	assert.Nil(t, dto.AverageAccuracy)
	assert.InDelta(t, 2, dto.DurationSeconds, 1e-9)

	dto = NewSummaryDTO(&session.Result{SessionID: "x", HasAccuracy: true, AverageAccuracy: 0.75})
	require.NotNil(t, dto.AverageAccuracy)
	assert.InDelta(t, 0.75, *dto.AverageAccuracy, 1e-9)
}

func TestConfigFromSettings(t *testing.T) {
	c := ConfigFromSettings(&conf.MQTTSettings{Broker: "tcp://b:1883", Topic: "x", ClientID: "id", QoS: 1, Retain: true})
	assert.Equal(t, byte(1), c.QoS)
	assert.True(t, c.Retain)
	assert.Equal(t, 10*time.Second, c.PublishTimeout)
}

func TestBrokerHostPort(t *testing.T) {
	tests := []struct {
		broker, host, hostPort string
		wantErr                bool
	}{
		{"tcp://localhost:1883", "localhost", "localhost:1883", false},
		{"tcp://broker.local", "broker.local", "broker.local:1883", false},
		{"192.168.1.10:1884", "192.168.1.10", "192.168.1.10:1884", false},
		{"tcp://[::1]:1883", "::1", "[::1]:1883", false},
		{"tcp://", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.broker, func(t *testing.T) {
			host, hostPort, err := brokerHostPort(tt.broker)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.hostPort, hostPort)
		})
	}
}

func TestConstructTestTopic(t *testing.T) {
	assert.Equal(t, "vocalcoach/test", constructTestTopic(""))
	assert.Equal(t, "a/b/test", constructTestTopic("a/b/"))
}

func TestConnectionStopsAtTCPStage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	config := DefaultConfig()
	config.Broker = "tcp://" + addr
	results := make(chan TestResult, 4)
	TestConnection(t.Context(), config, results)

	var got []TestResult
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 1)
	assert.Equal(t, TCPConnection.String(), got[0].Stage)
	assert.False(t, got[0].Success)
	assert.Equal(t, "failed", got[0].State)
}

func TestClientPublishRequiresConnection(t *testing.T) {
	c := NewClient(DefaultConfig(), nil)
	err := c.Publish(t.Context(), "t", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	assert.False(t, c.IsConnected())
	c.Disconnect()
}

func TestClientRejectsBadBroker(t *testing.T) {
	config := DefaultConfig()
	config.Broker = "not a url"
	err := NewClient(config, nil).Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
