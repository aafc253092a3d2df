package feedback

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/vocalcoach/internal/analysis"
)

// ChannelListener forwards events to a buffered channel for consumers on
// other goroutines. Sends never block: when the buffer is full the event
// is dropped and counted.
type ChannelListener struct {
	events  chan Event
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewChannelListener creates an adapter with the given buffer size
func NewChannelListener(buffer int) *ChannelListener {
	return &ChannelListener{events: make(chan Event, max(buffer, 1))}
}

// Events is closed by Close
func (c *ChannelListener) Events() <-chan Event { return c.events }

// Dropped counts events discarded on a full buffer
func (c *ChannelListener) Dropped() uint64 { return c.dropped.Load() }

func (c *ChannelListener) OnPitch(analysis.PitchEstimate)   {}
func (c *ChannelListener) OnVolume(analysis.VolumeEstimate) {}

func (c *ChannelListener) OnFeedback(e Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- e:
	default:
		c.dropped.Add(1)
	}
}

// Close closes the events channel; later events are ignored
func (c *ChannelListener) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}
