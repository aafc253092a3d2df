package feedback

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sample is one history entry
type Sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// History keeps the most recent samples of one metric, oldest evicted first
type History struct {
	samples []Sample
	next    int
	full    bool
}

// NewHistory allocates a history holding size samples
func NewHistory(size int) *History {
	return &History{samples: make([]Sample, max(size, 1))}
}

// Add appends s, evicting the oldest when full
func (h *History) Add(s Sample) {
	h.samples[h.next] = s
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

// Len is the number of stored samples
func (h *History) Len() int {
	if h.full {
		return len(h.samples)
	}
	return h.next
}

// Snapshot returns the samples oldest first
func (h *History) Snapshot() []Sample {
	if !h.full {
		out := make([]Sample, h.next)
		copy(out, h.samples[:h.next])
		return out
	}
	out := make([]Sample, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	return append(out, h.samples[:h.next]...)
}

// Mean averages the stored values; ok is false when empty
func (h *History) Mean() (float64, bool) {
	n := h.Len()
	if n == 0 {
		return 0, false
	}
	values := make([]float64, n)
	for i := range n {
		values[i] = h.samples[i].Value
	}
	return stat.Mean(values, nil), true
}

// Clear drops all samples
func (h *History) Clear() {
	clear(h.samples)
	h.next = 0
	h.full = false
}
