package session

import "sync/atomic"

// recordingChunkSeconds sizes the chunks of the full-session buffer
const recordingChunkSeconds = 10

// audioBuffer is the full-session recording. The capture handler is its
// only writer. Readers see every sample published by the last write.
// Chunks are allocated as the recording grows, at most maxSamples total.
type audioBuffer struct {
	chunks     [][]float32
	chunkSize  int
	maxSamples int
	written    atomic.Int64
	truncated  atomic.Bool
}

func newAudioBuffer(maxSamples, chunkSize int) *audioBuffer {
	chunkSize = max(min(chunkSize, maxSamples), 1)
	n := max((maxSamples+chunkSize-1)/chunkSize, 1)
	b := &audioBuffer{
		chunks:     make([][]float32, n),
		chunkSize:  chunkSize,
		maxSamples: maxSamples,
	}
	b.chunks[0] = make([]float32, min(chunkSize, maxSamples))
	return b
}

// write appends samples, dropping what does not fit under maxSamples
func (b *audioBuffer) write(samples []float32) {
	pos := int(b.written.Load())
	if room := b.maxSamples - pos; len(samples) > room {
		samples = samples[:room]
		b.truncated.Store(true)
	}
	for len(samples) > 0 {
		idx, off := pos/b.chunkSize, pos%b.chunkSize
		if b.chunks[idx] == nil {
			b.chunks[idx] = make([]float32, min(b.chunkSize, b.maxSamples-idx*b.chunkSize))
		}
		n := copy(b.chunks[idx][off:], samples)
		samples = samples[n:]
		pos += n
	}
	b.written.Store(int64(pos))
}

// Len is the number of samples written
func (b *audioBuffer) Len() int { return int(b.written.Load()) }

// Truncated reports whether samples were dropped at maxSamples
func (b *audioBuffer) Truncated() bool { return b.truncated.Load() }

// snapshot copies the published samples into one slice
func (b *audioBuffer) snapshot() []float32 {
	n := b.Len()
	out := make([]float32, 0, n)
	for i := 0; len(out) < n; i++ {
		c := b.chunks[i]
		out = append(out, c[:min(len(c), n-len(out))]...)
	}
	return out
}
