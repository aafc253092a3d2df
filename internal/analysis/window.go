package analysis

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

const (
	bytesPerSample = 4
	// MinOverlap is the smallest fraction of a window kept between cycles
	MinOverlap = 0.25
)

// Config configures a Window
type Config struct {
	SampleRate    int
	WindowSeconds float64
	Overlap       float64 // fraction retained between cycles, at least MinOverlap
	PitchMinHz    float64
	PitchMaxHz    float64
	FFTSize       int
	NoiseFloor    float64
}

// DefaultConfig returns the stock analysis parameters
func DefaultConfig() Config {
	return Config{
		SampleRate:    22050,
		WindowSeconds: 1.0,
		Overlap:       MinOverlap,
		PitchMinHz:    80,
		PitchMaxHz:    800,
		FFTSize:       4096,
		NoiseFloor:    0.01,
	}
}

// Window accumulates samples and yields one Result per hop once a full
// window is buffered. Incoming samples are staged in a byte ring buffer;
// the analysed span lives in buf, which never exceeds the window length.
// A Window is owned by a single goroutine.
type Window struct {
	config    Config
	windowLen int
	hop       int

	staging *ringbuffer.RingBuffer
	scratch []byte
	buf     []float32

	detector *PitchDetector
	cycle    uint64
	consumed uint64 // samples moved from staging into buf
	log      logger.Logger
}

// NewWindow validates config and allocates buffers
func NewWindow(config Config) (*Window, error) {
	if config.SampleRate <= 0 || config.WindowSeconds <= 0 {
		return nil, errors.Newf("invalid analysis window: rate=%d seconds=%g", config.SampleRate, config.WindowSeconds).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if config.PitchMinHz <= 0 || config.PitchMaxHz <= config.PitchMinHz {
		return nil, errors.Newf("invalid pitch band [%g, %g]", config.PitchMinHz, config.PitchMaxHz).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if config.Overlap < MinOverlap || config.Overlap >= 1 {
		config.Overlap = MinOverlap
	}

	windowLen := int(math.Round(config.WindowSeconds * float64(config.SampleRate)))
	hop := max(int(math.Round(float64(windowLen)*(1-config.Overlap))), 1)

	fftSize := config.FFTSize
	if fftSize <= 0 || fftSize > windowLen || bits.OnesCount(uint(fftSize)) != 1 {
		// Largest power of two that fits the window
		fftSize = 1 << (bits.Len(uint(windowLen)) - 1)
	}
	config.FFTSize = fftSize

	return &Window{
		config:    config,
		windowLen: windowLen,
		hop:       hop,
		staging:   ringbuffer.New(2 * windowLen * bytesPerSample),
		scratch:   make([]byte, windowLen*bytesPerSample),
		buf:       make([]float32, 0, windowLen),
		detector:  NewPitchDetector(config.SampleRate, fftSize, config.PitchMinHz, config.PitchMaxHz, config.NoiseFloor),
		log:       GetLogger(),
	}, nil
}

// Len is the window length in samples
func (w *Window) Len() int { return w.windowLen }

// Hop is the number of samples evicted after each cycle
func (w *Window) Hop() int { return w.hop }

// Buffered is the number of samples waiting, staged plus windowed
func (w *Window) Buffered() int {
	return len(w.buf) + w.staging.Length()/bytesPerSample
}

// Config returns the effective configuration
func (w *Window) Config() Config { return w.config }

// Add appends samples and returns the results of every cycle that became
// ready, oldest first. Usually zero or one.
func (w *Window) Add(samples []float32) []Result {
	var results []Result
	for len(samples) > 0 {
		free := w.staging.Free() / bytesPerSample
		if free == 0 {
			// Staging full: analysis must catch up before more can be written
			if r, ok := w.next(); ok {
				results = append(results, r)
				continue
			}
			w.log.Warn("analysis staging buffer full", logger.Int("pending", len(samples)))
			return results
		}

		n := min(free, len(samples))
		w.stage(samples[:n])
		samples = samples[n:]

		for {
			r, ok := w.next()
			if !ok {
				break
			}
			results = append(results, r)
		}
	}
	return results
}

// Reset discards all buffered audio
func (w *Window) Reset() {
	w.staging.Reset()
	w.buf = w.buf[:0]
}

func (w *Window) stage(samples []float32) {
	need := len(samples) * bytesPerSample
	if cap(w.scratch) < need {
		w.scratch = make([]byte, need)
	}
	b := w.scratch[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*bytesPerSample:], math.Float32bits(s))
	}
	// Callers guarantee Free() >= need
	if _, err := w.staging.Write(b); err != nil {
		w.log.Error("analysis staging write failed", logger.Error(err))
	}
}

// next fills buf to the window length from staging and analyses it. After
// a cycle the oldest hop samples are evicted, keeping the overlap.
func (w *Window) next() (Result, bool) {
	needed := w.windowLen - len(w.buf)
	available := w.staging.Length() / bytesPerSample
	if available < needed {
		return Result{}, false
	}

	if needed > 0 {
		b := w.scratch[:needed*bytesPerSample]
		if _, err := w.staging.Read(b); err != nil {
			w.log.Error("analysis staging read failed", logger.Error(err))
			return Result{}, false
		}
		for i := range needed {
			w.buf = append(w.buf, math.Float32frombits(binary.LittleEndian.Uint32(b[i*bytesPerSample:])))
		}
		w.consumed += uint64(needed)
	}

	r := w.analyze(w.buf)

	// Evict the consumed hop, keep the overlap
	w.buf = append(w.buf[:0], w.buf[w.hop:]...)

	return r, true
}

func (w *Window) analyze(samples []float32) Result {
	w.cycle++

	volume := Volume(samples)
	var pitch PitchEstimate
	if volume.RMS > 0 {
		pitch = w.detector.Estimate(samples)
	}

	r := Result{
		Cycle:  w.cycle,
		Pitch:  pitch,
		Volume: volume,
		Stability: StabilityEstimate{
			Pitch:  pitch.Stability,
			Energy: EnergyStability(samples),
		},
		EndSample: w.consumed,
	}

	w.log.Trace("analysis cycle",
		logger.Uint64("cycle", r.Cycle),
		logger.Float64("frequency_hz", pitch.FrequencyHz),
		logger.Float64("volume", volume.Normalized))

	return r
}
