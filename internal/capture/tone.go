package capture

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/vocalcoach/internal/logger"
)

// FrequencyFunc returns the tone frequency at elapsed seconds. Zero emits
// silence for that period.
type FrequencyFunc func(elapsed float64) float64

// ToneConfig configures a ToneSource
type ToneConfig struct {
	Config
	Frequency FrequencyFunc
	Amplitude float64 // peak amplitude in (0, 1], default 0.5
	// Realtime paces frames on a ticker at the period duration. When false
	// frames are produced as fast as the handler accepts them.
	Realtime bool
}

// ConstantTone returns a FrequencyFunc fixed at hz
func ConstantTone(hz float64) FrequencyFunc {
	return func(float64) float64 { return hz }
}

// ToneSource synthesizes a sine wave in place of a microphone. It backs the
// --simulate flag and pipeline tests.
type ToneSource struct {
	config ToneConfig

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	done     chan struct{}
	seq      atomic.Uint64
	glitches atomic.Uint64
}

// NewToneSource creates a synthetic source
func NewToneSource(config ToneConfig) *ToneSource {
	config.applyDefaults()
	if config.Amplitude <= 0 || config.Amplitude > 1 {
		config.Amplitude = 0.5
	}
	if config.Frequency == nil {
		config.Frequency = ConstantTone(0)
	}
	return &ToneSource{config: config}
}

// SampleRate implements Source
func (t *ToneSource) SampleRate() uint32 { return t.config.SampleRate }

// Glitches implements Source
func (t *ToneSource) Glitches() uint64 { return t.glitches.Load() }

// Device implements Source
func (t *ToneSource) Device() DeviceInfo {
	return DeviceInfo{Index: -1, ID: "tone", Name: "synthetic tone", MaxInputChannels: 1}
}

// Start begins producing frames on a background goroutine. device is ignored.
func (t *ToneSource) Start(_ string, handler FrameHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyStarted
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.run(handler, t.stop, t.done)

	GetLogger().Debug("tone source started",
		logger.Int("sample_rate", int(t.config.SampleRate)),
		logger.Bool("realtime", t.config.Realtime))
	return nil
}

// Stop halts the generator and waits for it to exit
func (t *ToneSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stop)
	<-t.done
	t.running = false
	return nil
}

func (t *ToneSource) run(handler FrameHandler, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := int(t.config.PeriodFrames)
	rate := float64(t.config.SampleRate)
	periodDuration := time.Duration(float64(period) / rate * float64(time.Second))

	var tick <-chan time.Time
	if t.config.Realtime {
		ticker := time.NewTicker(periodDuration)
		defer ticker.Stop()
		tick = ticker.C
	}

	var phase float64
	var produced int
	for {
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		hz := t.config.Frequency(float64(produced) / rate)
		samples := FrameBuffer(period)
		if hz <= 0 {
			clear(samples)
		} else {
			step := 2 * math.Pi * hz / rate
			for i := range samples {
				samples[i] = float32(t.config.Amplitude * math.Sin(phase))
				phase += step
			}
			phase = math.Mod(phase, 2*math.Pi)
		}
		produced += period

		handler(Frame{
			Samples:   samples,
			Seq:       t.seq.Add(1) - 1,
			Timestamp: time.Now(),
		})
	}
}

var _ Source = (*ToneSource)(nil)
