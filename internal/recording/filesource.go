package recording

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// FileSource replays a WAV file as a capture source, one period per frame.
// It stops delivering at the end of the file.
type FileSource struct {
	path         string
	samples      []float32
	sampleRate   uint32
	periodFrames int
	realtime     bool

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	done     chan struct{}
	finished chan struct{}
	finish   sync.Once
	glitches atomic.Uint64
}

// NewFileSource loads path. When realtime is set frames are paced at the
// period duration, otherwise delivered as fast as possible.
func NewFileSource(path string, periodFrames uint32, realtime bool) (*FileSource, error) {
	samples, rate, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	if periodFrames == 0 {
		periodFrames = capture.DefaultConfig().PeriodFrames
	}
	return &FileSource{
		path:         path,
		samples:      samples,
		sampleRate:   rate,
		periodFrames: int(periodFrames),
		realtime:     realtime,
		finished:     make(chan struct{}),
	}, nil
}

// SampleRate implements capture.Source
func (s *FileSource) SampleRate() uint32 { return s.sampleRate }

// Glitches implements capture.Source
func (s *FileSource) Glitches() uint64 { return s.glitches.Load() }

// Device implements capture.Source
func (s *FileSource) Device() capture.DeviceInfo {
	return capture.DeviceInfo{Index: -1, ID: "file", Name: s.path, MaxInputChannels: 1}
}

// Finished is closed once the whole file has been delivered
func (s *FileSource) Finished() <-chan struct{} { return s.finished }

// Start implements capture.Source; device is ignored
func (s *FileSource) Start(_ string, handler capture.FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return capture.ErrAlreadyStarted
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(handler, s.stop, s.done)

	GetLogger().Debug("file source started",
		logger.String("path", s.path),
		logger.Int("samples", len(s.samples)))
	return nil
}

// Stop implements capture.Source
func (s *FileSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stop)
	<-s.done
	s.running = false
	return nil
}

func (s *FileSource) run(handler capture.FrameHandler, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.realtime {
		period := time.Duration(float64(s.periodFrames) / float64(s.sampleRate) * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	var seq uint64
	for off := 0; off < len(s.samples); off += s.periodFrames {
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

		end := min(off+s.periodFrames, len(s.samples))
		frame := capture.FrameBuffer(s.periodFrames)
		n := copy(frame, s.samples[off:end])
		clear(frame[n:])
		handler(capture.Frame{Samples: frame, Seq: seq, Timestamp: time.Now()})
		seq++
	}
	s.finish.Do(func() { close(s.finished) })
}

var _ capture.Source = (*FileSource)(nil)
