// Package capture owns audio input: device enumeration and selection, the
// malgo-backed microphone source and a synthetic tone source. Sources deliver
// fixed-size mono frames to a FrameHandler on the driver's thread.
package capture

import (
	"time"

	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

const componentCapture = "capture"

// Frame is one capture period of mono samples normalized to [-1, 1].
// Frames are immutable once handed to a FrameHandler. Samples come from a
// shared pool; the final consumer may return them with ReleaseFrame.
type Frame struct {
	Samples   []float32
	Seq       uint64
	Timestamp time.Time
}

// Duration returns the frame length at sampleRate
func (f *Frame) Duration(sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(f.Samples)) / float64(sampleRate) * float64(time.Second))
}

// FrameHandler receives frames on the audio driver's thread. It must not
// block; the session pushes into a drop-oldest channel.
type FrameHandler func(Frame)

// Source is an audio input producing fixed-size frames.
type Source interface {
	// Start opens the device selected by device ("" for the default) and
	// begins delivering frames. Failures are returned synchronously.
	Start(device string, handler FrameHandler) error
	// Stop halts capture and releases the device. Safe after a failed Start.
	Stop() error
	// SampleRate is the rate frames are delivered at
	SampleRate() uint32
	// Device describes the opened device, zero before Start
	Device() DeviceInfo
	// Glitches counts callbacks that could not produce a frame
	Glitches() uint64
}

// Config is shared by all sources
type Config struct {
	SampleRate   uint32
	PeriodFrames uint32
}

// DefaultConfig matches the analysis defaults
func DefaultConfig() Config {
	return Config{SampleRate: 22050, PeriodFrames: 2048}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = def.SampleRate
	}
	if c.PeriodFrames == 0 {
		c.PeriodFrames = def.PeriodFrames
	}
}

// Sentinel errors returned from Start. Match with errors.Is.
var (
	ErrNoInputDevice = errors.New(nil).
				Component(componentCapture).
				Category(errors.CategoryAudioSource).
				Context("error", "no input device").
				Build()

	ErrDeviceBusy = errors.New(nil).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("error", "device busy").
			Build()

	ErrUnsupportedFormat = errors.New(nil).
				Component(componentCapture).
				Category(errors.CategoryAudioSource).
				Context("error", "unsupported format").
				Build()

	ErrAlreadyStarted = errors.New(nil).
				Component(componentCapture).
				Category(errors.CategoryState).
				Context("error", "source already started").
				Build()
)

// GetLogger returns the capture module logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentCapture)
}
