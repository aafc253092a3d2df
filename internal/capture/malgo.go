package capture

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// discardDeviceName is the ALSA null sink, never a useful input
const discardDeviceName = "Discard all samples"

// MalgoSource captures mono S16 audio through miniaudio and delivers
// fixed-size float32 frames.
type MalgoSource struct {
	config Config

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	info    DeviceInfo
	handler FrameHandler
	running atomic.Bool

	// pending re-blocks driver callbacks into PeriodFrames-sized frames.
	// Only touched on the driver thread while running.
	pending  []float32
	seq      atomic.Uint64
	glitches atomic.Uint64
}

// NewMalgoSource creates an unopened source
func NewMalgoSource(config Config) *MalgoSource {
	config.applyDefaults()
	return &MalgoSource{config: config}
}

// SampleRate implements Source
func (s *MalgoSource) SampleRate() uint32 { return s.config.SampleRate }

// Glitches implements Source
func (s *MalgoSource) Glitches() uint64 { return s.glitches.Load() }

// Device implements Source
func (s *MalgoSource) Device() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Start opens the selected device at the configured rate. The device must
// accept S16 mono at exactly that rate; there is no resampling fallback.
func (s *MalgoSource) Start(deviceSpec string, handler FrameHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyStarted
	}
	if handler == nil {
		return errors.Newf("frame handler is nil").
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Build()
	}

	log := GetLogger()

	malgoCtx, err := malgo.InitContext([]malgo.Backend{backendForPlatform()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(fmt.Errorf("%w: %w", ErrNoInputDevice, err)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Priority(errors.PriorityHigh).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	s.ctx = malgoCtx

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		s.releaseLocked()
		return errors.New(fmt.Errorf("%w: %w", ErrNoInputDevice, err)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Priority(errors.PriorityHigh).
			Context("operation", "enumerate_devices").
			Build()
	}

	selected, err := SelectDevice(describeDevices(malgoCtx, infos), deviceSpec)
	if err != nil {
		s.releaseLocked()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.PeriodSizeInFrames = s.config.PeriodFrames
	deviceConfig.Alsa.NoMMap = 1

	s.handler = handler
	s.pending = make([]float32, 0, 2*s.config.PeriodFrames)

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		s.releaseLocked()
		return classifyDeviceError(err, selected, "init_device")
	}
	s.device = device

	if format := device.CaptureFormat(); format != malgo.FormatS16 {
		s.releaseLocked()
		return errors.New(fmt.Errorf("%w: device delivers format %d", ErrUnsupportedFormat, format)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("device", selected.Name).
			Build()
	}
	if rate := device.SampleRate(); rate != s.config.SampleRate {
		s.releaseLocked()
		return errors.New(fmt.Errorf("%w: device runs at %d Hz, need %d Hz", ErrUnsupportedFormat, rate, s.config.SampleRate)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("device", selected.Name).
			Build()
	}

	s.running.Store(true)
	if err := device.Start(); err != nil {
		s.running.Store(false)
		s.releaseLocked()
		return classifyDeviceError(err, selected, "start_device")
	}

	s.info = selected
	log.Info("capture started",
		logger.String("device", selected.Name),
		logger.Int("sample_rate", int(s.config.SampleRate)),
		logger.Int("period_frames", int(s.config.PeriodFrames)))

	return nil
}

// Stop halts the device and releases the backend context
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.running.Swap(false)
	s.releaseLocked()

	if wasRunning {
		GetLogger().Info("capture stopped",
			logger.Uint64("frames", s.seq.Load()),
			logger.Uint64("glitches", s.glitches.Load()))
	}
	return nil
}

// releaseLocked tears down whatever Start managed to set up
func (s *MalgoSource) releaseLocked() {
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx = nil
	}
}

// onAudioData runs on the driver thread
func (s *MalgoSource) onAudioData(_, input []byte, frameCount uint32) {
	if !s.running.Load() {
		return
	}
	if frameCount == 0 || len(input) < int(frameCount)*bytesPerS16 {
		s.glitches.Add(1)
		GetLogger().Debug("short capture callback",
			logger.Int("bytes", len(input)),
			logger.Int("frames", int(frameCount)))
		return
	}

	s.pending = appendS16AsFloat32(s.pending, input[:int(frameCount)*bytesPerS16])

	period := int(s.config.PeriodFrames)
	for len(s.pending) >= period {
		samples := FrameBuffer(period)
		copy(samples, s.pending[:period])
		s.pending = append(s.pending[:0], s.pending[period:]...)

		s.handler(Frame{
			Samples:   samples,
			Seq:       s.seq.Add(1) - 1,
			Timestamp: time.Now(),
		})
	}
}

func (s *MalgoSource) onDeviceStop() {
	if s.running.Load() {
		s.glitches.Add(1)
		GetLogger().Warn("capture device stopped unexpectedly")
	}
}

// EnumerateDevices lists capture devices through the platform backend
func EnumerateDevices() ([]DeviceInfo, error) {
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backendForPlatform()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Context("backend", runtime.GOOS).
			Build()
	}
	defer func() { _ = malgoCtx.Uninit() }()

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	return describeDevices(malgoCtx, infos), nil
}

// TestDevice opens and immediately stops the device selected by spec
func TestDevice(spec string, config Config) error {
	src := NewMalgoSource(config)
	if err := src.Start(spec, func(Frame) {}); err != nil {
		return err
	}
	return src.Stop()
}

// describeDevices converts backend device infos, skipping the discard
// device. Index refers to the position in infos.
func describeDevices(malgoCtx *malgo.AllocatedContext, infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if strings.Contains(name, discardDeviceName) {
			continue
		}

		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			decodedID = infos[i].ID.String()
		}

		channels := 0
		if full, err := malgoCtx.DeviceInfo(malgo.Capture, infos[i].ID, malgo.Shared); err == nil {
			for j := 0; j < int(full.FormatCount) && j < len(full.Formats); j++ {
				channels = max(channels, int(full.Formats[j].Channels))
			}
		}
		if channels == 0 {
			channels = 1
		}

		devices = append(devices, DeviceInfo{
			Index:            i,
			ID:               decodedID,
			Name:             name,
			MaxInputChannels: channels,
			IsDefault:        infos[i].IsDefault == 1,
		})
	}
	return devices
}

// classifyDeviceError maps backend failures onto the start sentinels
func classifyDeviceError(err error, device DeviceInfo, operation string) error {
	sentinel := ErrNoInputDevice
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		sentinel = ErrDeviceBusy
	case strings.Contains(msg, "format") || strings.Contains(msg, "sample rate"):
		sentinel = ErrUnsupportedFormat
	}

	return errors.New(fmt.Errorf("%w: %w", sentinel, err)).
		Component(componentCapture).
		Category(errors.CategoryAudioSource).
		Context("device", device.Name).
		Context("operation", operation).
		Build()
}

func backendForPlatform() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

var _ Source = (*MalgoSource)(nil)
