package capture

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vocalcoach/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testDevices() []DeviceInfo {
	return []DeviceInfo{
		{Index: 0, ID: "hw:0,0", Name: "HDA Intel PCH: ALC3246 Analog", MaxInputChannels: 2},
		{Index: 2, ID: ":1,0", Name: "USB Audio CODEC", MaxInputChannels: 1, IsDefault: true},
		{Index: 3, ID: "pulse", Name: "PulseAudio Sound Server", MaxInputChannels: 32},
	}
}

func TestSelectDevice(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		wantIndex int
		wantErr   bool
	}{
		{"empty selects default", "", 2, false},
		{"default keyword", "default", 2, false},
		{"by index", "3", 3, false},
		{"exact name", "USB Audio CODEC", 2, false},
		{"decoded id", "hw:0,0", 0, false},
		{"partial case-insensitive", "pulseaudio", 3, false},
		{"unknown index falls through to name search", "7", 0, true},
		{"no match", "Focusrite", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectDevice(testDevices(), tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNoInputDevice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, got.Index)
		})
	}
}

func TestSelectDeviceWithoutDefaultPicksFirst(t *testing.T) {
	devices := testDevices()
	devices[1].IsDefault = false

	got, err := SelectDevice(devices, "")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Index)
}

func TestSelectDeviceEmptyList(t *testing.T) {
	_, err := SelectDevice(nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoInputDevice)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))
}

func TestCatalogCachesEnumeration(t *testing.T) {
	var calls atomic.Int32
	catalog := NewCatalog(func() ([]DeviceInfo, error) {
		calls.Add(1)
		return testDevices(), nil
	}, time.Minute)

	first, err := catalog.List()
	require.NoError(t, err)
	second, err := catalog.List()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	first[0].Name = "mutated"
	third, err := catalog.List()
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", third[0].Name)

	catalog.Invalidate()
	_, err = catalog.List()
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	dev, err := catalog.Select("USB")
	require.NoError(t, err)
	assert.Equal(t, "USB Audio CODEC", dev.Name)
}

func TestCatalogPropagatesErrors(t *testing.T) {
	catalog := NewCatalog(func() ([]DeviceInfo, error) {
		return nil, ErrNoInputDevice
	}, 0)

	_, err := catalog.List()
	assert.ErrorIs(t, err, ErrNoInputDevice)
}

func TestDeviceInfoString(t *testing.T) {
	d := testDevices()[1]
	assert.Equal(t, "2: USB Audio CODEC [:1,0] channels=1 (default)", d.String())
}

func TestHexToASCII(t *testing.T) {
	got, err := hexToASCII("3a312c3000")
	require.NoError(t, err)
	assert.Equal(t, ":1,0", got)

	_, err = hexToASCII("zz")
	assert.Error(t, err)
}

func TestS16Conversion(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x00, 0x40, 0x01}
	got := appendS16AsFloat32(nil, pcm)

	require.Len(t, got, 4)
	assert.InDelta(t, 0.0, got[0], 1e-9)
	assert.InDelta(t, 32767.0/32768.0, got[1], 1e-6)
	assert.InDelta(t, -1.0, got[2], 1e-9)
	assert.InDelta(t, 0.5, got[3], 1e-9)

	back := Float32ToS16([]float32{0, 0.5, -1, 2, -2})
	assert.Equal(t, []int{0, 16384, -32768, 32767, -32768}, back)
}

func TestToneSourceProducesSine(t *testing.T) {
	const hz = 441.0
	src := NewToneSource(ToneConfig{
		Config:    Config{SampleRate: 22050, PeriodFrames: 1024},
		Frequency: ConstantTone(hz),
		Amplitude: 0.8,
	})

	var mu sync.Mutex
	var frames []Frame
	enough := make(chan struct{})
	require.NoError(t, src.Start("", func(f Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f)
		if len(frames) == 4 {
			close(enough)
		}
	}))

	<-enough
	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(frames), 4)
	for i := range 4 {
		assert.Equal(t, uint64(i), frames[i].Seq)
		assert.Len(t, frames[i].Samples, 1024)
	}

	// Continuous phase across frame boundaries
	all := append(append([]float32{}, frames[0].Samples...), frames[1].Samples...)
	for n := range all {
		want := 0.8 * math.Sin(2*math.Pi*hz*float64(n)/22050)
		require.InDelta(t, want, all[n], 1e-4, "sample %d", n)
	}
}

func TestToneSourceSilence(t *testing.T) {
	src := NewToneSource(ToneConfig{Config: Config{SampleRate: 8000, PeriodFrames: 256}})

	got := make(chan Frame, 1)
	require.NoError(t, src.Start("", func(f Frame) {
		select {
		case got <- f:
		default:
		}
	}))
	f := <-got
	require.NoError(t, src.Stop())

	for _, s := range f.Samples {
		require.Zero(t, s)
	}
}

func TestToneSourceRejectsDoubleStart(t *testing.T) {
	src := NewToneSource(ToneConfig{Realtime: true})
	require.NoError(t, src.Start("", func(Frame) {}))
	defer func() { _ = src.Stop() }()

	err := src.Start("", func(Frame) {})
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, uint32(22050), src.SampleRate())
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Samples: make([]float32, 2205)}
	assert.Equal(t, 100*time.Millisecond, f.Duration(22050))
	assert.Zero(t, f.Duration(0))
}

func TestCatalogExpiresLazily(t *testing.T) {
	var calls atomic.Int32
	catalog := NewCatalog(func() ([]DeviceInfo, error) {
		calls.Add(1)
		return testDevices(), nil
	}, 20*time.Millisecond)

	_, err := catalog.List()
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = catalog.List()
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFloat32Pool(t *testing.T) {
	_, err := NewFloat32Pool(0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	pool, err := NewFloat32Pool(4)
	require.NoError(t, err)

	buf := pool.Get()
	assert.Len(t, buf, 4)
	pool.Put(buf)
	pool.Put(make([]float32, 3))

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Discarded)
}

func TestFrameBufferRoundTrip(t *testing.T) {
	const size = 1234
	buf := FrameBuffer(size)
	require.Len(t, buf, size)
	ReleaseFrame(Frame{Samples: buf})
	ReleaseFrame(Frame{})

	again := FrameBuffer(size)
	assert.Len(t, again, size)
	stats := FramePoolStats(size)
	assert.Equal(t, uint64(2), stats.Hits+stats.Misses)
	assert.Zero(t, stats.Discarded)
}

func TestToneSourceSilenceOnReusedBuffer(t *testing.T) {
	cfg := DefaultConfig()
	dirty := FrameBuffer(int(cfg.PeriodFrames))
	for i := range dirty {
		dirty[i] = 1
	}
	ReleaseFrame(Frame{Samples: dirty})

	frames := make(chan Frame, 1)
	src := NewToneSource(ToneConfig{Config: cfg})
	require.NoError(t, src.Start("", func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	}))
	f := <-frames
	require.NoError(t, src.Stop())
	for _, s := range f.Samples {
		require.Zero(t, s)
	}
}
