package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 22050

func sine(hz, amplitude float64, n, offset int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*hz*float64(i+offset)/testRate))
	}
	return out
}

// feed pushes total samples from gen in capture-period chunks
func feed(t *testing.T, w *Window, total int, gen func(n, offset int) []float32) []Result {
	t.Helper()
	const period = 2048
	var results []Result
	for offset := 0; offset < total; offset += period {
		n := min(period, total-offset)
		results = append(results, w.Add(gen(n, offset))...)
	}
	return results
}

func newTestWindow(t *testing.T) *Window {
	t.Helper()
	w, err := NewWindow(DefaultConfig())
	require.NoError(t, err)
	return w
}

func TestSineConvergesWithinTwoPercent(t *testing.T) {
	for _, hz := range []float64{80, 110, 196, 261.63, 440, 523.25, 659.26, 800} {
		t.Run(NoteLabel(hz), func(t *testing.T) {
			w := newTestWindow(t)
			results := feed(t, w, testRate, func(n, off int) []float32 { return sine(hz, 0.5, n, off) })

			require.Len(t, results, 1)
			p := results[0].Pitch
			require.True(t, p.Voiced)
			assert.InEpsilon(t, hz, p.FrequencyHz, 0.02)
			assert.Greater(t, p.Stability, 0.99)
			assert.InDelta(t, 1.0, p.Confidence, 1e-9)
			assert.NotEmpty(t, p.Note)
		})
	}
}

func TestSilenceEveryCycle(t *testing.T) {
	w := newTestWindow(t)
	results := feed(t, w, 5*testRate, func(n, _ int) []float32 { return make([]float32, n) })

	require.NotEmpty(t, results)
	for _, r := range results {
		assert.True(t, r.Silent())
		assert.Zero(t, r.Pitch.FrequencyHz)
		assert.Zero(t, r.Volume.Normalized)
		assert.Equal(t, LevelVeryLow, r.Volume.Level)
		assert.Equal(t, FloorDB, r.Volume.DB)
		assert.Zero(t, r.Stability.Energy)
	}
}

func TestCycleCadenceAndOverlap(t *testing.T) {
	w := newTestWindow(t)
	assert.Equal(t, testRate, w.Len())
	assert.Equal(t, 16538, w.Hop())

	// First cycle needs a full window, each following one a hop
	total := testRate + 3*w.Hop()
	results := feed(t, w, total, func(n, off int) []float32 { return sine(220, 0.5, n, off) })
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, uint64(i+1), r.Cycle)
		assert.Equal(t, uint64(testRate+i*w.Hop()), r.EndSample)
	}
	assert.LessOrEqual(t, len(w.buf), w.Len())
	assert.Equal(t, testRate-w.Hop(), len(w.buf))
}

func TestOverlapBelowMinimumIsRaised(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Overlap = 0.1
	w, err := NewWindow(cfg)
	require.NoError(t, err)
	assert.InDelta(t, MinOverlap, w.Config().Overlap, 1e-9)
}

func TestFFTSizeClampedToWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSeconds = 0.1
	cfg.FFTSize = 4096
	w, err := NewWindow(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2048, w.Config().FFTSize)
}

func TestNewWindowRejectsBadBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PitchMinHz = 900
	_, err := NewWindow(cfg)
	assert.Error(t, err)
}

func TestResetDiscardsBufferedAudio(t *testing.T) {
	w := newTestWindow(t)
	w.Add(sine(440, 0.5, 10000, 0))
	assert.Equal(t, 10000, w.Buffered())

	w.Reset()
	assert.Zero(t, w.Buffered())
}

func TestSubharmonicPreferred(t *testing.T) {
	// Second harmonic louder than the fundamental
	gen := func(n, off int) []float32 {
		f0 := sine(150, 0.3, n, off)
		h2 := sine(300, 0.5, n, off)
		for i := range f0 {
			f0[i] += h2[i]
		}
		return f0
	}
	w := newTestWindow(t)
	results := feed(t, w, testRate, gen)
	require.Len(t, results, 1)
	assert.InEpsilon(t, 150.0, results[0].Pitch.FrequencyHz, 0.02)
}

func TestBelowNoiseFloorIsUnvoiced(t *testing.T) {
	w := newTestWindow(t)
	results := feed(t, w, testRate, func(n, off int) []float32 { return sine(440, 0.001, n, off) })
	require.Len(t, results, 1)
	assert.False(t, results[0].Pitch.Voiced)
	assert.Greater(t, results[0].Volume.RMS, 0.0)
}

func TestOutOfBandIsUnvoiced(t *testing.T) {
	w := newTestWindow(t)
	results := feed(t, w, testRate, func(n, off int) []float32 { return sine(50, 0.5, n, off) })
	require.Len(t, results, 1)
	assert.False(t, results[0].Pitch.Voiced)
	assert.Zero(t, results[0].Pitch.FrequencyHz)
}

func TestVolume(t *testing.T) {
	full := Volume(sine(440, 1.0, testRate, 0))
	assert.InDelta(t, 1/math.Sqrt2, full.RMS, 1e-3)
	assert.InDelta(t, -3.01, full.DB, 0.01)
	assert.InDelta(t, 0.95, full.Normalized, 0.01)
	assert.Equal(t, LevelVeryHigh, full.Level)

	quiet := Volume(sine(440, 0.0005, testRate, 0))
	assert.Equal(t, FloorDB, quiet.DB)
	assert.Zero(t, quiet.Normalized)

	empty := Volume(nil)
	assert.Zero(t, empty.Normalized)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		v    float64
		want VolumeLevel
	}{
		{0, LevelVeryLow},
		{0.099, LevelVeryLow},
		{0.1, LevelLow},
		{0.3, LevelModerate},
		{0.69, LevelModerate},
		{0.7, LevelHigh},
		{0.9, LevelVeryHigh},
		{1, LevelVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.v), "%g", tt.v)
	}
}

func TestEnergyStability(t *testing.T) {
	steady := EnergyStability(sine(440, 0.5, testRate, 0))
	assert.Greater(t, steady, 0.99)

	swell := sine(440, 0.5, testRate, 0)
	for i := range swell {
		swell[i] *= float32(i) / float32(len(swell))
	}
	assert.Less(t, EnergyStability(swell), steady)

	assert.Zero(t, EnergyStability(make([]float32, testRate)))
	assert.Zero(t, EnergyStability(make([]float32, 5)))
}

func TestNoteLabel(t *testing.T) {
	tests := map[float64]string{
		440:    "A4",
		261.63: "C4",
		27.5:   "A0",
		466.16: "A#4",
		82.41:  "E2",
		0:      "",
		-5:     "",
	}
	for hz, want := range tests {
		assert.Equal(t, want, NoteLabel(hz), "%g Hz", hz)
	}
}

func TestCents(t *testing.T) {
	assert.InDelta(t, 1200.0, Cents(880, 440), 1e-9)
	assert.InDelta(t, -100.0, Cents(440*math.Pow(2, -1.0/12), 440), 1e-9)
	assert.InDelta(t, 0.0, Cents(440, 440), 1e-12)
}
