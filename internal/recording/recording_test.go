package recording

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sine(hz float64, n int, rate uint32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*hz*float64(i)/float64(rate)))
	}
	return out
}

func TestSaveAndReadBack(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	samples := sine(440, 22050, 22050)

	path, err := Save(dir, "abc-123", samples, 22050)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc-123.wav"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	// 44 byte header plus 2 bytes per sample
	assert.Equal(t, int64(44+2*len(samples)), info.Size())

	got, rate, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), rate)
	require.Len(t, got, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], got[i], 1.0/32768+1e-6)
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	_, err := Save(t.TempDir(), "", nil, 22050)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = Save(t.TempDir(), "id", nil, 0)
	assert.Error(t, err)
}

func TestSaveReportsFileContext(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := Save(blocker, "id", []float32{0}, 22050)
	require.Error(t, err)

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.CategoryFileIO, ee.Category)
	assert.Equal(t, "recording", ee.GetComponent())
	assert.Equal(t, "create_dir", ee.GetContext()["operation"])
	assert.Equal(t, "wav", ee.GetContext()["file_extension"])
	assert.Equal(t, "absolute-path", ee.GetContext()["file_type"])
}

func TestWriteClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, WriteWAV(path, []float32{2, -2, 0}, 8000))

	got, _, err := ReadWAV(path)
	require.NoError(t, err)
	assert.InDelta(t, 32767.0/32768, got[0], 1e-6)
	assert.InDelta(t, -1.0, got[1], 1e-6)
	assert.Zero(t, got[2])
}

func TestReadWAVErrors(t *testing.T) {
	_, _, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	bogus := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("definitely not a riff file"), 0o600))
	_, _, err = ReadWAV(bogus)
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrUnsupportedFormat)
}

func TestFileSourceDeliversWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	samples := sine(220, 5000, 22050)
	require.NoError(t, WriteWAV(path, samples, 22050))

	src, err := NewFileSource(path, 2048, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), src.SampleRate())

	var mu sync.Mutex
	var frames []capture.Frame
	require.NoError(t, src.Start("", func(f capture.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}))
	assert.ErrorIs(t, src.Start("", nil), capture.ErrAlreadyStarted)

	testutil.WaitForChannel(t, src.Finished(), testutil.DefaultTestTimeout, "file source did not finish")
	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint64(i), f.Seq)
		assert.Len(t, f.Samples, 2048)
	}
	// Final frame is zero padded
	assert.Zero(t, frames[2].Samples[2047])
	assert.InDelta(t, samples[4096], frames[2].Samples[0], 1.0/32768+1e-6)
}
