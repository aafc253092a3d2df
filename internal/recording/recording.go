// Package recording exports session audio as WAV files and replays WAV
// files as a capture source.
package recording

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/vocalcoach/internal/capture"
	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

const (
	bitDepth    = 16
	numChannels = 1
	pcmFormat   = 1
	s16Scale    = 32768.0
)

// PathFor returns the WAV path for a session in dir
func PathFor(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".wav")
}

// Save writes samples as 16-bit mono PCM to <dir>/<sessionID>.wav and
// returns the path.
func Save(dir, sessionID string, samples []float32, sampleRate uint32) (string, error) {
	if sessionID == "" || sampleRate == 0 {
		return "", errors.Newf("invalid recording: session=%q rate=%d", sessionID, sampleRate).
			Component("recording").
			Category(errors.CategoryValidation).
			Build()
	}

	path := PathFor(dir, sessionID)
	if err := WriteWAV(path, samples, sampleRate); err != nil {
		return "", err
	}

	GetLogger().Info("recording saved",
		logger.String("path", path),
		logger.Int("samples", len(samples)),
		logger.Float64("duration_s", float64(len(samples))/float64(sampleRate)))
	return path, nil
}

// WriteWAV encodes samples into a new file at path, creating parent
// directories as needed
func WriteWAV(path string, samples []float32, sampleRate uint32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fileError(err, path, "create_dir")
	}

	out, err := os.Create(path) //nolint:gosec // path built from configured directory
	if err != nil {
		return fileError(err, path, "create_file")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			GetLogger().Warn("failed to close recording", logger.String("path", path), logger.Error(cerr))
		}
	}()

	enc := wav.NewEncoder(out, int(sampleRate), bitDepth, numChannels, pcmFormat)
	buf := &audio.IntBuffer{
		Data:           capture.Float32ToS16(samples),
		Format:         &audio.Format{SampleRate: int(sampleRate), NumChannels: numChannels},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fileError(err, path, "encode_wav")
	}
	if err := enc.Close(); err != nil {
		return fileError(err, path, "finalize_wav")
	}
	return nil
}

// ReadWAV decodes a PCM WAV file into mono float32 samples. Multi-channel
// files are down-mixed by averaging.
func ReadWAV(path string) ([]float32, uint32, error) {
	f, err := os.Open(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, 0, fileError(err, path, "open_wav")
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, 0, errors.New(fmt.Errorf("%w: %s is not a valid WAV file", capture.ErrUnsupportedFormat, path)).
			Component("recording").
			Category(errors.CategoryFileParsing).
			Build()
	}

	var scale float64
	switch dec.BitDepth {
	case 16:
		scale = s16Scale
	case 24:
		scale = 8388608.0
	case 32:
		scale = 2147483648.0
	default:
		return nil, 0, errors.New(fmt.Errorf("%w: bit depth %d", capture.ErrUnsupportedFormat, dec.BitDepth)).
			Component("recording").
			Category(errors.CategoryFileParsing).
			Build()
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fileError(err, path, "decode_wav")
	}

	channels := max(int(dec.NumChans), 1)
	samples := make([]float32, len(buf.Data)/channels)
	for i := range samples {
		var sum int
		for c := range channels {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = float32(float64(sum) / float64(channels) / scale)
	}
	return samples, dec.SampleRate, nil
}

func fileError(err error, path, operation string) error {
	return errors.FileError(err, path, 0).
		Component("recording").
		Context("operation", operation).
		Build()
}

// GetLogger returns the recording module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("recording")
}
