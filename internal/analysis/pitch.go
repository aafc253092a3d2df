package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

const (
	// subharmonicRatio is the fraction of the peak magnitude a sub-harmonic
	// needs to be taken as the fundamental
	subharmonicRatio = 0.5
	// minVoicedRatio is the fraction of frames that must be voiced for the
	// window to report a pitch
	minVoicedRatio = 0.25
	// logEpsilon keeps log-magnitude interpolation finite
	logEpsilon = 1e-12
)

// PitchDetector estimates the dominant fundamental over a window using
// Hann-windowed short-time FFT frames. It is not safe for concurrent use.
type PitchDetector struct {
	sampleRate float64
	fftSize    int
	hop        int
	minHz      float64
	maxHz      float64
	minBin     int
	maxBin     int
	noiseFloor float64

	fft    *fourier.FFT
	window []float64
	gain   float64 // sum(window)/2, scales |X| to sinusoid amplitude

	frame  []float64
	coeffs []complex128
	mags   []float64
	freqs  []float64
}

// NewPitchDetector builds a detector; fftSize should be a power of two
func NewPitchDetector(sampleRate, fftSize int, minHz, maxHz, noiseFloor float64) *PitchDetector {
	window := make([]float64, fftSize)
	var sum float64
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
		sum += window[i]
	}

	binHz := float64(sampleRate) / float64(fftSize)
	half := fftSize / 2

	return &PitchDetector{
		sampleRate: float64(sampleRate),
		fftSize:    fftSize,
		hop:        max(fftSize/4, 1),
		minHz:      minHz,
		maxHz:      maxHz,
		minBin:     max(int(math.Floor(minHz/binHz)), 1),
		maxBin:     min(int(math.Ceil(maxHz/binHz)), half-1),
		noiseFloor: noiseFloor,
		fft:        fourier.NewFFT(fftSize),
		window:     window,
		gain:       sum / 2,
		frame:      make([]float64, fftSize),
		coeffs:     make([]complex128, half+1),
		mags:       make([]float64, half+1),
	}
}

// Estimate analyzes samples frame by frame and aggregates the voiced frames
func (d *PitchDetector) Estimate(samples []float32) PitchEstimate {
	d.freqs = d.freqs[:0]
	frames := 0

	for start := 0; start+d.fftSize <= len(samples); start += d.hop {
		frames++
		if hz, ok := d.detectFrame(samples[start : start+d.fftSize]); ok {
			d.freqs = append(d.freqs, hz)
		}
	}

	if frames == 0 || float64(len(d.freqs))/float64(frames) < minVoicedRatio {
		return PitchEstimate{}
	}

	hz := stat.Mean(d.freqs, nil)
	return PitchEstimate{
		FrequencyHz: hz,
		Voiced:      true,
		Stability:   stabilityOf(d.freqs),
		Confidence:  float64(len(d.freqs)) / float64(frames),
		Note:        NoteLabel(hz),
	}
}

// detectFrame returns the fundamental of one FFT frame, or false when the
// in-band peak is under the noise floor.
func (d *PitchDetector) detectFrame(samples []float32) (float64, bool) {
	for i, s := range samples {
		d.frame[i] = float64(s) * d.window[i]
	}
	d.coeffs = d.fft.Coefficients(d.coeffs, d.frame)
	for i, c := range d.coeffs {
		d.mags[i] = cmplx.Abs(c) / d.gain
	}

	peak := -1
	for k := d.minBin; k <= d.maxBin; k++ {
		if d.mags[k] < d.mags[k-1] || d.mags[k] < d.mags[k+1] {
			continue
		}
		if peak < 0 || d.mags[k] > d.mags[peak] {
			peak = k
		}
	}
	if peak < 0 || d.mags[peak] < d.noiseFloor {
		return 0, false
	}

	hz := d.refine(peak)

	// Prefer a sub-harmonic with substantial energy to avoid octave errors
	for _, div := range []float64{3, 2} {
		sub := hz / div
		if sub < d.minHz {
			continue
		}
		k := d.localPeak(sub)
		if k > 0 && d.mags[k] >= subharmonicRatio*d.mags[peak] {
			hz = d.refine(k)
			break
		}
	}

	tolerance := d.sampleRate / float64(d.fftSize) / 2
	if hz < d.minHz-tolerance || hz > d.maxHz+tolerance {
		return 0, false
	}
	return hz, true
}

// localPeak finds a local maximum within one bin of the bin nearest hz,
// or -1.
func (d *PitchDetector) localPeak(hz float64) int {
	center := int(math.Round(hz * float64(d.fftSize) / d.sampleRate))
	best := -1
	for k := max(center-1, 1); k <= min(center+1, len(d.mags)-2); k++ {
		if d.mags[k] < d.mags[k-1] || d.mags[k] < d.mags[k+1] {
			continue
		}
		if best < 0 || d.mags[k] > d.mags[best] {
			best = k
		}
	}
	return best
}

// refine interpolates the peak position with a parabola through the log
// magnitudes of bin k and its neighbours.
func (d *PitchDetector) refine(k int) float64 {
	a := math.Log(d.mags[k-1] + logEpsilon)
	b := math.Log(d.mags[k] + logEpsilon)
	c := math.Log(d.mags[k+1] + logEpsilon)

	offset := 0.0
	if denom := a - 2*b + c; denom != 0 {
		offset = 0.5 * (a - c) / denom
	}
	offset = math.Max(-0.5, math.Min(0.5, offset))

	return (float64(k) + offset) * d.sampleRate / float64(d.fftSize)
}
