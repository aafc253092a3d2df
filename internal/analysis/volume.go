package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// FloorDB maps to a normalized volume of 0
	FloorDB = -60.0
	// CeilingDB maps to a normalized volume of 1
	CeilingDB = 0.0

	energySubFrames = 10
)

// Volume computes RMS, dBFS and the normalized level of samples
func Volume(samples []float32) VolumeEstimate {
	if len(samples) == 0 {
		return VolumeEstimate{DB: FloorDB, Level: LevelVeryLow}
	}

	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	db := FloorDB
	if rms > 0 {
		db = max(20*math.Log10(rms), FloorDB)
	}

	normalized := clamp01((db - FloorDB) / (CeilingDB - FloorDB))

	return VolumeEstimate{
		RMS:        rms,
		DB:         db,
		Normalized: normalized,
		Level:      LevelFor(normalized),
	}
}

// LevelFor labels a normalized volume
func LevelFor(normalized float64) VolumeLevel {
	switch {
	case normalized < 0.1:
		return LevelVeryLow
	case normalized < 0.3:
		return LevelLow
	case normalized < 0.7:
		return LevelModerate
	case normalized < 0.9:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

// EnergyStability is 1 - CV of the mean energy of equal sub-frames of
// samples, clamped to [0,1]. Silence yields 0.
func EnergyStability(samples []float32) float64 {
	size := len(samples) / energySubFrames
	if size == 0 {
		return 0
	}

	energies := make([]float64, energySubFrames)
	for i := range energySubFrames {
		var e float64
		for _, s := range samples[i*size : (i+1)*size] {
			e += float64(s) * float64(s)
		}
		energies[i] = e / float64(size)
	}

	return stabilityOf(energies)
}

// stabilityOf returns 1 - stddev/mean clamped to [0,1]; 0 for a zero mean
func stabilityOf(values []float64) float64 {
	switch len(values) {
	case 0:
		return 0
	case 1:
		return 1
	}

	mean, std := stat.PopMeanStdDev(values, nil)
	if mean <= 0 {
		return 0
	}
	return clamp01(1 - std/mean)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
