package capture

import (
	"encoding/binary"
	"math"
)

const (
	bytesPerS16 = 2
	s16Scale    = 32768.0
)

// appendS16AsFloat32 decodes little-endian signed 16-bit PCM into dst,
// scaling to [-1, 1). A trailing odd byte is ignored.
func appendS16AsFloat32(dst []float32, pcm []byte) []float32 {
	n := len(pcm) / bytesPerS16
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerS16:]))
		dst = append(dst, float32(v)/s16Scale)
	}
	return dst
}

// Float32ToS16 converts normalized samples to signed 16-bit integers,
// clamping out-of-range input. Used for WAV export.
func Float32ToS16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * s16Scale)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int(v)
	}
	return out
}
