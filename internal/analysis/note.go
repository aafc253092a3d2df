package analysis

import (
	"math"
	"strconv"
)

// ReferenceA4 is the tuning reference in Hz
const ReferenceA4 = 440.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteLabel names the equal-tempered note nearest hz, e.g. "A4". It returns
// an empty string for non-positive input.
func NoteLabel(hz float64) string {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return ""
	}

	// MIDI 69 is A4
	midi := int(math.Round(69 + 12*math.Log2(hz/ReferenceA4)))
	octave := midi/12 - 1
	idx := midi % 12
	if idx < 0 {
		idx += 12
		octave--
	}
	return noteNames[idx] + strconv.Itoa(octave)
}

// Cents returns the pitch difference of observed relative to reference
func Cents(observed, reference float64) float64 {
	return 1200 * math.Log2(observed/reference)
}
