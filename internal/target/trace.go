// Package target holds the reference melody a singer rehearses against and
// compares live pitch estimates with it.
package target

import (
	"cmp"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/vocalcoach/internal/errors"
	"github.com/tphakala/vocalcoach/internal/logger"
)

// Point is one sample of the target melody. Frequency 0 marks an unvoiced
// (rest) point.
type Point struct {
	Time       float64 `yaml:"time" json:"time"`             // seconds from the start of the passage
	Frequency  float64 `yaml:"frequency" json:"frequency"`   // Hz
	Confidence float64 `yaml:"confidence" json:"confidence"` // [0,1]
}

// Voiced reports whether the point carries a pitch
func (p Point) Voiced() bool { return p.Frequency > 0 }

// Trace is an immutable, time-sorted target melody
type Trace struct {
	points []Point
}

// NewTrace copies, validates and sorts points by time
func NewTrace(points []Point) (*Trace, error) {
	sorted := slices.Clone(points)
	for i, p := range sorted {
		if !isFinite(p.Time) || !isFinite(p.Frequency) || !isFinite(p.Confidence) {
			return nil, traceError("trace point %d is not finite", i)
		}
		if p.Time < 0 || p.Frequency < 0 {
			return nil, traceError("trace point %d has negative time or frequency", i)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Point) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return &Trace{points: sorted}, nil
}

// FromArrays builds a trace from parallel arrays. confidence may be nil,
// in which case voiced points get confidence 1.
func FromArrays(times, frequencies, confidence []float64) (*Trace, error) {
	if len(times) != len(frequencies) || (confidence != nil && len(confidence) != len(times)) {
		return nil, traceError("trace arrays differ in length: times=%d frequencies=%d confidence=%d",
			len(times), len(frequencies), len(confidence))
	}
	points := make([]Point, len(times))
	for i := range times {
		c := 1.0
		if confidence != nil {
			c = confidence[i]
		} else if frequencies[i] <= 0 {
			c = 0
		}
		points[i] = Point{Time: times[i], Frequency: frequencies[i], Confidence: c}
	}
	return NewTrace(points)
}

// Len is the number of points
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Points returns a copy of the points
func (t *Trace) Points() []Point {
	if t == nil {
		return nil
	}
	return slices.Clone(t.points)
}

// Duration is the time of the last point
func (t *Trace) Duration() float64 {
	if t.Len() == 0 {
		return 0
	}
	return t.points[len(t.points)-1].Time
}

// ExpectedAt resolves the target frequency at elapsed seconds. Between two
// voiced points the frequency is linearly interpolated; when a neighbour is
// unvoiced the nearest point is used. It returns false when the nearest
// point is further than maxGap seconds away or the target is unvoiced
// there. Points with confidence below minConfidence count as unvoiced.
func (t *Trace) ExpectedAt(elapsed, maxGap, minConfidence float64) (float64, bool) {
	if t.Len() == 0 {
		return 0, false
	}

	voiced := func(p Point) bool { return p.Voiced() && p.Confidence >= minConfidence }
	pts := t.points
	i, _ := slices.BinarySearchFunc(pts, elapsed, func(p Point, at float64) int {
		return cmp.Compare(p.Time, at)
	})

	switch {
	case i == 0:
		p := pts[0]
		return p.Frequency, voiced(p) && p.Time-elapsed <= maxGap
	case i == len(pts):
		p := pts[len(pts)-1]
		return p.Frequency, voiced(p) && elapsed-p.Time <= maxGap
	}

	prev, next := pts[i-1], pts[i]
	dPrev, dNext := elapsed-prev.Time, next.Time-elapsed
	if min(dPrev, dNext) > maxGap {
		return 0, false
	}

	if voiced(prev) && voiced(next) {
		span := next.Time - prev.Time
		if span <= 0 {
			return next.Frequency, true
		}
		frac := dPrev / span
		return prev.Frequency + frac*(next.Frequency-prev.Frequency), true
	}

	nearest := next
	if dPrev <= dNext {
		nearest = prev
	}
	if !voiced(nearest) {
		return 0, false
	}
	return nearest.Frequency, true
}

// traceFile accepts either parallel arrays or a list of points
type traceFile struct {
	Times       []float64 `yaml:"times"`
	Frequencies []float64 `yaml:"frequencies"`
	Confidence  []float64 `yaml:"confidence"`
	Points      []Point   `yaml:"points"`
}

// Parse decodes a trace from YAML or JSON. Accepted shapes are a mapping
// with times/frequencies/confidence arrays, a mapping with a points list,
// or a top-level list of [time, frequency, confidence] triples.
func Parse(data []byte) (*Trace, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.New(err).
			Component("target").
			Category(errors.CategoryFileParsing).
			Context("operation", "parse_trace").
			Build()
	}
	if len(root.Content) == 0 {
		return nil, traceError("trace is empty")
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var triples [][]float64
		if err := doc.Decode(&triples); err != nil {
			return nil, parseError(err)
		}
		points := make([]Point, len(triples))
		for i, tr := range triples {
			if len(tr) < 2 || len(tr) > 3 {
				return nil, traceError("trace entry %d must have 2 or 3 values, got %d", i, len(tr))
			}
			points[i] = Point{Time: tr[0], Frequency: tr[1], Confidence: 1}
			if len(tr) == 3 {
				points[i].Confidence = tr[2]
			}
		}
		return NewTrace(points)

	case yaml.MappingNode:
		var f traceFile
		if err := doc.Decode(&f); err != nil {
			return nil, parseError(err)
		}
		if len(f.Points) > 0 {
			return NewTrace(f.Points)
		}
		return FromArrays(f.Times, f.Frequencies, f.Confidence)
	}

	return nil, traceError("unsupported trace document")
}

// LoadTrace reads and parses a trace file
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path supplied by the operator
	if err != nil {
		return nil, errors.FileError(err, path, 0).
			Component("target").
			Context("operation", "read_trace").
			Build()
	}

	trace, err := Parse(data)
	if err != nil {
		return nil, err
	}

	GetLogger().Debug("target trace loaded",
		logger.String("path", path),
		logger.Int("points", trace.Len()),
		logger.Float64("duration_s", trace.Duration()))
	return trace, nil
}

func traceError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("target").
		Category(errors.CategoryTargetTrace).
		Build()
}

func parseError(err error) error {
	return errors.New(err).
		Component("target").
		Category(errors.CategoryFileParsing).
		Context("operation", "decode_trace").
		Build()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GetLogger returns the target module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("target")
}
