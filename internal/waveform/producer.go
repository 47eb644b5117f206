// Package waveform provides the sample producer contract used by the
// stimulus queue: incremental generators, prebuilt sample arrays, and lazy
// intertrial delay sequences.
package waveform

import (
	"math"

	"github.com/tphakala/audition-go/internal/errors"
)

// Unbounded is returned from Remaining by generators with no fixed length.
const Unbounded = math.MaxInt

// Generator produces stimulus samples incrementally. Next may return fewer
// than n samples when nearing completion; calling Next after Complete
// reports true is undefined. Reset restarts generation from the first
// sample.
type Generator interface {
	Reset()
	Next(n int) []float64
	Remaining() int
	Complete() bool
	Duration() float64
}

// Source is a stimulus sample producer, either a Generator or a prebuilt
// sample array. The variant is fixed at construction time.
type Source struct {
	gen Generator
	arr []float64
}

// FromGenerator wraps a generator as a Source.
func FromGenerator(g Generator) Source {
	return Source{gen: g}
}

// FromArray wraps a prebuilt sample buffer as a Source. The samples are
// copied so later mutation of the argument cannot corrupt queued stimuli.
func FromArray(samples []float64) Source {
	arr := make([]float64, len(samples))
	copy(arr, samples)
	return Source{arr: arr}
}

// IsGenerator reports whether the source is generator-backed.
func (s Source) IsGenerator() bool { return s.gen != nil }

// Generator returns the wrapped generator, nil for array sources.
func (s Source) Generator() Generator { return s.gen }

// Array returns the prebuilt samples, nil for generator sources.
func (s Source) Array() []float64 { return s.arr }

// IsZero reports whether the source holds neither variant.
func (s Source) IsZero() bool { return s.gen == nil && s.arr == nil }

// Duration returns the source duration in seconds. Array duration derives
// from the sample count; unbounded generators have no derivable duration.
func (s Source) Duration(fs float64) (float64, error) {
	if s.gen != nil {
		d := s.gen.Duration()
		if math.IsInf(d, 1) {
			return 0, errors.Newf("generator has unbounded duration, specify one explicitly").
				Component("waveform").
				Category(errors.CategoryValidation).
				Build()
		}
		return d, nil
	}
	if fs <= 0 {
		return 0, errors.Newf("invalid sample rate %v", fs).
			Component("waveform").
			Category(errors.CategoryValidation).
			Build()
	}
	return float64(len(s.arr)) / fs, nil
}

// DelaySeq is a lazy sequence of intertrial delays in seconds, possibly
// infinite and non-restartable. Next returns false once the sequence is
// exhausted.
type DelaySeq interface {
	Next() (float64, bool)
}

type cycleDelays struct {
	vals []float64
	i    int
}

func (c *cycleDelays) Next() (float64, bool) {
	v := c.vals[c.i%len(c.vals)]
	c.i++
	return v, true
}

// CycleDelays returns an infinite delay sequence cycling over vals.
// With no values the sequence yields zeros.
func CycleDelays(vals ...float64) DelaySeq {
	if len(vals) == 0 {
		vals = []float64{0}
	}
	return &cycleDelays{vals: append([]float64(nil), vals...)}
}

type sliceDelays struct {
	vals []float64
	i    int
}

func (s *sliceDelays) Next() (float64, bool) {
	if s.i >= len(s.vals) {
		return 0, false
	}
	v := s.vals[s.i]
	s.i++
	return v, true
}

// SliceDelays returns a finite delay sequence over vals. Once exhausted,
// further trial setup fails.
func SliceDelays(vals []float64) DelaySeq {
	return &sliceDelays{vals: append([]float64(nil), vals...)}
}
