package waveform

import (
	"math"
)

// Silence is an unbounded constant-fill generator, useful as an envelope
// carrier and in tests.
type Silence struct {
	Fill float64
}

// NewSilence returns a generator yielding fill forever.
func NewSilence(fill float64) *Silence {
	return &Silence{Fill: fill}
}

func (s *Silence) Reset() {}

func (s *Silence) Next(n int) []float64 {
	out := make([]float64, n)
	if s.Fill != 0 {
		for i := range out {
			out[i] = s.Fill
		}
	}
	return out
}

func (s *Silence) Remaining() int    { return Unbounded }
func (s *Silence) Complete() bool    { return false }
func (s *Silence) Duration() float64 { return math.Inf(1) }

// Tone is an unbounded cosine generator. Generation is sample-accurate
// across Next calls: consecutive calls continue the phase exactly where the
// previous call stopped.
type Tone struct {
	fs        float64
	frequency float64
	amplitude float64
	phase     float64
	offset    int
}

// NewTone returns a cosine generator at the given sample rate, frequency in
// Hz, peak amplitude and starting phase in radians.
func NewTone(fs, frequency, amplitude, phase float64) *Tone {
	return &Tone{fs: fs, frequency: frequency, amplitude: amplitude, phase: phase}
}

func (t *Tone) Reset() {
	t.offset = 0
}

func (t *Tone) Next(n int) []float64 {
	out := make([]float64, n)
	w := 2 * math.Pi * t.frequency / t.fs
	for i := range out {
		out[i] = t.amplitude * math.Cos(w*float64(t.offset+i)+t.phase)
	}
	t.offset += n
	return out
}

func (t *Tone) Remaining() int    { return Unbounded }
func (t *Tone) Complete() bool    { return false }
func (t *Tone) Duration() float64 { return math.Inf(1) }

// Cos2Envelope applies a cosine-squared rise/fall envelope to an inner
// generator, bounding it to a fixed duration. Piecewise generation yields
// the same samples as generating the full waveform in one call.
type Cos2Envelope struct {
	fs       float64
	duration float64
	riseTime float64
	input    Generator
	offset   int
	total    int
}

// NewCos2Envelope wraps input with a cos² envelope of the given total
// duration and rise time, both in seconds.
func NewCos2Envelope(fs, duration, riseTime float64, input Generator) *Cos2Envelope {
	return &Cos2Envelope{
		fs:       fs,
		duration: duration,
		riseTime: riseTime,
		input:    input,
		total:    int(math.Round(duration * fs)),
	}
}

func (c *Cos2Envelope) Reset() {
	c.offset = 0
	c.input.Reset()
}

// envelope evaluates the cos² gain at time t seconds from waveform onset.
func (c *Cos2Envelope) envelope(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t < c.riseTime:
		s := math.Sin(2 * math.Pi * t / c.riseTime * 0.25)
		return s * s
	case t < c.duration-c.riseTime:
		return 1
	case t < c.duration:
		s := math.Sin(2*math.Pi*(t-(c.duration-c.riseTime))/c.riseTime*0.25 + math.Pi/2)
		return s * s
	default:
		return 0
	}
}

func (c *Cos2Envelope) Next(n int) []float64 {
	if n > c.total-c.offset {
		n = c.total - c.offset
	}
	if n <= 0 {
		return nil
	}
	out := c.input.Next(n)
	for i := range out {
		out[i] *= c.envelope(float64(c.offset+i) / c.fs)
	}
	c.offset += n
	return out
}

func (c *Cos2Envelope) Remaining() int    { return c.total - c.offset }
func (c *Cos2Envelope) Complete() bool    { return c.offset >= c.total }
func (c *Cos2Envelope) Duration() float64 { return c.duration }

// RampedTone is a convenience constructor for the common tone-burst
// stimulus: a cosine at frequency Hz shaped by a cos² envelope.
func RampedTone(fs, frequency, amplitude, duration, riseTime float64) *Cos2Envelope {
	return NewCos2Envelope(fs, duration, riseTime, NewTone(fs, frequency, amplitude, 0))
}
