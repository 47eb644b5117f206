package epochs

import (
	"github.com/google/uuid"
)

// Request identifies an epoch to capture. (T0, Key) is the identity used
// for matching, cancellation and deduplication.
type Request struct {
	T0       float64 // seconds, absolute to acquisition start
	Key      uuid.UUID
	Duration float64 // seconds; used when the extractor epoch size is zero
	Metadata map[string]any
}

// Epoch is one captured window of the acquisition stream. Signal is nil
// when the epoch start had already left the lookback window (a miss).
type Epoch struct {
	Signal []float64
	Info   Request
}

// Missed reports whether the epoch was missed rather than captured.
func (e Epoch) Missed() bool { return e.Signal == nil }

type outcome int

const (
	captureContinue outcome = iota
	captureComplete
	captureMissed
)

// captureState tracks one in-flight epoch across chunk boundaries.
type captureState struct {
	t0Samples int64 // next sample index to capture
	remaining int   // samples still needed
	chunks    [][]float64
	info      Request
}

func newCaptureState(t0Samples int64, epochSamples int, info Request) *captureState {
	return &captureState{
		t0Samples: t0Samples,
		remaining: epochSamples,
		info:      info,
	}
}

// onChunk advances the capture with one chunk whose first sample has
// absolute index tlb. Complete and missed are terminal; the returned
// Epoch is only meaningful for terminal outcomes.
func (c *captureState) onChunk(tlb int64, data []float64) (outcome, Epoch) {
	samples := int64(len(data))

	switch {
	case c.t0Samples < tlb:
		// The epoch start has already passed unrecoverably.
		return captureMissed, Epoch{Signal: nil, Info: c.info}

	case c.t0Samples <= tlb+samples:
		// The start is inside (or exactly at the end of) this chunk.
		i := c.t0Samples - tlb
		d := int64(c.remaining)
		if avail := samples - i; avail < d {
			d = avail
		}
		c.chunks = append(c.chunks, data[i:i+d])
		c.t0Samples += d
		c.remaining -= int(d)

		if c.remaining == 0 {
			return captureComplete, Epoch{Signal: c.concat(), Info: c.info}
		}
		return captureContinue, Epoch{}

	default:
		// Start is after this chunk; wait.
		return captureContinue, Epoch{}
	}
}

// concat joins the accumulated slices into one signal. The result is
// always non-nil so zero-length epochs stay distinguishable from misses.
func (c *captureState) concat() []float64 {
	total := 0
	for _, ch := range c.chunks {
		total += len(ch)
	}
	signal := make([]float64, 0, total)
	for _, ch := range c.chunks {
		signal = append(signal, ch...)
	}
	return signal
}
