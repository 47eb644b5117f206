package stimqueue

import (
	"context"
	"log/slog"
	"math"

	"github.com/tphakala/audition-go/internal/errors"
)

// PopBuffer fills exactly n output samples, interleaving trial waveforms
// with intertrial silence. When the ordering policy runs out of keys the
// remainder is padded with silence and the queue is flagged empty. With
// decrement true, dispatching a trial decrements its token's counter.
func (q *Queue) PopBuffer(n int, decrement bool) ([]float64, error) {
	out := make([]float64, 0, n)
	remaining := n
	for remaining > 0 {
		chunk, err := q.popChunk(remaining, decrement)
		switch {
		case err == nil:
		case errors.Is(err, ErrQueueEmpty):
			q.logger.Debug("queue is empty, padding with silence",
				"samples", remaining)
			chunk = make([]float64, remaining)
			if !q.empty {
				q.metrics.Empty()
			}
			q.empty = true
		default:
			return nil, err
		}
		remaining -= len(chunk)
		q.samples += int64(len(chunk))
		out = append(out, chunk...)
	}
	q.metrics.Generated(n)
	if q.logger.Enabled(context.TODO(), slog.LevelDebug) {
		q.logger.Debug("generated samples", "count", n, "total", q.samples)
	}
	return out, nil
}

// popChunk produces up to n samples according to the dispatch precedence:
// paused silence, active source, intertrial delay, then next trial setup.
func (q *Queue) popChunk(n int, decrement bool) ([]float64, error) {
	if q.paused {
		return make([]float64, n), nil
	}

	if q.source != nil {
		return q.readSource(n), nil
	}

	if q.delaySamples > 0 {
		d := q.delaySamples
		if d > n {
			d = n
		}
		q.delaySamples -= d
		return make([]float64, d), nil
	}

	if err := q.NextTrial(decrement); err != nil {
		return nil, err
	}
	return nil, nil
}

// readSource pulls up to n samples from the active trial waveform and
// clears the source once it is exhausted.
func (q *Queue) readSource(n int) []float64 {
	src := q.source
	if src.gen != nil {
		if r := src.gen.Remaining(); r < n {
			n = r
		}
		w := src.gen.Next(n)
		if src.gen.Complete() {
			q.source = nil
		}
		return w
	}

	if n >= len(src.arr) {
		w := src.arr
		q.source = nil
		return w
	}
	w := src.arr[:n]
	src.arr = src.arr[n:]
	return w
}

// NextTrial selects the next token, arms its waveform as the active
// source, draws the next intertrial delay and emits the added event. It
// takes immediate effect: an in-progress trial will not finish.
func (q *Queue) NextTrial(decrement bool) error {
	key, err := q.policy.nextKey()
	if err != nil {
		return err
	}
	tok := q.data[key]
	if decrement {
		if _, err := q.policy.decrementKey(key, 1); err != nil {
			return err
		}
	}

	if tok.Source.IsGenerator() {
		gen := tok.Source.Generator()
		gen.Reset()
		q.source = &activeSource{gen: gen}
	} else {
		q.source = &activeSource{arr: tok.Source.Array()}
	}

	delay, ok := tok.Delays.Next()
	if !ok {
		return errors.Newf("token %s: %w", key.String(), ErrDelaysExhausted).
			Component(ComponentStimQueue).
			Category(errors.CategoryState).
			Build()
	}
	q.delaySamples = int(math.Round(delay * q.fs))
	if q.delaySamples < 0 {
		return errors.Newf("delay %v s: %w", delay, ErrInvalidDelay).
			Component(ComponentStimQueue).
			Category(errors.CategoryValidation).
			Context("key", key.String()).
			Build()
	}

	rec := TrialRecord{
		T0:        q.t0 + float64(q.samples)/q.fs,
		Duration:  tok.Duration,
		Key:       key,
		Metadata:  tok.Metadata,
		Decrement: decrement,
	}
	q.generated = append(q.generated, rec)
	q.metrics.Dispatched()
	q.notify(EventAdded, rec)
	return nil
}

// Pause suspends dispatch; PopBuffer emits silence until Resume.
func (q *Queue) Pause() {
	q.logger.Debug("pausing queue")
	q.paused = true
}

// PauseAt suspends dispatch and rolls the stream back to time t: trials
// overlapping t are cancelled, their counters requeued, and the sample
// pointer rewound so playback can resume from t.
func (q *Queue) PauseAt(t float64) error {
	q.logger.Debug("pausing queue", "t", t)
	q.paused = true
	q.Cancel(t, 0)
	q.Requeue(t)
	return q.RewindSamples(t)
}

// Cancel emits removed events for every dispatched trial still playing at
// or after t, in reverse dispatch order. If a trial waveform is active its
// automatic decrement is undone, its key is returned to the front of the
// ordering if exhaustion had removed it, and the source cleared. The
// pending intertrial gap is replaced with delay seconds.
func (q *Queue) Cancel(t, delay float64) {
	cancelled := 0
	for i := len(q.generated) - 1; i >= 0; i-- {
		rec := q.generated[i]
		if rec.T0+rec.Duration > t {
			q.notify(EventRemoved, rec)
			cancelled++
		}
	}
	q.metrics.Cancelled(cancelled)

	if q.source != nil {
		// Undo the automatic decrement for the in-flight trial and clear
		// its flag so Requeue does not credit it a second time.
		last := &q.generated[len(q.generated)-1]
		if last.Decrement {
			q.data[last.Key].Trials++
			last.Decrement = false
			if !q.inOrdering(last.Key) {
				q.ordering = append([]Key{last.Key}, q.ordering...)
			}
		}
		q.source = nil
	}

	q.delaySamples = int(math.Round(delay * q.fs))
}

// Requeue adds trial counts back for every dispatched trial still playing
// at or after t whose counter was auto-decremented. Keys that have left the
// ordering are reinserted at the front, preserving a coherent forward
// order.
func (q *Queue) Requeue(t float64) {
	var toRequeue []Key
	for i := len(q.generated) - 1; i >= 0; i-- {
		rec := q.generated[i]
		if rec.T0+rec.Duration <= t {
			continue
		}
		if rec.Decrement {
			toRequeue = append(toRequeue, rec.Key)
		}
	}

	// toRequeue runs from last to first in time, so a key missing from
	// the ordering goes to position 0.
	for _, key := range toRequeue {
		if !q.inOrdering(key) {
			q.ordering = append([]Key{key}, q.ordering...)
		}
	}

	counts := make(map[Key]int)
	for _, key := range toRequeue {
		counts[key]++
	}
	for key, count := range counts {
		q.logger.Debug("requeueing trials", "key", key.String(), "count", count)
		q.data[key].Trials += count
	}
}

// RewindSamples moves the sample pointer back to time t. Rewinding past
// the last generated sample or before the queue start fails.
func (q *Queue) RewindSamples(t float64) error {
	newSample := q.toSamples(t) - q.toSamples(q.t0)
	q.logger.Debug("rewinding queue",
		"current_sample", q.samples,
		"new_sample", newSample)
	if newSample > q.samples {
		return errors.Newf("requested %.3f s, last sample was %.3f s: %w",
			t, q.Timestamp(), ErrRewindPastEnd).
			Component(ComponentStimQueue).
			Category(errors.CategoryState).
			Build()
	}
	if newSample < 0 {
		return errors.Newf("requested %.3f s precedes queue start: %w", t, ErrRewindPastEnd).
			Component(ComponentStimQueue).
			Category(errors.CategoryState).
			Build()
	}
	q.samples = newSample
	return nil
}

// Resume clears the paused flag; dispatch continues from the current
// sample pointer.
func (q *Queue) Resume() {
	q.logger.Debug("resuming queue", "t", q.Timestamp())
	q.paused = false
}

// ResumeAt rewinds to time t and resumes.
func (q *Queue) ResumeAt(t float64) error {
	if err := q.RewindSamples(t); err != nil {
		return err
	}
	q.paused = false
	return nil
}
