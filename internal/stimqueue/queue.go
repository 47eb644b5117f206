// Package stimqueue implements the stimulus token queue: token storage,
// ordering policies deciding which token plays next, and the sample
// dispatch engine that turns queued tokens into a continuous output
// stream with sample-accurate trial timing.
//
// Architecture overview:
//
//	Token store + ordering  ->  ordering policy (next key)
//	                        ->  dispatch engine (PopBuffer)
//	                        ->  added/removed/decrement events
//
// The queue is driven from a single goroutine (the audio output side).
// Cross-thread delivery of trial events belongs to the listeners, see the
// epochs package adapters.
package stimqueue

import (
	"log/slog"
	"maps"
	"math"

	"github.com/google/uuid"
	"github.com/tphakala/audition-go/internal/errors"
	"github.com/tphakala/audition-go/internal/logging"
	"github.com/tphakala/audition-go/internal/observability/metrics"
	"github.com/tphakala/audition-go/internal/waveform"
)

// Key uniquely identifies a queued token. Keys are opaque 128-bit values;
// equality is the only contract.
type Key = uuid.UUID

// Token is a stimulus definition plus trial bookkeeping.
type Token struct {
	Source          waveform.Source
	Trials          int // remaining trials, decremented on dispatch
	RequestedTrials int // immutable after insertion
	Delays          waveform.DelaySeq
	Duration        float64 // seconds
	Metadata        map[string]any
}

// TrialRecord describes one dispatched trial. Records are values; copies
// flow to every connected listener.
type TrialRecord struct {
	T0        float64 // seconds, absolute to acquisition start
	Duration  float64 // seconds
	Key       Key
	Metadata  map[string]any
	Decrement bool // whether dispatch decremented the trial counter
}

// Event names a queue notification stream.
type Event string

const (
	EventAdded     Event = "added"
	EventRemoved   Event = "removed"
	EventDecrement Event = "decrement"
)

// TokenSpec carries the parameters of one token insertion. Delays nil
// means no intertrial gap; Duration zero derives the duration from the
// source.
type TokenSpec struct {
	Source   waveform.Source
	Trials   int
	Delays   waveform.DelaySeq
	Duration float64
	Metadata map[string]any
}

// activeSource is the trial waveform currently being streamed, in either
// generator or array mode.
type activeSource struct {
	gen waveform.Generator
	arr []float64
}

// Queue stores tokens, applies an ordering policy and dispatches samples.
type Queue struct {
	fs      float64
	logger  *slog.Logger
	metrics *metrics.Stimulus

	data      map[Key]*Token
	ordering  []Key
	notifiers map[Event][]func(TrialRecord)

	policy policy

	// dispatch state
	source       *activeSource
	samples      int64 // total samples generated
	delaySamples int   // intertrial silence still owed
	paused       bool
	empty        bool
	t0           float64 // queue start relative to acquisition start, seconds
	generated    []TrialRecord
}

func newQueue(fs float64) *Queue {
	logger := logging.ForService("stimqueue")
	if logger == nil {
		logger = slog.Default().With("service", "stimqueue")
	}
	return &Queue{
		fs:     fs,
		logger: logger,
		data:   make(map[Key]*Token),
		notifiers: map[Event][]func(TrialRecord){
			EventAdded:     nil,
			EventRemoved:   nil,
			EventDecrement: nil,
		},
	}
}

// SetMetrics attaches dispatch metrics. Nil disables instrumentation.
func (q *Queue) SetMetrics(m *metrics.Stimulus) {
	q.metrics = m
}

// SampleRate returns the output sample rate.
func (q *Queue) SampleRate() float64 { return q.fs }

// Timestamp returns the current queue time in seconds relative to the
// queue start.
func (q *Queue) Timestamp() float64 {
	return float64(q.samples) / q.fs
}

// SetT0 sets the queue start time relative to acquisition start.
func (q *Queue) SetT0(t0 float64) { q.t0 = t0 }

// IsEmpty reports whether dispatch has run out of tokens at least once.
func (q *Queue) IsEmpty() bool { return q.empty }

// toSamples converts seconds to a sample count. Every time conversion in
// this package goes through here so rounding stays consistent.
func (q *Queue) toSamples(t float64) int64 {
	return int64(math.Round(t * q.fs))
}

func (q *Queue) addToken(spec TokenSpec) (Key, error) {
	if spec.Source.IsZero() {
		return Key{}, errors.Newf("token source must not be empty").
			Component(ComponentStimQueue).
			Category(errors.CategoryValidation).
			Build()
	}
	duration := spec.Duration
	if duration == 0 {
		var err error
		duration, err = spec.Source.Duration(q.fs)
		if err != nil {
			return Key{}, err
		}
	}
	delays := spec.Delays
	if delays == nil {
		delays = waveform.CycleDelays(0)
	}
	key := uuid.New()
	q.data[key] = &Token{
		Source:          spec.Source,
		Trials:          spec.Trials,
		RequestedTrials: spec.Trials,
		Delays:          delays,
		Duration:        duration,
		Metadata:        spec.Metadata,
	}
	return key, nil
}

// Insert adds a token at the front of the ordering.
func (q *Queue) Insert(spec TokenSpec) (Key, error) {
	key, err := q.addToken(spec)
	if err != nil {
		return Key{}, err
	}
	q.ordering = append([]Key{key}, q.ordering...)
	return key, nil
}

// Append adds a token at the back of the ordering.
func (q *Queue) Append(spec TokenSpec) (Key, error) {
	key, err := q.addToken(spec)
	if err != nil {
		return Key{}, err
	}
	q.ordering = append(q.ordering, key)
	q.policy.appended(key)
	return key, nil
}

// ExtendSpec carries the parameters of a bulk append. Each non-source
// field is either length one (broadcast to every source), length
// len(Sources), or nil for the defaults.
type ExtendSpec struct {
	Sources   []waveform.Source
	Trials    []int
	Delays    []waveform.DelaySeq
	Durations []float64
	Metadata  []map[string]any
}

func extendParam[T any](name string, vals []T, n int) (func(int) T, error) {
	switch len(vals) {
	case 0:
		var zero T
		return func(int) T { return zero }, nil
	case 1:
		return func(int) T { return vals[0] }, nil
	case n:
		return func(i int) T { return vals[i] }, nil
	default:
		return nil, errors.Newf("%s must be a scalar or a sequence of length %d", name, n).
			Component(ComponentStimQueue).
			Category(errors.CategoryValidation).
			Context("parameter", name).
			Build()
	}
}

// Extend appends one token per source, broadcasting scalar parameters.
func (q *Queue) Extend(spec ExtendSpec) ([]Key, error) {
	n := len(spec.Sources)
	trialAt, err := extendParam("trials", spec.Trials, n)
	if err != nil {
		return nil, err
	}
	delayAt, err := extendParam("delays", spec.Delays, n)
	if err != nil {
		return nil, err
	}
	durationAt, err := extendParam("duration", spec.Durations, n)
	if err != nil {
		return nil, err
	}
	metadataAt, err := extendParam("metadata", spec.Metadata, n)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, n)
	for i, source := range spec.Sources {
		key, err := q.Append(TokenSpec{
			Source:   source,
			Trials:   trialAt(i),
			Delays:   delayAt(i),
			Duration: durationAt(i),
			Metadata: metadataAt(i),
		})
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Connect registers a callback for the named event stream.
func (q *Queue) Connect(event Event, cb func(TrialRecord)) error {
	if _, ok := q.notifiers[event]; !ok {
		return errors.Newf("event %q not valid: %w", string(event), ErrUnknownEvent).
			Component(ComponentStimQueue).
			Category(errors.CategoryValidation).
			Build()
	}
	q.notifiers[event] = append(q.notifiers[event], cb)
	return nil
}

// notify delivers rec to every listener of event. Listener panics are
// isolated so one bad listener cannot break notification to the rest.
func (q *Queue) notify(event Event, rec TrialRecord) {
	for _, cb := range q.notifiers[event] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("queue listener panicked",
						"event", string(event),
						"key", rec.Key.String(),
						"panic", r)
				}
			}()
			cb(rec)
		}()
	}
}

// CountFactories returns the number of keys in the ordering.
func (q *Queue) CountFactories() int { return len(q.ordering) }

// CountTrials returns the number of remaining trials across all tokens.
func (q *Queue) CountTrials() int { return q.policy.countTrials() }

// CountRequestedTrials returns the total trials requested across all tokens.
func (q *Queue) CountRequestedTrials() int {
	total := 0
	for _, tok := range q.data {
		total += tok.RequestedTrials
	}
	return total
}

// RemainingTrials returns the remaining trials for key.
func (q *Queue) RemainingTrials(key Key) (int, error) {
	tok, ok := q.data[key]
	if !ok {
		return 0, unknownKeyErr(key)
	}
	return tok.Trials, nil
}

// MaxDuration returns the longest token duration in the queue.
func (q *Queue) MaxDuration() float64 {
	maxDur := 0.0
	for _, tok := range q.data {
		if tok.Duration > maxDur {
			maxDur = tok.Duration
		}
	}
	return maxDur
}

// Info returns a copy of the token stored under key. The source is shared;
// metadata is copied.
func (q *Queue) Info(key Key) (Token, error) {
	tok, ok := q.data[key]
	if !ok {
		return Token{}, unknownKeyErr(key)
	}
	cp := *tok
	if tok.Metadata != nil {
		cp.Metadata = make(map[string]any, len(tok.Metadata))
		maps.Copy(cp.Metadata, tok.Metadata)
	}
	return cp, nil
}

// ClosestKey returns the key of the most recently dispatched trial with
// t0 <= t, if any.
func (q *Queue) ClosestKey(t float64) (Key, bool) {
	for i := len(q.generated) - 1; i >= 0; i-- {
		if q.generated[i].T0 <= t {
			return q.generated[i].Key, true
		}
	}
	return Key{}, false
}

// DecrementKey removes n trials from key. Returns true once the token is
// exhausted; the exact exhaustion rule depends on the ordering policy.
func (q *Queue) DecrementKey(key Key, n int) (bool, error) {
	return q.policy.decrementKey(key, n)
}

// RemoveKey removes key from the ordering. Token data is kept so trial
// records remain introspectable.
func (q *Queue) RemoveKey(key Key) error {
	if !q.removeFromOrdering(key) {
		return unknownKeyErr(key)
	}
	return nil
}

func (q *Queue) removeFromOrdering(key Key) bool {
	for i, k := range q.ordering {
		if k == key {
			q.ordering = append(q.ordering[:i], q.ordering[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) inOrdering(key Key) bool {
	for _, k := range q.ordering {
		if k == key {
			return true
		}
	}
	return false
}

func unknownKeyErr(key Key) error {
	return errors.Newf("%s: %w", key.String(), ErrKeyNotInQueue).
		Component(ComponentStimQueue).
		Category(errors.CategoryNotFound).
		Context("key", key.String()).
		Build()
}

// defaultDecrement is the base exhaustion rule: remove the key from the
// ordering once its trials reach zero.
func (q *Queue) defaultDecrement(key Key, n int) (bool, error) {
	if !q.inOrdering(key) {
		return false, unknownKeyErr(key)
	}
	tok := q.data[key]
	tok.Trials -= n
	if tok.Trials <= 0 {
		q.removeFromOrdering(key)
		return true, nil
	}
	q.notify(EventDecrement, TrialRecord{Key: key})
	return false, nil
}

// sumTrials is the base remaining-trial count.
func (q *Queue) sumTrials() int {
	total := 0
	for _, tok := range q.data {
		total += tok.Trials
	}
	return total
}

// sumTrialsClamped counts remaining trials with negative counters clamped
// to zero, used by policies that let counters go negative.
func (q *Queue) sumTrialsClamped() int {
	total := 0
	for _, tok := range q.data {
		if tok.Trials > 0 {
			total += tok.Trials
		}
	}
	return total
}
