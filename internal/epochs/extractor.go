// Package epochs extracts fixed-length windows from the acquisition
// sample stream, aligned to trial times announced by the stimulus queue.
// A bounded lookback buffer of recent chunks allows capture of epochs
// whose requests arrive after their start time has already played.
package epochs

import (
	"log/slog"
	"math"

	"code.hybscloud.com/lfq"
	"github.com/google/uuid"
	"github.com/tphakala/audition-go/internal/errors"
	"github.com/tphakala/audition-go/internal/logging"
	"github.com/tphakala/audition-go/internal/observability/metrics"
	"github.com/tphakala/audition-go/internal/stimqueue"
)

// Component identifier for epoch capture errors
const ComponentEpochs = "epochs"

// ErrDuplicateEpoch is returned when a request's (t0, key) identity is
// already being captured.
var ErrDuplicateEpoch = errors.Newf("duplicate epochs not supported").
	Component(ComponentEpochs).
	Category(errors.CategoryConflict).
	Build()

// defaultQueueCapacity bounds the request and removal queues.
const defaultQueueCapacity = 1024

// identity is the (t0, key) pair matching requests, removals and
// in-flight captures.
type identity struct {
	t0  float64
	key uuid.UUID
}

type chunkRec struct {
	tlb  int64
	data []float64
}

// Config parameterizes an Extractor.
type Config struct {
	FS           float64 // acquisition sample rate
	EpochSize    float64 // seconds; zero means use each request's own duration
	PoststimTime float64 // seconds appended to every epoch
	BufferSize   float64 // seconds of lookback for historical capture

	// Target consumes completed-epoch batches, one call per chunk that
	// finished at least one epoch. Misses are delivered on the same path
	// with a nil signal.
	Target func([]Epoch)

	// EmptyQueueCallback, if set, fires once when no requests remain and
	// no captures are in flight.
	EmptyQueueCallback func()

	// QueueCapacity bounds the request/removal queues; zero uses the
	// default.
	QueueCapacity int
}

// Extractor matches queued (t0, key) epoch requests against the incoming
// sample stream. It is driven from a single goroutine (the acquisition
// side); requests and removals cross from the stimulus side through
// lock-free SPSC queues.
type Extractor struct {
	fs            float64
	epochSize     float64
	poststim      float64
	bufferSamples int64
	target        func([]Epoch)
	emptyQueueCB  func()
	logger        *slog.Logger
	metrics       *metrics.Capture

	requests *lfq.SPSC[Request]
	removals *lfq.SPSC[Request]

	tlb      int64
	active   map[identity]*captureState
	order    []identity // insertion order of active captures
	lookback []chunkRec
	pending  []Epoch
}

// New creates an Extractor from cfg.
func New(cfg Config) *Extractor {
	logger := logging.ForService("epochs")
	if logger == nil {
		logger = slog.Default().With("service", "epochs")
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Extractor{
		fs:            cfg.FS,
		epochSize:     cfg.EpochSize,
		poststim:      cfg.PoststimTime,
		bufferSamples: int64(math.Round(cfg.BufferSize * cfg.FS)),
		target:        cfg.Target,
		emptyQueueCB:  cfg.EmptyQueueCallback,
		logger:        logger,
		requests:      lfq.NewSPSC[Request](capacity),
		removals:      lfq.NewSPSC[Request](capacity),
		active:        make(map[identity]*captureState),
	}
}

// SetMetrics attaches capture metrics. Nil disables instrumentation.
func (e *Extractor) SetMetrics(m *metrics.Capture) {
	e.metrics = m
}

// QueueRequest enqueues an epoch request from the producer side.
func (e *Extractor) QueueRequest(r Request) error {
	if err := e.requests.Enqueue(&r); err != nil {
		return errors.Newf("epoch request queue full: %w", err).
			Component(ComponentEpochs).
			Category(errors.CategoryState).
			Context("key", r.Key.String()).
			Build()
	}
	return nil
}

// QueueRemoval enqueues a cancellation for a previously requested epoch.
func (e *Extractor) QueueRemoval(r Request) error {
	if err := e.removals.Enqueue(&r); err != nil {
		return errors.Newf("epoch removal queue full: %w", err).
			Component(ComponentEpochs).
			Category(errors.CategoryState).
			Context("key", r.Key.String()).
			Build()
	}
	return nil
}

// RequestListener adapts the extractor's request queue to the stimulus
// queue's added event. Overflow is logged, not fatal: the dropped request
// yields no epoch, captured or missed.
func (e *Extractor) RequestListener() func(stimqueue.TrialRecord) {
	return func(rec stimqueue.TrialRecord) {
		err := e.QueueRequest(Request{
			T0:       rec.T0,
			Key:      rec.Key,
			Duration: rec.Duration,
			Metadata: rec.Metadata,
		})
		if err != nil {
			e.logger.Error("dropping epoch request", "key", rec.Key.String(), "t0", rec.T0)
		}
	}
}

// RemovalListener adapts the extractor's removal queue to the stimulus
// queue's removed event.
func (e *Extractor) RemovalListener() func(stimqueue.TrialRecord) {
	return func(rec stimqueue.TrialRecord) {
		err := e.QueueRemoval(Request{
			T0:       rec.T0,
			Key:      rec.Key,
			Duration: rec.Duration,
			Metadata: rec.Metadata,
		})
		if err != nil {
			e.logger.Error("dropping epoch removal", "key", rec.Key.String(), "t0", rec.T0)
		}
	}
}

// Tlb returns the absolute sample index of the next chunk's first sample.
func (e *Extractor) Tlb() int64 { return e.tlb }

// ActiveCount returns the number of captures in flight.
func (e *Extractor) ActiveCount() int { return len(e.active) }

// Process consumes one acquisition chunk. The chunk's first sample has
// absolute index Tlb(); successive calls advance it by len(data).
func (e *Extractor) Process(data []float64) error {
	chunk := make([]float64, len(data))
	copy(chunk, data)
	e.lookback = append(e.lookback, chunkRec{tlb: e.tlb, data: chunk})

	// Removals first: a removal arriving in the same tick as its request
	// cancels it via the skip set.
	skip := e.processRemovals()

	// Feed the chunk to captures already in flight, in insertion order.
	e.feedActive(chunk)

	// Then admit new requests, backfilling from the lookback buffer.
	if err := e.processRequests(skip); err != nil {
		return err
	}

	e.tlb += int64(len(chunk))

	if len(e.pending) > 0 {
		e.flush()
	}

	e.prune()
	e.metrics.Active(len(e.active))
	e.metrics.Lookback(len(e.lookback))

	if len(e.active) == 0 && e.emptyQueueCB != nil {
		cb := e.emptyQueueCB
		e.emptyQueueCB = nil
		cb()
	}
	return nil
}

func (e *Extractor) processRemovals() map[identity]struct{} {
	var skip map[identity]struct{}
	removed, dropped := 0, 0
	for {
		r, err := e.removals.Dequeue()
		if err != nil {
			break
		}
		id := identity{t0: r.T0, key: r.Key}
		if _, ok := e.active[id]; ok {
			e.dropActive(id)
			dropped++
		} else {
			// Not in flight: either already captured or not yet
			// requested. Mark so a same-tick request is discarded.
			if skip == nil {
				skip = make(map[identity]struct{})
			}
			skip[id] = struct{}{}
			removed++
		}
	}
	if removed > 0 || dropped > 0 {
		e.logger.Debug("processed epoch removals", "marked_skip", removed, "dropped", dropped)
	}
	return skip
}

func (e *Extractor) feedActive(chunk []float64) {
	for _, id := range append([]identity(nil), e.order...) {
		cs, ok := e.active[id]
		if !ok {
			continue
		}
		out, ep := cs.onChunk(e.tlb, chunk)
		if out == captureContinue {
			continue
		}
		e.dropActive(id)
		e.finish(out, ep)
	}
}

func (e *Extractor) processRequests(skip map[identity]struct{}) error {
	queued, invalid := 0, 0
	for {
		r, err := e.requests.Dequeue()
		if err != nil {
			break
		}
		id := identity{t0: r.T0, key: r.Key}
		if _, skipped := skip[id]; skipped {
			delete(skip, id)
			invalid++
			continue
		}
		queued++

		t0Samples := int64(math.Round(r.T0 * e.fs))
		size := e.epochSize
		if size == 0 {
			size = r.Duration
		}
		epochSamples := int(math.Round((size + e.poststim) * e.fs))
		cs := newCaptureState(t0Samples, epochSamples, r)

		// Replay the buffered history so epochs whose start already
		// played can still be captured.
		terminal := false
		for _, rec := range e.lookback {
			out, ep := cs.onChunk(rec.tlb, rec.data)
			if out == captureContinue {
				continue
			}
			e.finish(out, ep)
			terminal = true
			break
		}
		if terminal {
			continue
		}
		if _, dup := e.active[id]; dup {
			return errors.Newf("epoch (t0=%v, key=%s): %w", r.T0, r.Key.String(), ErrDuplicateEpoch).
				Component(ComponentEpochs).
				Category(errors.CategoryConflict).
				Build()
		}
		e.active[id] = cs
		e.order = append(e.order, id)
	}
	if queued > 0 || invalid > 0 {
		e.logger.Debug("queued epochs", "queued", queued, "invalid", invalid)
	}
	return nil
}

func (e *Extractor) dropActive(id identity) {
	delete(e.active, id)
	for i, o := range e.order {
		if o == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Extractor) finish(out outcome, ep Epoch) {
	if out == captureMissed {
		e.logger.Warn("missed samples for epoch",
			"t0", ep.Info.T0,
			"key", ep.Info.Key.String())
		e.metrics.Missed()
	}
	e.pending = append(e.pending, ep)
}

func (e *Extractor) flush() {
	batch := e.pending
	e.pending = nil
	completed := 0
	for _, ep := range batch {
		if !ep.Missed() {
			completed++
		}
	}
	e.metrics.Completed(completed)
	if e.target != nil {
		e.target(batch)
	}
}

// prune drops lookback chunks whose last sample index has aged out of
// the historical capture window.
func (e *Extractor) prune() {
	cut := e.tlb - e.bufferSamples
	for len(e.lookback) > 0 {
		head := e.lookback[0]
		last := head.tlb + int64(len(head.data)) - 1
		if last >= cut {
			break
		}
		e.lookback = e.lookback[1:]
	}
}
