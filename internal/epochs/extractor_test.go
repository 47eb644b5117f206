package epochs

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/audition-go/internal/errors"
	"github.com/tphakala/audition-go/internal/stimqueue"
	"github.com/tphakala/audition-go/internal/waveform"
)

// batchSink collects target batches for assertions.
type batchSink struct {
	batches [][]Epoch
}

func (s *batchSink) target(batch []Epoch) {
	s.batches = append(s.batches, batch)
}

func (s *batchSink) all() []Epoch {
	var out []Epoch
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func newTestExtractor(t *testing.T, cfg Config) (*Extractor, *batchSink) {
	t.Helper()
	sink := &batchSink{}
	cfg.Target = sink.target
	return New(cfg), sink
}

func TestHistoricalEpochCapture(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         1000,
		EpochSize:  0.1,
		BufferSize: 1.0,
	})

	require.NoError(t, ex.Process(seq(0, 2000)))
	require.Empty(t, sink.all())

	// The request arrives after its start time has already played; the
	// lookback buffer recovers it.
	require.NoError(t, ex.QueueRequest(Request{T0: 0.5, Key: uuid.New()}))
	require.NoError(t, ex.Process(seq(2000, 100)))

	epochsOut := sink.all()
	require.Len(t, epochsOut, 1)
	require.Len(t, epochsOut[0].Signal, 100)
	for i, v := range epochsOut[0].Signal {
		assert.Equal(t, float64(500+i), v, "sample %d", i)
	}
}

func TestMissedEpoch(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         1000,
		EpochSize:  0.1,
		BufferSize: 1.0,
	})

	require.NoError(t, ex.Process(seq(0, 2000)))
	require.NoError(t, ex.Process(seq(2000, 1000)))

	// Samples 0..1999 have aged out of the one-second lookback window.
	require.NoError(t, ex.QueueRequest(Request{T0: 0.2, Key: uuid.New()}))
	require.NoError(t, ex.Process(seq(3000, 100)))

	epochsOut := sink.all()
	require.Len(t, epochsOut, 1)
	assert.True(t, epochsOut[0].Missed())
	assert.Nil(t, epochsOut[0].Signal)
}

func TestPartitionInvariance(t *testing.T) {
	t.Parallel()

	capture := func(chunkSizes []int) []float64 {
		ex, sink := newTestExtractor(t, Config{
			FS:         100,
			EpochSize:  0.5,
			BufferSize: 10,
		})
		require.NoError(t, ex.QueueRequest(Request{T0: 0.1, Key: uuid.New()}))
		start := 0
		for _, n := range chunkSizes {
			require.NoError(t, ex.Process(seq(start, n)))
			start += n
		}
		all := sink.all()
		require.Len(t, all, 1)
		return all[0].Signal
	}

	want := capture([]int{100})
	require.Len(t, want, 50)
	assert.Equal(t, want, capture([]int{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}))
	assert.Equal(t, want, capture([]int{3, 17, 41, 39}))
}

func TestEpochSizeZeroUsesRequestDuration(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  0, // each request carries its own duration
		BufferSize: 10,
	})

	require.NoError(t, ex.QueueRequest(Request{T0: 0, Key: uuid.New(), Duration: 0.25}))
	require.NoError(t, ex.Process(seq(0, 100)))

	all := sink.all()
	require.Len(t, all, 1)
	assert.Len(t, all[0].Signal, 25)
}

func TestPoststimTimeExtendsEpoch(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:           100,
		EpochSize:    0.1,
		PoststimTime: 0.05,
		BufferSize:   10,
	})

	require.NoError(t, ex.QueueRequest(Request{T0: 0, Key: uuid.New()}))
	require.NoError(t, ex.Process(seq(0, 100)))

	all := sink.all()
	require.Len(t, all, 1)
	assert.Len(t, all[0].Signal, 15)
}

func TestSameTickRemovalCancelsRequest(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  0.1,
		BufferSize: 10,
	})

	req := Request{T0: 0.1, Key: uuid.New()}
	require.NoError(t, ex.QueueRequest(req))
	require.NoError(t, ex.QueueRemoval(req))
	require.NoError(t, ex.Process(seq(0, 100)))

	assert.Empty(t, sink.all(), "removal in the same tick cancels the request")
	assert.Equal(t, 0, ex.ActiveCount())
}

func TestRemovalDropsInFlightCapture(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  1.0, // needs 100 samples, spans several chunks
		BufferSize: 10,
	})

	req := Request{T0: 0, Key: uuid.New()}
	require.NoError(t, ex.QueueRequest(req))
	require.NoError(t, ex.Process(seq(0, 30)))
	require.Equal(t, 1, ex.ActiveCount())

	require.NoError(t, ex.QueueRemoval(req))
	require.NoError(t, ex.Process(seq(30, 30)))

	assert.Equal(t, 0, ex.ActiveCount())
	assert.Empty(t, sink.all())
}

func TestDuplicateEpochFails(t *testing.T) {
	t.Parallel()

	ex, _ := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  1.0,
		BufferSize: 10,
	})

	key := uuid.New()
	require.NoError(t, ex.QueueRequest(Request{T0: 0.5, Key: key}))
	require.NoError(t, ex.QueueRequest(Request{T0: 0.5, Key: key}))

	err := ex.Process(seq(0, 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateEpoch))
}

func TestLookbackZeroNeverCapturesHistory(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  0.1,
		BufferSize: 0,
	})

	require.NoError(t, ex.Process(seq(0, 100)))
	require.NoError(t, ex.QueueRequest(Request{T0: 0.2, Key: uuid.New()}))
	require.NoError(t, ex.Process(seq(100, 100)))

	all := sink.all()
	require.Len(t, all, 1)
	assert.True(t, all[0].Missed())
}

func TestPruneKeepsLookbackWindow(t *testing.T) {
	t.Parallel()

	ex, _ := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  0.1,
		BufferSize: 0.5, // 50 samples
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, ex.Process(seq(i*30, 30)))
		cut := ex.tlb - ex.bufferSamples
		require.NotEmpty(t, ex.lookback)
		for _, rec := range ex.lookback {
			last := rec.tlb + int64(len(rec.data)) - 1
			assert.GreaterOrEqual(t, last, cut,
				"chunk ending at %d retained past the lookback window", last)
		}
	}
	assert.LessOrEqual(t, len(ex.lookback), 4, "lookback must stay bounded")
}

func TestEmptyQueueCallbackFiresOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	sink := &batchSink{}
	ex := New(Config{
		FS:                 100,
		EpochSize:          0.1,
		BufferSize:         1,
		Target:             sink.target,
		EmptyQueueCallback: func() { calls++ },
	})

	require.NoError(t, ex.QueueRequest(Request{T0: 0, Key: uuid.New()}))
	require.NoError(t, ex.Process(seq(0, 100)))
	assert.Equal(t, 1, calls, "callback fires once captures drain")

	require.NoError(t, ex.Process(seq(100, 100)))
	assert.Equal(t, 1, calls, "callback must not fire again")
}

func TestBatchedDelivery(t *testing.T) {
	t.Parallel()

	ex, sink := newTestExtractor(t, Config{
		FS:         100,
		EpochSize:  0.1,
		BufferSize: 10,
	})

	// Two epochs completing in the same chunk arrive as one batch.
	require.NoError(t, ex.QueueRequest(Request{T0: 0.0, Key: uuid.New()}))
	require.NoError(t, ex.QueueRequest(Request{T0: 0.1, Key: uuid.New()}))
	require.NoError(t, ex.Process(seq(0, 100)))

	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 2)
}

func TestQueueToExtractorIntegration(t *testing.T) {
	t.Parallel()

	fs := 1000.0
	q := stimqueue.NewFIFO(fs)
	stim := seq(1, 200) // distinguishable from intertrial silence
	_, err := q.Append(stimqueue.TokenSpec{
		Source: waveform.FromArray(stim),
		Trials: 2,
		Delays: waveform.CycleDelays(0.1),
	})
	require.NoError(t, err)

	ex, sink := newTestExtractor(t, Config{
		FS:         fs,
		EpochSize:  0, // capture each trial's own duration
		BufferSize: 2,
	})
	require.NoError(t, q.Connect(stimqueue.EventAdded, ex.RequestListener()))
	require.NoError(t, q.Connect(stimqueue.EventRemoved, ex.RemovalListener()))

	// Simulated loopback: every dispatched buffer is acquired verbatim.
	for i := 0; i < 3; i++ {
		buf, err := q.PopBuffer(300, true)
		require.NoError(t, err)
		require.NoError(t, ex.Process(buf))
	}

	all := sink.all()
	require.Len(t, all, 2)
	for _, ep := range all {
		require.False(t, ep.Missed())
		assert.Equal(t, stim, ep.Signal, "captured epoch equals the dispatched stimulus")
	}
}
