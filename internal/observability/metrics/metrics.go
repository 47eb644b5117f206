// Package metrics provides prometheus instrumentation for the stimulus
// dispatch and epoch capture subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stimulus collects dispatch-side metrics. A nil *Stimulus is a no-op, so
// instrumentation points never need nil checks at call sites.
type Stimulus struct {
	TrialsDispatched prometheus.Counter
	TrialsCancelled  prometheus.Counter
	QueueEmpty       prometheus.Counter
	SamplesGenerated prometheus.Counter
}

// NewStimulus creates and registers dispatch metrics on reg.
func NewStimulus(reg prometheus.Registerer) (*Stimulus, error) {
	m := &Stimulus{
		TrialsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audition_trials_dispatched_total",
			Help: "Number of trials dispatched by the stimulus queue",
		}),
		TrialsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audition_trials_cancelled_total",
			Help: "Number of dispatched trials cancelled by pause",
		}),
		QueueEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audition_queue_empty_total",
			Help: "Times the queue ran out of tokens and padded with silence",
		}),
		SamplesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audition_samples_generated_total",
			Help: "Output samples produced by the dispatch engine",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.TrialsDispatched, m.TrialsCancelled, m.QueueEmpty, m.SamplesGenerated,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Dispatched increments the trial counter.
func (m *Stimulus) Dispatched() {
	if m != nil {
		m.TrialsDispatched.Inc()
	}
}

// Cancelled adds n cancelled trials.
func (m *Stimulus) Cancelled(n int) {
	if m != nil {
		m.TrialsCancelled.Add(float64(n))
	}
}

// Empty increments the queue-empty counter.
func (m *Stimulus) Empty() {
	if m != nil {
		m.QueueEmpty.Inc()
	}
}

// Generated adds n generated samples.
func (m *Stimulus) Generated(n int) {
	if m != nil {
		m.SamplesGenerated.Add(float64(n))
	}
}

// Capture collects acquisition-side metrics. A nil *Capture is a no-op.
type Capture struct {
	EpochsCompleted prometheus.Counter
	EpochsMissed    prometheus.Counter
	EpochsActive    prometheus.Gauge
	LookbackChunks  prometheus.Gauge
}

// NewCapture creates and registers capture metrics on reg.
func NewCapture(reg prometheus.Registerer) (*Capture, error) {
	m := &Capture{
		EpochsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audition_epochs_completed_total",
			Help: "Epochs fully captured and delivered downstream",
		}),
		EpochsMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audition_epochs_missed_total",
			Help: "Epochs whose start had left the lookback buffer",
		}),
		EpochsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audition_epochs_active",
			Help: "Epoch captures currently in flight",
		}),
		LookbackChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audition_lookback_chunks",
			Help: "Sample chunks retained in the lookback buffer",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.EpochsCompleted, m.EpochsMissed, m.EpochsActive, m.LookbackChunks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Completed adds n completed epochs.
func (m *Capture) Completed(n int) {
	if m != nil {
		m.EpochsCompleted.Add(float64(n))
	}
}

// Missed increments the missed-epoch counter.
func (m *Capture) Missed() {
	if m != nil {
		m.EpochsMissed.Inc()
	}
}

// Active records the current number of in-flight captures.
func (m *Capture) Active(n int) {
	if m != nil {
		m.EpochsActive.Set(float64(n))
	}
}

// Lookback records the current lookback buffer depth.
func (m *Capture) Lookback(n int) {
	if m != nil {
		m.LookbackChunks.Set(float64(n))
	}
}
