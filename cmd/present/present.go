// Package present implements the present subcommand: it plays the
// configured stimulus queue into a simulated acquisition loop and
// captures one epoch per dispatched trial.
package present

import (
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tphakala/audition-go/internal/conf"
	"github.com/tphakala/audition-go/internal/epochs"
	"github.com/tphakala/audition-go/internal/export"
	"github.com/tphakala/audition-go/internal/logging"
	"github.com/tphakala/audition-go/internal/observability/metrics"
	"github.com/tphakala/audition-go/internal/stimqueue"
	"github.com/tphakala/audition-go/internal/waveform"
)

// chunkSize is the per-iteration buffer size in samples, matching a
// typical audio callback period.
const chunkSize = 1024

// Command returns the present subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "present",
		Short: "Present the configured stimulus queue and capture epochs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunSession(settings)
		},
	}
}

// buildQueue constructs the stimulus queue named by the configuration and
// fills it with ramped tone tokens.
func buildQueue(settings *conf.Settings) (*stimqueue.Queue, error) {
	fs := settings.Audio.SampleRate

	var q *stimqueue.Queue
	switch settings.Queue.Order {
	case "fifo":
		q = stimqueue.NewFIFO(fs)
	case "interleaved":
		q = stimqueue.NewInterleavedFIFO(fs)
	case "random":
		q = stimqueue.NewRandom(fs)
	case "blocked-random":
		q = stimqueue.NewBlockedRandom(fs, uint64(settings.Queue.Seed)) //nolint:gosec // seed sign is irrelevant
	case "grouped":
		q = stimqueue.NewGroupedFIFO(fs, settings.Queue.GroupSize)
	case "blocked":
		q = stimqueue.NewBlockedFIFO(fs)
	default:
		return nil, fmt.Errorf("unknown queue order %q", settings.Queue.Order)
	}

	for _, freq := range settings.Queue.Tones {
		tone := waveform.RampedTone(fs, freq, 0.8,
			settings.Queue.Duration, settings.Queue.RiseTime)
		_, err := q.Append(stimqueue.TokenSpec{
			Source:   waveform.FromGenerator(tone),
			Trials:   settings.Queue.Trials,
			Delays:   waveform.CycleDelays(settings.Queue.ITI),
			Metadata: map[string]any{"frequency": freq},
		})
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

// RunSession plays the queue to exhaustion on one goroutine while an
// acquisition goroutine consumes the identical stream and extracts
// epochs, mirroring the output/input split of a real presentation rig.
func RunSession(settings *conf.Settings) error {
	logger := logging.ForService("present")
	fs := settings.Audio.SampleRate

	q, err := buildQueue(settings)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	stimMetrics, err := metrics.NewStimulus(reg)
	if err != nil {
		return err
	}
	capMetrics, err := metrics.NewCapture(reg)
	if err != nil {
		return err
	}
	q.SetMetrics(stimMetrics)

	var completed, missed int
	target := func(batch []epochs.Epoch) {
		for _, ep := range batch {
			if ep.Missed() {
				missed++
			} else {
				completed++
			}
		}
	}
	var writer *export.WavWriter
	if settings.Export.Enabled {
		writer, err = export.NewWavWriter(settings.Export.Path, fs)
		if err != nil {
			return err
		}
		counter := target
		target = func(batch []epochs.Epoch) {
			counter(batch)
			writer.WriteBatch(batch)
		}
	}

	ex := epochs.New(epochs.Config{
		FS:           fs,
		EpochSize:    settings.Capture.EpochSize,
		PoststimTime: settings.Capture.Poststim,
		BufferSize:   settings.Capture.BufferSize,
		Target:       target,
	})
	ex.SetMetrics(capMetrics)

	if err := q.Connect(stimqueue.EventAdded, ex.RequestListener()); err != nil {
		return err
	}
	if err := q.Connect(stimqueue.EventRemoved, ex.RemovalListener()); err != nil {
		return err
	}

	// Trailing silence keeps the acquisition side running long enough to
	// finish epochs that end after the last trial.
	tailSeconds := settings.Capture.EpochSize + settings.Capture.Poststim + q.MaxDuration() + 1
	tailChunks := int(math.Ceil(tailSeconds * fs / chunkSize))

	chunks := make(chan []float64, 8)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		for {
			buf, err := q.PopBuffer(chunkSize, true)
			if err != nil {
				errc <- err
				return
			}
			chunks <- buf
			if q.IsEmpty() {
				break
			}
		}
		for i := 0; i < tailChunks; i++ {
			buf, err := q.PopBuffer(chunkSize, true)
			if err != nil {
				errc <- err
				return
			}
			chunks <- buf
		}
	}()

	for buf := range chunks {
		if err := ex.Process(buf); err != nil {
			return err
		}
	}
	select {
	case err := <-errc:
		return err
	default:
	}

	if logger != nil {
		logger.Info("presentation complete",
			"trials_requested", q.CountRequestedTrials(),
			"epochs_completed", completed,
			"epochs_missed", missed)
	}
	fmt.Printf("presented %d trials, captured %d epochs (%d missed)\n",
		q.CountRequestedTrials(), completed, missed)
	if writer != nil {
		fmt.Printf("wrote %d epoch files to %s\n", writer.Written(), settings.Export.Path)
	}
	return nil
}
