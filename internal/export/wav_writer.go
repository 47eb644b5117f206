// Package export writes captured epochs to disk as WAV files.
package export

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/audition-go/internal/epochs"
	"github.com/tphakala/audition-go/internal/errors"
	"github.com/tphakala/audition-go/internal/logging"
)

// Component identifier for export errors
const ComponentExport = "export"

// WavWriter persists completed epochs as 16-bit PCM mono WAV files. Its
// WriteBatch method is usable directly as an extractor target.
type WavWriter struct {
	dir     string
	fs      int
	logger  *slog.Logger
	written int
	missed  int
}

// NewWavWriter creates the export directory if needed and returns a
// writer emitting files at the given sample rate.
func NewWavWriter(dir string, fs float64) (*WavWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // accept 0o755 for now
		return nil, errors.New(err).
			Component(ComponentExport).
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	logger := logging.ForService("export")
	if logger == nil {
		logger = slog.Default().With("service", "export")
	}
	return &WavWriter{
		dir:    dir,
		fs:     int(math.Round(fs)),
		logger: logger,
	}, nil
}

// WriteBatch writes every captured epoch in the batch. Missed epochs are
// counted but produce no file. Write failures are logged so one bad epoch
// cannot stall the acquisition side.
func (w *WavWriter) WriteBatch(batch []epochs.Epoch) {
	for i := range batch {
		ep := &batch[i]
		if ep.Missed() {
			w.missed++
			continue
		}
		if err := w.writeEpoch(ep); err != nil {
			w.logger.Error("failed to write epoch",
				"key", ep.Info.Key.String(),
				"t0", ep.Info.T0,
				"error", err)
			continue
		}
		w.written++
	}
}

// Written returns the number of epoch files written so far.
func (w *WavWriter) Written() int { return w.written }

// MissedCount returns the number of missed epochs seen so far.
func (w *WavWriter) MissedCount() int { return w.missed }

func (w *WavWriter) writeEpoch(ep *epochs.Epoch) error {
	name := fmt.Sprintf("epoch_%s_%dms.wav",
		ep.Info.Key.String(),
		int64(math.Round(ep.Info.T0*1000)))
	path := filepath.Join(w.dir, name)

	f, err := os.Create(path) //nolint:gosec // path is under the configured export dir
	if err != nil {
		return errors.New(err).
			Component(ComponentExport).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close() //nolint:errcheck // encoder close below is the meaningful one

	enc := wav.NewEncoder(f, w.fs, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: w.fs},
		Data:           make([]int, len(ep.Signal)),
		SourceBitDepth: 16,
	}
	for i, s := range ep.Signal {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(math.Round(s * 32767))
	}
	if err := enc.Write(buf); err != nil {
		return errors.New(err).
			Component(ComponentExport).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return enc.Close()
}
