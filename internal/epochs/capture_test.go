package epochs

import (
	"testing"

	"github.com/google/uuid"
)

// seq returns n samples valued start, start+1, ...
func seq(start, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(start + i)
	}
	return out
}

func TestCaptureWithinOneChunk(t *testing.T) {
	t.Parallel()

	cs := newCaptureState(5, 10, Request{Key: uuid.New()})
	out, ep := cs.onChunk(0, seq(0, 20))
	if out != captureComplete {
		t.Fatalf("expected completion, got %v", out)
	}
	want := seq(5, 10)
	if len(ep.Signal) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(ep.Signal))
	}
	for i := range want {
		if ep.Signal[i] != want[i] {
			t.Fatalf("sample %d: got %v, want %v", i, ep.Signal[i], want[i])
		}
	}
}

func TestCaptureAcrossChunkBoundaries(t *testing.T) {
	t.Parallel()

	// The captured signal must not depend on how the stream is
	// partitioned into chunks.
	full := seq(0, 40)
	for _, chunkSize := range []int{1, 3, 7, 40} {
		cs := newCaptureState(5, 10, Request{Key: uuid.New()})
		var got []float64
		tlb := int64(0)
		for start := 0; start < len(full); start += chunkSize {
			end := start + chunkSize
			if end > len(full) {
				end = len(full)
			}
			out, ep := cs.onChunk(tlb, full[start:end])
			tlb += int64(end - start)
			if out == captureComplete {
				got = ep.Signal
				break
			}
			if out == captureMissed {
				t.Fatalf("chunk size %d: unexpected miss", chunkSize)
			}
		}
		if len(got) != 10 {
			t.Fatalf("chunk size %d: got %d samples", chunkSize, len(got))
		}
		for i, v := range got {
			if v != float64(5+i) {
				t.Fatalf("chunk size %d, sample %d: got %v", chunkSize, i, v)
			}
		}
	}
}

func TestCaptureStartExactlyAtChunkEnd(t *testing.T) {
	t.Parallel()

	// t0 == tlb + len(chunk): capture begins on the next chunk at
	// offset zero.
	cs := newCaptureState(10, 5, Request{Key: uuid.New()})
	out, _ := cs.onChunk(0, seq(0, 10))
	if out != captureContinue {
		t.Fatalf("expected continue at boundary, got %v", out)
	}
	out, ep := cs.onChunk(10, seq(10, 5))
	if out != captureComplete {
		t.Fatalf("expected completion, got %v", out)
	}
	for i, v := range ep.Signal {
		if v != float64(10+i) {
			t.Fatalf("sample %d: got %v", i, v)
		}
	}
}

func TestCaptureStartAfterChunkWaits(t *testing.T) {
	t.Parallel()

	cs := newCaptureState(100, 5, Request{Key: uuid.New()})
	out, _ := cs.onChunk(0, seq(0, 10))
	if out != captureContinue {
		t.Fatalf("expected continue, got %v", out)
	}
}

func TestCaptureMissedStart(t *testing.T) {
	t.Parallel()

	cs := newCaptureState(5, 10, Request{Key: uuid.New()})
	out, ep := cs.onChunk(6, seq(6, 10))
	if out != captureMissed {
		t.Fatalf("expected miss, got %v", out)
	}
	if ep.Signal != nil {
		t.Fatal("missed epoch must carry a nil signal")
	}
	if !ep.Missed() {
		t.Fatal("Missed() must report true")
	}
}

func TestCaptureZeroLengthEpoch(t *testing.T) {
	t.Parallel()

	// Zero-length epochs complete on the first feed containing t0 and
	// carry an empty, non-nil signal.
	cs := newCaptureState(5, 0, Request{Key: uuid.New()})
	out, ep := cs.onChunk(0, seq(0, 10))
	if out != captureComplete {
		t.Fatalf("expected completion, got %v", out)
	}
	if ep.Signal == nil {
		t.Fatal("zero-length epoch must be distinguishable from a miss")
	}
	if len(ep.Signal) != 0 {
		t.Fatalf("expected empty signal, got %d samples", len(ep.Signal))
	}
}
