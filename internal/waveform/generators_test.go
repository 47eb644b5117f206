package waveform

import (
	"math"
	"testing"
)

// almostEqual compares sample slices with a small tolerance.
func almostEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestToneContinuation(t *testing.T) {
	t.Parallel()

	fs := 100e3
	frequency := 5e3
	tone := NewTone(fs, frequency, 1.0, 0)

	samples := 1000
	first := tone.Next(samples)
	second := tone.Next(samples)

	expected := make([]float64, samples*2)
	for i := range expected {
		expected[i] = math.Cos(2 * math.Pi * frequency * float64(i) / fs)
	}
	almostEqual(t, first, expected[:samples], 1e-12)
	almostEqual(t, second, expected[samples:], 1e-12)

	// Reset restarts from the first sample.
	tone.Reset()
	restarted := tone.Next(2 * samples)
	almostEqual(t, restarted, expected, 1e-12)
}

func TestSilence(t *testing.T) {
	t.Parallel()

	silence := NewSilence(0.25)
	got := silence.Next(100)
	if len(got) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(got))
	}
	for i, v := range got {
		if v != 0.25 {
			t.Fatalf("sample %d: got %v, want 0.25", i, v)
		}
	}
	if silence.Complete() {
		t.Error("silence generator must never complete")
	}
}

func TestCos2EnvelopeBounds(t *testing.T) {
	t.Parallel()

	fs := 100e3
	env := NewCos2Envelope(fs, 1.0, 0.5e-3, NewTone(fs, 5e3, 1.0, 0))

	w := env.Next(env.Remaining())
	if len(w) != int(fs) {
		t.Fatalf("expected %d samples, got %d", int(fs), len(w))
	}
	if !env.Complete() {
		t.Fatal("envelope should be complete after draining")
	}
	// Samples do not return exactly to zero at the boundaries based on
	// how the window points are calculated.
	if math.Abs(w[0]) > 1e-2 {
		t.Errorf("first sample %v not near zero", w[0])
	}
	if math.Abs(w[len(w)-1]) > 1e-2 {
		t.Errorf("last sample %v not near zero", w[len(w)-1])
	}
}

func TestCos2EnvelopeChunkedGeneration(t *testing.T) {
	t.Parallel()

	fs := 10e3
	duration := 10e-3
	riseTime := 0.5e-3

	oneShot := NewCos2Envelope(fs, duration, riseTime, NewSilence(1))
	want := oneShot.Next(oneShot.Remaining())

	chunked := NewCos2Envelope(fs, duration, riseTime, NewSilence(1))
	var got []float64
	for !chunked.Complete() {
		got = append(got, chunked.Next(7)...)
	}
	almostEqual(t, got, want, 1e-12)
}

func TestCos2EnvelopeShortFinalRead(t *testing.T) {
	t.Parallel()

	fs := 1000.0
	env := NewCos2Envelope(fs, 0.01, 0.002, NewSilence(1)) // 10 samples
	w := env.Next(8)
	if len(w) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(w))
	}
	w = env.Next(8)
	if len(w) != 2 {
		t.Fatalf("final read should truncate to 2 samples, got %d", len(w))
	}
	if !env.Complete() {
		t.Fatal("expected completion")
	}
	if env.Next(8) != nil {
		t.Fatal("reads past completion should yield nothing")
	}
}

func TestSourceDuration(t *testing.T) {
	t.Parallel()

	arr := FromArray(make([]float64, 500))
	d, err := arr.Duration(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0.5 {
		t.Errorf("array duration: got %v, want 0.5", d)
	}

	gen := FromGenerator(NewCos2Envelope(1000, 0.25, 0.01, NewSilence(1)))
	d, err = gen.Duration(1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0.25 {
		t.Errorf("generator duration: got %v, want 0.25", d)
	}

	// Unbounded generators have no derivable duration.
	if _, err := FromGenerator(NewTone(1000, 100, 1, 0)).Duration(1000); err == nil {
		t.Error("expected error for unbounded generator duration")
	}
}

func TestFromArrayCopies(t *testing.T) {
	t.Parallel()

	orig := []float64{1, 2, 3}
	src := FromArray(orig)
	orig[0] = 99
	if src.Array()[0] != 1 {
		t.Error("FromArray must copy its input")
	}
}

func TestCycleDelays(t *testing.T) {
	t.Parallel()

	seq := CycleDelays(0.1, 0.2)
	for i, want := range []float64{0.1, 0.2, 0.1, 0.2, 0.1} {
		got, ok := seq.Next()
		if !ok || got != want {
			t.Fatalf("cycle step %d: got (%v, %v), want (%v, true)", i, got, ok, want)
		}
	}

	// Empty cycle yields zeros forever.
	zeros := CycleDelays()
	if v, ok := zeros.Next(); !ok || v != 0 {
		t.Fatalf("empty cycle: got (%v, %v)", v, ok)
	}
}

func TestSliceDelaysExhaustion(t *testing.T) {
	t.Parallel()

	seq := SliceDelays([]float64{0.5})
	if v, ok := seq.Next(); !ok || v != 0.5 {
		t.Fatalf("got (%v, %v), want (0.5, true)", v, ok)
	}
	if _, ok := seq.Next(); ok {
		t.Fatal("finite sequence should exhaust")
	}
}
