package audio

import "testing"

func TestBytesToPCM16_RoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	data := PCM16ToBytes(samples)

	decoded, err := BytesToPCM16(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestBytesToPCM16_OddLength(t *testing.T) {
	if _, err := BytesToPCM16([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("expected error for odd-length input")
	}
}

func TestResample_Downsample(t *testing.T) {
	// 24kHz -> 16kHz should produce 2/3 of the input samples.
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i)
	}

	out := Resample(samples, 24000, 16000)
	if len(out) != 320 {
		t.Errorf("expected 320 output samples, got %d", len(out))
	}
}

func TestResample_SameRate(t *testing.T) {
	samples := []int16{1, 2, 3}
	out := Resample(samples, 16000, 16000)
	if len(out) != 3 {
		t.Errorf("expected passthrough, got %d samples", len(out))
	}
}

func TestSplitFrames(t *testing.T) {
	samples := make([]int16, 330)
	frames := SplitFrames(samples, 16000, 160, 7)

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames (partial tail dropped), got %d", len(frames))
	}
	if frames[0].Seq != 7 || frames[1].Seq != 8 {
		t.Errorf("expected seq 7,8, got %d,%d", frames[0].Seq, frames[1].Seq)
	}
	if frames[0].Duration().Milliseconds() != 10 {
		t.Errorf("expected 10ms frames, got %v", frames[0].Duration())
	}
}
