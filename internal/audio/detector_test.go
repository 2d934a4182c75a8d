package audio

import (
	"testing"
	"time"
)

// frame20ms builds a 20ms mono frame at 16kHz with constant amplitude.
func frame20ms(amplitude int16, seq uint64) Frame {
	pcm := make([]int16, 320)
	for i := range pcm {
		pcm[i] = amplitude
	}
	return Frame{PCM: pcm, SampleRate: 16000, Seq: seq}
}

func testDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		EnergyThreshold: 500.0,
		Debounce:        100 * time.Millisecond, // 5 frames
		SilenceTimeout:  200 * time.Millisecond, // 10 frames
	}
}

func TestTurnDetector_SingleBurst(t *testing.T) {
	d := NewTurnDetector(testDetectorConfig())

	var starts, ends int
	seq := uint64(0)
	feed := func(amplitude int16, n int) {
		for i := 0; i < n; i++ {
			ev, _ := d.ProcessFrame(frame20ms(amplitude, seq))
			seq++
			switch ev {
			case EventSpeechStart:
				starts++
			case EventSpeechEnd:
				ends++
			}
		}
	}

	feed(10, 20)   // silence
	feed(5000, 25) // speech burst
	feed(10, 20)   // silence

	if starts != 1 {
		t.Errorf("expected exactly one SpeechStart, got %d", starts)
	}
	if ends != 1 {
		t.Errorf("expected exactly one SpeechEnd, got %d", ends)
	}
	if d.IsActive() {
		t.Error("detector should be idle after the turn ended")
	}
}

func TestTurnDetector_DebounceRejectsTransientNoise(t *testing.T) {
	d := NewTurnDetector(testDetectorConfig())

	// 3 voiced frames (60ms) is below the 100ms debounce.
	for i := 0; i < 3; i++ {
		ev, _ := d.ProcessFrame(frame20ms(5000, uint64(i)))
		if ev != EventNone {
			t.Fatalf("unexpected event %v during debounce", ev)
		}
	}

	// One silent frame discards the candidate entirely.
	if ev, _ := d.ProcessFrame(frame20ms(10, 3)); ev != EventNone {
		t.Fatalf("unexpected event %v after noise", ev)
	}
	if d.IsActive() {
		t.Error("transient noise must not start a turn")
	}
}

func TestTurnDetector_SpeechStartTiming(t *testing.T) {
	d := NewTurnDetector(testDetectorConfig())

	// SpeechStart must fire on the frame that satisfies the debounce
	// bound: 5 frames of 20ms = 100ms.
	for i := 0; i < 4; i++ {
		if ev, _ := d.ProcessFrame(frame20ms(5000, uint64(i))); ev != EventNone {
			t.Fatalf("SpeechStart fired too early on frame %d", i)
		}
	}
	ev, onset := d.ProcessFrame(frame20ms(5000, 4))
	if ev != EventSpeechStart {
		t.Fatalf("expected SpeechStart on frame 4, got %v", ev)
	}
	if len(onset) != 5 {
		t.Errorf("expected 5 onset frames, got %d", len(onset))
	}
	if onset[0].Seq != 0 {
		t.Errorf("onset frames must start at the first voiced frame, got seq %d", onset[0].Seq)
	}
}

func TestTurnDetector_SilenceTimeout(t *testing.T) {
	d := NewTurnDetector(testDetectorConfig())

	for i := 0; i < 10; i++ {
		d.ProcessFrame(frame20ms(5000, uint64(i)))
	}
	if !d.IsActive() {
		t.Fatal("detector should be active after sustained speech")
	}

	// 9 silent frames (180ms) must not end the turn yet.
	for i := 0; i < 9; i++ {
		if ev, _ := d.ProcessFrame(frame20ms(10, uint64(10+i))); ev != EventNone {
			t.Fatalf("SpeechEnd fired too early on silent frame %d", i)
		}
	}
	// The 10th silent frame reaches the 200ms timeout.
	if ev, _ := d.ProcessFrame(frame20ms(10, 19)); ev != EventSpeechEnd {
		t.Fatal("expected SpeechEnd at the silence timeout")
	}
}

func TestTurnDetector_SilenceAfterTurnIsIdempotent(t *testing.T) {
	d := NewTurnDetector(testDetectorConfig())

	seq := uint64(0)
	for i := 0; i < 10; i++ {
		d.ProcessFrame(frame20ms(5000, seq))
		seq++
	}
	for i := 0; i < 15; i++ {
		d.ProcessFrame(frame20ms(10, seq))
		seq++
	}

	// Replaying pure silence after a completed turn produces no events.
	for i := 0; i < 50; i++ {
		ev, _ := d.ProcessFrame(frame20ms(10, seq))
		seq++
		if ev != EventNone {
			t.Fatalf("unexpected event %v on silent frame after completed turn", ev)
		}
	}
}

func TestTurnDetector_Reset(t *testing.T) {
	d := NewTurnDetector(testDetectorConfig())

	for i := 0; i < 10; i++ {
		d.ProcessFrame(frame20ms(5000, uint64(i)))
	}
	d.Reset()
	if d.IsActive() {
		t.Error("expected detector to be idle after Reset")
	}
}
