package pipeline

import (
	"testing"
	"time"
)

func newTestInterrupts() *InterruptionController {
	// 60ms debounce = three 20ms frames of sustained voice.
	return NewInterruptionController(60*time.Millisecond, testLogger(), testMetrics())
}

func TestInterruptTriggersOnSustainedVoice(t *testing.T) {
	c := newTestInterrupts()
	c.SetSpeaking(true, 1)

	for i := 0; i < 2; i++ {
		triggered, _ := c.ObserveFrame(voicedFrame(uint64(i)), true)
		if triggered {
			t.Fatalf("triggered after %d frames, debounce not honored", i+1)
		}
	}
	triggered, seed := c.ObserveFrame(voicedFrame(2), true)
	if !triggered {
		t.Fatal("sustained voice did not trigger a barge-in")
	}
	if len(seed) != 3 {
		t.Fatalf("seed frames = %d, want 3", len(seed))
	}
	if c.State() != InterruptTriggered {
		t.Fatalf("state = %v, want triggered", c.State())
	}
}

func TestInterruptIgnoresShortBlip(t *testing.T) {
	c := newTestInterrupts()
	c.SetSpeaking(true, 1)

	c.ObserveFrame(voicedFrame(0), true)
	c.ObserveFrame(silentFrame(1), false)
	if c.State() != InterruptBotSpeaking {
		t.Fatalf("state = %v, want bot_speaking after a blip", c.State())
	}

	// A fresh sustained burst must still need the full debounce.
	c.ObserveFrame(voicedFrame(2), true)
	c.ObserveFrame(voicedFrame(3), true)
	triggered, _ := c.ObserveFrame(voicedFrame(4), true)
	if !triggered {
		t.Fatal("sustained voice after a blip did not trigger")
	}
}

func TestInterruptDisarmedWhileBotSilent(t *testing.T) {
	c := newTestInterrupts()
	for i := 0; i < 10; i++ {
		if triggered, _ := c.ObserveFrame(voicedFrame(uint64(i)), true); triggered {
			t.Fatal("controller triggered while idle")
		}
	}
	if c.State() != InterruptIdle {
		t.Fatalf("state = %v, want idle", c.State())
	}
}

func TestInterruptDisarmsWhenSpeakingEnds(t *testing.T) {
	c := newTestInterrupts()
	c.SetSpeaking(true, 1)
	c.ObserveFrame(voicedFrame(0), true)
	c.SetSpeaking(false, 1)

	if c.State() != InterruptIdle {
		t.Fatalf("state = %v, want idle after bot stopped speaking", c.State())
	}
}
