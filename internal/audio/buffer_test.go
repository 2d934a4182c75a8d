package audio

import "testing"

func TestFrameBuffer_PushPop(t *testing.T) {
	b := NewFrameBuffer(4)

	for i := 0; i < 3; i++ {
		b.Push(Frame{Seq: uint64(i), SampleRate: 16000})
	}
	if b.Len() != 3 {
		t.Fatalf("expected 3 buffered frames, got %d", b.Len())
	}

	for i := 0; i < 3; i++ {
		f, ok := b.Pop()
		if !ok {
			t.Fatalf("expected frame %d", i)
		}
		if f.Seq != uint64(i) {
			t.Errorf("expected seq %d, got %d", i, f.Seq)
		}
	}
	if _, ok := b.Pop(); ok {
		t.Error("expected empty buffer")
	}
}

func TestFrameBuffer_DropsOldestWhenFull(t *testing.T) {
	b := NewFrameBuffer(3)

	for i := 0; i < 5; i++ {
		b.Push(Frame{Seq: uint64(i)})
	}

	if b.Dropped() != 2 {
		t.Errorf("expected 2 dropped frames, got %d", b.Dropped())
	}

	// Oldest frames (seq 0, 1) were evicted; seq 2..4 survive in order.
	frames := b.Drain()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Seq != uint64(i+2) {
			t.Errorf("frame %d: expected seq %d, got %d", i, i+2, f.Seq)
		}
	}
}

func TestFrameBuffer_Reset(t *testing.T) {
	b := NewFrameBuffer(2)
	b.Push(Frame{Seq: 0})
	b.Push(Frame{Seq: 1})
	b.Push(Frame{Seq: 2})

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("expected empty buffer after Reset, got %d", b.Len())
	}
	if b.Dropped() != 0 {
		t.Errorf("expected dropped counter cleared, got %d", b.Dropped())
	}
}
