package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/observability"
)

// FrameWriter is the playback sink the scheduler writes to.
type FrameWriter interface {
	WriteFrame(f audio.Frame) error
}

// ErrTurnConflict is returned when frames for a new turn arrive
// before the previous turn's queue was drained or flushed.
var ErrTurnConflict = errors.New("scheduler queue still holds frames of a previous turn")

// SpeakingFunc is notified when the bot transitions between speaking
// and silent. Called outside the scheduler lock.
type SpeakingFunc func(speaking bool, turn TurnID)

// OutputScheduler paces bot audio to the sink in real time, one
// frame per frame-duration, instead of dumping synthesized audio as
// fast as it arrives. Pacing is what keeps a barge-in flush
// meaningful: frames not yet written can still be thrown away. The
// queue holds frames for at most one turn at a time and is capped at
// maxFrames; frames past the cap are dropped.
type OutputScheduler struct {
	sink      FrameWriter
	maxFrames int
	logger    zerolog.Logger
	metrics   *observability.Metrics

	mu         sync.Mutex
	queue      []audio.Frame
	turn       TurnID
	hasTurn    bool
	speaking   bool
	notify     chan struct{}
	idle       chan struct{}
	onSpeaking SpeakingFunc
}

// NewOutputScheduler creates a scheduler writing to sink, queueing at
// most maxFrames frames. A non-positive maxFrames leaves the queue
// unbounded.
func NewOutputScheduler(sink FrameWriter, maxFrames int, logger zerolog.Logger, metrics *observability.Metrics) *OutputScheduler {
	idle := make(chan struct{})
	close(idle)
	return &OutputScheduler{
		sink:      sink,
		maxFrames: maxFrames,
		logger:    logger.With().Str("stage", "scheduler").Logger(),
		metrics:   metrics,
		notify:    make(chan struct{}, 1),
		idle:      idle,
	}
}

// OnSpeakingChange registers the speaking-state callback. Must be
// set before Run.
func (s *OutputScheduler) OnSpeakingChange(fn SpeakingFunc) {
	s.onSpeaking = fn
}

// Enqueue appends a run of frames for a turn. Frames for a turn
// other than the one currently queued are rejected until the queue
// drains or is flushed.
func (s *OutputScheduler) Enqueue(turn TurnID, frames []audio.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.hasTurn && s.turn != turn && (len(s.queue) > 0 || s.speaking) {
		s.mu.Unlock()
		return ErrTurnConflict
	}
	if !s.hasTurn || s.turn != turn {
		s.turn = turn
		s.hasTurn = true
	}
	if len(s.queue) == 0 {
		s.idle = make(chan struct{})
	}
	s.queue = append(s.queue, frames...)
	dropped := 0
	if s.maxFrames > 0 && len(s.queue) > s.maxFrames {
		dropped = len(s.queue) - s.maxFrames
		s.queue = s.queue[:s.maxFrames]
	}
	s.mu.Unlock()
	if dropped > 0 {
		s.logger.Warn().Uint64("turn_id", uint64(turn)).Int("frames", dropped).Msg("playback queue full, dropping frames")
		s.metrics.RecordDroppedFrames(dropped)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Flush discards all queued frames for the given turn. The frame
// being written finishes; playback stops at the frame boundary.
// Flushing a turn that is not queued is a no-op.
func (s *OutputScheduler) Flush(turn TurnID) {
	s.mu.Lock()
	if !s.hasTurn || s.turn != turn {
		s.mu.Unlock()
		return
	}
	dropped := len(s.queue)
	s.queue = nil
	s.hasTurn = false
	s.mu.Unlock()
	if dropped > 0 {
		s.logger.Debug().Uint64("turn_id", uint64(turn)).Int("frames", dropped).Msg("flushed queued frames")
	}
}

// IsSpeaking reports whether bot audio is queued or being written.
func (s *OutputScheduler) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking || len(s.queue) > 0
}

// Idle returns a channel closed while the queue is empty and nothing
// is being written. Callers wait on it before enqueuing a new turn.
func (s *OutputScheduler) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// Run drives the pacing loop until the context is cancelled. Each
// frame is written on an absolute schedule advanced by the frame's
// duration, so playback speed is independent of synthesis speed.
func (s *OutputScheduler) Run(ctx context.Context) error {
	var nextAt time.Time
	for {
		f, turn, ok := s.pop()
		if !ok {
			nextAt = time.Time{}
			select {
			case <-s.notify:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		now := time.Now()
		if nextAt.IsZero() || now.After(nextAt) {
			nextAt = now
		}
		if wait := nextAt.Sub(now); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := s.sink.WriteFrame(f); err != nil {
			s.logger.Warn().Err(err).Uint64("turn_id", uint64(turn)).Msg("frame write failed")
			s.metrics.RecordError("transient", "scheduler")
		}
		nextAt = nextAt.Add(f.Duration())
	}
}

// pop dequeues the next frame, maintaining speaking state and the
// idle channel.
func (s *OutputScheduler) pop() (audio.Frame, TurnID, bool) {
	s.mu.Lock()
	if len(s.queue) == 0 {
		turn := s.turn
		wasSpeaking := s.speaking
		s.speaking = false
		s.hasTurn = false
		select {
		case <-s.idle:
		default:
			close(s.idle)
		}
		fn := s.onSpeaking
		s.mu.Unlock()
		if wasSpeaking && fn != nil {
			fn(false, turn)
		}
		return audio.Frame{}, 0, false
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	turn := s.turn
	wasSpeaking := s.speaking
	s.speaking = true
	fn := s.onSpeaking
	s.mu.Unlock()
	if !wasSpeaking && fn != nil {
		fn(true, turn)
	}
	return f, turn, true
}
