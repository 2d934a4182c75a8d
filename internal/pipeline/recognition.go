package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/observability"
	"github.com/hitcaff/vidya/internal/resilience"
	"github.com/hitcaff/vidya/internal/stt"
)

// RecognitionStage turns a stream of speech frames into transcripts.
// Incoming frames land in a bounded drop-oldest buffer so a slow or
// reconnecting recognizer never blocks audio capture; a transient
// recognizer failure is retried once against the audio still held in
// the buffer.
type RecognitionStage struct {
	recognizer  stt.Recognizer
	language    string
	bufferLimit int
	retry       *resilience.RetryConfig
	logger      zerolog.Logger
	metrics     *observability.Metrics
	onFault     FaultFunc
}

// OnFault registers the stage fault hook. Must be set before the
// stage is used.
func (s *RecognitionStage) OnFault(fn FaultFunc) {
	s.onFault = fn
}

func (s *RecognitionStage) fault(sev Severity) {
	if s.onFault != nil {
		s.onFault("recognition", sev)
	}
}

// NewRecognitionStage creates a recognition stage.
func NewRecognitionStage(recognizer stt.Recognizer, language string, bufferLimit int, retry *resilience.RetryConfig, logger zerolog.Logger, metrics *observability.Metrics) *RecognitionStage {
	return &RecognitionStage{
		recognizer:  recognizer,
		language:    language,
		bufferLimit: bufferLimit,
		retry:       retry,
		logger:      logger.With().Str("stage", "recognition").Logger(),
		metrics:     metrics,
	}
}

// Transcribe runs recognition for one turn. The frames channel
// carries the turn's audio and is closed at speech end. The returned
// channel emits zero or more partial transcripts followed by exactly
// one final transcript, then closes. When recognition fails past its
// retry budget the final transcript is empty and marked degraded so
// the turn still completes.
func (s *RecognitionStage) Transcribe(ctx context.Context, turn TurnID, frames <-chan audio.Frame) <-chan Transcript {
	out := make(chan Transcript, 8)
	go s.run(ctx, turn, frames, out)
	return out
}

func (s *RecognitionStage) run(ctx context.Context, turn TurnID, frames <-chan audio.Frame, out chan<- Transcript) {
	defer close(out)
	s.metrics.RecordStageStart("recognition")
	defer s.metrics.RecordStageEnd("recognition")

	buffer := audio.NewFrameBuffer(s.bufferLimit)
	notify := make(chan struct{}, 1)
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		for f := range frames {
			if buffer.Push(f) {
				s.metrics.RecordDroppedFrames(1)
			}
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}()

	var final *Transcript
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		t, err := s.attempt(ctx, turn, buffer, notify, ingestDone, out)
		if err != nil {
			s.logger.Warn().Err(err).Uint64("turn_id", uint64(turn)).Msg("recognition attempt failed")
			return err
		}
		final = t
		return nil
	}, s.retry, stt.IsTransient)

	lossy := buffer.Dropped() > 0
	if lossy {
		s.logger.Warn().
			Uint64("turn_id", uint64(turn)).
			Uint64("dropped_frames", buffer.Dropped()).
			Msg("recognition buffer overflowed, transcript is lossy")
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if stt.IsTransient(err) {
			s.fault(SeverityDegraded)
		} else {
			s.fault(SeverityFatal)
		}
		s.metrics.RecordError("degraded", "recognition")
		select {
		case out <- Transcript{Turn: turn, Final: true, Degraded: true, Lossy: lossy}:
		case <-ctx.Done():
		}
		return
	}
	final.Lossy = lossy
	select {
	case out <- *final:
	case <-ctx.Done():
	}
}

// attempt feeds the buffered audio to the recognizer and waits for a
// final result. Frames popped for a failed attempt are gone; a retry
// works with whatever the buffer still holds plus audio that keeps
// arriving.
func (s *RecognitionStage) attempt(ctx context.Context, turn TurnID, buffer *audio.FrameBuffer, notify <-chan struct{}, ingestDone <-chan struct{}, out chan<- Transcript) (*Transcript, error) {
	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()

	feed := make(chan audio.Frame, 32)
	go func() {
		defer close(feed)
		for {
			if f, ok := buffer.Pop(); ok {
				select {
				case feed <- f:
				case <-feedCtx.Done():
					return
				}
				continue
			}
			select {
			case <-notify:
			case <-ingestDone:
				if buffer.Len() == 0 {
					return
				}
			case <-feedCtx.Done():
				return
			}
		}
	}()

	results, err := s.recognizer.Recognize(ctx, feed, s.language)
	if err != nil {
		return nil, err
	}
	// The receive must not trust the recognizer to close its stream:
	// a provider that goes quiet after the audio ends would otherwise
	// pin the turn goroutine forever.
	for {
		var r stt.Result
		var ok bool
		select {
		case r, ok = <-results:
		case <-ctx.Done():
			return nil, &stt.Error{Transient: true, Err: ctx.Err()}
		}
		if !ok {
			return nil, &stt.Error{Transient: true, Err: errors.New("recognizer stream ended without a final result")}
		}
		t := Transcript{Turn: turn, Text: r.Text, Final: r.Final, Confidence: r.Confidence}
		if r.Final {
			return &t, nil
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
