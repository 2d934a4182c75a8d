package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/observability"
	"github.com/hitcaff/vidya/internal/resilience"
	"github.com/hitcaff/vidya/internal/tts"
)

// SynthesisAbortPhrase is spoken when too many chunks of a turn fail
// to synthesize and the turn is abandoned.
const SynthesisAbortPhrase = "Sorry, my voice is having trouble right now. Let us try that again."

// SynthesisStage converts sentence chunks into audio frame runs.
// Chunks are dispatched to the synthesizer concurrently but their
// audio is emitted strictly in chunk-index order through a reorder
// buffer. A chunk that fails past its retry budget is skipped;
// when skips exceed skipThreshold the turn aborts with an audible
// fallback phrase.
type SynthesisStage struct {
	synthesizer   tts.Synthesizer
	voice         tts.VoiceParams
	concurrency   int
	skipThreshold int
	retry         *resilience.RetryConfig
	logger        zerolog.Logger
	metrics       *observability.Metrics
	onFault       FaultFunc
}

// OnFault registers the stage fault hook. Must be set before the
// stage is used.
func (s *SynthesisStage) OnFault(fn FaultFunc) {
	s.onFault = fn
}

// NewSynthesisStage creates a synthesis stage.
func NewSynthesisStage(synthesizer tts.Synthesizer, voice tts.VoiceParams, concurrency, skipThreshold int, retry *resilience.RetryConfig, logger zerolog.Logger, metrics *observability.Metrics) *SynthesisStage {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SynthesisStage{
		synthesizer:   synthesizer,
		voice:         voice,
		concurrency:   concurrency,
		skipThreshold: skipThreshold,
		retry:         retry,
		logger:        logger.With().Str("stage", "synthesis").Logger(),
		metrics:       metrics,
	}
}

type synthResult struct {
	index  int
	frames []audio.Frame
	err    error
}

// Speak consumes the turn's sentence chunks in arrival order and
// emits one frame run per surviving chunk, in chunk-index order. The
// returned channel closes when the turn's chunks are exhausted,
// skipped past the threshold, or the context is cancelled.
func (s *SynthesisStage) Speak(ctx context.Context, turn TurnID, chunks <-chan SentenceChunk) <-chan []audio.Frame {
	out := make(chan []audio.Frame, s.concurrency)
	go s.run(ctx, turn, chunks, out)
	return out
}

func (s *SynthesisStage) run(ctx context.Context, turn TurnID, chunks <-chan SentenceChunk, out chan<- []audio.Frame) {
	defer close(out)
	s.metrics.RecordStageStart("synthesis")
	defer s.metrics.RecordStageEnd("synthesis")

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()

	results := make(chan synthResult, s.concurrency)
	go s.dispatch(dispatchCtx, chunks, results)

	next := 0
	skipped := 0
	pending := make(map[int]synthResult)
	for res := range results {
		pending[res.index] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if r.err != nil {
				skipped++
				s.metrics.RecordSkippedChunk()
				s.logger.Warn().
					Err(r.err).
					Uint64("turn_id", uint64(turn)).
					Int("chunk_index", r.index).
					Int("skipped", skipped).
					Msg("chunk synthesis failed, skipping")
				if skipped > s.skipThreshold {
					cancelDispatch()
					s.abort(ctx, turn, out)
					return
				}
				continue
			}
			select {
			case out <- r.frames:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatch fans chunks out to synthesis workers, at most
// s.concurrency in flight, and closes results when all workers are
// done.
func (s *SynthesisStage) dispatch(ctx context.Context, chunks <-chan SentenceChunk, results chan<- synthResult) {
	defer close(results)
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	for {
		var chunk SentenceChunk
		var ok bool
		select {
		case chunk, ok = <-chunks:
			if !ok {
				wg.Wait()
				return
			}
		case <-ctx.Done():
			wg.Wait()
			return
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(c SentenceChunk) {
			defer wg.Done()
			defer func() { <-sem }()
			frames, err := s.synthesizeChunk(ctx, c)
			select {
			case results <- synthResult{index: c.Index, frames: frames, err: err}:
			case <-ctx.Done():
			}
		}(chunk)
	}
}

// synthesizeChunk synthesizes one chunk, retrying transient provider
// failures, and collects its frames.
func (s *SynthesisStage) synthesizeChunk(ctx context.Context, c SentenceChunk) ([]audio.Frame, error) {
	var frames []audio.Frame
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		stream, err := s.synthesizer.Synthesize(ctx, c.Text, s.voice)
		if err != nil {
			return err
		}
		collected := frames[:0]
		for f := range stream {
			collected = append(collected, f)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frames = collected
		return nil
	}, s.retry, tts.IsTransient)
	if err != nil {
		return nil, err
	}
	return frames, nil
}

// abort speaks the fallback phrase for an abandoned turn, best
// effort.
func (s *SynthesisStage) abort(ctx context.Context, turn TurnID, out chan<- []audio.Frame) {
	s.metrics.RecordError("fatal", "synthesis")
	s.logger.Error().Uint64("turn_id", uint64(turn)).Msg("too many skipped chunks, aborting turn")
	if s.onFault != nil {
		s.onFault("synthesis", SeverityFatal)
	}
	frames, err := s.synthesizeChunk(ctx, SentenceChunk{Turn: turn, Text: SynthesisAbortPhrase})
	if err != nil {
		s.logger.Error().Err(err).Uint64("turn_id", uint64(turn)).Msg("fallback synthesis failed")
		return
	}
	select {
	case out <- frames:
	case <-ctx.Done():
	}
}
