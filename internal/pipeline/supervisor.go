package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/observability"
	"github.com/hitcaff/vidya/internal/resilience"
	"github.com/hitcaff/vidya/internal/transport"
)

// SessionApology is the final phrase spoken when the session has to
// end because the restart budget is exhausted.
const SessionApology = "I am sorry, something went wrong on my side. Let us talk again soon."

// SupervisorConfig tunes a session supervisor.
type SupervisorConfig struct {
	// Detector configures turn detection; nil selects defaults.
	Detector *audio.DetectorConfig

	// GreetingInstruction, when set, drives a bot-initiated
	// greeting turn as soon as the session starts.
	GreetingInstruction string

	// RestartLimit and RestartWindow bound how many fatal stage
	// faults the session absorbs before it gives up.
	RestartLimit  int
	RestartWindow time.Duration
}

type activeTurn struct {
	id     TurnID
	cancel context.CancelFunc
}

// SessionSupervisor wires one transport session through the stages:
// turn detection feeds recognition, final transcripts drive the
// dialogue manager, sentence chunks flow through synthesis into the
// paced output scheduler, and the interruption controller cancels
// the speaking turn on a confirmed barge-in. Fatal stage faults
// consume a windowed restart budget; when it runs out the session
// ends with a spoken apology. Conversation state survives every
// restart.
type SessionSupervisor struct {
	transport   transport.Transport
	recognition *RecognitionStage
	dialogue    *DialogueManager
	synthesis   *SynthesisStage
	scheduler   *OutputScheduler
	detector    *audio.TurnDetector
	interrupts  *InterruptionController
	restarts    *resilience.RestartBudget
	turns       TurnCounter
	cfg         SupervisorConfig
	logger      zerolog.Logger
	metrics     *observability.Metrics

	mu      sync.Mutex
	current *activeTurn

	turnWG    sync.WaitGroup
	fatalOnce sync.Once
	endCause  error
	cancelAll context.CancelFunc
}

// NewSessionSupervisor assembles a supervisor for one session. The
// scheduler must have been created around the same transport.
func NewSessionSupervisor(t transport.Transport, recognition *RecognitionStage, dialogue *DialogueManager, synthesis *SynthesisStage, scheduler *OutputScheduler, cfg SupervisorConfig, logger zerolog.Logger, metrics *observability.Metrics) *SessionSupervisor {
	detCfg := cfg.Detector
	if detCfg == nil {
		detCfg = audio.DefaultDetectorConfig()
	}
	s := &SessionSupervisor{
		transport:   t,
		recognition: recognition,
		dialogue:    dialogue,
		synthesis:   synthesis,
		scheduler:   scheduler,
		detector:    audio.NewTurnDetector(detCfg),
		interrupts:  NewInterruptionController(detCfg.Debounce, logger, metrics),
		restarts:    resilience.NewRestartBudget(cfg.RestartLimit, cfg.RestartWindow),
		cfg:         cfg,
		logger:      logger.With().Str("component", "supervisor").Logger(),
		metrics:     metrics,
	}
	recognition.OnFault(s.noteFault)
	dialogue.OnFault(s.noteFault)
	synthesis.OnFault(s.noteFault)
	scheduler.OnSpeakingChange(s.interrupts.SetSpeaking)
	return s
}

// Run drives the session until the transport closes, the context is
// cancelled, or the restart budget is exhausted.
func (s *SessionSupervisor) Run(ctx context.Context) error {
	s.metrics.RecordSessionStart()
	defer s.metrics.RecordSessionEnd()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelAll = cancel

	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error {
		err := s.scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		select {
		case <-s.transport.Done():
			s.logger.Info().Msg("transport closed, ending session")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	if s.cfg.GreetingInstruction != "" {
		g.Go(func() error {
			s.runGreeting(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return s.loop(gctx)
	})

	err := g.Wait()
	s.turnWG.Wait()
	if s.endCause != nil {
		return s.endCause
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop routes incoming mic frames. While the bot is silent frames go
// through turn detection; while it speaks they feed the interruption
// controller instead. A capture channel is open exactly while a
// user turn is being collected.
func (s *SessionSupervisor) loop(ctx context.Context) error {
	incoming := s.transport.Incoming()
	var capture chan audio.Frame
	defer func() {
		if capture != nil {
			close(capture)
		}
	}()

	for {
		select {
		case f, ok := <-incoming:
			if !ok {
				return nil
			}
			if capture != nil {
				ev, _ := s.detector.ProcessFrame(f)
				select {
				case capture <- f:
				case <-ctx.Done():
					return ctx.Err()
				}
				if ev == audio.EventSpeechEnd {
					close(capture)
					capture = nil
				}
				continue
			}
			if s.scheduler.IsSpeaking() {
				triggered, seed := s.interrupts.ObserveFrame(f, s.detector.IsVoiced(f))
				if triggered {
					capture = s.handleBargeIn(ctx, seed)
				}
				continue
			}
			ev, onset := s.detector.ProcessFrame(f)
			if ev == audio.EventSpeechStart {
				capture = s.startTurn(ctx, onset)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// startTurn begins a new turn seeded with its onset frames and
// returns the capture channel the loop keeps feeding until speech
// end.
func (s *SessionSupervisor) startTurn(ctx context.Context, onset []audio.Frame) chan audio.Frame {
	id := s.turns.Next()
	turnCtx, cancel := context.WithCancel(ctx)
	s.setCurrent(&activeTurn{id: id, cancel: cancel})

	capacity := 64
	if len(onset) >= capacity {
		capacity = len(onset) + 16
	}
	capture := make(chan audio.Frame, capacity)
	for _, f := range onset {
		capture <- f
	}

	s.logger.Info().Uint64("turn_id", uint64(id)).Int("onset_frames", len(onset)).Msg("turn started")
	transcripts := s.recognition.Transcribe(turnCtx, id, capture)

	s.turnWG.Add(1)
	go func() {
		defer s.turnWG.Done()
		defer cancel()
		s.runTurn(turnCtx, id, transcripts)
	}()
	return capture
}

// handleBargeIn cancels the speaking turn, flushes its queued audio
// and starts the interrupting turn seeded with the frames that
// confirmed the barge-in.
func (s *SessionSupervisor) handleBargeIn(ctx context.Context, seed []audio.Frame) chan audio.Frame {
	if prev := s.takeCurrent(); prev != nil {
		s.logger.Info().Uint64("turn_id", uint64(prev.id)).Msg("barge-in, cancelling speaking turn")
		prev.cancel()
		s.scheduler.Flush(prev.id)
		s.metrics.RecordTurn(TurnCancelled.String())
	}
	s.interrupts.Reset()
	s.detector.BeginActive()
	return s.startTurn(ctx, seed)
}

// runTurn carries one turn from final transcript to drained
// playback.
func (s *SessionSupervisor) runTurn(ctx context.Context, id TurnID, transcripts <-chan Transcript) {
	var final *Transcript
	for t := range transcripts {
		if t.Final {
			tt := t
			final = &tt
			break
		}
		s.logger.Debug().Uint64("turn_id", uint64(id)).Str("text", t.Text).Msg("partial transcript")
	}
	if final == nil || ctx.Err() != nil {
		s.metrics.RecordTurn(TurnCancelled.String())
		return
	}
	s.logger.Info().
		Uint64("turn_id", uint64(id)).
		Str("text", final.Text).
		Bool("degraded", final.Degraded).
		Bool("lossy", final.Lossy).
		Msg("final transcript")

	chunks := s.dialogue.Respond(ctx, *final)
	s.speakTurn(ctx, id, chunks)
}

// runGreeting speaks the bot-initiated opening turn.
func (s *SessionSupervisor) runGreeting(ctx context.Context) {
	id := s.turns.Next()
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setCurrent(&activeTurn{id: id, cancel: cancel})
	s.logger.Info().Uint64("turn_id", uint64(id)).Msg("greeting turn")

	chunks := s.dialogue.Greet(turnCtx, id, s.cfg.GreetingInstruction)
	s.speakTurn(turnCtx, id, chunks)
}

// speakTurn pushes a turn's synthesized audio through the scheduler
// and waits for playback to drain before declaring the turn
// complete.
func (s *SessionSupervisor) speakTurn(ctx context.Context, id TurnID, chunks <-chan SentenceChunk) {
	runs := s.synthesis.Speak(ctx, id, chunks)
	enqueued := false
	for run := range runs {
		if !enqueued {
			// Claim the queue only once the previous turn's audio
			// is fully drained.
			select {
			case <-s.scheduler.Idle():
			case <-ctx.Done():
				s.drainRuns(runs)
				s.metrics.RecordTurn(TurnCancelled.String())
				return
			}
			enqueued = true
		}
		if err := s.scheduler.Enqueue(id, run); err != nil {
			s.logger.Error().Err(err).Uint64("turn_id", uint64(id)).Msg("enqueue rejected")
		}
	}
	if ctx.Err() != nil {
		s.metrics.RecordTurn(TurnCancelled.String())
		return
	}
	select {
	case <-s.scheduler.Idle():
	case <-ctx.Done():
		s.metrics.RecordTurn(TurnCancelled.String())
		return
	}
	s.metrics.RecordTurn(TurnCompleted.String())
	s.logger.Info().Uint64("turn_id", uint64(id)).Msg("turn completed")
}

func (s *SessionSupervisor) drainRuns(runs <-chan []audio.Frame) {
	for range runs {
	}
}

// noteFault charges fatal stage faults against the restart budget.
// Stages keep no state across turns, so a restart is simply the next
// turn hitting the stage fresh; conversation state is preserved by
// construction.
func (s *SessionSupervisor) noteFault(stage string, sev Severity) {
	if sev < SeverityFatal {
		return
	}
	s.metrics.RecordStageRestart(stage)
	if s.restarts.Allow() {
		s.logger.Warn().
			Str("stage", stage).
			Int("restarts_used", s.restarts.Used()).
			Msg("fatal stage fault, restarting stage")
		return
	}
	s.logger.Error().Str("stage", stage).Msg("restart budget exhausted, ending session")
	s.metrics.RecordError(SeveritySessionFatal.String(), stage)
	s.failSession()
}

// failSession speaks a final apology, best effort, then tears the
// session down.
func (s *SessionSupervisor) failSession() {
	s.fatalOnce.Do(func() {
		s.endCause = errors.New("session restart budget exhausted")
		go func() {
			if prev := s.takeCurrent(); prev != nil {
				prev.cancel()
				s.scheduler.Flush(prev.id)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.speakApology(ctx)
			_ = s.transport.Close()
			if s.cancelAll != nil {
				s.cancelAll()
			}
		}()
	})
}

func (s *SessionSupervisor) speakApology(ctx context.Context) {
	id := s.turns.Next()
	chunks := make(chan SentenceChunk, 1)
	chunks <- SentenceChunk{Turn: id, Index: 0, Text: SessionApology}
	close(chunks)
	s.speakTurn(ctx, id, chunks)
}

// Conversation exposes the session's conversation state so callers
// can snapshot history at session end.
func (s *SessionSupervisor) Conversation() *ConversationState {
	return s.dialogue.State()
}

func (s *SessionSupervisor) setCurrent(t *activeTurn) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

func (s *SessionSupervisor) takeCurrent() *activeTurn {
	s.mu.Lock()
	t := s.current
	s.current = nil
	s.mu.Unlock()
	return t
}
