package pipeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/observability"
)

// InterruptState is the barge-in state machine.
type InterruptState int

const (
	// InterruptIdle: the bot is silent, mic audio flows to turn
	// detection.
	InterruptIdle InterruptState = iota

	// InterruptBotSpeaking: bot audio is playing, mic audio is
	// watched for voice onset.
	InterruptBotSpeaking

	// InterruptCandidate: voice detected over bot audio, waiting
	// for it to sustain past the debounce window.
	InterruptCandidate

	// InterruptTriggered: sustained voice confirmed, the speaking
	// turn must be cancelled.
	InterruptTriggered
)

// String returns the string representation of the state.
func (s InterruptState) String() string {
	switch s {
	case InterruptIdle:
		return "idle"
	case InterruptBotSpeaking:
		return "bot_speaking"
	case InterruptCandidate:
		return "candidate"
	case InterruptTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// InterruptionController watches mic audio while the bot is speaking
// and confirms barge-ins. User voice must sustain past the debounce
// window, the same threshold normal turn detection uses, before the
// speaking turn is cancelled; a single voiced frame over bot audio
// is ignored. Frames observed during the candidate window are kept
// and seed the interrupting turn so its onset is not lost.
type InterruptionController struct {
	mu        sync.Mutex
	state     InterruptState
	turn      TurnID
	debounce  time.Duration
	sustained time.Duration
	candidate []audio.Frame
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewInterruptionController creates a controller with the given
// sustain debounce.
func NewInterruptionController(debounce time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *InterruptionController {
	return &InterruptionController{
		debounce: debounce,
		logger:   logger.With().Str("stage", "interrupt").Logger(),
		metrics:  metrics,
	}
}

// SetSpeaking tracks scheduler speaking-state transitions. Entering
// speaking arms the controller; leaving it disarms and discards any
// unconfirmed candidate.
func (c *InterruptionController) SetSpeaking(speaking bool, turn TurnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if speaking {
		if c.state == InterruptIdle {
			c.state = InterruptBotSpeaking
			c.turn = turn
		}
		return
	}
	if c.state == InterruptBotSpeaking || c.state == InterruptCandidate {
		c.reset()
	}
}

// ObserveFrame feeds one mic frame while the bot is speaking. voiced
// reports whether the frame's energy cleared the voice threshold.
// When sustained voice confirms a barge-in it returns true along
// with the frames observed since the candidate began, which seed the
// new turn.
func (c *InterruptionController) ObserveFrame(f audio.Frame, voiced bool) (bool, []audio.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case InterruptBotSpeaking:
		if !voiced {
			return false, nil
		}
		c.state = InterruptCandidate
		c.sustained = f.Duration()
		c.candidate = append(c.candidate[:0], f)
		if c.sustained >= c.debounce {
			return c.trigger()
		}
	case InterruptCandidate:
		c.candidate = append(c.candidate, f)
		if !voiced {
			// Voice did not sustain; treat it as a blip.
			c.state = InterruptBotSpeaking
			c.sustained = 0
			c.candidate = c.candidate[:0]
			return false, nil
		}
		c.sustained += f.Duration()
		if c.sustained >= c.debounce {
			return c.trigger()
		}
	}
	return false, nil
}

// trigger confirms the barge-in. Caller holds the lock.
func (c *InterruptionController) trigger() (bool, []audio.Frame) {
	c.state = InterruptTriggered
	seed := make([]audio.Frame, len(c.candidate))
	copy(seed, c.candidate)
	c.logger.Info().
		Uint64("turn_id", uint64(c.turn)).
		Dur("sustained", c.sustained).
		Int("seed_frames", len(seed)).
		Msg("barge-in confirmed")
	c.metrics.RecordBargeIn()
	return true, seed
}

// State returns the current state.
func (c *InterruptionController) State() InterruptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset returns the controller to idle once the interrupting turn is
// underway.
func (c *InterruptionController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *InterruptionController) reset() {
	c.state = InterruptIdle
	c.turn = 0
	c.sustained = 0
	c.candidate = c.candidate[:0]
}
