// Package pipeline implements the real-time conversational voice
// pipeline: turn detection, streaming recognition, dialogue
// management, ordered synthesis, paced playback and barge-in
// interruption, supervised per session.
package pipeline

import (
	"sync/atomic"
)

// TurnID identifies one user-utterance-to-bot-response cycle.
// IDs increase monotonically within a session and are never reused.
type TurnID uint64

// TurnCounter allocates monotonically increasing turn IDs.
type TurnCounter struct {
	last uint64
}

// Next returns the next turn ID.
func (c *TurnCounter) Next() TurnID {
	return TurnID(atomic.AddUint64(&c.last, 1))
}

// TurnState tracks the lifecycle of a turn. A turn either advances
// through the states in order and finishes at TurnCompleted, or is
// terminated early at TurnCancelled by the interruption controller.
type TurnState int

const (
	TurnTranscribing TurnState = iota
	TurnGenerating
	TurnSynthesizing
	TurnSpeaking
	TurnCompleted
	TurnCancelled
)

// String returns the string representation of the state.
func (s TurnState) String() string {
	switch s {
	case TurnTranscribing:
		return "transcribing"
	case TurnGenerating:
		return "generating"
	case TurnSynthesizing:
		return "synthesizing"
	case TurnSpeaking:
		return "speaking"
	case TurnCompleted:
		return "completed"
	case TurnCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Transcript is one incremental recognition result for a turn.
// Partials are superseded by later partials or the final within the
// same turn; only the final transcript drives the dialogue manager.
type Transcript struct {
	Turn       TurnID
	Text       string
	Final      bool
	Confidence float64

	// Degraded marks an empty final transcript produced after
	// recognition failed; the dialogue manager answers with a
	// clarification instead of stalling.
	Degraded bool

	// Lossy marks a final transcript whose audio lost frames to
	// buffer overflow.
	Lossy bool
}

// SentenceChunk is a unit of generated text delimited by sentence
// boundaries. Chunk indexes are contiguous from zero within a turn;
// synthesized audio must be emitted in chunk-index order.
type SentenceChunk struct {
	Turn  TurnID
	Index int
	Text  string
}
