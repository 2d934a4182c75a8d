package tts

import (
	"context"
	"errors"

	"github.com/hitcaff/vidya/internal/audio"
)

// VoiceParams selects the synthesis voice and delivery.
type VoiceParams struct {
	// VoiceID is the provider voice identifier.
	VoiceID string

	// Pace scales speaking speed; 1.0 is normal. The teaching default
	// is 0.8 for slow, clear speech.
	Pace float64
}

// Synthesizer is the capability interface for streaming speech
// synthesis. Synthesize returns a channel of audio frames for the
// given text; the channel is closed when synthesis completes or the
// context is cancelled.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, params VoiceParams) (<-chan audio.Frame, error)
}

// Error is a synthesis failure. Transient errors may be retried by the
// caller.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Transient {
		return "tts: transient: " + e.Err.Error()
	}
	return "tts: fatal: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient synthesis error.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Transient
}
