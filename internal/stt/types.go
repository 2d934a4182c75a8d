package stt

import (
	"context"
	"errors"

	"github.com/hitcaff/vidya/internal/audio"
)

// Result is one incremental transcript update from the recognizer.
type Result struct {
	// Text is the transcribed text.
	Text string

	// Final indicates a final transcription (true) or interim (false).
	Final bool

	// Confidence is the confidence score (0.0 to 1.0) if available.
	Confidence float64
}

// Recognizer is the capability interface for streaming speech
// recognition. Recognize consumes the frame stream until it is closed
// or the context is cancelled, and delivers interim results followed by
// exactly one final result on the returned channel, which is closed
// when recognition ends.
//
// language selects the recognition language; LanguageAuto lets the
// provider detect it.
type Recognizer interface {
	Recognize(ctx context.Context, frames <-chan audio.Frame, language string) (<-chan Result, error)
}

// LanguageAuto asks the provider to auto-detect the spoken language.
const LanguageAuto = "auto"

// Error is a recognition failure. Transient errors may be retried by
// the caller; anything else requires a stage restart.
type Error struct {
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Transient {
		return "stt: transient: " + e.Err.Error()
	}
	return "stt: fatal: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient recognition error.
func IsTransient(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Transient
}
