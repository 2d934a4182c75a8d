package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitcaff/vidya/internal/llm"
	"github.com/hitcaff/vidya/internal/stt"
	"github.com/hitcaff/vidya/internal/tts"
)

// Severity classifies a stage failure by its blast radius.
type Severity int

const (
	// SeverityTransient failures are retried within their stage and
	// never surface to the user.
	SeverityTransient Severity = iota

	// SeverityDegraded failures let the turn finish on a reduced
	// path, such as an empty transcript answered with a
	// clarification.
	SeverityDegraded

	// SeverityFatal failures end the current turn and consume one
	// unit of the session's restart budget.
	SeverityFatal

	// SeveritySessionFatal failures end the whole session.
	SeveritySessionFatal
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityTransient:
		return "transient"
	case SeverityDegraded:
		return "degraded"
	case SeverityFatal:
		return "fatal"
	case SeveritySessionFatal:
		return "session_fatal"
	default:
		return "unknown"
	}
}

// StageError wraps a failure with the stage it happened in and its
// classified severity.
type StageError struct {
	Stage    string
	Severity Severity
	Err      error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %s error: %v", e.Stage, e.Severity, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// FaultFunc receives stage fault notifications. The supervisor uses
// it to charge fatal faults against the session restart budget.
type FaultFunc func(stage string, severity Severity)

// ClassifySeverity maps an arbitrary stage error onto the severity
// taxonomy. Provider errors carry their own transience hints;
// anything unrecognized is fatal for the turn.
func ClassifySeverity(err error) Severity {
	if err == nil {
		return SeverityTransient
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Severity
	}
	if stt.IsTransient(err) || tts.IsTransient(err) || llm.IsRateLimited(err) {
		return SeverityTransient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SeverityTransient
	}
	return SeverityFatal
}
