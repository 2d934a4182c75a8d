package llm

import (
	"context"
	"errors"
)

// Prompt entry roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry in a prompt.
type Message struct {
	// Role is RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// Token is one streamed generation fragment. A token carrying Err is
// terminal: the stream failed after it started, and the channel
// closes right after it.
type Token struct {
	Text string
	Err  error
}

// Generator is the capability interface for streaming language
// generation. Generate returns a channel of tokens; the channel is
// closed when generation completes, after a terminal error token, or
// when the context is cancelled.
type Generator interface {
	Generate(ctx context.Context, prompt []Message) (<-chan Token, error)
}

// Error is a generation failure.
type Error struct {
	RateLimited bool
	Err         error
}

func (e *Error) Error() string {
	if e.RateLimited {
		return "llm: rate limited: " + e.Err.Error()
	}
	return "llm: fatal: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limit generation error.
func IsRateLimited(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.RateLimited
}
