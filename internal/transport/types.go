// Package transport defines the bidirectional media transport
// capability consumed by the pipeline, independent of its concrete
// provider.
package transport

import (
	"github.com/hitcaff/vidya/internal/audio"
)

// Transport is a bidirectional audio frame channel bound to one
// session. Incoming delivers microphone frames from the client;
// WriteFrame sends synthesized frames back. Done is closed when the
// session ends, either because the peer disconnected or Close was
// called.
type Transport interface {
	// SessionID returns the identifier of the bound session.
	SessionID() string

	// Incoming returns the stream of microphone frames. The channel is
	// closed when the session ends.
	Incoming() <-chan audio.Frame

	// WriteFrame sends one synthesized frame to the client.
	WriteFrame(f audio.Frame) error

	// Done is closed once the session has ended.
	Done() <-chan struct{}

	// Close ends the session gracefully.
	Close() error
}
