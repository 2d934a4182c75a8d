package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
)

// DeepgramRecognizer implements Recognizer using Deepgram's live
// streaming API. Each Recognize call opens a fresh websocket session,
// so recognition is restartable per turn.
type DeepgramRecognizer struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	logger     zerolog.Logger
}

// NewDeepgramRecognizer creates a Deepgram-backed recognizer.
func NewDeepgramRecognizer(apiKey, model, language string, sampleRate int, logger zerolog.Logger) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		apiKey:     apiKey,
		model:      model,
		language:   language,
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "stt-deepgram").Logger(),
	}
}

// resultCallback implements the live message callback interface. It
// embeds the SDK default handler and overrides only the methods we
// need.
type resultCallback struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse)
}

func (c *resultCallback) Message(msg *msginterfaces.MessageResponse) error {
	c.onMessage(msg)
	return nil
}

func (c *resultCallback) Error(resp *msginterfaces.ErrorResponse) error {
	c.onError(resp)
	return nil
}

// Recognize implements Recognizer.
func (d *DeepgramRecognizer) Recognize(ctx context.Context, frames <-chan audio.Frame, language string) (<-chan Result, error) {
	if language == "" || language == LanguageAuto {
		language = d.language
	}

	results := make(chan Result, 32)
	var once sync.Once
	closeResults := func() { once.Do(func() { close(results) }) }

	emit := func(r Result) {
		select {
		case results <- r:
		case <-ctx.Done():
		}
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       language,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.sampleRate,
	}

	callback := &resultCallback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage: func(msg *msginterfaces.MessageResponse) {
			if msg == nil || len(msg.Channel.Alternatives) == 0 {
				return
			}
			alt := msg.Channel.Alternatives[0]
			if alt.Transcript == "" && !msg.IsFinal {
				return
			}
			emit(Result{
				Text:       alt.Transcript,
				Final:      msg.IsFinal,
				Confidence: alt.Confidence,
			})
			if msg.IsFinal {
				closeResults()
			}
		},
		onError: func(resp *msginterfaces.ErrorResponse) {
			d.logger.Warn().Str("description", resp.Description).Msg("deepgram stream error")
			closeResults()
		},
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.apiKey, nil, tOptions, callback)
	if err != nil {
		return nil, &Error{Transient: isTransientMessage(err.Error()), Err: fmt.Errorf("create deepgram client: %w", err)}
	}
	if ok := client.Connect(); !ok {
		return nil, &Error{Transient: true, Err: fmt.Errorf("connect to deepgram")}
	}

	// The callbacks are the only closers once the feed goroutine
	// exits; make sure results closes on cancellation even if the
	// provider never delivers a final or an error.
	go func() {
		<-ctx.Done()
		closeResults()
	}()

	go func() {
		defer client.Finish()
		for {
			select {
			case f, ok := <-frames:
				if !ok {
					// End of turn audio: Finish flushes the final result.
					return
				}
				if _, err := client.Write(audio.PCM16ToBytes(f.PCM)); err != nil {
					d.logger.Warn().Err(err).Msg("deepgram write failed")
					closeResults()
					return
				}
			case <-ctx.Done():
				closeResults()
				return
			}
		}
	}()

	return results, nil
}

// isTransientMessage classifies provider error text the way the
// upstream SDK surfaces connection problems.
func isTransientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"rate limit",
		"too many requests",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
