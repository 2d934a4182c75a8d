package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/audio"
	"github.com/hitcaff/vidya/internal/llm"
	"github.com/hitcaff/vidya/internal/observability"
	"github.com/hitcaff/vidya/internal/resilience"
	"github.com/hitcaff/vidya/internal/stt"
	"github.com/hitcaff/vidya/internal/tts"
)

const testSampleRate = 16000

// frame20ms builds a 20ms frame with a constant amplitude.
func frame20ms(amplitude int16, seq uint64) audio.Frame {
	pcm := make([]int16, testSampleRate/50)
	for i := range pcm {
		pcm[i] = amplitude
	}
	return audio.Frame{PCM: pcm, SampleRate: testSampleRate, Seq: seq}
}

func voicedFrame(seq uint64) audio.Frame { return frame20ms(2000, seq) }
func silentFrame(seq uint64) audio.Frame { return frame20ms(0, seq) }

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testMetrics() *observability.Metrics {
	return observability.NewSessionMetrics("test-session")
}

func fastRetry(attempts int) *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

// fakeRecognizer drains the turn's audio and answers with a fixed
// final transcript, failing its first failures calls transiently.
type fakeRecognizer struct {
	mu       sync.Mutex
	text     string
	failures int
	calls    int
}

func (r *fakeRecognizer) setText(text string) {
	r.mu.Lock()
	r.text = text
	r.mu.Unlock()
}

func (r *fakeRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRecognizer) Recognize(ctx context.Context, frames <-chan audio.Frame, language string) (<-chan stt.Result, error) {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	text := r.text
	r.mu.Unlock()
	if fail {
		go func() {
			for range frames {
			}
		}()
		return nil, &stt.Error{Transient: true, Err: errors.New("connection reset")}
	}
	out := make(chan stt.Result, 2)
	go func() {
		defer close(out)
		for range frames {
		}
		select {
		case out <- stt.Result{Text: text, Final: true, Confidence: 0.92}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// slowRecognizer reads no audio until the frame stream closes,
// forcing the recognition buffer to absorb the whole turn.
type slowRecognizer struct {
	text string
}

func (r *slowRecognizer) Recognize(ctx context.Context, frames <-chan audio.Frame, language string) (<-chan stt.Result, error) {
	out := make(chan stt.Result, 1)
	go func() {
		defer close(out)
		for range frames {
		}
		out <- stt.Result{Text: r.text, Final: true, Confidence: 0.9}
	}()
	return out, nil
}

// stallingRecognizer accepts audio but never delivers a result and
// never closes its stream.
type stallingRecognizer struct{}

func (r *stallingRecognizer) Recognize(ctx context.Context, frames <-chan audio.Frame, language string) (<-chan stt.Result, error) {
	go func() {
		for range frames {
		}
	}()
	return make(chan stt.Result), nil
}

// fakeGenerator streams its response split into word tokens. When
// blockAfter is positive it stalls after that many tokens until the
// context is cancelled; when streamErr is set it emits a terminal
// error token after failAfter tokens.
type fakeGenerator struct {
	mu         sync.Mutex
	response   string
	err        error
	streamErr  error
	failAfter  int
	blockAfter int
	prompts    [][]llm.Message
}

func (g *fakeGenerator) setResponse(response string) {
	g.mu.Lock()
	g.response = response
	g.mu.Unlock()
}

func (g *fakeGenerator) lastPrompt() []llm.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return nil
	}
	return g.prompts[len(g.prompts)-1]
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt []llm.Message) (<-chan llm.Token, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	response, genErr, blockAfter := g.response, g.err, g.blockAfter
	streamErr, failAfter := g.streamErr, g.failAfter
	g.mu.Unlock()
	if genErr != nil {
		return nil, genErr
	}
	out := make(chan llm.Token, 8)
	go func() {
		defer close(out)
		words := strings.SplitAfter(response, " ")
		for i, w := range words {
			if streamErr != nil && i >= failAfter {
				select {
				case out <- llm.Token{Err: streamErr}:
				case <-ctx.Done():
				}
				return
			}
			if blockAfter > 0 && i >= blockAfter {
				<-ctx.Done()
				return
			}
			select {
			case out <- llm.Token{Text: w}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// fakeSynthesizer emits framesPerChunk frames per call, delayed by
// the per-text delay, and fails texts listed in failTexts.
type fakeSynthesizer struct {
	mu             sync.Mutex
	framesPerChunk int
	failTexts      map[string]int
	failTransient  bool
	delays         map[string]time.Duration
	texts          []string
}

func (s *fakeSynthesizer) synthesizedTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, text string, params tts.VoiceParams) (<-chan audio.Frame, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	delay := s.delays[text]
	if remaining, ok := s.failTexts[text]; ok && remaining != 0 {
		if remaining > 0 {
			s.failTexts[text] = remaining - 1
		}
		transient := s.failTransient
		s.mu.Unlock()
		return nil, &tts.Error{Transient: transient, Err: errors.New("voice unavailable")}
	}
	n := s.framesPerChunk
	s.mu.Unlock()
	if n <= 0 {
		n = 2
	}
	out := make(chan audio.Frame, n)
	go func() {
		defer close(out)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		for i := 0; i < n; i++ {
			select {
			case out <- frame20ms(1000, uint64(i)):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// collectChunks drains a chunk stream with a timeout guard.
func collectChunks(ch <-chan SentenceChunk) []SentenceChunk {
	var out []SentenceChunk
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-deadline:
			return out
		}
	}
}
