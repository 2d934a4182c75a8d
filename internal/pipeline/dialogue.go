package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/hitcaff/vidya/internal/llm"
	"github.com/hitcaff/vidya/internal/observability"
)

// Spoken fallbacks. These are synthesized verbatim, so they stay
// short and free of markup.
const (
	// FallbackPhrase covers a failed generation.
	FallbackPhrase = "Sorry, I lost my words for a moment. Can you say that once more?"

	// ClarificationPhrase covers a degraded transcript.
	ClarificationPhrase = "I could not hear you properly. Can you say that again, a little louder?"
)

// DialogueManager owns the conversation state and turns final
// transcripts into streamed sentence chunks. Token output is
// buffered and flushed at sentence boundaries, or at maxChunkChars
// for run-on output, so synthesis can start before generation ends.
type DialogueManager struct {
	generator     llm.Generator
	state         *ConversationState
	maxChunkChars int
	logger        zerolog.Logger
	metrics       *observability.Metrics
	onFault       FaultFunc
}

// OnFault registers the stage fault hook. Must be set before the
// manager is used.
func (m *DialogueManager) OnFault(fn FaultFunc) {
	m.onFault = fn
}

// NewDialogueManager creates a dialogue manager around existing
// conversation state.
func NewDialogueManager(generator llm.Generator, state *ConversationState, maxChunkChars int, logger zerolog.Logger, metrics *observability.Metrics) *DialogueManager {
	return &DialogueManager{
		generator:     generator,
		state:         state,
		maxChunkChars: maxChunkChars,
		logger:        logger.With().Str("stage", "dialogue").Logger(),
		metrics:       metrics,
	}
}

// State returns the conversation state the manager mutates.
func (m *DialogueManager) State() *ConversationState {
	return m.state
}

// Respond handles one final transcript and streams the response as
// sentence chunks. The user utterance is appended to history before
// generation; the assistant response is appended only when the turn
// runs to completion, so cancellation leaves history untouched. A
// degraded transcript yields a single clarification chunk without
// touching history.
func (m *DialogueManager) Respond(ctx context.Context, t Transcript) <-chan SentenceChunk {
	out := make(chan SentenceChunk, 8)
	go func() {
		defer close(out)
		m.metrics.RecordStageStart("dialogue")
		defer m.metrics.RecordStageEnd("dialogue")

		if t.Degraded {
			m.logger.Info().Uint64("turn_id", uint64(t.Turn)).Msg("degraded transcript, asking for clarification")
			emitChunk(ctx, out, SentenceChunk{Turn: t.Turn, Index: 0, Text: ClarificationPhrase})
			return
		}

		m.state.AppendUser(t.Text)
		m.generate(ctx, t.Turn, m.state.Prompt(), out)
	}()
	return out
}

// Greet streams a bot-initiated turn driven by a system instruction,
// used when the bot speaks first on connect. Only the assistant side
// is recorded in history.
func (m *DialogueManager) Greet(ctx context.Context, turn TurnID, instruction string) <-chan SentenceChunk {
	out := make(chan SentenceChunk, 8)
	go func() {
		defer close(out)
		prompt := m.state.Prompt(llm.Message{Role: llm.RoleSystem, Content: instruction})
		m.generate(ctx, turn, prompt, out)
	}()
	return out
}

// generate streams tokens from the generator, flushing sentence
// chunks as boundaries appear. Cancellation is honored at chunk
// granularity: a chunk already flushed stays flushed, and nothing is
// appended to history for a cancelled turn. A generation failure,
// whether at the start or mid-stream, speaks the fallback phrase and
// commits no assistant entry, so a truncated response never poisons
// the prompt.
func (m *DialogueManager) generate(ctx context.Context, turn TurnID, prompt []llm.Message, out chan<- SentenceChunk) {
	index := 0
	fail := func(err error) {
		m.logger.Error().Err(err).Uint64("turn_id", uint64(turn)).Msg("generation failed, speaking fallback")
		sev := ClassifySeverity(err)
		m.metrics.RecordError(sev.String(), "dialogue")
		if m.onFault != nil {
			m.onFault("dialogue", sev)
		}
		emitChunk(ctx, out, SentenceChunk{Turn: turn, Index: index, Text: FallbackPhrase})
	}

	tokens, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		fail(err)
		return
	}

	var full strings.Builder
	var buf string
	flush := func(text string) bool {
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		if !emitChunk(ctx, out, SentenceChunk{Turn: turn, Index: index, Text: text}) {
			return false
		}
		index++
		return true
	}

	for tok := range tokens {
		if tok.Err != nil {
			fail(tok.Err)
			return
		}
		full.WriteString(tok.Text)
		buf += tok.Text
		for {
			sentence, rest, ok := splitSentence(buf, m.maxChunkChars)
			if !ok {
				break
			}
			buf = rest
			if !flush(sentence) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	if !flush(buf) {
		return
	}
	if full.Len() > 0 {
		m.state.AppendAssistant(strings.TrimSpace(full.String()))
	}
}

// emitChunk sends a chunk unless the turn is cancelled.
func emitChunk(ctx context.Context, out chan<- SentenceChunk, c SentenceChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// sentenceTerminals are the runes that end a sentence. The danda
// covers Hindi output.
const sentenceTerminals = ".!?।\n"

// splitSentence cuts a complete sentence off the front of buf. When
// no terminal is present but buf has grown past maxChars, it cuts at
// the last whitespace so run-on generation still chunks.
func splitSentence(buf string, maxChars int) (sentence, rest string, ok bool) {
	for i, r := range buf {
		if !strings.ContainsRune(sentenceTerminals, r) {
			continue
		}
		end := i + len(string(r))
		// Keep decimals like "3.14" intact.
		if r == '.' && end < len(buf) && isDigitAround(buf, i) {
			continue
		}
		return buf[:end], buf[end:], true
	}
	if maxChars > 0 && len(buf) >= maxChars {
		if cut := strings.LastIndexFunc(buf[:maxChars], unicode.IsSpace); cut > 0 {
			return buf[:cut], buf[cut:], true
		}
		return buf[:maxChars], buf[maxChars:], true
	}
	return "", buf, false
}

func isDigitAround(s string, dot int) bool {
	if dot == 0 || dot+1 >= len(s) {
		return false
	}
	return unicode.IsDigit(rune(s[dot-1])) && unicode.IsDigit(rune(s[dot+1]))
}
