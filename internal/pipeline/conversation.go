package pipeline

import (
	"sync"

	"github.com/hitcaff/vidya/internal/llm"
)

// ConversationState holds the ordered dialogue history for one
// session. Only the dialogue manager mutates it; appends happen at
// turn completion, so a cancelled turn leaves no trace. History is
// bounded by dropping the oldest entries, never by reordering.
type ConversationState struct {
	mu        sync.Mutex
	persona   string
	entries   []llm.Message
	retention int
}

// NewConversationState creates conversation state seeded with a
// persona system prompt. retention bounds the number of history
// entries kept; zero or negative means unbounded.
func NewConversationState(persona string, retention int) *ConversationState {
	return &ConversationState{persona: persona, retention: retention}
}

// AppendUser appends a completed user utterance.
func (c *ConversationState) AppendUser(text string) {
	c.append(llm.Message{Role: llm.RoleUser, Content: text})
}

// AppendAssistant appends a completed assistant response.
func (c *ConversationState) AppendAssistant(text string) {
	c.append(llm.Message{Role: llm.RoleAssistant, Content: text})
}

func (c *ConversationState) append(m llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, m)
	if c.retention > 0 && len(c.entries) > c.retention {
		c.entries = c.entries[len(c.entries)-c.retention:]
	}
}

// Prompt builds the generator prompt: the persona system message,
// the retained history in order, then any extra messages.
func (c *ConversationState) Prompt(extra ...llm.Message) []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	prompt := make([]llm.Message, 0, len(c.entries)+len(extra)+1)
	prompt = append(prompt, llm.Message{Role: llm.RoleSystem, Content: c.persona})
	prompt = append(prompt, c.entries...)
	prompt = append(prompt, extra...)
	return prompt
}

// Snapshot returns a copy of the retained history, oldest first.
// It is the read-only view handed to persistence at session end.
func (c *ConversationState) Snapshot() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make([]llm.Message, len(c.entries))
	copy(snap, c.entries)
	return snap
}

// Len returns the number of retained history entries.
func (c *ConversationState) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
