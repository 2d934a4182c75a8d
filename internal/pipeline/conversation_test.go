package pipeline

import (
	"fmt"
	"testing"

	"github.com/hitcaff/vidya/internal/llm"
)

func TestConversationPromptShape(t *testing.T) {
	state := NewConversationState("be helpful", 10)
	state.AppendUser("hi")
	state.AppendAssistant("hello there")

	prompt := state.Prompt(llm.Message{Role: llm.RoleUser, Content: "next"})
	want := []llm.Message{
		{Role: llm.RoleSystem, Content: "be helpful"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello there"},
		{Role: llm.RoleUser, Content: "next"},
	}
	if len(prompt) != len(want) {
		t.Fatalf("prompt length = %d, want %d", len(prompt), len(want))
	}
	for i := range want {
		if prompt[i] != want[i] {
			t.Fatalf("prompt[%d] = %+v, want %+v", i, prompt[i], want[i])
		}
	}
}

func TestConversationRetentionDropsOldest(t *testing.T) {
	state := NewConversationState("persona", 4)
	for i := 0; i < 6; i++ {
		state.AppendUser(fmt.Sprintf("user %d", i))
	}

	snap := state.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("retained entries = %d, want 4", len(snap))
	}
	if snap[0].Content != "user 2" {
		t.Fatalf("oldest retained = %q, want %q", snap[0].Content, "user 2")
	}
	if snap[3].Content != "user 5" {
		t.Fatalf("newest retained = %q, want %q", snap[3].Content, "user 5")
	}
}

func TestConversationSnapshotIsACopy(t *testing.T) {
	state := NewConversationState("persona", 10)
	state.AppendUser("original")

	snap := state.Snapshot()
	snap[0].Content = "mutated"

	if got := state.Snapshot()[0].Content; got != "original" {
		t.Fatalf("state content = %q, snapshot mutation leaked", got)
	}
}
