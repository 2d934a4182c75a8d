package persona

import (
	"strings"
	"testing"
)

func TestBuildPrompt_Defaults(t *testing.T) {
	prompt := BuildPrompt(Profile{})

	if !strings.Contains(prompt, "the student") {
		t.Error("expected default student name")
	}
	if !strings.Contains(prompt, "literacy") {
		t.Error("expected default subject")
	}
	if !strings.Contains(prompt, "FIRST SESSION") {
		t.Error("expected first-session instructions for a new student")
	}
}

func TestBuildPrompt_Profile(t *testing.T) {
	prompt := BuildPrompt(Profile{
		Name:              "Asha",
		PreferredLanguage: "Hindi",
		CurrentSubject:    "numeracy",
		CurrentLevel:      2,
		SessionCount:      5,
		TopicsCompleted:   []string{"letters", "counting to 10"},
	})

	for _, want := range []string{"Asha", "Hindi", "numeracy", "letters, counting to 10"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
	if strings.Contains(prompt, "FIRST SESSION") {
		t.Error("returning student should not get first-session instructions")
	}
}

func TestBuildPrompt_LastSessionSummary(t *testing.T) {
	prompt := BuildPrompt(Profile{
		Name:               "Ravi",
		SessionCount:       3,
		LastSessionSummary: "Practised the letter B.",
	})

	if !strings.Contains(prompt, "LAST SESSION") {
		t.Error("expected last-session review block")
	}
	if !strings.Contains(prompt, "Practised the letter B.") {
		t.Error("expected the summary text to be included")
	}
}
