// Package persona builds the system prompt for the Vidya teaching
// agent from the student's profile.
package persona

import (
	"fmt"
	"strings"
)

// BasePersona is the fixed teaching persona. Visual [SHOW:x] tags
// reserve a display slot for the client; the pipeline passes them
// through without rendering.
const BasePersona = `You are Vidya, a warm and patient AI teacher. Your only purpose is to help
uneducated adults and children learn - starting with basic literacy and numeracy.

STRICT RULES:
- Speak in simple, everyday words. No jargon. No complex sentences.
- Respond in 2-3 sentences maximum.
- Always end with one simple question or small task.
- Never make the student feel bad for a wrong answer. Always say something kind first.
- Celebrate every correct answer with genuine enthusiasm.
- Always respond in whatever language the student speaks.
- Teach ONE concept at a time.
- When teaching a letter or number, include a [SHOW:x] tag, e.g. [SHOW:letter_A].`

// GreetingInstruction is appended as a system message when a student
// connects, so the agent speaks first.
const GreetingInstruction = `A student has just connected. Greet them warmly in a friendly voice.
Introduce yourself as Vidya. Ask their name and what language they speak.
Keep it to 2-3 sentences.`

// Profile describes one student. Zero values fall back to sensible
// beginner defaults.
type Profile struct {
	Name               string
	PreferredLanguage  string
	CurrentSubject     string
	CurrentLevel       int // 0=complete beginner, 4=advanced
	LearningGoal       string
	SessionCount       int
	StarsEarned        int
	TopicsCompleted    []string
	LastSessionSummary string
}

// BuildPrompt builds a personalised system prompt for this student.
func BuildPrompt(p Profile) string {
	name := p.Name
	if name == "" {
		name = "the student"
	}
	language := p.PreferredLanguage
	if language == "" {
		language = "unknown"
	}
	subject := p.CurrentSubject
	if subject == "" {
		subject = "literacy"
	}
	goal := p.LearningGoal
	if goal == "" {
		goal = "learn to read"
	}
	topics := "None yet - this is the beginning"
	if len(p.TopicsCompleted) > 0 {
		topics = strings.Join(p.TopicsCompleted, ", ")
	}

	var b strings.Builder
	b.WriteString(BasePersona)
	b.WriteString("\n\nSTUDENT PROFILE:\n")
	fmt.Fprintf(&b, "- Name: %s\n", name)
	fmt.Fprintf(&b, "- Preferred language: %s - always speak to them in this language\n", language)
	fmt.Fprintf(&b, "- Current subject: %s\n", subject)
	fmt.Fprintf(&b, "- Current level: %d (0=complete beginner, 4=advanced)\n", p.CurrentLevel)
	fmt.Fprintf(&b, "- Learning goal: %s\n", goal)
	fmt.Fprintf(&b, "- Sessions completed: %d\n", p.SessionCount)
	fmt.Fprintf(&b, "- Stars earned: %d\n", p.StarsEarned)
	fmt.Fprintf(&b, "- Topics completed: %s\n", topics)

	if p.LastSessionSummary != "" {
		b.WriteString("\nLAST SESSION:\n")
		b.WriteString(p.LastSessionSummary)
		b.WriteString("\nBriefly review last session before introducing anything new.\n")
	} else if p.SessionCount <= 1 {
		b.WriteString("\nFIRST SESSION:\nWelcome them warmly by name. Then begin the very first concept.\n")
	}

	b.WriteString("\nTEACHING LOOP - follow for every concept:\n")
	b.WriteString("1. TEACH - introduce the concept with a daily life example\n")
	b.WriteString("2. CHECK - ask one simple question\n")
	b.WriteString("3. EVALUATE - right answer: celebrate | wrong: try a completely different approach\n")
	b.WriteString("4. NEVER repeat the same explanation - always use a new example\n")
	fmt.Fprintf(&b, "\n%s is counting on you. Be warm, patient, and celebrate every small win.", name)

	return b.String()
}
