package game

import (
	"fmt"
	"strings"

	"noodleknocker/core"

	"github.com/bytedance/sonic"
)

// Difficulty selects how demanding the generated material is.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps a client-supplied string to a difficulty,
// falling back to normal.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(s)) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyNormal
	}
}

// Slide pairs on-screen markdown with the narration spoken over it.
type Slide struct {
	TextContent string `json:"textContent"`
	Narration   string `json:"narration"`
}

// Presentation is the generated session material, in presentation order.
type Presentation struct {
	Slides    []Slide  `json:"slides"`
	Questions []string `json:"questions"`
}

// NarratorTranscript concatenates all slide narrations in order.
func (p Presentation) NarratorTranscript() string {
	var b strings.Builder
	for i, s := range p.Slides {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Narration)
	}
	return b.String()
}

// Participant is one simulated contestant. Identity fields are fixed at
// creation; score, answers, and history grow over the session.
type Participant struct {
	Name    string
	Voice   string
	Persona string

	Score   int
	Answers []string
	History *core.History
}

// NewParticipant creates a contestant with an answer slot per question and
// a seed history establishing the persona.
func NewParticipant(name, voice, persona string, questionCount int) *Participant {
	p := &Participant{
		Name:    name,
		Voice:   voice,
		Persona: persona,
		Answers: make([]string, questionCount),
		History: &core.History{},
	}
	p.History.AddUser(fmt.Sprintf("Please introduce yourself, %s.", name))
	p.History.AddAssistant(fmt.Sprintf("Hi, I'm %s. %s", name, persona))
	return p
}

// RecordAnswer stores a quiz answer by question index.
func (p *Participant) RecordAnswer(questionIndex int, text string) {
	if questionIndex < 0 || questionIndex >= len(p.Answers) {
		return
	}
	p.Answers[questionIndex] = text
}

// HasStudied reports whether the participant's history holds anything beyond
// the seed introduction.
func (p *Participant) HasStudied() bool {
	return p.History.Len() > 2
}

// ParsePresentation decodes a validated generation result into the
// presentation plus one persona per player.
func ParsePresentation(result map[string]any) (Presentation, []string, error) {
	raw, err := sonic.Marshal(result)
	if err != nil {
		return Presentation{}, nil, fmt.Errorf("game: encode presentation result: %w", err)
	}
	var decoded struct {
		Presentation
		Personas []string `json:"personas"`
	}
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return Presentation{}, nil, fmt.Errorf("game: decode presentation result: %w", err)
	}
	return decoded.Presentation, decoded.Personas, nil
}
