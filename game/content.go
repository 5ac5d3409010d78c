package game

import (
	"fmt"
	"math/rand"
	"strings"

	"noodleknocker/gen"

	"github.com/google/jsonschema-go/jsonschema"
)

// SlideCount and QuestionCount fix the shape of every presentation.
const (
	SlideCount    = 6
	QuestionCount = 5
)

// NarratorSpeaker is the speaker id resolved to the narrator voice.
const NarratorSpeaker = "narrator"

// NarratorVoice is the synthesis voice used for narration and grading.
const NarratorVoice = "21m00Tcm4TlvDq8ikWAM"

// contestantVoices is the pool participants draw from. The narrator voice is
// deliberately excluded.
var contestantVoices = []string{
	"pNInz6obpgDQGcFmaJgB",
	"ErXwobaYiN019PkySvjV",
	"EXAVITQu4vr4xnSDxMaL",
	"MF3mGyEYCl7XYWbV9V6O",
	"TxGEqnHWrfWFTfGW9XjX",
	"VR6AewLTigWG4xSOukaG",
	"AZnzlk1XvdvUeBnXmlld",
	"yoZ06aMxZJJ28mfd3POQ",
}

// AssignVoices draws distinct voices for n participants, shuffling the pool
// so repeated sessions vary. Above the pool size voices repeat.
func AssignVoices(rng *rand.Rand, n int) []string {
	pool := make([]string, len(contestantVoices))
	copy(pool, contestantVoices)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	voices := make([]string, n)
	for i := range voices {
		voices[i] = pool[i%len(pool)]
	}
	return voices
}

// conceptFieldPairs is [field of study, concept].
var conceptFieldPairs = [][2]string{
	{"Astronomy", "Neutron Stars"},
	{"Marine Biology", "Bioluminescence"},
	{"Linguistics", "Whistled Languages"},
	{"Chemistry", "Noble Gases"},
	{"History", "The Silk Road"},
	{"Geology", "Plate Tectonics"},
	{"Mathematics", "Prime Numbers"},
	{"Zoology", "Octopus Cognition"},
	{"Meteorology", "Ball Lightning"},
	{"Botany", "Carnivorous Plants"},
	{"Physics", "Superconductivity"},
	{"Archaeology", "Gobekli Tepe"},
	{"Economics", "Tulip Mania"},
	{"Medicine", "The Placebo Effect"},
	{"Computer Science", "Error-Correcting Codes"},
	{"Music Theory", "The Circle of Fifths"},
	{"Anthropology", "Cargo Cults"},
	{"Ecology", "Mycorrhizal Networks"},
	{"Psychology", "False Memories"},
	{"Engineering", "Suspension Bridges"},
	{"Food Science", "Fermentation"},
	{"Cartography", "Map Projections"},
	{"Ornithology", "Murmurations"},
	{"Cryptography", "One-Time Pads"},
}

// PickConceptField selects one field/concept pair for the session.
func PickConceptField(rng *rand.Rand) (field, concept string) {
	pair := conceptFieldPairs[rng.Intn(len(conceptFieldPairs))]
	return pair[0], pair[1]
}

// PlaceholderTrivia stands in when trivia generation exhausts its retries.
// Trivia is decorative, so the session continues without real facts.
var PlaceholderTrivia = []string{
	"Our trivia department is on a coffee break.",
	"Fun fact: this fact failed to load.",
}

const triviaPromptTemplate = `Please create 2 to 5 short trivia sentences related to the concept "{{CONCEPT}}" within the field of study, {{FIELD_OF_STUDY}}. The trivia sentences should be factual and humorous, bizarre, or otherwise interesting.`

const presentationPromptTemplate = `Create a short educational presentation about the concept "{{CONCEPT}}" within the field of study, {{FIELD_OF_STUDY}}, pitched at a {{DIFFICULTY}} difficulty level.

The presentation must have exactly {{SLIDE_COUNT}} slides. Each slide has textContent (concise markdown bullet points for display) and narration (2 to 4 plain spoken sentences a professor would say over the slide, no markdown).

Also write exactly {{QUESTION_COUNT}} quiz questions testing what the presentation taught, ordered from easiest to hardest.

Finally, invent {{PLAYER_COUNT}} distinct game-show contestant personas, one per player. Each persona is 1 to 2 sentences of colorful personality and background, written in the third person.`

const askSystemTemplate = `You are the narrator of a live trivia game show about "{{CONCEPT}}" ({{FIELD_OF_STUDY}}). Answer audience questions accurately and entertainingly. Keep answers to a few spoken sentences, plain text only.`

const teachSystemTemplate = `You are a game-show contestant. {{PERSONA}} You are being taught about "{{CONCEPT}}" before a quiz. Respond in character, briefly and conversationally, showing what you did or did not understand. Plain spoken text only.`

const quizSystemTemplate = `You are a game-show contestant. {{PERSONA}} Answer the quiz question in character using only what you were taught in this conversation. Answer in a few spoken sentences, plain text only.`

const quizUntaughtSystemTemplate = `You are a game-show contestant. {{PERSONA}} You skipped every lesson and never learned anything about the subject. Confidently give a wrong, funny answer to the quiz question, in character. A few spoken sentences, plain text only.`

const gradeSystemTemplate = `You are the professor on a trivia game show about "{{CONCEPT}}" ({{FIELD_OF_STUDY}}). Grade the contestant's answer from 0 to 100 and explain the grade in 1 to 3 entertaining spoken sentences. Always state the numeric grade explicitly.`

const imagePromptTemplate = `A whimsical, colorful illustration representing the concept "{{CONCEPT}}" from the field of {{FIELD_OF_STUDY}}, suitable as game-show title art. No text.`

func fill(template string, pairs ...string) string {
	r := strings.NewReplacer(pairs...)
	return r.Replace(template)
}

// TriviaPrompt builds the opening trivia request.
func TriviaPrompt(concept, field string) string {
	return fill(triviaPromptTemplate, "{{CONCEPT}}", concept, "{{FIELD_OF_STUDY}}", field)
}

// PresentationPrompt builds the full presentation request.
func PresentationPrompt(concept, field string, difficulty Difficulty, playerCount int) string {
	return fill(presentationPromptTemplate,
		"{{CONCEPT}}", concept,
		"{{FIELD_OF_STUDY}}", field,
		"{{DIFFICULTY}}", string(difficulty),
		"{{SLIDE_COUNT}}", fmt.Sprintf("%d", SlideCount),
		"{{QUESTION_COUNT}}", fmt.Sprintf("%d", QuestionCount),
		"{{PLAYER_COUNT}}", fmt.Sprintf("%d", playerCount),
	)
}

// AskSystemPrompt frames the narrator Q&A flow.
func AskSystemPrompt(concept, field string) string {
	return fill(askSystemTemplate, "{{CONCEPT}}", concept, "{{FIELD_OF_STUDY}}", field)
}

// TeachSystemPrompt frames the teaching flow for one participant.
func TeachSystemPrompt(p *Participant, concept string) string {
	return fill(teachSystemTemplate, "{{PERSONA}}", p.Persona, "{{CONCEPT}}", concept)
}

// QuizSystemPrompt frames the quiz answer flow. Participants who were never
// taught get the untaught framing instead.
func QuizSystemPrompt(p *Participant) string {
	if p.HasStudied() {
		return fill(quizSystemTemplate, "{{PERSONA}}", p.Persona)
	}
	return fill(quizUntaughtSystemTemplate, "{{PERSONA}}", p.Persona)
}

// QuizQuestionPrompt is the user turn carrying the question itself.
func QuizQuestionPrompt(question string) string {
	return "The professor asks: " + question
}

// GradeSystemPrompt frames the grading flow.
func GradeSystemPrompt(concept, field string) string {
	return fill(gradeSystemTemplate, "{{CONCEPT}}", concept, "{{FIELD_OF_STUDY}}", field)
}

// GradePrompt is the user turn carrying the question and recorded answer.
func GradePrompt(question, answer, name string) string {
	return fmt.Sprintf("Question: %s\n\n%s answered: %s", question, name, answer)
}

// ImagePrompt builds the title-art request.
func ImagePrompt(concept, field string) string {
	return fill(imagePromptTemplate, "{{CONCEPT}}", concept, "{{FIELD_OF_STUDY}}", field)
}

func intp(n int) *int { return &n }

// TriviaSchema constrains the opening trivia generation.
var TriviaSchema = gen.Schema{
	Name:        "create_trivia",
	Description: "Create 2 to 5 short trivia sentences related to the concept.",
	Spec: &jsonschema.Schema{
		Type:        "object",
		Description: "Humorous, bizarre, or otherwise interesting trivia related to the concept",
		Properties: map[string]*jsonschema.Schema{
			"trivia": {
				Type:        "array",
				Description: "Humorous, bizarre, or otherwise interesting trivia related to the concept",
				Items: &jsonschema.Schema{
					Type:        "string",
					Description: "A single short trivia sentence",
				},
				MinItems: intp(2),
				MaxItems: intp(5),
			},
		},
		Required: []string{"trivia"},
	},
}

// PresentationSchema constrains the full presentation generation for a given
// player count.
func PresentationSchema(playerCount int) gen.Schema {
	return gen.Schema{
		Name:        "create_presentation",
		Description: "Create the slides, quiz questions, and contestant personas for the session.",
		Spec: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"slides": {
					Type:        "array",
					Description: "The presentation slides, in order",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"textContent": {
								Type:        "string",
								Description: "Concise markdown shown on screen",
							},
							"narration": {
								Type:        "string",
								Description: "Plain spoken narration for the slide",
							},
						},
						Required: []string{"textContent", "narration"},
					},
					MinItems: intp(SlideCount),
					MaxItems: intp(SlideCount),
				},
				"questions": {
					Type:        "array",
					Description: "Quiz questions, easiest first",
					Items:       &jsonschema.Schema{Type: "string"},
					MinItems:    intp(QuestionCount),
					MaxItems:    intp(QuestionCount),
				},
				"personas": {
					Type:        "array",
					Description: "One contestant persona per player",
					Items:       &jsonschema.Schema{Type: "string"},
					MinItems:    intp(playerCount),
					MaxItems:    intp(playerCount),
				},
			},
			Required: []string{"slides", "questions", "personas"},
		},
	}
}
