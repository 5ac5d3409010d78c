package protocol

// Client commands. Every inbound text frame is a flat JSON object with a
// "cmd" discriminator plus command-specific fields.
const (
	CmdGenerate             = "generate"
	CmdTextToSpeech         = "text-to-speech"
	CmdStopGeneratingSpeech = "stop-generating-speech"
	CmdStartTranscribing    = "start-transcribing"
	CmdStopTranscribing     = "stop-transcribing"
	CmdAskQuestion          = "ask-question"
	CmdTeachContestant      = "teach-contestant"
	CmdContestantQuiz       = "contestant-quiz"
	CmdProfessorQuiz        = "professor-quiz"
)

// Outbound events. Events mirror the command set with a
// -started/-done/-finished/-part suffix.
const (
	EvtGenerateStarted     = "generate-started"
	EvtGenerateDone        = "generate-done"
	EvtGenerateError       = "generate-error"
	EvtGenerateImage       = "generate-image"
	EvtSpeakDone           = "speak-done"
	EvtTranscribePart      = "transcribe-part"
	EvtTranscribeDone      = "transcribe-done"
	EvtAskQuestionPart     = "ask-question-part"
	EvtAskQuestionDone     = "ask-question-done"
	EvtTeachContestantPart = "teach-contestant-part"
	EvtTeachContestantDone = "teach-contestant-done"
	EvtContestantQuizPart  = "contestant-quiz-part"
	EvtContestantQuizDone  = "contestant-quiz-done"
	EvtProfessorQuizPart   = "professor-quiz-part"
	EvtProfessorQuizFinish = "professor-quiz-finished"
)

// Command is the decoded form of an inbound client frame. Fields not used by
// a given command are left at their zero value; index fields default to -1 so
// an omitted index is distinguishable from index zero.
type Command struct {
	Cmd           string   `json:"cmd"`
	Difficulty    string   `json:"difficulty,omitempty"`
	PlayerCount   int      `json:"playerCount,omitempty"`
	PlayerNames   []string `json:"playerNames,omitempty"`
	Text          string   `json:"text,omitempty"`
	Speaker       string   `json:"speaker,omitempty"`
	PlayerIndex   int      `json:"playerIndex"`
	QuestionIndex int      `json:"questionIndex"`
	SampleRate    int      `json:"sampleRate,omitempty"`
}

// --- Outbound payloads ---

// GenerateStartedPayload is emitted once the trivia call completes.
type GenerateStartedPayload struct {
	Concept      string   `json:"concept"`
	FieldOfStudy string   `json:"fieldOfStudy"`
	Trivia       []string `json:"trivia"`
}

// SlidePayload mirrors one generated slide.
type SlidePayload struct {
	TextContent string `json:"textContent"`
	Narration   string `json:"narration"`
}

// ParticipantPayload describes one contestant to the client.
type ParticipantPayload struct {
	Name    string `json:"name"`
	Voice   string `json:"voice"`
	Persona string `json:"persona"`
}

// GenerateDonePayload carries the full generated presentation.
type GenerateDonePayload struct {
	Concept      string               `json:"concept"`
	FieldOfStudy string               `json:"fieldOfStudy"`
	Slides       []SlidePayload       `json:"slides"`
	Questions    []string             `json:"questions"`
	Participants []ParticipantPayload `json:"participants"`
}

// ErrorPayload is emitted when a session-level step fails terminally.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ImagePayload announces a binary image frame that immediately follows it.
type ImagePayload struct {
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// TextPartPayload carries one incremental chunk of a streaming sub-flow.
// PlayerIndex is emitted unconditionally and is -1 when the chunk is not
// attributed to a participant, matching the inbound convention.
type TextPartPayload struct {
	Text        string `json:"text"`
	Speaker     string `json:"speaker,omitempty"`
	PlayerIndex int    `json:"playerIndex"`
}

// TextDonePayload carries the complete text of a finished sub-flow. Index
// fields are -1 where they do not apply.
type TextDonePayload struct {
	Text          string `json:"text"`
	PlayerIndex   int    `json:"playerIndex"`
	QuestionIndex int    `json:"questionIndex"`
}

// GradePayload carries the extracted grade for a graded answer.
type GradePayload struct {
	Grade         int    `json:"grade"`
	Score         int    `json:"score"`
	Text          string `json:"text"`
	PlayerIndex   int    `json:"playerIndex"`
	QuestionIndex int    `json:"questionIndex"`
}

// TranscriptPayload carries one recognized transcript fragment.
type TranscriptPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// SpeakDonePayload reports that buffered speech finished playing out.
// Speaker is the client-facing speaker label, not the synthesis voice id.
type SpeakDonePayload struct {
	Speaker string `json:"speaker"`
}
