package session

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"noodleknocker/core"
	"noodleknocker/game"
	"noodleknocker/gen"
	"noodleknocker/protocol"
	"noodleknocker/services/deepgram/stt"
	elevenlabs "noodleknocker/services/elevenlabs/tts"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Generator is the model surface the session drives. *gen.Generator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema gen.Schema, maxAttempts int) (map[string]any, error)
	GenerateStream(ctx context.Context, system string, history []core.Message) <-chan gen.StreamEvent
	ExtractGrade(ctx context.Context, prose string) int
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// clientConn is the slice of the client websocket the session uses.
// *websocket.Conn satisfies it.
type clientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Config carries the per-service settings a session dials with.
type Config struct {
	Synth elevenlabs.Config
	Recog stt.Config
}

const defaultSampleRate = 16000

// Session owns all state for one client connection: the generated game, the
// per-participant conversation histories, and the two streaming bridges.
// Inbound commands are dispatched in arrival order; long-running flows
// continue asynchronously after dispatch.
type Session struct {
	id     string
	logger *core.Logger
	gen    Generator
	client clientConn

	ctx    context.Context
	cancel context.CancelFunc
	rng    *rand.Rand

	writeMu sync.Mutex

	synth *SynthBridge
	recog *RecogBridge

	mu              sync.Mutex
	difficulty      game.Difficulty
	concept         string
	fieldOfStudy    string
	presentation    game.Presentation
	participants    []*game.Participant
	narratorHistory *core.History
}

// New creates a session bound to one client connection.
func New(client clientConn, g Generator, config Config, logger *core.Logger) *Session {
	s := newSession(client, g, logger, rand.New(rand.NewSource(time.Now().UnixNano())))
	s.synth = newSynthBridge(func(voice string) (synthConn, error) {
		return elevenlabs.Dial(s.ctx, config.Synth, voice, s.logger)
	}, s.emit, s.emitBinary, s.logger)
	s.recog = newRecogBridge(func(sampleRate int) (recogConn, error) {
		return stt.Dial(s.ctx, config.Recog, sampleRate, s.logger)
	}, s.emit, s.logger)
	return s
}

func newSession(client clientConn, g Generator, logger *core.Logger, rng *rand.Rand) *Session {
	if logger == nil {
		logger = core.GetLogger()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:              id,
		logger:          logger.With(map[string]interface{}{"session": id}),
		gen:             g,
		client:          client,
		ctx:             ctx,
		cancel:          cancel,
		rng:             rng,
		narratorHistory: &core.History{},
	}
}

// Run reads client frames until the connection drops, then tears everything
// down. Binary frames are microphone audio; text frames are commands.
func (s *Session) Run() {
	defer s.teardown()
	s.logger.Info("session connected")

	for {
		messageType, data, err := s.client.ReadMessage()
		if err != nil {
			s.logger.Infof("client gone: %v", err)
			return
		}
		switch messageType {
		case websocket.BinaryMessage:
			s.recog.Audio(data)
		case websocket.TextMessage:
			cmd, err := protocol.Decode(data)
			if err != nil {
				s.logger.Warnf("discarding malformed frame: %v", err)
				continue
			}
			s.dispatch(cmd)
		}
	}
}

func (s *Session) teardown() {
	s.cancel()
	s.synth.Close()
	s.recog.Close()
	s.client.Close()
	s.logger.Info("session closed")
}

func (s *Session) dispatch(cmd protocol.Command) {
	s.logger.Debugf("command %s", cmd.Cmd)
	switch cmd.Cmd {
	case protocol.CmdGenerate:
		go s.handleGenerate(cmd)
	case protocol.CmdTextToSpeech:
		s.handleTextToSpeech(cmd)
	case protocol.CmdStopGeneratingSpeech:
		s.synth.ResetBuffer()
	case protocol.CmdStartTranscribing:
		sampleRate := cmd.SampleRate
		if sampleRate <= 0 {
			sampleRate = defaultSampleRate
		}
		s.recog.Start(sampleRate)
	case protocol.CmdStopTranscribing:
		s.recog.Stop()
	case protocol.CmdAskQuestion:
		go s.handleAskQuestion(cmd)
	case protocol.CmdTeachContestant:
		go s.handleTeachContestant(cmd)
	case protocol.CmdContestantQuiz:
		go s.handleContestantQuiz(cmd)
	case protocol.CmdProfessorQuiz:
		go s.handleProfessorQuiz(cmd)
	default:
		s.logger.Warnf("unknown command %q", cmd.Cmd)
	}
}

// emit sends one JSON event frame to the client.
func (s *Session) emit(cmd string, payload any) {
	data, err := protocol.Marshal(cmd, payload)
	if err != nil {
		s.logger.Errorf("encode %s event: %v", cmd, err)
		return
	}
	s.writeMu.Lock()
	err = s.client.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Infof("client write failed: %v", err)
	}
}

// emitBinary sends one binary frame (audio or image bytes) to the client.
func (s *Session) emitBinary(frame []byte) {
	s.writeMu.Lock()
	err := s.client.WriteMessage(websocket.BinaryMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		s.logger.Infof("client write failed: %v", err)
	}
}

// handleGenerate resets the game state and builds a fresh session: trivia
// first (placeholder on failure), then the presentation and participants
// (fatal on failure), with title art generated in the background.
func (s *Session) handleGenerate(cmd protocol.Command) {
	playerCount := cmd.PlayerCount
	if playerCount < 1 {
		playerCount = 1
	}
	difficulty := game.ParseDifficulty(cmd.Difficulty)

	s.mu.Lock()
	s.difficulty = difficulty
	s.presentation = game.Presentation{}
	s.participants = nil
	s.narratorHistory = &core.History{}
	field, concept := game.PickConceptField(s.rng)
	s.fieldOfStudy = field
	s.concept = concept
	s.mu.Unlock()

	trivia := game.PlaceholderTrivia
	result, err := s.gen.Generate(s.ctx, game.TriviaPrompt(concept, field), game.TriviaSchema, gen.DefaultMaxAttempts)
	if err != nil {
		s.logger.Warnf("trivia generation failed, continuing with placeholder: %v", err)
	} else {
		trivia = stringSlice(result["trivia"])
	}
	s.emit(protocol.EvtGenerateStarted, protocol.GenerateStartedPayload{
		Concept:      concept,
		FieldOfStudy: field,
		Trivia:       trivia,
	})

	result, err = s.gen.Generate(s.ctx,
		game.PresentationPrompt(concept, field, difficulty, playerCount),
		game.PresentationSchema(playerCount), gen.DefaultMaxAttempts)
	if err != nil {
		s.logger.Errorf("presentation generation failed: %v", err)
		s.emit(protocol.EvtGenerateError, protocol.ErrorPayload{Message: "presentation generation failed"})
		return
	}
	presentation, personas, err := game.ParsePresentation(result)
	if err != nil {
		s.logger.Errorf("presentation result unusable: %v", err)
		s.emit(protocol.EvtGenerateError, protocol.ErrorPayload{Message: "presentation generation failed"})
		return
	}

	voices := game.AssignVoices(s.rng, playerCount)
	participants := make([]*game.Participant, playerCount)
	for i := range participants {
		name := fmt.Sprintf("Player %d", i+1)
		if i < len(cmd.PlayerNames) && cmd.PlayerNames[i] != "" {
			name = cmd.PlayerNames[i]
		}
		persona := ""
		if i < len(personas) {
			persona = personas[i]
		}
		participants[i] = game.NewParticipant(name, voices[i], persona, len(presentation.Questions))
	}

	s.mu.Lock()
	s.presentation = presentation
	s.participants = participants
	s.mu.Unlock()

	go s.generateTitleArt(concept, field)

	done := protocol.GenerateDonePayload{
		Concept:      concept,
		FieldOfStudy: field,
		Questions:    presentation.Questions,
	}
	for _, slide := range presentation.Slides {
		done.Slides = append(done.Slides, protocol.SlidePayload{
			TextContent: slide.TextContent,
			Narration:   slide.Narration,
		})
	}
	for _, p := range participants {
		done.Participants = append(done.Participants, protocol.ParticipantPayload{
			Name:    p.Name,
			Voice:   p.Voice,
			Persona: p.Persona,
		})
	}
	s.emit(protocol.EvtGenerateDone, done)
}

func (s *Session) generateTitleArt(concept, field string) {
	img, err := s.gen.GenerateImage(s.ctx, game.ImagePrompt(concept, field))
	if err != nil {
		s.logger.Warnf("title art generation failed: %v", err)
		return
	}
	s.emit(protocol.EvtGenerateImage, protocol.ImagePayload{MimeType: "image/png", Size: len(img)})
	s.emitBinary(img)
}

func (s *Session) handleTextToSpeech(cmd protocol.Command) {
	if cmd.Text == "" {
		return
	}
	voice, speaker := s.resolveSpeaker(cmd.Speaker, cmd.PlayerIndex)
	s.synth.Speak(cmd.Text, voice, speaker, true)
}

// resolveSpeaker maps a speaker reference to a synthesis voice and the
// client-facing speaker label: by player index, then by participant name,
// then the narrator.
func (s *Session) resolveSpeaker(speaker string, playerIndex int) (voice, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if playerIndex >= 0 && playerIndex < len(s.participants) {
		p := s.participants[playerIndex]
		return p.Voice, p.Name
	}
	for _, p := range s.participants {
		if strings.EqualFold(p.Name, speaker) {
			return p.Voice, p.Name
		}
	}
	return game.NarratorVoice, game.NarratorSpeaker
}

func (s *Session) participantAt(index int) (*game.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.participants) {
		return nil, false
	}
	return s.participants[index], true
}

// recordAnswer and answerAt guard Participant.Answers, which the quiz and
// grading flows touch from separate goroutines.
func (s *Session) recordAnswer(p *game.Participant, index int, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.RecordAnswer(index, answer)
}

func (s *Session) answerAt(p *game.Participant, index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(p.Answers) {
		return ""
	}
	return p.Answers[index]
}

func (s *Session) questionAt(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.presentation.Questions) {
		return "", false
	}
	return s.presentation.Questions[index], true
}

func (s *Session) subject() (concept, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concept, s.fieldOfStudy
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
