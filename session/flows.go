package session

import (
	"strings"

	"noodleknocker/core"
	"noodleknocker/game"
	"noodleknocker/gen"
	"noodleknocker/protocol"
	"noodleknocker/utils/text"
)

// streamFlow runs one streaming generation: each ready sentence is spoken and
// emitted as a part event as it arrives, and onDone runs with the full text
// after the stream completes. A mid-stream error is logged and ends the flow
// without its terminal event; the client applies its own timeout.
func (s *Session) streamFlow(system string, history []core.Message, voice, speaker, partEvt string, part func(chunk string) any, onDone func(full string)) {
	var buffer string
	for evt := range s.gen.GenerateStream(s.ctx, system, history) {
		switch e := evt.(type) {
		case gen.TextDelta:
			buffer += e.Text
			for {
				ready, rest := text.SplitSentence(buffer)
				if ready == "" {
					break
				}
				s.synth.Speak(ready, voice, speaker, false)
				s.emit(partEvt, part(ready))
				buffer = rest
			}
		case gen.StreamError:
			s.logger.Errorf("streaming generation failed: %v", e.Err)
			return
		case gen.FinalMessage:
			if strings.TrimSpace(buffer) != "" {
				s.synth.Speak(buffer, voice, speaker, false)
				s.emit(partEvt, part(buffer))
			}
			s.synth.FinishSpeaking()
			onDone(e.Text)
			return
		}
	}
}

// handleAskQuestion answers an audience question in the narrator's voice,
// against the shared narrator history.
func (s *Session) handleAskQuestion(cmd protocol.Command) {
	if cmd.Text == "" {
		s.logger.Warn("ask-question with no text")
		return
	}
	concept, field := s.subject()
	s.mu.Lock()
	history := s.narratorHistory
	s.mu.Unlock()
	history.AddUser(cmd.Text)

	s.streamFlow(game.AskSystemPrompt(concept, field), history.Messages(), game.NarratorVoice, game.NarratorSpeaker,
		protocol.EvtAskQuestionPart,
		func(chunk string) any {
			return protocol.TextPartPayload{Text: chunk, Speaker: game.NarratorSpeaker, PlayerIndex: -1}
		},
		func(full string) {
			history.AddAssistant(full)
			s.emit(protocol.EvtAskQuestionDone, protocol.TextDonePayload{
				Text:          full,
				PlayerIndex:   -1,
				QuestionIndex: -1,
			})
		})
}

// handleTeachContestant runs a teaching exchange scoped to one participant's
// history, spoken in that participant's voice.
func (s *Session) handleTeachContestant(cmd protocol.Command) {
	p, ok := s.participantAt(cmd.PlayerIndex)
	if !ok {
		s.logger.Warnf("teach-contestant for unknown player %d", cmd.PlayerIndex)
		return
	}
	if cmd.Text == "" {
		s.logger.Warn("teach-contestant with no text")
		return
	}
	concept, _ := s.subject()
	p.History.AddUser(cmd.Text)

	s.streamFlow(game.TeachSystemPrompt(p, concept), p.History.Messages(), p.Voice, p.Name,
		protocol.EvtTeachContestantPart,
		func(chunk string) any {
			return protocol.TextPartPayload{Text: chunk, PlayerIndex: cmd.PlayerIndex}
		},
		func(full string) {
			p.History.AddAssistant(full)
			s.emit(protocol.EvtTeachContestantDone, protocol.TextDonePayload{
				Text:          full,
				PlayerIndex:   cmd.PlayerIndex,
				QuestionIndex: -1,
			})
		})
}

// handleContestantQuiz has a participant answer one quiz question in
// character and records the answer for grading. Participants who skipped all
// teaching answer from the never-learned framing instead.
func (s *Session) handleContestantQuiz(cmd protocol.Command) {
	p, ok := s.participantAt(cmd.PlayerIndex)
	if !ok {
		s.logger.Warnf("contestant-quiz for unknown player %d", cmd.PlayerIndex)
		return
	}
	question, ok := s.questionAt(cmd.QuestionIndex)
	if !ok {
		s.logger.Warnf("contestant-quiz for unknown question %d", cmd.QuestionIndex)
		return
	}

	system := game.QuizSystemPrompt(p)
	p.History.AddUser(game.QuizQuestionPrompt(question))

	s.streamFlow(system, p.History.Messages(), p.Voice, p.Name,
		protocol.EvtContestantQuizPart,
		func(chunk string) any {
			return protocol.TextPartPayload{Text: chunk, PlayerIndex: cmd.PlayerIndex}
		},
		func(full string) {
			p.History.AddAssistant(full)
			s.recordAnswer(p, cmd.QuestionIndex, full)
			s.emit(protocol.EvtContestantQuizDone, protocol.TextDonePayload{
				Text:          full,
				PlayerIndex:   cmd.PlayerIndex,
				QuestionIndex: cmd.QuestionIndex,
			})
		})
}

// handleProfessorQuiz grades a recorded answer out loud, then extracts the
// numeric grade from the spoken rationale and adds it to the score.
func (s *Session) handleProfessorQuiz(cmd protocol.Command) {
	p, ok := s.participantAt(cmd.PlayerIndex)
	if !ok {
		s.logger.Warnf("professor-quiz for unknown player %d", cmd.PlayerIndex)
		return
	}
	question, ok := s.questionAt(cmd.QuestionIndex)
	if !ok {
		s.logger.Warnf("professor-quiz for unknown question %d", cmd.QuestionIndex)
		return
	}
	answer := s.answerAt(p, cmd.QuestionIndex)
	if answer == "" {
		answer = "(no answer was given)"
	}
	concept, field := s.subject()

	// The grading exchange is transient; it is not part of any history.
	history := []core.Message{
		{Role: core.RoleUser, Content: game.GradePrompt(question, answer, p.Name)},
	}

	s.streamFlow(game.GradeSystemPrompt(concept, field), history, game.NarratorVoice, game.NarratorSpeaker,
		protocol.EvtProfessorQuizPart,
		func(chunk string) any {
			return protocol.TextPartPayload{Text: chunk, Speaker: game.NarratorSpeaker, PlayerIndex: cmd.PlayerIndex}
		},
		func(full string) {
			grade := s.gen.ExtractGrade(s.ctx, full)
			s.mu.Lock()
			p.Score += grade
			score := p.Score
			s.mu.Unlock()
			s.emit(protocol.EvtProfessorQuizFinish, protocol.GradePayload{
				Grade:         grade,
				Score:         score,
				Text:          full,
				PlayerIndex:   cmd.PlayerIndex,
				QuestionIndex: cmd.QuestionIndex,
			})
		})
}
