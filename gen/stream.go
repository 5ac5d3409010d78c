package gen

import (
	"context"
	"errors"
	"io"
	"strings"

	"noodleknocker/core"

	openai "github.com/sashabaranov/go-openai"
)

// StreamEvent is one event on a streaming completion channel.
type StreamEvent interface {
	isStreamEvent()
}

// TextDelta carries one incremental chunk of assistant text.
type TextDelta struct {
	Text string
}

// FinalMessage carries the full assistant text after the stream ends.
type FinalMessage struct {
	Text string
}

// StreamError terminates a stream that failed mid-flight.
type StreamError struct {
	Err error
}

func (TextDelta) isStreamEvent()    {}
func (FinalMessage) isStreamEvent() {}
func (StreamError) isStreamEvent()  {}

// GenerateStream runs a streaming completion over a system prompt and a
// conversation history. The channel yields TextDelta events as chunks arrive
// and closes after a terminal FinalMessage or StreamError.
func (g *Generator) GenerateStream(ctx context.Context, system string, history []core.Message) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)

		messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
		if system != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			})
		}
		for _, m := range history {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    string(m.Role),
				Content: m.Content,
			})
		}

		stream, err := g.backend.stream(ctx, openai.ChatCompletionRequest{
			Model:     g.model,
			MaxTokens: g.maxTokens,
			Messages:  messages,
			Stream:    true,
		})
		if err != nil {
			out <- StreamError{Err: err}
			return
		}
		defer stream.Close()

		var full strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				out <- StreamError{Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			select {
			case out <- TextDelta{Text: delta}:
			case <-ctx.Done():
				out <- StreamError{Err: ctx.Err()}
				return
			}
		}
		out <- FinalMessage{Text: full.String()}
	}()
	return out
}
