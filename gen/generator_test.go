package gen

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"noodleknocker/core"

	"github.com/google/jsonschema-go/jsonschema"
	openai "github.com/sashabaranov/go-openai"
)

type fakeBackend struct {
	responses []openai.ChatCompletionResponse
	errs      []error
	requests  []openai.ChatCompletionRequest

	streamChunks []string
	streamErr    error
}

func (b *fakeBackend) complete(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := len(b.requests)
	b.requests = append(b.requests, req)
	if i < len(b.errs) && b.errs[i] != nil {
		return openai.ChatCompletionResponse{}, b.errs[i]
	}
	if i >= len(b.responses) {
		return openai.ChatCompletionResponse{}, errors.New("no scripted response")
	}
	return b.responses[i], nil
}

func (b *fakeBackend) stream(_ context.Context, req openai.ChatCompletionRequest) (chatStream, error) {
	b.requests = append(b.requests, req)
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	return &fakeStream{chunks: b.streamChunks}, nil
}

func (b *fakeBackend) image(context.Context, openai.ImageRequest) (openai.ImageResponse, error) {
	return openai.ImageResponse{}, errors.New("not scripted")
}

type fakeStream struct {
	chunks []string
	next   int
}

func (s *fakeStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if s.next >= len(s.chunks) {
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[s.next]
	s.next++
	return openai.ChatCompletionStreamResponse{
		Choices: []openai.ChatCompletionStreamChoice{
			{Delta: openai.ChatCompletionStreamChoiceDelta{Content: chunk}},
		},
	}, nil
}

func (s *fakeStream) Close() error { return nil }

func toolResponse(name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: name, Arguments: args},
				}},
			},
		}},
	}
}

var triviaTestSchema = Schema{
	Name:        "record_trivia",
	Description: "Record trivia statements.",
	Spec: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"trivia": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"trivia"},
	},
}

func TestGenerateRetriesUntilValid(t *testing.T) {
	b := &fakeBackend{
		responses: []openai.ChatCompletionResponse{
			toolResponse("record_trivia", `{"facts": ["wrong field"]}`),
			toolResponse("record_trivia", `{"trivia": ["a", "b"]}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	result, err := g.Generate(context.Background(), "prompt", triviaTestSchema, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(b.requests) != 2 {
		t.Errorf("backend calls = %d, want 2", len(b.requests))
	}
	items, ok := result["trivia"].([]any)
	if !ok || len(items) != 2 {
		t.Errorf("trivia = %v, want 2 items", result["trivia"])
	}
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	b := &fakeBackend{
		responses: []openai.ChatCompletionResponse{
			toolResponse("record_trivia", `{}`),
			toolResponse("record_trivia", `{}`),
			toolResponse("record_trivia", `{}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	_, err := g.Generate(context.Background(), "prompt", triviaTestSchema, 3)
	if err == nil {
		t.Fatal("Generate succeeded on invalid output")
	}
	if len(b.requests) != 3 {
		t.Errorf("backend calls = %d, want 3", len(b.requests))
	}
}

func TestGenerateReparsesStringEncodedField(t *testing.T) {
	b := &fakeBackend{
		responses: []openai.ChatCompletionResponse{
			toolResponse("record_trivia", `{"trivia": "[\"a\", \"b\"]"}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	result, err := g.Generate(context.Background(), "prompt", triviaTestSchema, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	items, ok := result["trivia"].([]any)
	if !ok || len(items) != 2 {
		t.Errorf("trivia = %v, want decoded array of 2", result["trivia"])
	}
}

func TestGenerateRepairsMalformedJSON(t *testing.T) {
	b := &fakeBackend{
		responses: []openai.ChatCompletionResponse{
			toolResponse("record_trivia", `{"trivia": ["a", "b",]}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	result, err := g.Generate(context.Background(), "prompt", triviaTestSchema, 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, ok := result["trivia"].([]any); !ok {
		t.Errorf("trivia = %v, want repaired array", result["trivia"])
	}
}

func TestGenerateBackoffGrowsPerAttempt(t *testing.T) {
	b := &fakeBackend{
		errs: []error{errors.New("boom"), errors.New("boom")},
		responses: []openai.ChatCompletionResponse{
			{}, {},
			toolResponse("record_trivia", `{"trivia": ["a"]}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())
	var slept []time.Duration
	g.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := g.Generate(context.Background(), "prompt", triviaTestSchema, 3); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestGenerateLargePromptBacksOffLonger(t *testing.T) {
	b := &fakeBackend{
		errs: []error{errors.New("boom")},
		responses: []openai.ChatCompletionResponse{
			{},
			toolResponse("record_trivia", `{"trivia": ["a"]}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())
	var slept []time.Duration
	g.sleep = func(d time.Duration) { slept = append(slept, d) }

	prompt := strings.Repeat("x", largePromptThreshold+1)
	if _, err := g.Generate(context.Background(), prompt, triviaTestSchema, 2); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want [2s]", slept)
	}
}

func TestExtractGradeFromText(t *testing.T) {
	tests := []struct {
		prose string
		want  int
	}{
		{"That answer earns an 85 out of 100.", 85},
		{"Grade: 0. The answer was blank.", 0},
		{"Perfect, 100!", 100},
		{"I'd say 732 is not valid, but 60 fits.", 60},
	}
	g := newGeneratorWithBackend(&fakeBackend{}, "test-model", core.GetLogger())
	for _, tt := range tests {
		if got := g.ExtractGrade(context.Background(), tt.prose); got != tt.want {
			t.Errorf("ExtractGrade(%q) = %d, want %d", tt.prose, got, tt.want)
		}
	}
}

func TestExtractGradeFallbackCall(t *testing.T) {
	b := &fakeBackend{
		responses: []openai.ChatCompletionResponse{
			toolResponse("record_grade", `{"grade": 70}`),
		},
	}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	got := g.ExtractGrade(context.Background(), "A solid effort, better than most.")
	if got != 70 {
		t.Errorf("ExtractGrade = %d, want 70", got)
	}
	if len(b.requests) != 1 {
		t.Errorf("fallback backend calls = %d, want 1", len(b.requests))
	}
}

func TestExtractGradeFallbackFailureDefaultsZero(t *testing.T) {
	b := &fakeBackend{errs: []error{errors.New("boom")}}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	if got := g.ExtractGrade(context.Background(), "No digits here."); got != 0 {
		t.Errorf("ExtractGrade = %d, want 0", got)
	}
}

func TestGenerateStreamDeltasAndFinal(t *testing.T) {
	b := &fakeBackend{streamChunks: []string{"Hello ", "there", "."}}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	history := []core.Message{{Role: core.RoleUser, Content: "hi"}}
	var deltas []string
	var final string
	for evt := range g.GenerateStream(context.Background(), "system prompt", history) {
		switch e := evt.(type) {
		case TextDelta:
			deltas = append(deltas, e.Text)
		case FinalMessage:
			final = e.Text
		case StreamError:
			t.Fatalf("stream error: %v", e.Err)
		}
	}
	if len(deltas) != 3 {
		t.Errorf("deltas = %v, want 3 chunks", deltas)
	}
	if final != "Hello there." {
		t.Errorf("final = %q, want %q", final, "Hello there.")
	}
	if len(b.requests) != 1 || len(b.requests[0].Messages) != 2 {
		t.Fatalf("request messages = %+v, want system + user", b.requests)
	}
	if b.requests[0].Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %q, want system", b.requests[0].Messages[0].Role)
	}
}

func TestGenerateStreamSetupError(t *testing.T) {
	b := &fakeBackend{streamErr: errors.New("dial failed")}
	g := newGeneratorWithBackend(b, "test-model", core.GetLogger())

	var sawErr bool
	for evt := range g.GenerateStream(context.Background(), "", nil) {
		if _, ok := evt.(StreamError); ok {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("stream produced no StreamError")
	}
}
