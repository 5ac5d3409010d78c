package gen

import (
	"context"
	"fmt"
	"time"

	"noodleknocker/core"

	"github.com/bytedance/sonic"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"
)

// Schema declares the required shape of a structured generation result.
type Schema struct {
	Name        string
	Description string
	Spec        *jsonschema.Schema
}

// DefaultMaxAttempts is used when a caller passes a non-positive attempt count.
const DefaultMaxAttempts = 3

// Prompts above this size hit the upstream harder; back off more per attempt.
const largePromptThreshold = 2000

// chatStream is the subset of the provider stream we consume.
type chatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// backend abstracts the model service so tests can script responses.
type backend interface {
	complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	stream(ctx context.Context, req openai.ChatCompletionRequest) (chatStream, error)
	image(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

type openaiBackend struct {
	client *openai.Client
}

func (b openaiBackend) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return b.client.CreateChatCompletion(ctx, req)
}

func (b openaiBackend) stream(ctx context.Context, req openai.ChatCompletionRequest) (chatStream, error) {
	s, err := b.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b openaiBackend) image(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	return b.client.CreateImage(ctx, req)
}

// Generator issues schema-constrained model calls with validation and retry.
type Generator struct {
	backend   backend
	model     string
	maxTokens int
	logger    *core.Logger

	sleep func(time.Duration) // injectable for tests
}

// Config holds the configuration for the generator.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewGenerator creates a generator backed by the OpenAI chat API.
func NewGenerator(config Config, logger *core.Logger) *Generator {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	return &Generator{
		backend:   openaiBackend{client: openai.NewClientWithConfig(clientCfg)},
		model:     config.Model,
		maxTokens: config.MaxTokens,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

func newGeneratorWithBackend(b backend, model string, logger *core.Logger) *Generator {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Generator{
		backend:   b,
		model:     model,
		maxTokens: 1024,
		logger:    logger,
		sleep:     func(time.Duration) {},
	}
}

// Generate runs a forced tool-choice completion and returns the tool input
// once it validates against the schema. Failed attempts are retried with a
// delay proportional to the attempt count; exhausting maxAttempts returns the
// last error.
func (g *Generator) Generate(ctx context.Context, prompt string, schema Schema, maxAttempts int) (map[string]any, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	baseDelay := time.Second
	if len(prompt) > largePromptThreshold {
		baseDelay = 2 * time.Second
	}

	resolved, err := schema.Spec.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("gen: resolve schema %q: %w", schema.Name, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := g.attempt(ctx, prompt, schema, resolved)
		if err == nil {
			return result, nil
		}
		lastErr = err
		g.logger.Warnf("generation %q attempt %d/%d failed: %v", schema.Name, attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			g.sleep(baseDelay * time.Duration(attempt))
		}
	}
	return nil, fmt.Errorf("gen: %q exhausted %d attempts: %w", schema.Name, maxAttempts, lastErr)
}

func (g *Generator) attempt(ctx context.Context, prompt string, schema Schema, resolved *jsonschema.Resolved) (map[string]any, error) {
	req := openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  schema.Spec,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: schema.Name},
		},
	}

	resp, err := g.backend.complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	args, err := toolArguments(resp, schema.Name)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := unmarshalRepair([]byte(args), &result); err != nil {
		return nil, fmt.Errorf("parse tool input: %w", err)
	}
	reparseStringEncoded(result, schema.Spec)

	if err := resolved.Validate(result); err != nil {
		return nil, fmt.Errorf("validate tool input: %w", err)
	}
	return result, nil
}

// toolArguments finds the forced tool call in a completion response.
func toolArguments(resp openai.ChatCompletionResponse, name string) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name == name {
			return call.Function.Arguments, nil
		}
	}
	return "", fmt.Errorf("completion returned no %q tool call", name)
}

// reparseStringEncoded fixes up results where the model wrapped a non-string
// field in a JSON string, e.g. {"trivia": "[\"a\",\"b\"]"}.
func reparseStringEncoded(result map[string]any, spec *jsonschema.Schema) {
	for key, prop := range spec.Properties {
		if prop.Type == "string" || prop.Type == "" {
			continue
		}
		encoded, ok := result[key].(string)
		if !ok {
			continue
		}
		var decoded any
		if err := unmarshalRepair([]byte(encoded), &decoded); err == nil {
			result[key] = decoded
		}
	}
}

// unmarshalRepair unmarshals JSON, attempting to repair malformed input
// before giving up.
func unmarshalRepair(data []byte, v any) error {
	err := sonic.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return err
	}
	return sonic.Unmarshal([]byte(fixed), v)
}
