package gen

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// GenerateImage renders a PNG illustration for a prompt.
func (g *Generator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.backend.image(ctx, openai.ImageRequest{
		Model:          openai.CreateImageModelDallE3,
		Prompt:         prompt,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("gen: create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("gen: create image returned no data")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("gen: decode image payload: %w", err)
	}
	return raw, nil
}
