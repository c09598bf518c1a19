package coach

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GenAI is an LLM backed by the Gemini API
type GenAI struct {
	client *genai.Client
}

// NewGenAI creates a Gemini client for apiKey
func NewGenAI(ctx context.Context, apiKey string) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAI{client: client}, nil
}

// Generate runs a single-turn completion
func (g *GenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(p.MaxTokens),
	}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, p.Model, genai.Text(p.User), cfg)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", p.Model, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("generate with %s: empty response", p.Model)
	}
	return text, nil
}
