package chat

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for chat responses.
const DefaultModel = "gemini-2.5-flash"

// Generation parameters for every chat call.
const (
	chatTemperature   float32 = 0.7
	maxResponseTokens int32   = 500
)

// Gemini generates responses through the Google GenAI API. Credentials come
// from the environment (GEMINI_API_KEY or application default credentials).
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini builds a Gemini generator. An empty model selects DefaultModel.
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: creating client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate sends the conversation to the model and returns its text reply.
func (g *Gemini) Generate(ctx context.Context, system string, turns []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, &genai.Content{
			Role:  string(t.Role),
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       genai.Ptr(chatTemperature),
		MaxOutputTokens:   maxResponseTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("Generate: calling model %s: %w", g.model, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Generate: empty response from model %s", g.model)
	}
	return text, nil
}
