package ai

import "context"

// GeminiGenerator wraps GeminiClient with a fixed model for text generation.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based TextGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateChat implements TextGenerator using Gemini.
func (g *GeminiGenerator) GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error) {
	return g.client.GenerateChat(ctx, g.model, systemPrompt, history)
}
