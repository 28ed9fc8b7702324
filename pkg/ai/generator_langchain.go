package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// newLangChainClient builds a langchaingo OpenAI-compatible model handle.
func newLangChainClient(baseURL, apiKey, model string) (llms.Model, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("langchain model required")
	}
	opts := []openai.Option{openai.WithModel(model)}
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		opts = append(opts, openai.WithToken(apiKey))
	}
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain openai client: %w", err)
	}
	return llm, nil
}

// langchainMessages converts a system prompt plus history into langchaingo
// message contents.
func langchainMessages(systemPrompt string, history []ChatMessage) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}
	return msgs
}

// LangChainGenerator implements TextGenerator through langchaingo's OpenAI
// client.
type LangChainGenerator struct {
	llm llms.Model
}

// NewLangChainGenerator builds a langchaingo-backed TextGenerator.
// baseURL may be empty for the public OpenAI endpoint.
func NewLangChainGenerator(baseURL, apiKey, model string) (*LangChainGenerator, error) {
	llm, err := newLangChainClient(baseURL, apiKey, model)
	if err != nil {
		return nil, err
	}
	return &LangChainGenerator{llm: llm}, nil
}

// GenerateChat implements TextGenerator via llms.GenerateContent.
func (g *LangChainGenerator) GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error) {
	msgs := langchainMessages(systemPrompt, history)
	if len(msgs) == 0 {
		return "", fmt.Errorf("langchain generation needs at least one message")
	}
	resp, err := g.llm.GenerateContent(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from langchain client")
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("empty response from langchain client")
	}
	return text, nil
}
