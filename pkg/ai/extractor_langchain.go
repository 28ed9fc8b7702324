package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// LangChainExtractor drives function calling through langchaingo's OpenAI
// client, for deployments that prefer langchaingo's provider handling over
// the built-in wire client.
type LangChainExtractor struct {
	llm llms.Model
}

// NewLangChainExtractor builds a langchaingo-backed FunctionCaller.
// baseURL may be empty for the public OpenAI endpoint.
func NewLangChainExtractor(baseURL, apiKey, model string) (*LangChainExtractor, error) {
	llm, err := newLangChainClient(baseURL, apiKey, model)
	if err != nil {
		return nil, err
	}
	return &LangChainExtractor{llm: llm}, nil
}

// NewLangChainExtractorFromModel wraps an existing langchaingo model.
func NewLangChainExtractorFromModel(llm llms.Model) *LangChainExtractor {
	return &LangChainExtractor{llm: llm}
}

// CallFunction implements FunctionCaller via llms.GenerateContent with a
// single tool attached.
func (e *LangChainExtractor) CallFunction(ctx context.Context, systemPrompt string, history []ChatMessage, fn FunctionDef) (*FunctionCall, error) {
	msgs := langchainMessages(systemPrompt, history)
	if len(msgs) == 0 {
		return nil, fmt.Errorf("langchain extraction needs at least one message")
	}

	tools := []llms.Tool{{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		},
	}}
	resp, err := e.llm.GenerateContent(ctx, msgs, llms.WithTools(tools))
	if err != nil {
		return nil, fmt.Errorf("langchain generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from langchain client")
	}

	for _, call := range resp.Choices[0].ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.FunctionCall.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("langchain tool arguments: %w", err)
			}
		}
		return &FunctionCall{Name: call.FunctionCall.Name, Arguments: args}, nil
	}
	return nil, nil
}
