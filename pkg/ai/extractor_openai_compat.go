package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatExtractor drives function calling on any OpenAI-compatible
// /v1/chat/completions endpoint that supports the tools API.
type OpenAICompatExtractor struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatExtractor builds an OpenAI-compatible FunctionCaller.
// baseURL should include the /v1 prefix; apiKey can be empty for local models.
func NewOpenAICompatExtractor(baseURL, apiKey, model string) *OpenAICompatExtractor {
	return &OpenAICompatExtractor{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CallFunction implements FunctionCaller using the OpenAI tools API.
func (e *OpenAICompatExtractor) CallFunction(ctx context.Context, systemPrompt string, history []ChatMessage, fn FunctionDef) (*FunctionCall, error) {
	if e.model == "" {
		return nil, fmt.Errorf("openai-compat extraction model required")
	}
	messages := assembleOAIMessages(systemPrompt, history)
	if len(messages) == 0 {
		return nil, fmt.Errorf("openai-compat extraction needs at least one message")
	}

	chatResp, err := postOAIChat(ctx, e.httpClient, e.baseURL, e.apiKey, oaiChatRequest{
		Model:    e.model,
		Messages: messages,
		Tools: []oaiTool{{
			Type: "function",
			Function: oaiFunctionDef{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from openai-compat api")
	}

	calls := chatResp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, nil
	}
	call := calls[0]
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("openai-compat tool arguments: %w", err)
		}
	}
	return &FunctionCall{Name: call.Function.Name, Arguments: args}, nil
}
