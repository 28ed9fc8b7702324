package ai

import "context"

// Chat roles shared by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of conversation history passed to a provider,
// oldest first.
type ChatMessage struct {
	Role    string
	Content string
}

// TextGenerator produces the advisor's next reply from a system prompt and
// recent conversation history.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error)
}
