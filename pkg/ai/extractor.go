package ai

import "context"

// FunctionDef describes a single function exposed to the model. Parameters
// holds a JSON-schema object in the OpenAI tools format.
type FunctionDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// FunctionCall is the model's decision to invoke a function, with its
// arguments decoded from the provider's JSON payload.
type FunctionCall struct {
	Name      string
	Arguments map[string]any
}

// FunctionCaller runs a chat completion that exposes exactly one callable
// function and reports whether the model chose to call it. A nil call with a
// nil error means the model answered without calling the function; callers
// treat that as "nothing to extract".
type FunctionCaller interface {
	CallFunction(ctx context.Context, systemPrompt string, history []ChatMessage, fn FunctionDef) (*FunctionCall, error)
}
