package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

var _ FunctionCaller = (*OpenAICompatExtractor)(nil)
var _ FunctionCaller = (*LangChainExtractor)(nil)

func journeyFunctionDef() FunctionDef {
	return FunctionDef{
		Name:        "update_journey",
		Description: "Record an extracted checkpoint value.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"journey_id":      map[string]any{"type": "string"},
				"checkpoint_name": map[string]any{"type": "string"},
				"value":           map[string]any{"type": "string"},
			},
			"required": []string{"journey_id", "checkpoint_name", "value"},
		},
	}
}

func TestOpenAICompatExtractorDecodesToolCall(t *testing.T) {
	var captured oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "update_journey",
								"arguments": `{"journey_id":"j1","checkpoint_name":"room","value":"kitchen"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAICompatExtractor(srv.URL+"/v1", "", "test-model")
	call, err := e.CallFunction(context.Background(), "Extract checkpoints.", []ChatMessage{
		{Role: RoleUser, Content: "It's the kitchen we're redoing"},
	}, journeyFunctionDef())
	if err != nil {
		t.Fatalf("call function: %v", err)
	}
	if call == nil {
		t.Fatalf("expected a function call")
	}
	if call.Name != "update_journey" {
		t.Fatalf("unexpected function name: %q", call.Name)
	}
	if call.Arguments["checkpoint_name"] != "room" || call.Arguments["value"] != "kitchen" {
		t.Fatalf("unexpected arguments: %+v", call.Arguments)
	}

	if len(captured.Tools) != 1 || captured.Tools[0].Function.Name != "update_journey" {
		t.Fatalf("expected single update_journey tool in request, got %+v", captured.Tools)
	}
	if captured.Tools[0].Type != "function" {
		t.Fatalf("unexpected tool type: %q", captured.Tools[0].Type)
	}
}

func TestOpenAICompatExtractorReportsNoCallWhenModelDeclines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Nothing new to record."}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAICompatExtractor(srv.URL+"/v1", "", "test-model")
	call, err := e.CallFunction(context.Background(), "Extract checkpoints.", []ChatMessage{
		{Role: RoleUser, Content: "hmm, not sure yet"},
	}, journeyFunctionDef())
	if err != nil {
		t.Fatalf("call function: %v", err)
	}
	if call != nil {
		t.Fatalf("expected no function call, got %+v", call)
	}
}

func TestOpenAICompatExtractorRejectsMalformedArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "update_journey",
								"arguments": `{"journey_id":`,
							},
						},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAICompatExtractor(srv.URL+"/v1", "", "test-model")
	_, err := e.CallFunction(context.Background(), "Extract checkpoints.", []ChatMessage{
		{Role: RoleUser, Content: "kitchen"},
	}, journeyFunctionDef())
	if err == nil {
		t.Fatalf("expected error for malformed tool arguments")
	}
}
