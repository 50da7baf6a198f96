package providers

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

func TestOpenAIConvertMessages(t *testing.T) {
	c := &OpenAIClient{}
	req := &agent.ChatRequest{
		System: "be helpful",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "add 2 and 2"},
			{
				Role: models.RoleAssistant,
				ToolCalls: []models.ToolCall{
					{ID: "call-1", Name: "calculator", Input: json.RawMessage(`{"a":2,"b":2}`)},
				},
			},
			{Role: models.RoleTool, Content: "4", ToolCallID: "call-1", ToolName: "calculator"},
		},
	}

	msgs := c.convertMessages(req)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "be helpful" {
		t.Fatalf("system message = %+v", msgs[0])
	}
	if msgs[1].Role != openai.ChatMessageRoleUser {
		t.Fatalf("user message = %+v", msgs[1])
	}
	assistant := msgs[2]
	if assistant.Role != openai.ChatMessageRoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", assistant)
	}
	if assistant.ToolCalls[0].ID != "call-1" || assistant.ToolCalls[0].Function.Name != "calculator" {
		t.Fatalf("assistant tool call = %+v", assistant.ToolCalls[0])
	}
	toolMsg := msgs[3]
	if toolMsg.Role != openai.ChatMessageRoleTool || toolMsg.ToolCallID != "call-1" || toolMsg.Content != "4" {
		t.Fatalf("tool message = %+v", toolMsg)
	}
}

func TestConvertToolsToOpenAI(t *testing.T) {
	tools := convertToolsToOpenAI([]agent.ToolDescriptor{
		{
			Name:        "calculator",
			Description: "adds numbers",
			Schema:      json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"}}}`),
		},
	})
	if len(tools) != 1 {
		t.Fatalf("got %d tools", len(tools))
	}
	if tools[0].Type != openai.ToolTypeFunction {
		t.Fatalf("tool type = %v", tools[0].Type)
	}
	fn := tools[0].Function
	if fn.Name != "calculator" || fn.Description != "adds numbers" {
		t.Fatalf("function = %+v", fn)
	}
	params, ok := fn.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Fatalf("parameters = %+v", fn.Parameters)
	}
}

func TestConvertToolCallsFromOpenAI(t *testing.T) {
	calls := convertToolCallsFromOpenAI([]openai.ToolCall{
		{ID: "c1", Function: openai.FunctionCall{Name: "calculator", Arguments: `{"a":1}`}},
		{ID: "c2", Function: openai.FunctionCall{Name: "clock"}},
	})
	if len(calls) != 2 {
		t.Fatalf("got %d calls", len(calls))
	}
	if calls[0].ID != "c1" || string(calls[0].Input) != `{"a":1}` {
		t.Fatalf("call[0] = %+v", calls[0])
	}
	// Empty arguments normalize to an empty object.
	if string(calls[1].Input) != `{}` {
		t.Fatalf("call[1].Input = %s", calls[1].Input)
	}

	if convertToolCallsFromOpenAI(nil) != nil {
		t.Fatal("nil input should stay nil")
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		reason    string
		toolCalls int
		want      agent.FinishReason
	}{
		{"stop", 0, agent.FinishStop},
		{"tool_calls", 1, agent.FinishToolCalls},
		{"function_call", 1, agent.FinishToolCalls},
		{"length", 0, agent.FinishLength},
		{"content_filter", 0, agent.FinishContentFilter},
		{"", 2, agent.FinishToolCalls},
		{"", 0, agent.FinishStop},
		{"weird", 0, agent.FinishStop},
	}
	for _, tc := range tests {
		if got := mapOpenAIFinishReason(tc.reason, tc.toolCalls); got != tc.want {
			t.Errorf("mapOpenAIFinishReason(%q, %d) = %s, want %s", tc.reason, tc.toolCalls, got, tc.want)
		}
	}
}

func TestIsRetryableOpenAIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"timeout text", errors.New("request timeout"), true},
		{"connection text", errors.New("connection refused"), true},
		{"other", errors.New("invalid model"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableOpenAIError(tc.err); got != tc.want {
				t.Fatalf("isRetryableOpenAIError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
