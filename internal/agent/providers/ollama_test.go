package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

func TestMapOllamaDoneReason(t *testing.T) {
	tests := []struct {
		reason    string
		toolCalls int
		want      agent.FinishReason
	}{
		{"stop", 0, agent.FinishStop},
		{"length", 0, agent.FinishLength},
		// Ollama reports "stop" even for tool-call turns; presence of calls wins.
		{"stop", 1, agent.FinishToolCalls},
		{"", 0, agent.FinishStop},
	}
	for _, tc := range tests {
		if got := mapOllamaDoneReason(tc.reason, tc.toolCalls); got != tc.want {
			t.Errorf("mapOllamaDoneReason(%q, %d) = %s, want %s", tc.reason, tc.toolCalls, got, tc.want)
		}
	}
}

func TestBuildOllamaMessages(t *testing.T) {
	req := &agent.ChatRequest{
		System: "be terse",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "what time is it?"},
			{
				Role: models.RoleAssistant,
				ToolCalls: []models.ToolCall{
					{ID: "c1", Name: "clock", Input: nil},
				},
			},
			{Role: models.RoleTool, Content: "12:00", ToolName: "clock"},
		},
	}

	messages := buildOllamaMessages(req)
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != "be terse" {
		t.Fatalf("system message = %+v", messages[0])
	}
	assistant := messages[2]
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v", assistant)
	}
	// Missing input normalizes to an empty object.
	if string(assistant.ToolCalls[0].Function.Arguments) != `{}` {
		t.Fatalf("arguments = %s", assistant.ToolCalls[0].Function.Arguments)
	}
	toolMsg := messages[3]
	if toolMsg.Role != "tool" || toolMsg.ToolName != "clock" || toolMsg.Content != "12:00" {
		t.Fatalf("tool message = %+v", toolMsg)
	}
}

func TestOllamaToolCallKey(t *testing.T) {
	withID := ollamaToolCall{ID: "abc", Function: ollamaToolFunction{Name: "x"}}
	if key := ollamaToolCallKey(withID); key != "abc" {
		t.Fatalf("key = %q", key)
	}

	noID := ollamaToolCall{Function: ollamaToolFunction{
		Name:      "calculator",
		Arguments: json.RawMessage(`{"a":1}`),
	}}
	if key := ollamaToolCallKey(noID); key != `calculator:{"a":1}` {
		t.Fatalf("key = %q", key)
	}

	if key := ollamaToolCallKey(ollamaToolCall{}); key != "" {
		t.Fatalf("empty call key = %q", key)
	}
}
