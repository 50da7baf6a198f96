package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

func TestConvertMessagesToAnthropic(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "ignored here"},
		{Role: models.RoleUser, Content: "add 2 and 2"},
		{
			Role:    models.RoleAssistant,
			Content: "let me compute that",
			ToolCalls: []models.ToolCall{
				{ID: "call-1", Name: "calculator", Input: json.RawMessage(`{"a":2,"b":2}`)},
			},
		},
		{Role: models.RoleTool, Content: "4", ToolCallID: "call-1"},
	}

	converted, err := convertMessagesToAnthropic(messages)
	if err != nil {
		t.Fatal(err)
	}
	// System messages are handled separately, so three remain.
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if converted[0].Role != "user" {
		t.Fatalf("messages[0].Role = %s", converted[0].Role)
	}
	if converted[1].Role != "assistant" {
		t.Fatalf("messages[1].Role = %s", converted[1].Role)
	}
	if len(converted[1].Content) != 2 {
		t.Fatalf("assistant should carry text and tool use, got %d blocks", len(converted[1].Content))
	}
	// Tool results ride in user messages.
	if converted[2].Role != "user" {
		t.Fatalf("messages[2].Role = %s", converted[2].Role)
	}
}

func TestConvertMessagesToAnthropicBadToolInput(t *testing.T) {
	_, err := convertMessagesToAnthropic([]models.Message{
		{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "c1", Name: "bad", Input: json.RawMessage(`not json`)},
			},
		},
	})
	if err == nil {
		t.Fatal("invalid tool input should fail conversion")
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools, err := convertToolsToAnthropic([]agent.ToolDescriptor{
		{
			Name:        "calculator",
			Description: "adds numbers",
			Schema:      json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"}}}`),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("unexpected tools %+v", tools)
	}
	if tools[0].OfTool.Name != "calculator" {
		t.Fatalf("tool name = %q", tools[0].OfTool.Name)
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := []struct {
		reason    string
		toolCalls int
		want      agent.FinishReason
	}{
		{"end_turn", 0, agent.FinishStop},
		{"stop_sequence", 0, agent.FinishStop},
		{"tool_use", 1, agent.FinishToolCalls},
		{"max_tokens", 0, agent.FinishLength},
		{"refusal", 0, agent.FinishContentFilter},
		{"", 1, agent.FinishToolCalls},
		{"", 0, agent.FinishStop},
	}
	for _, tc := range tests {
		if got := mapAnthropicStopReason(tc.reason, tc.toolCalls); got != tc.want {
			t.Errorf("mapAnthropicStopReason(%q, %d) = %s, want %s", tc.reason, tc.toolCalls, got, tc.want)
		}
	}
}

func TestIsRetryableAnthropicError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("rate_limit_error: slow down"), true},
		{"overloaded", errors.New("529 overloaded_error"), true},
		{"server error", errors.New("internal server error"), true},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"auth", errors.New("authentication_error: bad key"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableAnthropicError(tc.err); got != tc.want {
				t.Fatalf("isRetryableAnthropicError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
