// Package models provides domain types for the Hive agent runtime.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in an agent conversation. Assistant messages may
// carry tool calls alongside (or instead of) text content; tool messages carry
// the serialized result of exactly one tool call, correlated by ToolCallID.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool message with the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the name of the tool that produced a tool message.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall is a request from the model to execute a named tool.
type ToolCall struct {
	// ID uniquely identifies the call within a run. Providers that do not
	// supply IDs get generated ones so results can always be correlated.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input is the raw JSON arguments for the tool.
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a single tool invocation. Exactly one of
// Content or Error is meaningful: a successful result carries the serialized
// payload, a failed one carries a structured error. Invocation never returns
// a Go error; failures are values so the loop can hand them back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`

	// Content is the serialized successful payload. Empty on failure.
	Content string `json:"content,omitempty"`

	// Error is set when the invocation failed at any stage.
	Error *ResultError `json:"error,omitempty"`

	Meta ResultMeta `json:"meta"`
}

// Failed reports whether the invocation produced an error.
func (r *ToolResult) Failed() bool {
	return r.Error != nil
}

// ResultError is the structured failure carried inside a ToolResult.
type ResultError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// ResultMeta records execution metadata for a tool invocation.
type ResultMeta struct {
	// Duration is the wall time across all attempts, including backoff.
	Duration time.Duration `json:"duration"`

	// CompletedAt is when the final attempt finished.
	CompletedAt time.Time `json:"completed_at"`

	// Retries counts attempts beyond the first. Zero means the first try
	// succeeded (or retries were not configured).
	Retries int `json:"retries"`
}
