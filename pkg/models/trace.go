package models

import "time"

// TraceEventType identifies the kind of trace event.
type TraceEventType string

const (
	// Execution lifecycle
	TraceAgentStart TraceEventType = "agent_start"
	TraceAgentEnd   TraceEventType = "agent_end"
	TraceStepStart  TraceEventType = "step_start"
	TraceStepEnd    TraceEventType = "step_end"

	// Model interaction
	TraceLLMRequest     TraceEventType = "llm_request"
	TraceLLMResponse    TraceEventType = "llm_response"
	TraceLLMStreamStart TraceEventType = "llm_stream_start"
	TraceLLMStreamChunk TraceEventType = "llm_stream_chunk"
	TraceLLMStreamEnd   TraceEventType = "llm_stream_end"

	// Tool execution
	TraceToolCallRequest TraceEventType = "tool_call_request"
	TraceToolCallStart   TraceEventType = "tool_call_start"
	TraceToolCallEnd     TraceEventType = "tool_call_end"
	TraceToolCallError   TraceEventType = "tool_call_error"

	// Terminal failures
	TraceError TraceEventType = "error"

	// Swarm coordination
	TraceRoutingDecision TraceEventType = "routing_decision"
)

// TraceEvent is a single append-only entry in an execution trace.
// At most one payload pointer is non-nil for a given Type.
type TraceEvent struct {
	Type TraceEventType `json:"type"`

	// Timestamp is when the event was recorded. Timestamps within a trace
	// are non-decreasing.
	Timestamp time.Time `json:"timestamp"`

	// Step is the 1-based loop step the event belongs to. Zero for events
	// outside any step (agent_start, agent_end).
	Step int `json:"step,omitempty"`

	LLM   *LLMEventPayload   `json:"llm,omitempty"`
	Tool  *ToolEventPayload  `json:"tool,omitempty"`
	Error *ErrorEventPayload `json:"error,omitempty"`

	// Data carries small free-form attributes for lifecycle events.
	Data map[string]any `json:"data,omitempty"`
}

// LLMEventPayload carries model request/response details.
type LLMEventPayload struct {
	MessageCount int           `json:"message_count,omitempty"`
	ToolCount    int           `json:"tool_count,omitempty"`
	Content      string        `json:"content,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	ChunkSize    int           `json:"chunk_size,omitempty"`
}

// ToolEventPayload carries tool invocation details.
type ToolEventPayload struct {
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}

// ErrorEventPayload carries a terminal failure.
type ErrorEventPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// TraceStats are running counters accumulated as events are appended.
type TraceStats struct {
	Steps               int `json:"steps"`
	LLMCalls            int `json:"llm_calls"`
	ToolCalls           int `json:"tool_calls"`
	SuccessfulToolCalls int `json:"successful_tool_calls"`
	FailedToolCalls     int `json:"failed_tool_calls"`
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
}

// ExecutionTrace is the full typed event log for one agent execution.
type ExecutionTrace struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Events    []TraceEvent  `json:"events"`
	Stats     TraceStats    `json:"stats"`
}
