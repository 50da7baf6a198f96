package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/hive/pkg/models"
)

// FinishReason is why the model stopped producing a turn. Adapters map
// provider-native stop reasons onto this closed set.
type FinishReason string

const (
	// FinishStop means the model completed its answer naturally.
	FinishStop FinishReason = "stop"

	// FinishToolCalls means the turn requests tool execution.
	FinishToolCalls FinishReason = "tool_calls"

	// FinishLength means the turn was truncated by the token limit.
	FinishLength FinishReason = "length"

	// FinishContentFilter means the backend suppressed the output.
	FinishContentFilter FinishReason = "content_filter"
)

// TokenSink receives content fragments in arrival order while a turn streams.
// Adapters must deliver every fragment before Chat returns and must not call
// the sink afterwards.
type TokenSink func(fragment string)

// ToolDescriptor is the wire-friendly form of a registered tool, advertised
// to the model in chat requests.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ChatRequest is a single request for one assistant turn.
type ChatRequest struct {
	// System is the system prompt, kept separate from Messages because
	// providers differ in how they accept it.
	System string

	// Messages is the ordered conversation, excluding the system prompt.
	Messages []models.Message

	// Tools is the advertised catalogue from the registry.
	Tools []ToolDescriptor

	// Model overrides the adapter's default model when set.
	Model string

	// Sampling parameters. Zero values mean provider defaults.
	Temperature float64
	TopP        float64
	MaxTokens   int

	// Sink, when non-nil, receives content fragments as they arrive.
	Sink TokenSink
}

// ChatResponse is one completed assistant turn.
type ChatResponse struct {
	// Content is the assistant text. May be empty for pure tool-call turns.
	Content string

	// ToolCalls are structured tool invocation requests. Adapters preserve
	// provider tool-call ids so results can be threaded back.
	ToolCalls []models.ToolCall

	FinishReason FinishReason

	// Model is the model that produced the turn.
	Model string

	InputTokens  int
	OutputTokens int
}

// Model describes an available model for diagnostics and configuration.
type Model struct {
	ID          string
	Name        string
	ContextSize int
}

// LLMClient is the provider-agnostic chat capability the loop is built on.
// Implementations must honor context cancellation.
type LLMClient interface {
	// Chat produces one assistant turn for the given conversation and
	// advertised tools. Failures are returned as errors; the loop wraps
	// them as LLM_ERROR.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the stable lowercase provider tag.
	Name() string

	// Models lists the models this client can serve.
	Models() []Model
}
