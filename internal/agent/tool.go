package agent

import (
	"context"
	"encoding/json"
	"time"
)

// Tool is a callable capability the model can invoke. Execute returns the
// successful payload; the registry serializes it (strings pass through,
// everything else is JSON-encoded) and wraps failures into ToolResult values.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema returns the JSON Schema for the tool's input object.
	Schema() json.RawMessage

	// Execute runs the tool. Input has already been validated against
	// Schema. Implementations should honor ctx for cancellation and
	// deadlines.
	Execute(ctx context.Context, input json.RawMessage) (any, error)
}

// ToolConfig carries the per-tool execution policy.
type ToolConfig struct {
	// Timeout bounds each individual attempt. Zero disables the timeout.
	Timeout time.Duration

	// MaxAttempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff is the base delay between attempts. Retry n waits n×Backoff.
	Backoff time.Duration
}

// DefaultToolConfig returns the policy applied when none is supplied:
// a 30 second per-attempt timeout and no retries.
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		Timeout:     30 * time.Second,
		MaxAttempts: 1,
		Backoff:     100 * time.Millisecond,
	}
}

func (c ToolConfig) sanitized() ToolConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Backoff <= 0 {
		c.Backoff = 100 * time.Millisecond
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return c
}

// FuncTool adapts a plain function into a Tool. Useful for small built-in
// tools and for tests.
type FuncTool struct {
	name        string
	description string
	schema      json.RawMessage
	fn          func(ctx context.Context, input json.RawMessage) (any, error)
}

// NewFuncTool creates a Tool backed by fn.
func NewFuncTool(name, description string, schema json.RawMessage, fn func(ctx context.Context, input json.RawMessage) (any, error)) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}
}

func (t *FuncTool) Name() string            { return t.name }
func (t *FuncTool) Description() string     { return t.description }
func (t *FuncTool) Schema() json.RawMessage { return t.schema }

func (t *FuncTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	return t.fn(ctx, input)
}
