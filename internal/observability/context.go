package observability

import "context"

// ContextKey is the type for correlation-ID context keys.
type ContextKey string

const (
	// ExecutionIDKey is the context key for agent execution IDs.
	ExecutionIDKey ContextKey = "execution_id"

	// SwarmIDKey is the context key for swarm execution IDs.
	SwarmIDKey ContextKey = "swarm_id"

	// SpecialistIDKey is the context key for specialist IDs.
	SpecialistIDKey ContextKey = "specialist_id"

	// ToolCallIDKey is the context key for tool call IDs.
	ToolCallIDKey ContextKey = "tool_call_id"
)

// WithExecutionID adds an execution ID to the context.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ExecutionIDKey, id)
}

// GetExecutionID retrieves the execution ID from the context.
func GetExecutionID(ctx context.Context) string {
	if id, ok := ctx.Value(ExecutionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSwarmID adds a swarm execution ID to the context.
func WithSwarmID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SwarmIDKey, id)
}

// GetSwarmID retrieves the swarm execution ID from the context.
func GetSwarmID(ctx context.Context) string {
	if id, ok := ctx.Value(SwarmIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSpecialistID adds a specialist ID to the context.
func WithSpecialistID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SpecialistIDKey, id)
}

// GetSpecialistID retrieves the specialist ID from the context.
func GetSpecialistID(ctx context.Context) string {
	if id, ok := ctx.Value(SpecialistIDKey).(string); ok {
		return id
	}
	return ""
}

// WithToolCallID adds a tool call ID to the context.
func WithToolCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, id)
}

// GetToolCallID retrieves the tool call ID from the context.
func GetToolCallID(ctx context.Context) string {
	if id, ok := ctx.Value(ToolCallIDKey).(string); ok {
		return id
	}
	return ""
}
