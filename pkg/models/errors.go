package models

// ErrorCode is the closed set of failure categories surfaced by the runtime.
// Codes are stable strings so they survive serialization into traces and
// swarm results.
type ErrorCode string

const (
	// Tool invocation failures (returned as ToolResult values).
	ErrCodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeExecution    ErrorCode = "EXECUTION_ERROR"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"

	// Execution failures (returned as errors from the loop).
	ErrCodeLLM       ErrorCode = "LLM_ERROR"
	ErrCodeMaxSteps  ErrorCode = "MAX_STEPS_EXCEEDED"
	ErrCodeCancelled ErrorCode = "CANCELLED"

	// Construction failures (raised at configuration time).
	ErrCodeUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	ErrCodeDuplicateTool       ErrorCode = "DUPLICATE_TOOL_NAME"
	ErrCodeInvalidTool         ErrorCode = "INVALID_TOOL_DEFINITION"
	ErrCodeInvalidSwarmConfig  ErrorCode = "INVALID_SWARM_CONFIG"
	ErrCodeDuplicateSpecialist ErrorCode = "DUPLICATE_SPECIALIST_ID"

	// Routing failures.
	ErrCodeRoutingFailed ErrorCode = "ROUTING_FAILED"
)
