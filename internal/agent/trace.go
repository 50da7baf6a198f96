package agent

import (
	"sync"
	"time"

	"github.com/haasonsaas/hive/pkg/models"
)

// Recorder builds the append-only execution trace for one run. Counters are
// updated as events are appended; timestamps are forced non-decreasing so a
// merged or sorted view never reorders a single trace.
//
// A Recorder is owned by its executor but is safe for concurrent appends,
// which happens when batch tool invocation records completions.
type Recorder struct {
	mu    sync.Mutex
	trace models.ExecutionTrace
	last  time.Time
}

// NewRecorder creates a recorder for the given execution.
func NewRecorder(executionID, agentID string) *Recorder {
	now := time.Now()
	return &Recorder{
		trace: models.ExecutionTrace{
			ID:        executionID,
			AgentID:   agentID,
			StartedAt: now,
			Events:    make([]models.TraceEvent, 0, 16),
		},
		last: now,
	}
}

func (r *Recorder) append(event models.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Before(r.last) {
		now = r.last
	}
	r.last = now
	event.Timestamp = now

	switch event.Type {
	case models.TraceStepStart:
		r.trace.Stats.Steps++
	case models.TraceLLMRequest:
		r.trace.Stats.LLMCalls++
	case models.TraceLLMResponse:
		if event.LLM != nil {
			r.trace.Stats.ToolCalls += len(event.LLM.ToolCalls)
			r.trace.Stats.InputTokens += event.LLM.InputTokens
			r.trace.Stats.OutputTokens += event.LLM.OutputTokens
		}
	case models.TraceToolCallEnd:
		r.trace.Stats.SuccessfulToolCalls++
	case models.TraceToolCallError:
		r.trace.Stats.FailedToolCalls++
	}

	r.trace.Events = append(r.trace.Events, event)
}

// AgentStart records the beginning of an execution.
func (r *Recorder) AgentStart(task string) {
	r.append(models.TraceEvent{
		Type: models.TraceAgentStart,
		Data: map[string]any{"task": task},
	})
}

// AgentEnd records the end of an execution and freezes the trace timing.
func (r *Recorder) AgentEnd(success bool) {
	r.append(models.TraceEvent{
		Type: models.TraceAgentEnd,
		Data: map[string]any{"success": success},
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace.EndedAt = r.last
	r.trace.Duration = r.trace.EndedAt.Sub(r.trace.StartedAt)
}

// StepStart records the beginning of a loop step.
func (r *Recorder) StepStart(step int) {
	r.append(models.TraceEvent{Type: models.TraceStepStart, Step: step})
}

// StepEnd records the end of a loop step.
func (r *Recorder) StepEnd(step int, duration time.Duration) {
	r.append(models.TraceEvent{
		Type: models.TraceStepEnd,
		Step: step,
		Data: map[string]any{"duration_ms": duration.Milliseconds()},
	})
}

// LLMRequest records an outgoing model request.
func (r *Recorder) LLMRequest(step, messageCount, toolCount int) {
	r.append(models.TraceEvent{
		Type: models.TraceLLMRequest,
		Step: step,
		LLM: &models.LLMEventPayload{
			MessageCount: messageCount,
			ToolCount:    toolCount,
		},
	})
}

// LLMResponse records a completed model turn.
func (r *Recorder) LLMResponse(step int, resp *ChatResponse, duration time.Duration) {
	r.append(models.TraceEvent{
		Type: models.TraceLLMResponse,
		Step: step,
		LLM: &models.LLMEventPayload{
			Content:      resp.Content,
			ToolCalls:    resp.ToolCalls,
			FinishReason: string(resp.FinishReason),
			Duration:     duration,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	})
}

// StreamStart records the beginning of a streamed model turn.
func (r *Recorder) StreamStart(step int) {
	r.append(models.TraceEvent{Type: models.TraceLLMStreamStart, Step: step})
}

// StreamChunk records one streamed content fragment.
func (r *Recorder) StreamChunk(step, size int) {
	r.append(models.TraceEvent{
		Type: models.TraceLLMStreamChunk,
		Step: step,
		LLM:  &models.LLMEventPayload{ChunkSize: size},
	})
}

// StreamEnd records the end of a streamed model turn.
func (r *Recorder) StreamEnd(step int) {
	r.append(models.TraceEvent{Type: models.TraceLLMStreamEnd, Step: step})
}

// ToolCallRequest records that the model requested a tool call.
func (r *Recorder) ToolCallRequest(step int, call models.ToolCall) {
	c := call
	r.append(models.TraceEvent{
		Type: models.TraceToolCallRequest,
		Step: step,
		Tool: &models.ToolEventPayload{Call: &c},
	})
}

// ToolCallStart records the beginning of a tool invocation.
func (r *Recorder) ToolCallStart(step int, call models.ToolCall) {
	c := call
	r.append(models.TraceEvent{
		Type: models.TraceToolCallStart,
		Step: step,
		Tool: &models.ToolEventPayload{Call: &c},
	})
}

// ToolCallDone records a finished tool invocation, choosing the end or error
// kind from the result.
func (r *Recorder) ToolCallDone(step int, result *models.ToolResult) {
	kind := models.TraceToolCallEnd
	if result.Failed() {
		kind = models.TraceToolCallError
	}
	r.append(models.TraceEvent{
		Type: kind,
		Step: step,
		Tool: &models.ToolEventPayload{Result: result},
	})
}

// Error records a terminal failure.
func (r *Recorder) Error(step int, code models.ErrorCode, message string) {
	r.append(models.TraceEvent{
		Type:  models.TraceError,
		Step:  step,
		Error: &models.ErrorEventPayload{Code: code, Message: message},
	})
}

// Snapshot returns an independent copy of the trace. Later appends do not
// affect the returned value.
func (r *Recorder) Snapshot() *models.ExecutionTrace {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.trace
	snapshot.Events = make([]models.TraceEvent, len(r.trace.Events))
	copy(snapshot.Events, r.trace.Events)
	return &snapshot
}

// Stats returns the current counters.
func (r *Recorder) Stats() models.TraceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace.Stats
}
