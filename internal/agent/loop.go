package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/pkg/models"
)

// Result is the outcome of one execution. It always carries the final
// (possibly empty) response and a success flag; on failure Err holds the
// terminal error and the same error is returned from Execute so callers can
// use either surface.
type Result struct {
	ExecutionID string

	// Response is the final assistant answer. Empty when the run failed.
	Response string

	Success bool
	Err     *Error

	// Conversation is the full message history, including tool messages.
	Conversation []models.Message

	// Steps is how many loop steps ran.
	Steps int

	Trace *models.ExecutionTrace
}

// Execute drives the bounded step loop to completion. Tool failures are
// recovered by handing them back to the model; only LLM_ERROR,
// MAX_STEPS_EXCEEDED, and cancellation propagate as returned errors.
func (a *Agent) Execute(ctx context.Context, task string, ov *Overrides) (*Result, error) {
	return a.run(ctx, task, ov, nil)
}

// run is the shared core behind Execute, Stream, and ExecuteWithEvents.
// When emit is non-nil the loop projects semantic events at each transition;
// emit may block, which is how consumer pacing works.
func (a *Agent) run(ctx context.Context, task string, ov *Overrides, emit emitFunc) (*Result, error) {
	executionID := uuid.NewString()
	ctx = observability.WithExecutionID(ctx, executionID)
	ctx, span := a.tracer.Start(ctx, "agent.execute",
		trace.WithAttributes(
			attribute.String("agent.id", a.cfg.ID),
			attribute.String("execution.id", executionID),
		))
	defer span.End()

	logger := a.logger.With("execution", executionID)
	maxSteps := a.maxSteps(ov)
	recorder := NewRecorder(executionID, a.cfg.ID)
	recorder.AgentStart(task)
	logger.Debug("execution started", "max_steps", maxSteps, "tools", a.tools.Len())

	conversation := make([]models.Message, 0, 8)
	if a.cfg.SystemPrompt != "" {
		conversation = append(conversation, models.Message{Role: models.RoleSystem, Content: a.cfg.SystemPrompt})
	}
	conversation = append(conversation, models.Message{Role: models.RoleUser, Content: task})

	var (
		pending       []models.ToolCall
		finalResponse string
		complete      bool
		termErr       *Error
	)

	step := 0
	for step < maxSteps && !complete {
		if err := ctx.Err(); err != nil {
			termErr = NewError(models.ErrCodeCancelled, "execution cancelled").WithStep(step).WithCause(err)
			recorder.Error(step, models.ErrCodeCancelled, termErr.Message)
			break
		}

		step++
		stepStart := time.Now()
		recorder.StepStart(step)
		a.emitEvent(emit, StreamEvent{Type: StreamStep, Step: step})

		if len(pending) > 0 {
			a.executeToolStep(ctx, recorder, step, pending, &conversation, emit)
			pending = nil
			recorder.StepEnd(step, time.Since(stepStart))
			continue
		}

		resp, err := a.llmStep(ctx, recorder, step, conversation, emit)
		if err != nil {
			termErr = NewError(models.ErrCodeLLM, "LLM call failed").WithStep(step).WithCause(err)
			recorder.Error(step, models.ErrCodeLLM, err.Error())
			recorder.StepEnd(step, time.Since(stepStart))
			break
		}

		assistant := models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		conversation = append(conversation, assistant)

		if resp.FinishReason == FinishToolCalls && len(resp.ToolCalls) > 0 {
			if resp.Content != "" {
				a.emitEvent(emit, StreamEvent{Type: StreamThought, Step: step, Content: resp.Content})
			}
			for _, call := range resp.ToolCalls {
				recorder.ToolCallRequest(step, call)
				c := call
				a.emitEvent(emit, StreamEvent{Type: StreamToolCall, Step: step, ToolCall: &c})
			}
			pending = resp.ToolCalls
			recorder.StepEnd(step, time.Since(stepStart))
			continue
		}

		finalResponse = resp.Content
		complete = true
		recorder.StepEnd(step, time.Since(stepStart))
		a.emitEvent(emit, StreamEvent{Type: StreamFinalAnswer, Step: step, Answer: finalResponse})
	}

	if !complete && termErr == nil {
		termErr = Errorf(models.ErrCodeMaxSteps, "max steps exceeded (%d)", maxSteps).WithStep(step)
		recorder.Error(step, models.ErrCodeMaxSteps, termErr.Message)
	}

	// The step bound is raised out of the stream, not projected, so callers
	// can tell it apart from in-band failures.
	if termErr != nil && termErr.Code != models.ErrCodeMaxSteps {
		a.emitEvent(emit, StreamEvent{Type: StreamError, Step: termErr.Step, Content: termErr.Message, Err: termErr, ErrCode: termErr.Code})
	}

	recorder.AgentEnd(termErr == nil)
	result := &Result{
		ExecutionID:  executionID,
		Response:     finalResponse,
		Success:      termErr == nil,
		Err:          termErr,
		Conversation: conversation,
		Steps:        step,
		Trace:        recorder.Snapshot(),
	}

	if termErr != nil {
		span.RecordError(termErr)
		if a.metrics != nil {
			a.metrics.RecordError("agent", string(termErr.Code))
		}
		logger.Warn("execution failed", "code", string(termErr.Code), "step", termErr.Step, "error", termErr.Message)
		return result, termErr
	}
	logger.Debug("execution finished", "steps", step)
	return result, nil
}

// llmStep performs one model turn: advertise the catalogue, call the client,
// record the exchange. When streaming, fragments are recorded as
// llm_stream_chunk events as they arrive.
func (a *Agent) llmStep(ctx context.Context, recorder *Recorder, step int, conversation []models.Message, emit emitFunc) (*ChatResponse, error) {
	ctx, span := a.tracer.Start(ctx, "agent.step",
		trace.WithAttributes(attribute.Int("step", step)))
	defer span.End()

	descriptors := a.tools.Descriptors()
	recorder.LLMRequest(step, len(conversation), len(descriptors))

	req := &ChatRequest{
		Messages:    conversation,
		Tools:       descriptors,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
		TopP:        a.cfg.LLM.TopP,
		MaxTokens:   a.cfg.LLM.MaxTokens,
	}
	if len(conversation) > 0 && conversation[0].Role == models.RoleSystem {
		req.System = conversation[0].Content
		req.Messages = conversation[1:]
	}

	streaming := emit != nil
	if streaming {
		recorder.StreamStart(step)
		req.Sink = func(fragment string) {
			recorder.StreamChunk(step, len(fragment))
		}
	}

	start := time.Now()
	resp, err := a.client.Chat(ctx, req)
	duration := time.Since(start)
	if streaming {
		recorder.StreamEnd(step)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	if a.metrics != nil {
		model := a.cfg.LLM.Model
		if resp != nil && resp.Model != "" {
			model = resp.Model
		}
		inTokens, outTokens := 0, 0
		if resp != nil {
			inTokens, outTokens = resp.InputTokens, resp.OutputTokens
		}
		a.metrics.RecordLLMRequest(a.client.Name(), model, status, duration.Seconds(), inTokens, outTokens)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Providers that omit tool-call ids get generated ones so results can
	// be threaded into later tool messages.
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ID == "" {
			resp.ToolCalls[i].ID = uuid.NewString()
		}
	}

	recorder.LLMResponse(step, resp, duration)
	return resp, nil
}

// executeToolStep drains the pending calls from the previous turn. Calls fan
// out concurrently through the registry; results are appended to the
// conversation in request order. Failures become "Error: ..." tool messages
// and the loop continues, letting the model see them on its next turn.
func (a *Agent) executeToolStep(ctx context.Context, recorder *Recorder, step int, pending []models.ToolCall, conversation *[]models.Message, emit emitFunc) {
	for _, call := range pending {
		recorder.ToolCallStart(step, call)
	}

	results := a.tools.InvokeAll(ctx, pending)

	for _, result := range results {
		recorder.ToolCallDone(step, result)

		content := result.Content
		if result.Failed() {
			content = "Error: " + result.Error.Message
		}
		*conversation = append(*conversation, models.Message{
			Role:       models.RoleTool,
			Content:    content,
			ToolCallID: result.ToolCallID,
			ToolName:   result.ToolName,
		})
		a.emitEvent(emit, StreamEvent{Type: StreamToolResult, Step: step, Result: result})
	}
}
