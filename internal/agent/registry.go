package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/pkg/models"
)

// DefaultMaxConcurrency bounds parallel tool execution in batch invokes.
const DefaultMaxConcurrency = 5

// Registry holds the callable tools for an agent, keyed by unique name.
// Registration happens at configuration time; invocation is read-only and
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registeredTool
	sem    chan struct{}
	logger *slog.Logger

	metrics *observability.Metrics
	tracer  trace.Tracer
}

type registeredTool struct {
	tool   Tool
	config ToolConfig

	// schema is the compiled parameter schema. Nil when the tool declares
	// no schema, in which case any input object is accepted.
	schema *jsonschema.Schema
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the diagnostic logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxConcurrency bounds how many tools may execute at once.
func WithMaxConcurrency(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.sem = make(chan struct{}, n)
		}
	}
}

// WithRegistryMetrics wires Prometheus tool-execution metrics.
func WithRegistryMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]*registeredTool),
		sem:    make(chan struct{}, DefaultMaxConcurrency),
		logger: slog.Default(),
		tracer: otel.Tracer("hive/agent"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool under the default execution policy.
// Fails with DUPLICATE_TOOL_NAME when the name is taken and with
// INVALID_TOOL_DEFINITION when the definition is incomplete or its schema
// does not compile. Registering again after Unregister succeeds.
func (r *Registry) Register(tool Tool) error {
	return r.RegisterWithConfig(tool, DefaultToolConfig())
}

// RegisterWithConfig adds a tool with an explicit execution policy.
func (r *Registry) RegisterWithConfig(tool Tool, config ToolConfig) error {
	if tool == nil {
		return NewError(models.ErrCodeInvalidTool, "tool is nil").WithCause(ErrNilTool)
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return NewError(models.ErrCodeInvalidTool, "tool name is required")
	}
	if strings.TrimSpace(tool.Description()) == "" {
		return Errorf(models.ErrCodeInvalidTool, "tool %q has no description", name)
	}

	var compiled *jsonschema.Schema
	if schema := tool.Schema(); len(schema) > 0 {
		var err error
		compiled, err = compileSchema(name, schema)
		if err != nil {
			return Errorf(models.ErrCodeInvalidTool, "tool %q has an invalid schema", name).WithCause(err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return Errorf(models.ErrCodeDuplicateTool, "tool %q is already registered", name)
	}

	r.tools[name] = &registeredTool{
		tool:   tool,
		config: config.sanitized(),
		schema: compiled,
	}
	r.logger.Debug("tool registered", "tool", name, "max_attempts", r.tools[name].config.MaxAttempts)
	return nil
}

// Unregister removes a tool, reporting whether one was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	return true
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Descriptors returns the advertised catalogue, sorted by name so requests
// are deterministic. Tools without a schema advertise a permissive object.
func (r *Registry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]ToolDescriptor, 0, len(r.tools))
	for name, rt := range r.tools {
		schema := rt.tool.Schema()
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		descriptors = append(descriptors, ToolDescriptor{
			Name:        name,
			Description: rt.tool.Description(),
			Schema:      schema,
		})
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })
	return descriptors
}

// Invoke runs one tool call through the full pipeline: lookup, schema
// validation, bounded execution with retry and timeout. All outcomes are
// returned as values; Invoke never propagates tool failures as errors.
func (r *Registry) Invoke(ctx context.Context, call models.ToolCall) *models.ToolResult {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		))
	defer span.End()

	r.mu.RLock()
	rt, ok := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return r.failure(call, start, 0, models.ErrCodeToolNotFound,
			fmt.Sprintf("tool %q is not registered", call.Name), "")
	}

	if rt.schema != nil {
		input := call.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		var decoded any
		if err := json.Unmarshal(input, &decoded); err != nil {
			return r.failure(call, start, 0, models.ErrCodeValidation,
				"input is not valid JSON", err.Error())
		}
		if err := rt.schema.Validate(decoded); err != nil {
			return r.failure(call, start, 0, models.ErrCodeValidation,
				fmt.Sprintf("input rejected by schema for tool %q", call.Name), err.Error())
		}
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return r.failure(call, start, 0, models.ErrCodeExecution,
			"execution aborted before start", ctx.Err().Error())
	}

	cfg := rt.config
	var lastErr error
	retries := 0
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			retries = attempt
			wait := cfg.Backoff * time.Duration(attempt)
			r.logger.Debug("retrying tool", "tool", call.Name, "attempt", attempt+1, "backoff", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return r.failure(call, start, retries, models.ErrCodeExecution,
					"execution aborted during backoff", ctx.Err().Error())
			}
		}

		payload, err := r.executeAttempt(ctx, rt, call)
		if err == nil {
			result := &models.ToolResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Content:    payload,
				Meta: models.ResultMeta{
					Duration:    time.Since(start),
					CompletedAt: time.Now(),
					Retries:     retries,
				},
			}
			r.recordMetrics(call.Name, "success", start)
			return result
		}
		lastErr = err
	}

	return r.failure(call, start, retries, models.ErrCodeExecution, lastErr.Error(), "")
}

// InvokeAll fans out independent tool calls concurrently, bounded by the
// registry's concurrency limit, and joins. Results are returned in request
// order; each result carries its originating call id.
func (r *Registry) InvokeAll(ctx context.Context, calls []models.ToolCall) []*models.ToolResult {
	if len(calls) == 0 {
		return nil
	}
	if len(calls) == 1 {
		return []*models.ToolResult{r.Invoke(ctx, calls[0])}
	}

	results := make([]*models.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			results[i] = r.Invoke(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// executeAttempt runs a single attempt, racing the tool against the
// per-attempt timeout. Panics inside the tool are converted to errors.
func (r *Registry) executeAttempt(ctx context.Context, rt *registeredTool, call models.ToolCall) (string, error) {
	cfg := rt.config
	execCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	type outcome struct {
		payload string
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v\n%s", rec, debug.Stack())}
			}
		}()
		value, err := rt.tool.Execute(execCtx, input)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		payload, err := serializePayload(value)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-execCtx.Done():
		if cfg.Timeout > 0 && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("Timeout after %dms", cfg.Timeout.Milliseconds())
		}
		return "", execCtx.Err()
	}
}

func (r *Registry) failure(call models.ToolCall, start time.Time, retries int, code models.ErrorCode, message, detail string) *models.ToolResult {
	r.logger.Debug("tool invocation failed", "tool", call.Name, "code", string(code), "error", message)
	r.recordMetrics(call.Name, "error", start)
	return &models.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Error: &models.ResultError{
			Code:    code,
			Message: message,
			Detail:  detail,
		},
		Meta: models.ResultMeta{
			Duration:    time.Since(start),
			CompletedAt: time.Now(),
			Retries:     retries,
		},
	}
}

func (r *Registry) recordMetrics(tool, status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordToolExecution(tool, status, time.Since(start).Seconds())
}

// serializePayload turns a successful tool value into the string carried in
// the tool message. Strings and raw JSON pass through untouched.
func serializePayload(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("serialize tool result: %w", err)
		}
		return string(encoded), nil
	}
}

var schemaCache sync.Map

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
