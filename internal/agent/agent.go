// Package agent implements the single-agent execution engine: a tool
// registry, a provider-agnostic LLM client contract, an append-only trace
// recorder, and the bounded step loop that alternates model turns with tool
// execution. The swarm coordinator in internal/swarm composes agents built
// from this package.
package agent

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/hive/internal/observability"
)

// DefaultMaxSteps bounds the loop when neither the config nor the overrides
// set a limit.
const DefaultMaxSteps = 10

// LLMSettings binds an agent to a provider and model with sampling params.
type LLMSettings struct {
	// Provider is the lowercase provider tag, for diagnostics only; the
	// agent never interprets it beyond logging.
	Provider string

	// Model overrides the client's default model when set.
	Model string

	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Config describes an agent. Configs are immutable once the agent is
// constructed; the tool registry is the only mutable collaborator.
type Config struct {
	// ID identifies the agent in traces and swarm results. Generated when
	// empty.
	ID string

	// Name is the human-readable display name.
	Name string

	// SystemPrompt seeds every conversation, when non-empty.
	SystemPrompt string

	LLM LLMSettings

	// MaxSteps is the default step bound. Zero means DefaultMaxSteps.
	MaxSteps int
}

// Overrides adjusts a single execution without touching the agent config.
type Overrides struct {
	// MaxSteps replaces the configured step bound when positive.
	MaxSteps int
}

// Agent is a configured (system prompt, tool set, LLM binding) triple with a
// step-loop policy. Safe for concurrent executions; each execution owns its
// own state and trace.
type Agent struct {
	cfg     Config
	client  LLMClient
	tools   *Registry
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// Option customizes an Agent.
type Option func(*Agent)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics wires Prometheus metrics for LLM calls.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// New constructs an agent. The client is required; a nil registry gets an
// empty one so tool-less agents work out of the box.
func New(cfg Config, client LLMClient, tools *Registry, opts ...Option) (*Agent, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if tools == nil {
		tools = NewRegistry()
	}

	a := &Agent{
		cfg:    cfg,
		client: client,
		tools:  tools,
		logger: slog.Default(),
		tracer: otel.Tracer("hive/agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("agent", cfg.ID)
	return a, nil
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.cfg.ID }

// Name returns the display name.
func (a *Agent) Name() string { return a.cfg.Name }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *Registry { return a.tools }

// Config returns a copy of the agent configuration.
func (a *Agent) Config() Config { return a.cfg }

func (a *Agent) maxSteps(ov *Overrides) int {
	if ov != nil && ov.MaxSteps > 0 {
		return ov.MaxSteps
	}
	if a.cfg.MaxSteps > 0 {
		return a.cfg.MaxSteps
	}
	return DefaultMaxSteps
}
