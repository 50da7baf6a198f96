// Package config loads and validates the runtime configuration from YAML
// or JSON5 files, with $include composition and environment variable
// expansion.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the runtime.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	LLM     LLMConfig     `yaml:"llm"`
	Agents  []AgentConfig `yaml:"agents"`
	Swarm   *SwarmConfig  `yaml:"swarm,omitempty"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// LLMConfig names the available model providers.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one model provider. The map key under
// llm.providers is the provider type ("anthropic", "openai", "ollama")
// unless Type overrides it, which allows several entries sharing a type.
type ProviderConfig struct {
	Type         string        `yaml:"type"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// AgentConfig declares one agent.
type AgentConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	Temperature  float64  `yaml:"temperature"`
	TopP         float64  `yaml:"top_p"`
	MaxTokens    int      `yaml:"max_tokens"`
	MaxSteps     int      `yaml:"max_steps"`
	Tools        []string `yaml:"tools"`
}

// SwarmConfig declares the swarm topology over the configured agents.
type SwarmConfig struct {
	Supervisor        string             `yaml:"supervisor"`
	Specialists       []SpecialistConfig `yaml:"specialists"`
	Parallel          bool               `yaml:"parallel"`
	MaxConcurrent     int                `yaml:"max_concurrent"`
	SpecialistTimeout time.Duration      `yaml:"specialist_timeout"`
}

// SpecialistConfig binds a configured agent into the swarm.
type SpecialistConfig struct {
	ID             string   `yaml:"id"`
	Agent          string   `yaml:"agent"`
	Specialization string   `yaml:"specialization"`
	Keywords       []string `yaml:"keywords"`
	Priority       int      `yaml:"priority"`
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "hive"
	}
	if c.LLM.DefaultProvider == "" && len(c.LLM.Providers) == 1 {
		for name := range c.LLM.Providers {
			c.LLM.DefaultProvider = name
		}
	}
}

// Validate checks referential integrity: every agent names a known
// provider, every specialist names a known agent, IDs are unique.
func (c *Config) Validate() error {
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("config: at least one llm provider is required")
	}
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("config: default_provider %q is not defined", c.LLM.DefaultProvider)
		}
	}

	agentIDs := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("config: agents[%d] is missing an id", i)
		}
		if agentIDs[a.ID] {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		agentIDs[a.ID] = true

		provider := a.Provider
		if provider == "" {
			provider = c.LLM.DefaultProvider
		}
		if provider == "" {
			return fmt.Errorf("config: agent %q has no provider and no default_provider is set", a.ID)
		}
		if _, ok := c.LLM.Providers[provider]; !ok {
			return fmt.Errorf("config: agent %q references unknown provider %q", a.ID, provider)
		}
	}

	if c.Swarm != nil {
		if c.Swarm.Supervisor == "" {
			return fmt.Errorf("config: swarm requires a supervisor agent")
		}
		if !agentIDs[c.Swarm.Supervisor] {
			return fmt.Errorf("config: swarm supervisor references unknown agent %q", c.Swarm.Supervisor)
		}
		if len(c.Swarm.Specialists) == 0 {
			return fmt.Errorf("config: swarm requires at least one specialist")
		}
		specIDs := make(map[string]bool, len(c.Swarm.Specialists))
		for i, sp := range c.Swarm.Specialists {
			if sp.Agent == "" {
				return fmt.Errorf("config: swarm.specialists[%d] is missing an agent reference", i)
			}
			if !agentIDs[sp.Agent] {
				return fmt.Errorf("config: specialist %q references unknown agent %q", sp.ID, sp.Agent)
			}
			id := sp.ID
			if id == "" {
				id = sp.Agent
			}
			if specIDs[id] {
				return fmt.Errorf("config: duplicate specialist id %q", id)
			}
			specIDs[id] = true
		}
	}
	return nil
}
