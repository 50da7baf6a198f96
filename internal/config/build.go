package config

import (
	"fmt"
	"log/slog"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/agent/providers"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/swarm"
)

// BuildOptions carries the runtime dependencies the config cannot express.
type BuildOptions struct {
	// Tools maps tool names referenced by agent configs to implementations.
	Tools map[string]agent.Tool

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Runtime holds the objects constructed from a validated Config.
type Runtime struct {
	Clients map[string]agent.LLMClient
	Agents  map[string]*agent.Agent
	Swarm   *swarm.Swarm
}

// Build constructs provider clients, agents, and the swarm (when declared)
// from the config.
func Build(cfg *Config, opts BuildOptions) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{
		Clients: make(map[string]agent.LLMClient, len(cfg.LLM.Providers)),
		Agents:  make(map[string]*agent.Agent, len(cfg.Agents)),
	}

	for name, pc := range cfg.LLM.Providers {
		providerType := pc.Type
		if providerType == "" {
			providerType = name
		}
		client, err := providers.New(providers.Config{
			Type:         providerType,
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
			MaxRetries:   pc.MaxRetries,
			RetryDelay:   pc.RetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		rt.Clients[name] = client
	}

	for _, ac := range cfg.Agents {
		providerName := ac.Provider
		if providerName == "" {
			providerName = cfg.LLM.DefaultProvider
		}
		client := rt.Clients[providerName]

		registry := agent.NewRegistry(
			agent.WithRegistryLogger(logger),
			agent.WithRegistryMetrics(opts.Metrics),
		)
		for _, toolName := range ac.Tools {
			tool, ok := opts.Tools[toolName]
			if !ok {
				return nil, fmt.Errorf("agent %q references unknown tool %q", ac.ID, toolName)
			}
			if err := registry.Register(tool); err != nil {
				return nil, fmt.Errorf("agent %q: %w", ac.ID, err)
			}
		}

		a, err := agent.New(agent.Config{
			ID:           ac.ID,
			Name:         ac.Name,
			SystemPrompt: ac.SystemPrompt,
			LLM: agent.LLMSettings{
				Provider:    providerName,
				Model:       ac.Model,
				Temperature: ac.Temperature,
				TopP:        ac.TopP,
				MaxTokens:   ac.MaxTokens,
			},
			MaxSteps: ac.MaxSteps,
		}, client, registry,
			agent.WithLogger(logger),
			agent.WithMetrics(opts.Metrics),
		)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", ac.ID, err)
		}
		rt.Agents[ac.ID] = a
	}

	if cfg.Swarm != nil {
		specialists := make([]swarm.Specialist, 0, len(cfg.Swarm.Specialists))
		for _, sc := range cfg.Swarm.Specialists {
			id := sc.ID
			if id == "" {
				id = sc.Agent
			}
			specialists = append(specialists, swarm.Specialist{
				ID:             id,
				Agent:          rt.Agents[sc.Agent],
				Specialization: sc.Specialization,
				Keywords:       sc.Keywords,
				Priority:       sc.Priority,
			})
		}
		sw, err := swarm.New(swarm.Config{
			Supervisor:        rt.Agents[cfg.Swarm.Supervisor],
			Specialists:       specialists,
			Parallel:          cfg.Swarm.Parallel,
			MaxConcurrent:     cfg.Swarm.MaxConcurrent,
			SpecialistTimeout: cfg.Swarm.SpecialistTimeout,
			Logger:            logger,
			Metrics:           opts.Metrics,
		})
		if err != nil {
			return nil, err
		}
		rt.Swarm = sw
	}

	return rt, nil
}
