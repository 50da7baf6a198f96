package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/internal/config"
	"github.com/haasonsaas/hive/internal/observability"
	"github.com/haasonsaas/hive/internal/tools"
)

func buildRunCmd() *cobra.Command {
	var (
		configFlag string
		agentID    string
		maxSteps   int
		quiet      bool
		traceOut   string
	)

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a single agent on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, shutdown, err := setup(ctx, configFlag)
			if err != nil {
				return err
			}
			defer shutdown(ctx)

			a, err := selectAgent(rt, agentID)
			if err != nil {
				return err
			}

			var ov *agent.Overrides
			if maxSteps > 0 {
				ov = &agent.Overrides{MaxSteps: maxSteps}
			}

			var result *agent.Result
			var runErr error
			if quiet {
				result, runErr = a.Execute(ctx, args[0], ov)
			} else {
				stream := a.Stream(ctx, args[0], ov)
				for event := range stream.Events() {
					printStreamEvent(event)
				}
				result, runErr = stream.Result(), stream.Err()
			}

			if result != nil && traceOut != "" {
				if err := writeTrace(traceOut, result); err != nil {
					fmt.Fprintln(os.Stderr, "Warning: could not write trace:", err)
				}
			}
			if runErr != nil {
				return runErr
			}
			if quiet {
				fmt.Println(result.Response)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default hive.yaml)")
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "Agent ID to run (default: first configured agent)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Override the agent's step limit")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the final answer")
	cmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the execution trace as JSON Lines to this file")
	return cmd
}

func buildSwarmCmd() *cobra.Command {
	var (
		configFlag string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "swarm [task]",
		Short: "Run the configured swarm on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, shutdown, err := setup(ctx, configFlag)
			if err != nil {
				return err
			}
			defer shutdown(ctx)

			if rt.Swarm == nil {
				return fmt.Errorf("no swarm is configured; add a swarm section to the config")
			}

			result, err := rt.Swarm.Execute(ctx, args[0])
			if err != nil {
				return err
			}

			if !quiet {
				for _, d := range result.Decisions {
					fmt.Fprintf(os.Stderr, "→ routed to %s (%.1f): %s\n", d.SpecialistID, d.Confidence, d.Reason)
				}
				for _, o := range result.Outcomes {
					status := "ok"
					if !o.Success {
						status = "failed"
						if o.Error != nil {
							status = "failed: " + o.Error.Message
						}
					}
					fmt.Fprintf(os.Stderr, "← %s finished in %s (%s)\n", o.SpecialistID, o.Duration.Round(time.Millisecond), status)
				}
			}
			fmt.Println(result.Response)
			if !result.Success {
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default hive.yaml)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the synthesized answer")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			builtins := tools.Builtins()
			names := make([]string, 0, len(builtins))
			for name := range builtins {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-12s %s\n", name, builtins[name].Description())
			}
			return nil
		},
	}
}

// setup loads the config and wires logging, tracing, metrics, and the
// runtime. The returned shutdown flushes traces.
func setup(ctx context.Context, configFlag string) (*config.Runtime, func(context.Context) error, error) {
	cfg, err := config.Load(configPath(configFlag))
	if err != nil {
		return nil, nil, err
	}

	logger := observability.SetDefaultLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})

	shutdown, err := observability.InitTracing(ctx, observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, nil, err
	}

	rt, err := config.Build(cfg, config.BuildOptions{
		Tools:   tools.Builtins(),
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	})
	if err != nil {
		shutdown(ctx)
		return nil, nil, err
	}
	return rt, shutdown, nil
}

func selectAgent(rt *config.Runtime, id string) (*agent.Agent, error) {
	if id != "" {
		a, ok := rt.Agents[id]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", id)
		}
		return a, nil
	}
	if len(rt.Agents) == 0 {
		return nil, fmt.Errorf("no agents are configured")
	}
	ids := make([]string, 0, len(rt.Agents))
	for agentID := range rt.Agents {
		ids = append(ids, agentID)
	}
	sort.Strings(ids)
	return rt.Agents[ids[0]], nil
}

func printStreamEvent(event agent.StreamEvent) {
	switch event.Type {
	case agent.StreamStep:
		fmt.Fprintf(os.Stderr, "── step %d\n", event.Step)
	case agent.StreamThought:
		fmt.Fprintf(os.Stderr, "  thought: %s\n", event.Content)
	case agent.StreamToolCall:
		fmt.Fprintf(os.Stderr, "  → %s(%s)\n", event.ToolCall.Name, compact(string(event.ToolCall.Input)))
	case agent.StreamToolResult:
		if event.Result.Failed() {
			fmt.Fprintf(os.Stderr, "  ← %s failed: %s\n", event.Result.ToolName, event.Result.Error.Message)
		} else {
			fmt.Fprintf(os.Stderr, "  ← %s: %s\n", event.Result.ToolName, compact(event.Result.Content))
		}
	case agent.StreamFinalAnswer:
		fmt.Println(event.Answer)
	case agent.StreamError:
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", event.ErrCode, event.Content)
	}
}

func compact(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

func writeTrace(path string, result *agent.Result) error {
	if result.Trace == nil {
		return fmt.Errorf("no trace recorded")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return agent.WriteTraceJSONL(f, result.Trace)
}
