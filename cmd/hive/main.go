// Package main provides the CLI entry point for the Hive agent runtime.
//
// Hive runs LLM agents with tool execution, either standalone or as a
// supervisor-coordinated swarm of specialists.
//
// # Basic Usage
//
// Run a single agent on a task:
//
//	hive run --config hive.yaml --agent researcher "summarize this repo"
//
// Run the configured swarm:
//
//	hive swarm --config hive.yaml "design and review the API"
//
// # Environment Variables
//
//   - HIVE_CONFIG: Path to configuration file (default: hive.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hive",
		Short: "Hive - LLM agent runtime with tool execution and swarm coordination",
		Long: `Hive runs LLM agents through a bounded tool-calling loop.

Supported providers: Anthropic (Claude), OpenAI (GPT), Ollama
Agents can run standalone or as a swarm of specialists routed by a supervisor.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildSwarmCmd(),
		buildToolsCmd(),
	)
	return rootCmd
}

func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("HIVE_CONFIG"); env != "" {
		return env
	}
	return "hive.yaml"
}
