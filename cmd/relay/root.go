package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - reverse proxy for chat-completion inference backends",
	Long: `Relay is a reverse proxy for LLM chat-completion APIs. It accepts
OpenAI-compatible requests on a single endpoint and dispatches each one to
a configured upstream provider (OpenAI, Anthropic, Google, Bedrock, local
vLLM/Ollama or any OpenAI-compatible server), translating request and
response formats both ways and preserving streaming end to end.

It provides:
  - Rule-based routing with pluggable selection strategies
  - Per-provider circuit breakers with retry and failover
  - Token-bucket rate limiting by API key, tenant and route
  - Rolling health tracking with latency percentiles
  - Idempotent request replay`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
