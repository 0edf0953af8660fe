package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evalcontext/ecp/pkg/agentsdk"
	"github.com/evalcontext/ecp/pkg/openaiagent"
)

var (
	mcpURLs      []string
	openaiURL    string
	openaiKey    string
	model        string
	systemPrompt string
	maxTurns     int
	calculator   bool
)

var rootCmd = &cobra.Command{
	Use:   "ecp-openai-agent",
	Short: "An ECP agent backed by an OpenAI-compatible chat completions API",
	Long: `ecp-openai-agent speaks the Evaluation Context Protocol over stdin/stdout so that it can
be used as the target of an ecp manifest. Each step is sent to the model as a user message;
tools offered by MCP servers (and optionally a calculator) are executed on the model's behalf
and reported in the step result.`,
	Example: `  ecp run -m manifest.yaml   # with target: ecp-openai-agent --calculator
  ecp-openai-agent --mcp-url http://localhost:3000/mcp --model gpt-4o`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAgent,
}

func init() {
	rootCmd.Flags().StringSliceVar(&mcpURLs, "mcp-url", nil, "MCP server URL whose tools the agent may use (repeatable)")
	rootCmd.Flags().StringVar(&openaiURL, "openai-url", getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"), "OpenAI API base URL")
	rootCmd.Flags().StringVar(&openaiKey, "openai-key", getEnvOrDefault("OPENAI_API_KEY", ""), "OpenAI API key")
	rootCmd.Flags().StringVar(&model, "model", getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"), "OpenAI model to use")
	rootCmd.Flags().StringVar(&systemPrompt, "system", getEnvOrDefault("SYSTEM_PROMPT", ""), "System prompt for the agent")
	rootCmd.Flags().IntVar(&maxTurns, "max-turns", openaiagent.DefaultMaxTurns, "Maximum completions per step")
	rootCmd.Flags().BoolVar(&calculator, "calculator", false, "Offer a calculator tool to the model")
}

func runAgent(cmd *cobra.Command, args []string) error {
	if openaiKey == "" {
		return fmt.Errorf("OpenAI API key must be provided via --openai-key flag or OPENAI_API_KEY environment variable")
	}

	ctx := cmd.Context()

	var tools []openaiagent.Tool
	if calculator {
		tools = append(tools, openaiagent.Calculator())
	}

	a, err := openaiagent.New(openaiagent.Config{
		BaseURL:      openaiURL,
		APIKey:       openaiKey,
		Model:        model,
		SystemPrompt: systemPrompt,
		MaxTurns:     maxTurns,
	}, tools...)
	if err != nil {
		return fmt.Errorf("failed to create OpenAI agent: %w", err)
	}

	for _, u := range mcpURLs {
		server, err := openaiagent.ConnectMCP(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to add MCP server %s: %w", u, err)
		}
		defer func() {
			if err := server.Close(); err != nil {
				log.Printf("Warning: failed to close MCP session cleanly: %v", err)
			}
		}()

		serverTools, err := server.Tools(ctx)
		if err != nil {
			return fmt.Errorf("failed to add MCP server %s: %w", u, err)
		}
		if err := a.AddTools(serverTools...); err != nil {
			return fmt.Errorf("failed to add MCP server %s: %w", u, err)
		}
	}

	return agentsdk.NewServer(a).ServeStdio(ctx)
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
