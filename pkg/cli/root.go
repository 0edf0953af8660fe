package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root ecp command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ecp",
		Short: "Agent evaluation harness",
		Long: `ecp evaluates agents that speak the Evaluation Context Protocol.
It launches the agent named by a manifest, drives it through each scenario over
JSON-RPC on stdio, and grades every step.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewViewCmd())
	rootCmd.AddCommand(NewSummaryCmd())

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
