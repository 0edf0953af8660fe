package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalcontext/ecp/pkg/results"
)

// NewSummaryCmd creates the summary command for computing pass rates of a saved run.
func NewSummaryCmd() *cobra.Command {
	var (
		scenarioFilter string
		outputFormat   string
	)

	cmd := &cobra.Command{
		Use:   "summary <results-file>",
		Short: "Show pass-rate statistics for a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := results.Load(args[0])
			if err != nil {
				return err
			}

			stats := results.CalculateStats(args[0], results.Filter(summary, scenarioFilter))

			switch outputFormat {
			case "json":
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(stats)
			case "text":
				printStats(cmd.OutOrStdout(), stats)
				return nil
			default:
				return fmt.Errorf("unknown output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVar(&scenarioFilter, "scenario", "", "Only count scenarios whose name contains this value")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json)")

	return cmd
}

func printStats(w io.Writer, stats results.Stats) {
	bold := color.New(color.Bold)

	bold.Fprintf(w, "Results: %s\n", stats.ResultsFile)
	fmt.Fprintf(w, "  Scenarios: %d/%d passed (%.1f%%)\n", stats.ScenariosPassed, stats.ScenariosTotal, stats.ScenarioPassRate*100)
	if stats.ScenariosErrored > 0 {
		color.New(color.FgRed).Fprintf(w, "  Aborted: %d\n", stats.ScenariosErrored)
	}
	fmt.Fprintf(w, "  Checks: %d/%d passed (%.1f%%)\n", stats.ChecksPassed, stats.ChecksTotal, stats.CheckPassRate*100)
}
