package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalcontext/ecp/pkg/eval"
	"github.com/evalcontext/ecp/pkg/results"
)

const (
	defaultMaxOutputLines = 6
	defaultMaxLineLength  = 100
)

// NewViewCmd creates the view command for rendering saved run summaries.
func NewViewCmd() *cobra.Command {
	var (
		scenarioFilter string
		opts           = viewOptions{
			maxOutputLines: defaultMaxOutputLines,
			maxLineLength:  defaultMaxLineLength,
		}
	)

	cmd := &cobra.Command{
		Use:   "view <results-file>",
		Short: "Pretty-print a run summary from a JSON file",
		Long: `Render the JSON output produced by "ecp run" in a human-friendly format.

Examples:
  ecp view ecp-weather-agent-out.json
  ecp view --scenario paris --thoughts results.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := results.Load(args[0])
			if err != nil {
				return err
			}

			filtered := results.Filter(summary, scenarioFilter)
			if len(filtered.Scenarios) == 0 {
				if scenarioFilter == "" {
					return errors.New("no scenarios found in results")
				}
				return fmt.Errorf("no scenarios matched filter %q", scenarioFilter)
			}

			out := cmd.OutOrStdout()
			if filtered.RunID != "" {
				color.New(color.Faint).Fprintf(out, "Run %s (%s)\n\n", filtered.RunID, filtered.Name)
			}
			for idx, sc := range filtered.Scenarios {
				if idx > 0 {
					fmt.Fprintln(out)
				}
				printScenario(out, sc, opts)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioFilter, "scenario", "", "Only show scenarios whose name contains this value")
	cmd.Flags().BoolVar(&opts.showThoughts, "thoughts", false, "Include each step's private thought")
	cmd.Flags().IntVar(&opts.maxOutputLines, "max-output-lines", opts.maxOutputLines, "Maximum lines to display for step output (0 = unlimited)")
	cmd.Flags().IntVar(&opts.maxLineLength, "max-line-length", opts.maxLineLength, "Maximum characters per line when formatting step output (0 = unlimited)")

	return cmd
}

type viewOptions struct {
	showThoughts   bool
	maxOutputLines int
	maxLineLength  int
}

func printScenario(w io.Writer, sc *eval.ScenarioResult, opts viewOptions) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	bold.Fprintf(w, "Scenario: %s\n", sc.Name)
	if sc.Agent != "" {
		fmt.Fprintf(w, "  Agent: %s\n", sc.Agent)
	}

	passed, total := sc.Counts()
	switch {
	case sc.Error != "":
		red.Fprintf(w, "  Status: ABORTED during %s (%d/%d checks passed)\n", sc.FailedPhase, passed, total)
		printMultilineField(w, "Error", strings.TrimSpace(sc.Error))
	case passed == total:
		green.Fprintf(w, "  Status: PASSED (%d/%d checks)\n", passed, total)
	default:
		yellow.Fprintf(w, "  Status: FAILED (%d/%d checks passed)\n", passed, total)
	}

	for i, step := range sc.Steps {
		fmt.Fprintf(w, "  Step %d:\n", i+1)
		printBlock(w, "Input", step.Input, opts)
		if step.Output != nil {
			printBlock(w, "Output", *step.Output, opts)
		} else {
			fmt.Fprintln(w, "    Output: (none)")
		}
		if opts.showThoughts && step.PrivateThought != nil {
			printBlock(w, "Thought", *step.PrivateThought, opts)
		}
		if len(step.ToolCalls) > 0 {
			fmt.Fprintf(w, "    Tool calls: %s\n", summarizeToolCalls(step))
		}
		printChecks(w, step, green, red)
	}
}

func printChecks(w io.Writer, step *eval.StepRecord, pass, fail *color.Color) {
	for _, check := range step.Checks {
		if check == nil {
			continue
		}
		if check.Passed {
			pass.Fprintf(w, "    ✓ %s(%s)", check.Type, check.Field)
		} else {
			fail.Fprintf(w, "    ✗ %s(%s)", check.Type, check.Field)
		}
		if check.Reasoning != "" {
			fmt.Fprintf(w, ": %s", check.Reasoning)
		}
		fmt.Fprintln(w)
	}
}

func summarizeToolCalls(step *eval.StepRecord) string {
	names := make([]string, 0, len(step.ToolCalls))
	for _, call := range step.ToolCalls {
		if len(call.Arguments) == 0 {
			names = append(names, call.Name+"()")
			continue
		}
		args := make([]string, 0, len(call.Arguments))
		for _, k := range sortedKeys(call.Arguments) {
			args = append(args, fmt.Sprintf("%s=%v", k, call.Arguments[k]))
		}
		names = append(names, fmt.Sprintf("%s(%s)", call.Name, strings.Join(args, ", ")))
	}
	return strings.Join(names, ", ")
}

func printBlock(w io.Writer, label, value string, opts viewOptions) {
	block := limitMultiline(value, opts.maxOutputLines, opts.maxLineLength)
	if !strings.Contains(block, "\n") {
		fmt.Fprintf(w, "    %s: %s\n", label, block)
		return
	}

	fmt.Fprintf(w, "    %s:\n", label)
	for _, line := range strings.Split(block, "\n") {
		fmt.Fprintf(w, "      %s\n", line)
	}
}

func printMultilineField(w io.Writer, label, value string) {
	value = strings.TrimRight(value, "\n")
	if !strings.Contains(value, "\n") {
		fmt.Fprintf(w, "  %s: %s\n", label, value)
		return
	}

	fmt.Fprintf(w, "  %s:\n", label)
	for _, line := range strings.Split(value, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
}

func limitMultiline(raw string, maxLines, maxLineLength int) string {
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	limited := make([]string, 0, len(lines))
	for idx, line := range lines {
		if maxLines > 0 && idx >= maxLines {
			limited = append(limited, fmt.Sprintf("… (+%d lines)", len(lines)-idx))
			break
		}
		limited = append(limited, truncateString(line, maxLineLength))
	}
	return strings.Join(limited, "\n")
}

// truncateString shortens s to at most max runes, marking the cut with an ellipsis.
func truncateString(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max == 1 {
		return string(runes[:1])
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
