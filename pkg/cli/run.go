package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/evalcontext/ecp/pkg/eval"
	"github.com/evalcontext/ecp/pkg/llmjudge"
	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/report"
	"github.com/evalcontext/ecp/pkg/results"
	"github.com/evalcontext/ecp/pkg/transport"
	"github.com/evalcontext/ecp/pkg/util"
)

type runOptions struct {
	manifestFile string
	timeout      time.Duration
	reportFile   string
	outputFormat string
	verbose      bool
	judgeModel   string
	scenario     string
	newAgent     eval.AgentFactory
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	return newRunCmd(&runOptions{})
}

func newRunCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenarios of a manifest against its agent",
		Long: `Run every scenario of a manifest against a fresh agent process, grade each step,
and save the run summary to ecp-<name>-out.json.

Failed checks are reported but do not make the command fail.`,
		Example: `  ecp run -m manifest.yaml
  ecp run -m manifest.yaml --timeout 1m --report report.html
  ecp run -m manifest.yaml --scenario '^weather' -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.manifestFile, "manifest", "m", "", "Path to the manifest YAML file (required)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", transport.DefaultCallTimeout, "Timeout for each agent call")
	cmd.Flags().StringVar(&opts.reportFile, "report", "", "Also write an HTML report to this file")
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", "text", "Output format (text, json)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	cmd.Flags().StringVar(&opts.judgeModel, "judge-model", "", "Model used by llm_judge graders (overrides the manifest and environment)")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "Only run scenarios whose name matches this regular expression")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runManifest(cmd *cobra.Command, opts *runOptions) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	switch opts.outputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown output format: %s", opts.outputFormat)
	}

	m, err := manifest.FromFile(opts.manifestFile)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	ctx := util.WithVerbose(cmd.Context(), opts.verbose)
	logHandler := newLogHandler(errOut, opts.verbose)

	if !m.KnownVersion() {
		logHandler.Warn("unknown manifest_version, reading it as v1", map[string]any{"manifest_version": m.ManifestVersion})
	}

	runner, err := eval.NewRunner(m, eval.Options{
		Timeout:         opts.timeout,
		NewAgent:        opts.newAgent,
		Judge:           buildJudge(m, opts.judgeModel, errOut),
		ScenarioPattern: opts.scenario,
		LogHandler:      logHandler,
	})
	if err != nil {
		return fmt.Errorf("failed to create eval runner: %w", err)
	}

	progressOut := out
	if opts.outputFormat == "json" {
		progressOut = errOut
	}
	display := newProgressDisplay(progressOut, opts.verbose)

	summary, err := runner.RunWithProgress(ctx, display.handleProgress)
	if err != nil && summary == nil {
		return fmt.Errorf("eval failed: %w", err)
	}
	runErr := err

	outputFile := resultsFileName(m.Name)
	if err := report.WriteJSON(outputFile, summary); err != nil {
		return fmt.Errorf("failed to save results to file: %w", err)
	}
	fmt.Fprintf(progressOut, "\n📄 Results saved to: %s\n", outputFile)

	if opts.reportFile != "" {
		if err := report.WriteHTML(opts.reportFile, summary); err != nil {
			return err
		}
		fmt.Fprintf(progressOut, "📄 HTML report saved to: %s\n", opts.reportFile)
	}

	if err := displayResults(out, summary, opts.outputFormat); err != nil {
		return fmt.Errorf("failed to display results: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("eval interrupted: %w", runErr)
	}

	return nil
}

// buildJudge creates the judge for llm_judge graders. Missing credentials are not fatal:
// the run proceeds and those checks fail with the reason.
func buildJudge(m *manifest.Manifest, model string, w io.Writer) llmjudge.LLMJudge {
	cfg := &llmjudge.LLMJudgeConfig{}
	if m.Judge != nil {
		c := *m.Judge
		cfg = &c
	}
	if model != "" {
		cfg.Model = model
	}

	judge, err := llmjudge.NewLLMJudge(cfg)
	if err != nil {
		if usesLLMJudge(m) {
			color.New(color.FgYellow).Fprintf(w, "⚠ %v; llm_judge checks will fail\n", err)
		}
		return llmjudge.Unavailable(err)
	}

	return judge
}

func usesLLMJudge(m *manifest.Manifest) bool {
	for _, sc := range m.Scenarios {
		for _, step := range sc.Steps {
			for _, g := range step.Graders {
				if g.Type == manifest.TypeLLMJudge {
					return true
				}
			}
		}
	}
	return false
}

func resultsFileName(name string) string {
	if name == "" {
		name = "run"
	}
	safe := strings.NewReplacer("/", "-", " ", "-").Replace(name)
	return fmt.Sprintf("ecp-%s-out.json", safe)
}

// newLogHandler renders library log messages on w. Debug messages only show when verbose.
func newLogHandler(w io.Writer, verbose bool) util.LogHandler {
	levels := map[string]*color.Color{
		util.LevelDebug: color.New(color.Faint),
		util.LevelInfo:  color.New(color.FgCyan),
		util.LevelWarn:  color.New(color.FgYellow),
		util.LevelError: color.New(color.FgRed),
	}

	return func(level, message string, data map[string]any) {
		if level == util.LevelDebug && !verbose {
			return
		}
		// scenario errors are already shown by the progress display
		if level == util.LevelError && !verbose {
			return
		}

		c, ok := levels[level]
		if !ok {
			c = levels[util.LevelInfo]
		}

		var sb strings.Builder
		sb.WriteString(message)
		for _, k := range sortedKeys(data) {
			fmt.Fprintf(&sb, " %s=%v", k, data[k])
		}
		c.Fprintf(w, "  [%s] %s\n", level, sb.String())
	}
}

// progressDisplay handles interactive progress display
type progressDisplay struct {
	w       io.Writer
	verbose bool
	green   *color.Color
	red     *color.Color
	yellow  *color.Color
	cyan    *color.Color
	bold    *color.Color
}

func newProgressDisplay(w io.Writer, verbose bool) *progressDisplay {
	return &progressDisplay{
		w:       w,
		verbose: verbose,
		green:   color.New(color.FgGreen),
		red:     color.New(color.FgRed),
		yellow:  color.New(color.FgYellow),
		cyan:    color.New(color.FgCyan),
		bold:    color.New(color.Bold),
	}
}

func (d *progressDisplay) handleProgress(event eval.ProgressEvent) {
	switch event.Type {
	case eval.EventEvalStart:
		d.bold.Fprintln(d.w, "\n=== Starting Evaluation ===")

	case eval.EventScenarioStart:
		fmt.Fprintln(d.w)
		d.cyan.Fprintf(d.w, "Scenario: %s\n", event.Scenario.Name)

	case eval.EventStepComplete:
		step := event.Step
		passed, total := 0, len(step.Checks)
		for _, check := range step.Checks {
			if check.Passed {
				passed++
			}
		}

		line := fmt.Sprintf("  → Step %d: %s (%d/%d checks)\n", len(event.Scenario.Steps), truncateString(step.Input, 60), passed, total)
		if passed == total {
			d.green.Fprint(d.w, line)
		} else {
			d.yellow.Fprint(d.w, line)
			for _, failure := range results.FailedChecks(step) {
				fmt.Fprintf(d.w, "    - %s\n", failure)
			}
		}
		if d.verbose && step.Output != nil {
			fmt.Fprintf(d.w, "    Output: %s\n", truncateString(*step.Output, 200))
		}

	case eval.EventScenarioComplete:
		sc := event.Scenario
		passed, total := sc.Counts()
		if passed == total {
			d.green.Fprintf(d.w, "  ✓ Scenario passed (%d/%d checks)\n", passed, total)
		} else {
			d.yellow.Fprintf(d.w, "  ~ Scenario completed with failed checks (%d/%d)\n", passed, total)
		}

	case eval.EventScenarioError:
		sc := event.Scenario
		d.red.Fprintf(d.w, "  ✗ Scenario aborted during %s\n", sc.FailedPhase)
		printMultilineField(d.w, "Error", sc.Error)

	case eval.EventEvalComplete:
		fmt.Fprintln(d.w)
		d.bold.Fprintln(d.w, "=== Evaluation Complete ===")
	}
}

func displayResults(w io.Writer, summary *eval.RunSummary, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)

	case "text":
		displayTextResults(w, summary)
		return nil

	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func displayTextResults(w io.Writer, summary *eval.RunSummary) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	bold := color.New(color.Bold)

	fmt.Fprintln(w)
	bold.Fprintln(w, "=== Results Summary ===")
	fmt.Fprintln(w)

	for _, sc := range summary.Scenarios {
		passed, total := sc.Counts()

		fmt.Fprintf(w, "Scenario: %s\n", sc.Name)
		switch {
		case sc.Error != "":
			red.Fprintf(w, "  Status: ABORTED (%s)\n", sc.FailedPhase)
			fmt.Fprintf(w, "  Error: %s\n", firstLine(sc.Error))
		case passed == total:
			green.Fprintf(w, "  Status: PASSED\n")
		default:
			yellow.Fprintf(w, "  Status: FAILED\n")
		}
		fmt.Fprintf(w, "  Checks: %d/%d\n", passed, total)
		fmt.Fprintln(w)
	}

	stats := results.CalculateStats("", summary)

	bold.Fprintln(w, "=== Overall Statistics ===")
	fmt.Fprintf(w, "Total Scenarios: %d\n", stats.ScenariosTotal)

	if stats.ScenariosPassed == stats.ScenariosTotal {
		green.Fprintf(w, "Scenarios Passed: %d/%d\n", stats.ScenariosPassed, stats.ScenariosTotal)
	} else {
		fmt.Fprintf(w, "Scenarios Passed: %d/%d\n", stats.ScenariosPassed, stats.ScenariosTotal)
	}

	if stats.ChecksTotal > 0 {
		if stats.ChecksPassed == stats.ChecksTotal {
			green.Fprintf(w, "Checks Passed: %d/%d\n", stats.ChecksPassed, stats.ChecksTotal)
		} else {
			fmt.Fprintf(w, "Checks Passed: %d/%d\n", stats.ChecksPassed, stats.ChecksTotal)
		}
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
