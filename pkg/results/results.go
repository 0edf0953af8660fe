// Package results provides utilities for loading, filtering, and analyzing saved run summaries.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/evalcontext/ecp/pkg/eval"
)

// Stats holds computed statistics from a run summary.
type Stats struct {
	ResultsFile      string  `json:"resultsFile"`
	ScenariosTotal   int     `json:"scenariosTotal"`
	ScenariosPassed  int     `json:"scenariosPassed"`
	ScenarioPassRate float64 `json:"scenarioPassRate"`
	ChecksTotal      int     `json:"checksTotal"`
	ChecksPassed     int     `json:"checksPassed"`
	CheckPassRate    float64 `json:"checkPassRate"`
	ScenariosErrored int     `json:"scenariosErrored"`
}

// Load reads a JSON results file written by the run command.
func Load(path string) (*eval.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var summary eval.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse results JSON: %w", err)
	}

	return &summary, nil
}

// Filter returns a copy of summary holding only the scenarios whose names contain the filter
// substring. Totals are recomputed for the remaining scenarios.
func Filter(summary *eval.RunSummary, filter string) *eval.RunSummary {
	if filter == "" {
		return summary
	}

	filter = strings.ToLower(filter)
	filtered := *summary
	filtered.Scenarios = make([]*eval.ScenarioResult, 0, len(summary.Scenarios))
	for _, sc := range summary.Scenarios {
		if strings.Contains(strings.ToLower(sc.Name), filter) {
			filtered.Scenarios = append(filtered.Scenarios, sc)
		}
	}
	filtered.Recount()

	return &filtered
}

// CalculateStats computes statistics from a run summary.
func CalculateStats(resultsFile string, summary *eval.RunSummary) Stats {
	stats := Stats{
		ResultsFile:    resultsFile,
		ScenariosTotal: len(summary.Scenarios),
	}

	for _, sc := range summary.Scenarios {
		if sc.Succeeded() {
			stats.ScenariosPassed++
		}
		if sc.Error != "" {
			stats.ScenariosErrored++
		}

		passed, total := sc.Counts()
		stats.ChecksPassed += passed
		stats.ChecksTotal += total
	}

	if stats.ScenariosTotal > 0 {
		stats.ScenarioPassRate = float64(stats.ScenariosPassed) / float64(stats.ScenariosTotal)
	}
	if stats.ChecksTotal > 0 {
		stats.CheckPassRate = float64(stats.ChecksPassed) / float64(stats.ChecksTotal)
	}

	return stats
}

// FailureReason returns why a scenario did not pass: its error, else the first failed check.
func FailureReason(sc *eval.ScenarioResult) string {
	if sc.Error != "" {
		return sc.Error
	}
	for _, step := range sc.Steps {
		if failures := FailedChecks(step); len(failures) > 0 {
			return failures[0]
		}
	}
	return ""
}

// FailedChecks returns a formatted message for every failed check of a step.
func FailedChecks(step *eval.StepRecord) []string {
	var failures []string
	for _, check := range step.Checks {
		if check == nil || check.Passed {
			continue
		}
		failures = append(failures, fmt.Sprintf("%s(%s): %s", check.Type, check.Field, check.Reasoning))
	}

	return failures
}
