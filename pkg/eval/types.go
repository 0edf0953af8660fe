package eval

import (
	"github.com/evalcontext/ecp/pkg/grader"
	"github.com/evalcontext/ecp/pkg/protocol"
)

// Phase is where a scenario's agent lifecycle stands.
type Phase string

const (
	PhaseSpawning     Phase = "spawning"
	PhaseInitializing Phase = "initializing"
	PhaseStepping     Phase = "stepping"
	PhaseTornDown     Phase = "torn_down"
)

// RunSummary is the outcome of one manifest run.
type RunSummary struct {
	RunID     string            `json:"runId"`
	Name      string            `json:"name"`
	Passed    int               `json:"passed"`
	Total     int               `json:"total"`
	Scenarios []*ScenarioResult `json:"scenarios"`
}

type ScenarioResult struct {
	Name string `json:"name"`
	// Agent is the name the agent reported on initialize.
	Agent string        `json:"agent,omitempty"`
	Steps []*StepRecord `json:"steps"`

	// Error is set when the scenario stopped early; FailedPhase says where.
	Error       string `json:"error,omitempty"`
	FailedPhase Phase  `json:"failed_phase,omitempty"`
}

type StepRecord struct {
	Input          string                `json:"input"`
	Output         *string               `json:"output"`
	Status         string                `json:"status,omitempty"`
	PrivateThought *string               `json:"private_thought,omitempty"`
	ToolCalls      []protocol.ToolCall   `json:"tool_calls,omitempty"`
	Checks         []*grader.CheckResult `json:"checks"`
}

// Counts returns the number of passed checks and the number of checks.
func (s *ScenarioResult) Counts() (passed, total int) {
	for _, step := range s.Steps {
		for _, check := range step.Checks {
			total++
			if check.Passed {
				passed++
			}
		}
	}

	return passed, total
}

// Succeeded reports whether the scenario ran to completion with every check passing.
func (s *ScenarioResult) Succeeded() bool {
	passed, total := s.Counts()
	return s.Error == "" && passed == total
}

// Recount recomputes the run totals from the scenarios.
func (r *RunSummary) Recount() {
	r.Passed, r.Total = 0, 0
	for _, sc := range r.Scenarios {
		passed, total := sc.Counts()
		r.Passed += passed
		r.Total += total
	}
}
