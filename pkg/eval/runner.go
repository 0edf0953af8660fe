package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/evalcontext/ecp/pkg/grader"
	"github.com/evalcontext/ecp/pkg/llmjudge"
	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/protocol"
	"github.com/evalcontext/ecp/pkg/transport"
	"github.com/evalcontext/ecp/pkg/util"
)

// AgentProcess is one running agent. *transport.Process implements it.
type AgentProcess interface {
	Start(ctx context.Context) error
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	Stop() error
}

var _ AgentProcess = &transport.Process{}

// AgentFactory creates a fresh, unstarted agent for a manifest target.
type AgentFactory func(target string) AgentProcess

type Options struct {
	// Timeout applies to each agent call. Zero means transport.DefaultCallTimeout.
	Timeout time.Duration
	// Graders defaults to grader.DefaultRegistry.
	Graders *grader.Registry
	// NewAgent defaults to launching target as a subprocess.
	NewAgent AgentFactory
	// Judge is made available to llm_judge graders.
	Judge llmjudge.LLMJudge
	// ScenarioPattern, when set, only runs scenarios whose name matches the regex.
	ScenarioPattern string
	LogHandler      util.LogHandler
}

type Runner interface {
	Run(ctx context.Context) (*RunSummary, error)
	RunWithProgress(ctx context.Context, callback ProgressCallback) (*RunSummary, error)
}

type evalRunner struct {
	manifest         *manifest.Manifest
	opts             Options
	scenarioMatcher  *regexp.Regexp
	progressCallback ProgressCallback
}

var _ Runner = &evalRunner{}

// NewRunner creates a Runner for m.
func NewRunner(m *manifest.Manifest, opts Options) (Runner, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest cannot be nil")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = transport.DefaultCallTimeout
	}
	if opts.Graders == nil {
		opts.Graders = grader.DefaultRegistry
	}
	if opts.NewAgent == nil {
		logHandler := opts.LogHandler
		opts.NewAgent = func(target string) AgentProcess {
			return transport.New(transport.Options{Command: target, LogHandler: logHandler})
		}
	}

	pattern := opts.ScenarioPattern
	if pattern == "" {
		pattern = "."
	}
	matcher, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regexp for scenario name match: %w", err)
	}

	return &evalRunner{
		manifest:         m,
		opts:             opts,
		scenarioMatcher:  matcher,
		progressCallback: NoopProgressCallback,
	}, nil
}

func (r *evalRunner) Run(ctx context.Context) (*RunSummary, error) {
	return r.RunWithProgress(ctx, NoopProgressCallback)
}

// RunWithProgress runs every selected scenario in order. Scenario failures are recorded in
// the summary; the returned error is only set when ctx ends the run early.
func (r *evalRunner) RunWithProgress(ctx context.Context, callback ProgressCallback) (*RunSummary, error) {
	if callback == nil {
		callback = NoopProgressCallback
	}
	r.progressCallback = callback

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before start: %w", err)
	}

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Name:      r.manifest.Name,
		Scenarios: make([]*ScenarioResult, 0, len(r.manifest.Scenarios)),
	}

	if r.opts.Judge != nil {
		ctx = llmjudge.WithJudge(ctx, r.opts.Judge)
	}
	ctx = util.WithLogHandler(ctx, r.opts.LogHandler)

	r.progressCallback(ProgressEvent{
		Type:    EventEvalStart,
		Message: fmt.Sprintf("Starting evaluation: %s", r.manifest.Name),
		Summary: summary,
	})

	var runErr error
	for i := range r.manifest.Scenarios {
		sc := &r.manifest.Scenarios[i]
		if !r.scenarioMatcher.MatchString(sc.Name) {
			continue
		}

		if err := ctx.Err(); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("run cancelled before scenario '%s': %w", sc.Name, err))
			break
		}

		summary.Scenarios = append(summary.Scenarios, r.runScenario(ctx, sc))
	}

	summary.Recount()

	r.progressCallback(ProgressEvent{
		Type:    EventEvalComplete,
		Message: fmt.Sprintf("Evaluation complete: %d/%d checks passed", summary.Passed, summary.Total),
		Summary: summary,
	})

	return summary, runErr
}

// runScenario drives one fresh agent through initialize and every step. The agent is
// stopped exactly once whatever happens, including a panicking grader, and the result is
// returned on every path.
func (r *evalRunner) runScenario(ctx context.Context, sc *manifest.Scenario) (result *ScenarioResult) {
	result = &ScenarioResult{
		Name:  sc.Name,
		Steps: make([]*StepRecord, 0, len(sc.Steps)),
	}

	r.progressCallback(ProgressEvent{
		Type:     EventScenarioStart,
		Message:  fmt.Sprintf("Starting scenario: %s", sc.Name),
		Scenario: result,
	})

	phase := PhaseSpawning

	agent := r.opts.NewAgent(r.manifest.Target)
	if agent == nil {
		r.fail(result, phase, errors.New("agent factory returned no agent"))
		return result
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(result, phase, fmt.Errorf("panic: %v", rec))
		}

		if err := agent.Stop(); err != nil {
			r.opts.LogHandler.Warn("failed to stop agent", map[string]any{"scenario": sc.Name, "error": err.Error()})
		}
		phase = PhaseTornDown

		if result.Error == "" {
			passed, total := result.Counts()
			r.progressCallback(ProgressEvent{
				Type:     EventScenarioComplete,
				Message:  fmt.Sprintf("Completed scenario: %s (%d/%d checks passed)", sc.Name, passed, total),
				Scenario: result,
			})
		}
	}()

	if err := agent.Start(ctx); err != nil {
		r.fail(result, phase, err)
		return result
	}

	phase = PhaseInitializing
	raw, err := agent.Call(ctx, protocol.MethodInitialize, protocol.InitializeParams{Config: map[string]any{}}, r.opts.Timeout)
	if err != nil {
		r.fail(result, phase, err)
		return result
	}
	result.Agent = agentName(raw)

	phase = PhaseStepping
	for i := range sc.Steps {
		step := &sc.Steps[i]

		raw, err := agent.Call(ctx, protocol.MethodStep, protocol.StepParams{Input: step.Input}, r.opts.Timeout)
		if err != nil {
			r.fail(result, phase, fmt.Errorf("step %d: %w", i+1, err))
			return result
		}

		stepResult, err := protocol.DecodeStepResult(raw)
		if err != nil {
			r.fail(result, phase, fmt.Errorf("step %d: %w", i+1, &transport.ProtocolError{Method: protocol.MethodStep, Reason: err.Error()}))
			return result
		}

		record := &StepRecord{
			Input:          step.Input,
			Output:         stepResult.PublicOutput,
			Status:         stepResult.Status,
			PrivateThought: stepResult.PrivateThought,
			ToolCalls:      stepResult.ToolCalls,
			Checks:         r.opts.Graders.EvaluateStep(ctx, step, stepResult),
		}
		result.Steps = append(result.Steps, record)

		r.progressCallback(ProgressEvent{
			Type:     EventStepComplete,
			Message:  fmt.Sprintf("Step %d of scenario %s complete", i+1, sc.Name),
			Scenario: result,
			Step:     record,
		})
	}

	return result
}

func (r *evalRunner) fail(result *ScenarioResult, phase Phase, err error) {
	result.Error = err.Error()
	result.FailedPhase = phase

	r.opts.LogHandler.Error("scenario failed", map[string]any{"scenario": result.Name, "phase": string(phase), "error": err.Error()})

	r.progressCallback(ProgressEvent{
		Type:     EventScenarioError,
		Message:  fmt.Sprintf("Scenario %s failed during %s: %v", result.Name, phase, err),
		Scenario: result,
	})
}

// agentName extracts the reported name from an initialize result, if there is one.
func agentName(raw json.RawMessage) string {
	var info protocol.InitializeResult
	if err := json.Unmarshal(raw, &info); err != nil {
		return ""
	}
	return info.Name
}
