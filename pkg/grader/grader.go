package grader

import (
	"context"

	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/protocol"
)

var (
	DefaultRegistry = NewRegistry()
)

// CheckResult is the verdict of one grader on one step.
type CheckResult struct {
	Type      string  `json:"type"`
	Field     string  `json:"field"`
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// Subject is what a grader looks at: the text of the selected field plus the whole result,
// for graders that need more than text.
type Subject struct {
	Text   string
	Result *protocol.StepResult
}

// Evaluator grades one subject. Evaluators never return errors: configuration problems and
// backend failures become failed checks with a reason.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg *manifest.GraderConfig, subject Subject) *CheckResult
}

type EvaluatorFunc func(ctx context.Context, cfg *manifest.GraderConfig, subject Subject) *CheckResult

func (f EvaluatorFunc) Evaluate(ctx context.Context, cfg *manifest.GraderConfig, subject Subject) *CheckResult {
	return f(ctx, cfg, subject)
}

func Pass(reasoning string) *CheckResult {
	return &CheckResult{Passed: true, Score: 1, Reasoning: reasoning}
}

func Fail(reasoning string) *CheckResult {
	return &CheckResult{Passed: false, Score: 0, Reasoning: reasoning}
}

func init() {
	_ = DefaultRegistry.Register(manifest.TypeTextMatch, EvaluatorFunc(EvaluateTextMatch))
	_ = DefaultRegistry.Register(manifest.TypeLLMJudge, EvaluatorFunc(EvaluateLLMJudge))
	_ = DefaultRegistry.Register(manifest.TypeToolUsage, EvaluatorFunc(EvaluateToolUsage))
}
