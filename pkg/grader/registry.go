package grader

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/utils/ptr"

	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/protocol"
)

type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

func (r *Registry) Register(graderType string, evaluator Evaluator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.evaluators[graderType]
	if exists {
		return fmt.Errorf("a grader already exists for type '%s'", graderType)
	}

	r.evaluators[graderType] = evaluator

	return nil
}

// Types lists the registered grader types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.evaluators))
	for t := range r.evaluators {
		types = append(types, t)
	}
	return types
}

// Evaluate selects the configured field from result and dispatches to the grader for
// cfg.Type. It always returns a check.
func (r *Registry) Evaluate(ctx context.Context, cfg *manifest.GraderConfig, result *protocol.StepResult) *CheckResult {
	field := cfg.TargetField()

	check := r.evaluate(ctx, cfg, field, result)
	check.Type = cfg.Type
	check.Field = field
	check.Score = min(max(check.Score, 0), 1)

	return check
}

func (r *Registry) evaluate(ctx context.Context, cfg *manifest.GraderConfig, field string, result *protocol.StepResult) *CheckResult {
	text, err := SelectField(result, field)
	if err != nil {
		return Fail(err.Error())
	}

	r.mu.RLock()
	evaluator, ok := r.evaluators[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return Fail(fmt.Sprintf("Unknown grader type '%s'", cfg.Type))
	}

	check := evaluator.Evaluate(ctx, cfg, Subject{Text: text, Result: result})
	if check == nil {
		return Fail(fmt.Sprintf("grader '%s' returned no result", cfg.Type))
	}

	return check
}

// EvaluateStep runs every grader of step, in manifest order.
func (r *Registry) EvaluateStep(ctx context.Context, step *manifest.Step, result *protocol.StepResult) []*CheckResult {
	checks := make([]*CheckResult, 0, len(step.Graders))
	for i := range step.Graders {
		checks = append(checks, r.Evaluate(ctx, &step.Graders[i], result))
	}

	return checks
}

// SelectField returns the text of a step result field. Absent fields read as "".
func SelectField(result *protocol.StepResult, field string) (string, error) {
	if result == nil {
		result = &protocol.StepResult{}
	}

	switch field {
	case manifest.FieldPublicOutput:
		return ptr.Deref(result.PublicOutput, ""), nil
	case manifest.FieldPrivateThought:
		return ptr.Deref(result.PrivateThought, ""), nil
	default:
		return "", fmt.Errorf("unknown field '%s': expected '%s' or '%s'", field, manifest.FieldPublicOutput, manifest.FieldPrivateThought)
	}
}
