package llmjudge

import (
	"context"
	"errors"
	"fmt"
)

// ErrJudgeUnavailable marks failures caused by the judge not being usable at all, as opposed
// to a judge that ran and returned something unusable.
var ErrJudgeUnavailable = errors.New("llm judge unavailable")

type LLMJudgeResult struct {
	Passed          bool    `json:"passed"`
	Reason          string  `json:"reason"`
	Score           float64 `json:"score"`
	FailureCategory string  `json:"failureCategory,omitempty"`
}

// LLMJudge decides whether a piece of text satisfies a natural-language criterion.
type LLMJudge interface {
	EvaluateText(ctx context.Context, criterion, subject string) (*LLMJudgeResult, error)
	ModelName() string
}

type contextKey struct{}

func WithJudge(ctx context.Context, judge LLMJudge) context.Context {
	return context.WithValue(ctx, contextKey{}, judge)
}

func FromContext(ctx context.Context) (LLMJudge, bool) {
	val := ctx.Value(contextKey{})
	if val == nil {
		return nil, false
	}

	judge, ok := val.(LLMJudge)
	if !ok || judge == nil {
		return nil, false
	}

	return judge, true
}

// Unavailable returns a judge that fails every evaluation with reason. It stands in when
// the real judge cannot be built, so llm_judge checks fail individually instead of the run.
func Unavailable(reason error) LLMJudge {
	return &unavailableJudge{reason: reason}
}

type unavailableJudge struct {
	reason error
}

func (j *unavailableJudge) EvaluateText(context.Context, string, string) (*LLMJudgeResult, error) {
	switch {
	case j.reason == nil:
		return nil, ErrJudgeUnavailable
	case errors.Is(j.reason, ErrJudgeUnavailable):
		return nil, j.reason
	default:
		return nil, fmt.Errorf("%w: %v", ErrJudgeUnavailable, j.reason)
	}
}

func (j *unavailableJudge) ModelName() string {
	return ""
}
