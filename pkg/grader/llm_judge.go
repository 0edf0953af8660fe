package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evalcontext/ecp/pkg/llmjudge"
	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/util"
)

// EvaluateLLMJudge asks the judge in ctx whether the text satisfies the configured prompt.
func EvaluateLLMJudge(ctx context.Context, cfg *manifest.GraderConfig, subject Subject) *CheckResult {
	criterion := strings.TrimSpace(cfg.Criterion())
	if criterion == "" {
		return Fail("llm_judge requires a 'prompt'")
	}

	if subject.Text == "" {
		return Fail(EmptyTextReason)
	}

	judge, ok := llmjudge.FromContext(ctx)
	if !ok {
		return Fail("LLM judge unavailable: no judge configured")
	}

	util.LogHandlerFrom(ctx).Debug("llm judge evaluating", map[string]any{"model": judge.ModelName()})

	res, err := judge.EvaluateText(ctx, criterion, subject.Text)
	if err != nil {
		if errors.Is(err, llmjudge.ErrJudgeUnavailable) {
			msg := err.Error()
			if detail, found := strings.CutPrefix(msg, llmjudge.ErrJudgeUnavailable.Error()); found {
				return Fail("LLM judge unavailable" + detail)
			}
			return Fail("LLM judge unavailable: " + msg)
		}
		return Fail(fmt.Sprintf("LLM judge error: %v", err))
	}

	reasoning := res.Reason
	if reasoning == "" {
		reasoning = "judge gave no reasoning"
	}
	if !res.Passed && res.FailureCategory != "" && res.FailureCategory != llmjudge.FailureCategoryNA {
		reasoning = fmt.Sprintf("%s (%s)", reasoning, res.FailureCategory)
	}

	return &CheckResult{
		Passed:    res.Passed,
		Score:     res.Score,
		Reasoning: reasoning,
	}
}
