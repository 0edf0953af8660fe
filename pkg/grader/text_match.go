package grader

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/evalcontext/ecp/pkg/manifest"
)

const EmptyTextReason = "Text was empty"

// EvaluateTextMatch compares the selected text against a literal value or a regex.
// Regexes use search semantics: a match anywhere in the text passes.
func EvaluateTextMatch(_ context.Context, cfg *manifest.GraderConfig, subject Subject) *CheckResult {
	if subject.Text == "" {
		return Fail(EmptyTextReason)
	}

	text := subject.Text

	switch cfg.Condition {
	case manifest.ConditionContains, manifest.ConditionEquals, manifest.ConditionDoesNotContain:
		if cfg.Value == nil {
			return Fail(fmt.Sprintf("text_match condition '%s' requires a 'value'", cfg.Condition))
		}
		value := *cfg.Value

		switch cfg.Condition {
		case manifest.ConditionContains:
			if strings.Contains(text, value) {
				return Pass(fmt.Sprintf("Text contains %q", value))
			}
			return Fail(fmt.Sprintf("Text does not contain %q", value))
		case manifest.ConditionEquals:
			if text == value {
				return Pass(fmt.Sprintf("Text equals %q", value))
			}
			return Fail(fmt.Sprintf("Text %q does not equal %q", excerpt(text), value))
		default:
			if !strings.Contains(text, value) {
				return Pass(fmt.Sprintf("Text does not contain %q", value))
			}
			return Fail(fmt.Sprintf("Text contains forbidden %q", value))
		}

	case manifest.ConditionRegex:
		if cfg.Pattern == nil {
			return Fail("text_match condition 'regex' requires a 'pattern'")
		}

		re, err := regexp.Compile(*cfg.Pattern)
		if err != nil {
			return Fail(fmt.Sprintf("Invalid regex pattern %q: %v", *cfg.Pattern, err))
		}

		if re.MatchString(text) {
			return Pass(fmt.Sprintf("Text matches pattern %q", *cfg.Pattern))
		}
		return Fail(fmt.Sprintf("Text does not match pattern %q", *cfg.Pattern))

	case "":
		return Fail("text_match requires a 'condition'")

	default:
		return Fail(fmt.Sprintf("Unknown text_match condition '%s'", cfg.Condition))
	}
}

func excerpt(s string) string {
	const n = 120
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
