package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/evalcontext/ecp/pkg/manifest"
	"github.com/evalcontext/ecp/pkg/protocol"
)

const NoToolCallsReason = "No tool_calls present. Agent did not report any tool usage."

// EvaluateToolUsage passes when some reported tool call has the configured name and carries
// at least the configured arguments. The first match in capture order wins.
func EvaluateToolUsage(_ context.Context, cfg *manifest.GraderConfig, subject Subject) *CheckResult {
	var calls []protocol.ToolCall
	if subject.Result != nil {
		calls = subject.Result.ToolCalls
	}

	if len(calls) == 0 {
		return Fail(NoToolCallsReason)
	}

	for i, call := range calls {
		if cfg.ToolName != "" && call.Name != cfg.ToolName {
			continue
		}
		if !argumentsMatch(call.Arguments, cfg.Arguments) {
			continue
		}

		return Pass(fmt.Sprintf("Tool '%s' was called (call %d of %d) with matching arguments", call.Name, i+1, len(calls)))
	}

	names := make([]string, 0, len(calls))
	for _, call := range calls {
		name := call.Name
		if name == "" {
			name = "<unnamed>"
		}
		names = append(names, name)
	}

	want := "any tool"
	if cfg.ToolName != "" {
		want = fmt.Sprintf("tool '%s'", cfg.ToolName)
	}
	if len(cfg.Arguments) > 0 {
		want += " with arguments " + compactJSON(cfg.Arguments)
	}

	return Fail(fmt.Sprintf("No call to %s. Observed calls: %s", want, strings.Join(names, ", ")))
}

// argumentsMatch reports whether actual contains every key of expected with an equal value.
func argumentsMatch(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}

	return true
}

// valuesEqual compares decoded JSON values, so 2 and 2.0 are equal however they were built.
func valuesEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}

	return bytes.Equal(ja, jb)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
