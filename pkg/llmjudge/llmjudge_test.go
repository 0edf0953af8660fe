package llmjudge

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalcontext/ecp/pkg/openaitest"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv(DefaultApiKeyKey, "sk-default")
	t.Setenv(DefaultBaseUrlKey, "http://judge.local/v1")
	t.Setenv(DefaultModelNameKey, "")

	var cfg *LLMJudgeConfig
	assert.Equal(t, "sk-default", cfg.ApiKey())
	assert.Equal(t, "http://judge.local/v1", cfg.BaseUrl())
	assert.Equal(t, DefaultModel, cfg.ModelName())

	t.Setenv(DefaultModelNameKey, "gpt-env")
	assert.Equal(t, "gpt-env", cfg.ModelName())

	cfg = &LLMJudgeConfig{Model: "gpt-flag"}
	assert.Equal(t, "gpt-flag", cfg.ModelName())
}

func TestConfigCustomEnvKeys(t *testing.T) {
	t.Setenv("JUDGE_KEY", "sk-custom")
	t.Setenv("JUDGE_MODEL", "judge-model")

	cfg := &LLMJudgeConfig{Env: &LLMJudgeEnvConfig{ApiKeyKey: "JUDGE_KEY", ModelNameKey: "JUDGE_MODEL"}}
	assert.Equal(t, "sk-custom", cfg.ApiKey())
	assert.Equal(t, "judge-model", cfg.ModelName())
	assert.Equal(t, DefaultBaseUrlKey, cfg.env().BaseUrlKey)
}

func TestNewLLMJudge_MissingKey(t *testing.T) {
	t.Setenv(DefaultApiKeyKey, "")

	_, err := NewLLMJudge(&LLMJudgeConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJudgeUnavailable)
	assert.Contains(t, err.Error(), DefaultApiKeyKey)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	judge := Unavailable(errors.New("no key"))
	got, ok := FromContext(WithJudge(context.Background(), judge))
	assert.True(t, ok)
	assert.Same(t, judge, got)

	_, ok = FromContext(WithJudge(context.Background(), nil))
	assert.False(t, ok)
}

func TestUnavailable(t *testing.T) {
	tt := map[string]struct {
		reason   error
		expected string
	}{
		"nil reason": {
			reason:   nil,
			expected: "llm judge unavailable",
		},
		"plain reason is wrapped": {
			reason:   errors.New("no key"),
			expected: "llm judge unavailable: no key",
		},
		"already wrapped reason is kept": {
			reason:   errors.Join(ErrJudgeUnavailable, errors.New("bad url")),
			expected: "llm judge unavailable\nbad url",
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			_, err := Unavailable(tc.reason).EvaluateText(context.Background(), "c", "s")
			require.ErrorIs(t, err, ErrJudgeUnavailable)
			assert.Equal(t, tc.expected, err.Error())
		})
	}
}

func TestOpenAIJudge_EvaluateText(t *testing.T) {
	tt := map[string]struct {
		response  *openaitest.Response
		expected  *LLMJudgeResult
		expectErr string
	}{
		"pass without score counts as full marks": {
			response: openaitest.JudgePass("polite and correct"),
			expected: &LLMJudgeResult{Passed: true, Reason: "polite and correct", Score: 1, FailureCategory: "n/a"},
		},
		"fail without score counts as zero": {
			response: openaitest.JudgeFail(FailureCategoryCriterionNotMet, "rude"),
			expected: &LLMJudgeResult{Passed: false, Reason: "rude", FailureCategory: FailureCategoryCriterionNotMet},
		},
		"score is clamped": {
			response: openaitest.JudgeScored(true, 1.7, "great"),
			expected: &LLMJudgeResult{Passed: true, Reason: "great", Score: 1},
		},
		"partial score": {
			response: openaitest.JudgeScored(false, 0.4, "partly"),
			expected: &LLMJudgeResult{Passed: false, Reason: "partly", Score: 0.4},
		},
		"no tool call": {
			response:  openaitest.JudgeNoToolCall("I think it passes"),
			expectErr: "judge did not call submit_judgement",
		},
		"invalid arguments": {
			response:  openaitest.JudgeInvalidArguments(),
			expectErr: "failed to parse judgement arguments",
		},
		"api error": {
			response:  openaitest.JudgeError(http.StatusBadRequest, "model not found"),
			expectErr: "judge request failed",
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			server := openaitest.NewServer(tc.response)
			defer server.Close()

			t.Setenv(DefaultApiKeyKey, "sk-test")
			t.Setenv(DefaultBaseUrlKey, server.BaseURL())
			t.Setenv(DefaultModelNameKey, "judge-test")

			judge, err := NewLLMJudge(&LLMJudgeConfig{})
			require.NoError(t, err)
			assert.Equal(t, "judge-test", judge.ModelName())

			result, err := judge.EvaluateText(context.Background(), "Answer is polite", "Thank you kindly!")
			if tc.expectErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectErr)
				assert.NotErrorIs(t, err, ErrJudgeUnavailable)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)

			requests := server.Requests()
			require.Len(t, requests, 1)
			assert.Equal(t, "judge-test", requests[0].Model)
			require.Len(t, requests[0].Messages, 2)
			assert.Equal(t, "system", requests[0].Messages[0].Role)
			assert.Contains(t, requests[0].Messages[0].Content, "Answer is polite")
			assert.Contains(t, requests[0].Messages[1].Content, "Thank you kindly!")
			require.Len(t, requests[0].Tools, 1)
			assert.Equal(t, submitJudgementToolName, requests[0].Tools[0].Function.Name)
			assert.JSONEq(t, `{"type":"function","function":{"name":"submit_judgement"}}`, string(requests[0].ToolChoice))
		})
	}
}

func TestBuildPrompts(t *testing.T) {
	system, err := BuildSystemPrompt(SystemPromptData{Criterion: "Mentions the number 42"})
	require.NoError(t, err)
	assert.Contains(t, system, "<criterion>\nMentions the number 42\n</criterion>")
	assert.Contains(t, system, "submit_judgement")

	user, err := BuildUserPrompt(UserPromptData{Answer: "It is 42."})
	require.NoError(t, err)
	assert.Contains(t, user, "<agent_answer>\nIt is 42.\n</agent_answer>")
}
