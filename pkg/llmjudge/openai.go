package llmjudge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

type openAIJudge struct {
	client openai.Client
	model  string
}

var _ LLMJudge = &openAIJudge{}

// NewLLMJudge builds an OpenAI-compatible judge from cfg. A missing API key yields an error
// wrapping ErrJudgeUnavailable.
func NewLLMJudge(cfg *LLMJudgeConfig) (LLMJudge, error) {
	apiKey := cfg.ApiKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrJudgeUnavailable, cfg.env().ApiKeyKey)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseUrl := cfg.BaseUrl(); baseUrl != "" {
		opts = append(opts, option.WithBaseURL(baseUrl))
	}

	return &openAIJudge{
		client: openai.NewClient(opts...),
		model:  cfg.ModelName(),
	}, nil
}

func (j *openAIJudge) ModelName() string {
	return j.model
}

func (j *openAIJudge) EvaluateText(ctx context.Context, criterion, subject string) (*LLMJudgeResult, error) {
	systemPrompt, err := BuildSystemPrompt(SystemPromptData{Criterion: criterion})
	if err != nil {
		return nil, fmt.Errorf("failed to build judge system prompt: %w", err)
	}

	userPrompt, err := BuildUserPrompt(UserPromptData{Answer: subject})
	if err != nil {
		return nil, fmt.Errorf("failed to build judge user prompt: %w", err)
	}

	completion, err := j.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(j.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Tools: []openai.ChatCompletionToolUnionParam{submitJudgementTool()},
		ToolChoice: openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{
			Name: submitJudgementToolName,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}

	for _, toolCall := range completion.Choices[0].Message.ToolCalls {
		if toolCall.Function.Name != submitJudgementToolName {
			continue
		}

		return parseJudgement(toolCall.Function.Arguments)
	}

	return nil, fmt.Errorf("judge did not call %s", submitJudgementToolName)
}

func submitJudgementTool() openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
		Name:        submitJudgementToolName,
		Description: openai.String("Submit the verdict on whether the agent answer satisfies the criterion."),
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"passed": map[string]any{
					"type":        "boolean",
					"description": "Whether the answer satisfies the criterion.",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Short explanation of the verdict.",
				},
				"score": map[string]any{
					"type":        "number",
					"minimum":     0,
					"maximum":     1,
					"description": "How well the criterion is met, from 0.0 to 1.0.",
				},
				"failureCategory": map[string]any{
					"type": "string",
					"enum": []string{FailureCategoryCriterionNotMet, FailureCategoryOffTopic, FailureCategoryNA},
				},
			},
			"required": []string{"passed", "reason"},
		},
	})
}

// parseJudgement decodes submit_judgement arguments. A missing score follows the verdict.
func parseJudgement(arguments string) (*LLMJudgeResult, error) {
	var args struct {
		Passed          bool     `json:"passed"`
		Reason          string   `json:"reason"`
		Score           *float64 `json:"score"`
		FailureCategory string   `json:"failureCategory"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("failed to parse judgement arguments: %w", err)
	}

	result := &LLMJudgeResult{
		Passed:          args.Passed,
		Reason:          args.Reason,
		FailureCategory: args.FailureCategory,
	}

	switch {
	case args.Score != nil:
		result.Score = min(max(*args.Score, 0), 1)
	case args.Passed:
		result.Score = 1
	}

	return result, nil
}
