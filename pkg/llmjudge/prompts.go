package llmjudge

import (
	"bytes"
	"text/template"
)

const submitJudgementToolName = "submit_judgement"

const (
	FailureCategoryCriterionNotMet = "criterion_not_met"
	FailureCategoryOffTopic        = "off_topic"
	FailureCategoryNA              = "n/a"
)

var (
	systemPromptTemplate = template.Must(template.New("systemPrompt").Parse(
		`You are a strict evaluator of AI agent answers. Your **one and only job** is to decide whether an [AGENT_ANSWER] satisfies the [CRITERION] below.

<criterion>
{{.Criterion}}
</criterion>

* **Pass**: the answer clearly satisfies the criterion. Judge meaning, not wording or format.
* **Fail**: the answer does not satisfy the criterion, only partly satisfies it, or avoids it.
* **Score**: a number between 0.0 and 1.0 expressing how well the criterion is met.
* **Failure Categories**:
  - Use "criterion_not_met" if the answer addresses the task but fails the criterion
  - Use "off_topic" if the answer does not address the task at all
  - Use "n/a" if passing

You MUST always respond by calling the ` + "`submit_judgement`" + ` tool with:
- passed: boolean (true/false)
- reason: a short explanation referencing the criterion
- score: number between 0.0 and 1.0
- failureCategory: one of the categories listed above

Do not add any conversational text.
`))

	userPromptTemplate = template.Must(template.New("userPrompt").Parse(
		`<agent_answer>
{{.Answer}}
</agent_answer>

Evaluate whether the content in <agent_answer> satisfies the criterion.
`))
)

type SystemPromptData struct {
	Criterion string
}

type UserPromptData struct {
	Answer string
}

func BuildSystemPrompt(data SystemPromptData) (string, error) {
	var out bytes.Buffer
	err := systemPromptTemplate.Execute(&out, data)
	if err != nil {
		return "", err
	}

	return out.String(), nil
}

func BuildUserPrompt(data UserPromptData) (string, error) {
	var out bytes.Buffer
	err := userPromptTemplate.Execute(&out, data)
	if err != nil {
		return "", err
	}

	return out.String(), nil
}
