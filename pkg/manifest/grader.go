package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	FieldPublicOutput   = "public_output"
	FieldPrivateThought = "private_thought"
)

const (
	TypeTextMatch = "text_match"
	TypeLLMJudge  = "llm_judge"
	TypeToolUsage = "tool_usage"
)

const (
	ConditionContains       = "contains"
	ConditionEquals         = "equals"
	ConditionDoesNotContain = "does_not_contain"
	ConditionRegex          = "regex"
)

// GraderConfig is the union of every grader's settings. Which fields matter depends on Type;
// missing settings are reported when the grader runs, not when the manifest loads.
type GraderConfig struct {
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`

	// text_match
	Condition string  `json:"condition,omitempty"`
	Value     *string `json:"value,omitempty"`
	Pattern   *string `json:"pattern,omitempty"`

	// llm_judge; Assertion is an older spelling of Prompt
	Prompt    string `json:"prompt,omitempty"`
	Assertion string `json:"assertion,omitempty"`

	// tool_usage
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// TargetField returns the step result field this grader inspects.
func (g *GraderConfig) TargetField() string {
	if g.Field == "" {
		return FieldPublicOutput
	}

	return g.Field
}

// Criterion returns the judge prompt, accepting either spelling.
func (g *GraderConfig) Criterion() string {
	if strings.TrimSpace(g.Prompt) != "" {
		return g.Prompt
	}

	return g.Assertion
}

// UnmarshalJSON lets value and pattern be written as bare YAML scalars, so `value: 42`
// reads as the string "42".
func (g *GraderConfig) UnmarshalJSON(data []byte) error {
	type Doppleganger GraderConfig

	tmp := struct {
		*Doppleganger
		Value   json.RawMessage `json:"value,omitempty"`
		Pattern json.RawMessage `json:"pattern,omitempty"`
	}{
		Doppleganger: (*Doppleganger)(g),
	}

	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	var err error
	if g.Value, err = scalarString(tmp.Value); err != nil {
		return fmt.Errorf("invalid grader value: %w", err)
	}
	if g.Pattern, err = scalarString(tmp.Pattern); err != nil {
		return fmt.Errorf("invalid grader pattern: %w", err)
	}

	return nil
}

func scalarString(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}

	switch v.(type) {
	case float64, bool:
		s = string(raw)
		return &s, nil
	default:
		return nil, fmt.Errorf("expected a string, number or boolean, got %s", raw)
	}
}
