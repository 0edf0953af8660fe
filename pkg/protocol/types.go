package protocol

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	MethodInitialize = "agent/initialize"
	MethodStep       = "agent/step"
	MethodReset      = "agent/reset"
)

const (
	StatusDone = "done"
)

// InitializeParams is sent with agent/initialize. The harness always sends an empty config.
type InitializeParams struct {
	Config map[string]any `json:"config"`
}

type InitializeResult struct {
	Name         string         `json:"name"`
	Capabilities map[string]any `json:"capabilities"`
}

type StepParams struct {
	Input string `json:"input"`
}

// StepResult is what an agent returns from agent/step. Every field is optional on the wire.
type StepResult struct {
	Status         string     `json:"status"`
	PublicOutput   *string    `json:"public_output,omitempty"`
	PrivateThought *string    `json:"private_thought,omitempty"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	Logs           *string    `json:"logs,omitempty"`
}

type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

var stepResultSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"status":          {Types: []string{"string", "null"}},
		"public_output":   {Types: []string{"string", "null"}},
		"private_thought": {Types: []string{"string", "null"}},
		"logs":            {Types: []string{"string", "null"}},
		"tool_calls": {
			Types: []string{"array", "null"},
			Items: &jsonschema.Schema{
				Type:     "object",
				Required: []string{"name"},
				Properties: map[string]*jsonschema.Schema{
					"name":      {Type: "string"},
					"arguments": {Types: []string{"object", "null"}},
				},
			},
		},
	},
}

var (
	stepSchemaMu       sync.Mutex
	resolvedStepSchema *jsonschema.Resolved
)

// stepSchema returns the resolved step result schema, resolving it on first use.
func stepSchema() (*jsonschema.Resolved, error) {
	stepSchemaMu.Lock()
	defer stepSchemaMu.Unlock()

	if resolvedStepSchema != nil {
		return resolvedStepSchema, nil
	}

	resolved, err := stepResultSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve step result schema: %w", err)
	}

	resolvedStepSchema = resolved
	return resolved, nil
}

// DecodeStepResult converts the raw result of agent/step into a StepResult. An empty or null
// result is an empty answer; a missing status means done.
func DecodeStepResult(raw json.RawMessage) (*StepResult, error) {
	res := &StepResult{Status: StatusDone}
	if len(raw) == 0 || string(raw) == "null" {
		return res, nil
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("step result is not valid JSON: %w", err)
	}

	schema, err := stepSchema()
	if err != nil {
		return nil, err
	}

	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("step result has an unexpected shape: %w", err)
	}

	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("failed to decode step result: %w", err)
	}

	if res.Status == "" {
		res.Status = StatusDone
	}

	return res, nil
}
