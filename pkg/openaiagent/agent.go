// Package openaiagent is an ECP agent backed by an OpenAI-compatible chat completions API.
// It keeps the conversation across steps, runs the tools the model asks for, and reports
// every tool call in the step result so tool_usage graders can inspect it.
package openaiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"k8s.io/utils/ptr"

	"github.com/evalcontext/ecp/pkg/agentsdk"
	"github.com/evalcontext/ecp/pkg/protocol"
)

const DefaultMaxTurns = 10

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	// MaxTurns bounds the completions made for one step. Zero means DefaultMaxTurns.
	MaxTurns int
}

type Agent struct {
	client       openai.Client
	model        shared.ChatModel
	systemPrompt string
	maxTurns     int
	tools        []Tool
	history      []openai.ChatCompletionMessageParamUnion
}

var (
	_ agentsdk.Agent     = &Agent{}
	_ agentsdk.Resetter  = &Agent{}
	_ agentsdk.Describer = &Agent{}
)

// New creates an agent. The API key is required; an empty base URL uses the client default.
func New(cfg Config, tools ...Tool) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("an API key must be provided to create an openai agent")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := shared.ChatModel(cfg.Model)
	if cfg.Model == "" {
		model = openai.ChatModelGPT4oMini
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	a := &Agent{
		client:       openai.NewClient(opts...),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
		maxTurns:     maxTurns,
	}
	if err := a.AddTools(tools...); err != nil {
		return nil, err
	}

	return a, nil
}

// AddTools makes more tools available to the model. Tool names must be unique.
func (a *Agent) AddTools(tools ...Tool) error {
	for _, t := range tools {
		if _, ok := a.tool(t.Name); ok {
			return fmt.Errorf("a tool named '%s' already exists", t.Name)
		}
		a.tools = append(a.tools, t)
	}
	return nil
}

func (a *Agent) Info() agentsdk.Info {
	names := make([]string, 0, len(a.tools))
	for _, t := range a.tools {
		names = append(names, t.Name)
	}

	return agentsdk.Info{
		Name:         fmt.Sprintf("openai-agent-%s", a.model),
		Capabilities: map[string]any{"tools": names},
	}
}

// Reset forgets the conversation so far.
func (a *Agent) Reset(context.Context) error {
	a.history = nil
	return nil
}

// Step sends input as the next user message and runs the tool loop until the model answers
// without requesting tools. Text the model writes alongside tool requests becomes the
// private thought.
func (a *Agent) Step(ctx context.Context, input string) (*agentsdk.Result, error) {
	messages := append([]openai.ChatCompletionMessageParamUnion(nil), a.history...)
	messages = append(messages, openai.UserMessage(input))

	result := &agentsdk.Result{Status: protocol.StatusDone}
	var thoughts []string

	for turn := 0; turn < a.maxTurns; turn++ {
		params := openai.ChatCompletionNewParams{
			Model:    a.model,
			Messages: a.withSystemPrompt(messages),
		}
		if len(a.tools) > 0 {
			params.Tools = a.toolParams()
		}

		completion, err := a.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat completion: %w", err)
		}

		if len(completion.Choices) == 0 {
			return nil, errors.New("no completion choices returned")
		}

		message := completion.Choices[0].Message
		messages = append(messages, message.ToParam())

		if len(message.ToolCalls) == 0 {
			a.history = messages
			result.PublicOutput = ptr.To(message.Content)
			if len(thoughts) > 0 {
				result.PrivateThought = ptr.To(strings.Join(thoughts, "\n"))
			}
			return result, nil
		}

		if content := strings.TrimSpace(message.Content); content != "" {
			thoughts = append(thoughts, content)
		}

		for _, call := range message.ToolCalls {
			name := call.Function.Name
			if name == "" {
				// every call id needs an answer or the next request is rejected
				messages = append(messages, openai.ToolMessage("Error: tool call has no name", call.ID))
				continue
			}

			var args map[string]any
			output := ""
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				output = fmt.Sprintf("Error: invalid tool arguments: %v", err)
			} else {
				output = a.callTool(ctx, name, args)
			}

			result.ToolCalls = append(result.ToolCalls, protocol.ToolCall{Name: name, Arguments: args})
			messages = append(messages, openai.ToolMessage(output, call.ID))
		}
	}

	return nil, fmt.Errorf("no final answer after %d turns", a.maxTurns)
}

func (a *Agent) callTool(ctx context.Context, name string, args map[string]any) string {
	t, ok := a.tool(name)
	if !ok {
		return fmt.Sprintf("Error: tool %s not found", name)
	}

	output, err := t.Call(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error calling tool: %v", err)
	}
	return output
}

func (a *Agent) tool(name string) (Tool, bool) {
	for _, t := range a.tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func (a *Agent) withSystemPrompt(messages []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	if a.systemPrompt == "" {
		return messages
	}
	return append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(a.systemPrompt)}, messages...)
}

func (a *Agent) toolParams() []openai.ChatCompletionToolUnionParam {
	params := make([]openai.ChatCompletionToolUnionParam, 0, len(a.tools))
	for _, t := range a.tools {
		params = append(params, t.param())
	}
	return params
}
