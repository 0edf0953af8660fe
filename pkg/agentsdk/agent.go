package agentsdk

import (
	"context"

	"k8s.io/utils/ptr"

	"github.com/evalcontext/ecp/pkg/protocol"
)

const DefaultAgentName = "AnonymousAgent"

// Agent answers one conversational turn.
type Agent interface {
	Step(ctx context.Context, input string) (*Result, error)
}

// Resetter is implemented by agents that keep state between steps.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Describer is implemented by agents that report their own identity on initialize.
type Describer interface {
	Info() Info
}

type Info struct {
	Name         string
	Capabilities map[string]any
}

// StepFunc adapts a plain function to the Agent interface.
type StepFunc func(ctx context.Context, input string) (*Result, error)

func (f StepFunc) Step(ctx context.Context, input string) (*Result, error) {
	return f(ctx, input)
}

// Result is the answer to one step.
type Result protocol.StepResult

// Text returns a finished step with the given public answer.
func Text(output string) *Result {
	return &Result{Status: protocol.StatusDone, PublicOutput: ptr.To(output)}
}

// WithThought attaches reasoning that graders may inspect but that is not part of the answer.
func (r *Result) WithThought(thought string) *Result {
	r.PrivateThought = ptr.To(thought)
	return r
}

// WithToolCall records a tool invocation the agent made while producing the answer.
func (r *Result) WithToolCall(name string, arguments map[string]any) *Result {
	r.ToolCalls = append(r.ToolCalls, protocol.ToolCall{Name: name, Arguments: arguments})
	return r
}

func (r *Result) wire() *protocol.StepResult {
	res := (*protocol.StepResult)(r)
	if res.Status == "" {
		res.Status = protocol.StatusDone
	}
	return res
}
