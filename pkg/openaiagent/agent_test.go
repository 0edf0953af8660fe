package openaiagent

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalcontext/ecp/pkg/openaitest"
	"github.com/evalcontext/ecp/pkg/protocol"
)

func newTestAgent(t *testing.T, server *openaitest.Server, tools ...Tool) *Agent {
	t.Helper()
	a, err := New(Config{
		BaseURL:      server.BaseURL(),
		APIKey:       "sk-test",
		Model:        "gpt-test",
		SystemPrompt: "You are terse.",
		MaxTurns:     3,
	}, tools...)
	require.NoError(t, err)
	return a
}

func TestStep(t *testing.T) {
	failing := Tool{
		Name: "lookup",
		Call: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("backend down")
		},
	}

	tt := map[string]struct {
		responses    []*openaitest.Response
		wantOutput   string
		wantThought  string
		wantCalls    []protocol.ToolCall
		wantToolMsgs []string
		errContains  string
	}{
		"plain answer": {
			responses:  []*openaitest.Response{openaitest.Reply("Paris")},
			wantOutput: "Paris",
		},
		"tool call then answer": {
			responses: []*openaitest.Response{
				openaitest.CallTools("Let me compute that.", openaitest.FunctionCall{
					Name:      "calculator",
					Arguments: `{"expression":"(6+1)*6"}`,
				}),
				openaitest.Reply("42"),
			},
			wantOutput:   "42",
			wantThought:  "Let me compute that.",
			wantCalls:    []protocol.ToolCall{{Name: "calculator", Arguments: map[string]any{"expression": "(6+1)*6"}}},
			wantToolMsgs: []string{"42"},
		},
		"unknown tool is reported back to the model": {
			responses: []*openaitest.Response{
				openaitest.CallTools("", openaitest.FunctionCall{Name: "teleport", Arguments: `{}`}),
				openaitest.Reply("I cannot do that."),
			},
			wantOutput:   "I cannot do that.",
			wantCalls:    []protocol.ToolCall{{Name: "teleport", Arguments: map[string]any{}}},
			wantToolMsgs: []string{"Error: tool teleport not found"},
		},
		"tool error is reported back to the model": {
			responses: []*openaitest.Response{
				openaitest.CallTools("", openaitest.FunctionCall{Name: "lookup", Arguments: `{"id":7}`}),
				openaitest.Reply("Lookup failed."),
			},
			wantOutput:   "Lookup failed.",
			wantCalls:    []protocol.ToolCall{{Name: "lookup", Arguments: map[string]any{"id": float64(7)}}},
			wantToolMsgs: []string{"Error calling tool: backend down"},
		},
		"unnamed call is still answered": {
			responses: []*openaitest.Response{
				openaitest.CallTools("",
					openaitest.FunctionCall{Name: "", Arguments: `{}`},
					openaitest.FunctionCall{Name: "calculator", Arguments: `{"expression":"2*3"}`},
				),
				openaitest.Reply("6"),
			},
			wantOutput:   "6",
			wantCalls:    []protocol.ToolCall{{Name: "calculator", Arguments: map[string]any{"expression": "2*3"}}},
			wantToolMsgs: []string{"Error: tool call has no name", "6"},
		},
		"malformed arguments": {
			responses: []*openaitest.Response{
				openaitest.CallTools("", openaitest.FunctionCall{Name: "calculator", Arguments: `{oops`}),
				openaitest.Reply("Sorry."),
			},
			wantOutput: "Sorry.",
			wantCalls:  []protocol.ToolCall{{Name: "calculator"}},
		},
		"too many turns": {
			responses: []*openaitest.Response{
				openaitest.CallTools("", openaitest.FunctionCall{Name: "calculator", Arguments: `{"expression":"1"}`}),
			},
			errContains: "no final answer after 3 turns",
		},
		"api error": {
			responses:   []*openaitest.Response{openaitest.JudgeError(http.StatusBadRequest, "bad model")},
			errContains: "failed to create chat completion",
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			server := openaitest.NewServer(tc.responses...)
			defer server.Close()

			a := newTestAgent(t, server, Calculator(), failing)
			result, err := a.Step(context.Background(), "What is (6+1)*6?")
			if tc.errContains != "" {
				assert.ErrorContains(t, err, tc.errContains)
				return
			}
			require.NoError(t, err)

			require.NotNil(t, result.PublicOutput)
			assert.Equal(t, tc.wantOutput, *result.PublicOutput)
			assert.Equal(t, protocol.StatusDone, result.Status)
			if tc.wantThought == "" {
				assert.Nil(t, result.PrivateThought)
			} else {
				require.NotNil(t, result.PrivateThought)
				assert.Equal(t, tc.wantThought, *result.PrivateThought)
			}
			assert.Equal(t, tc.wantCalls, result.ToolCalls)

			if tc.wantToolMsgs != nil {
				requests := server.Requests()
				last := requests[len(requests)-1]
				var got []string
				for _, m := range last.Messages {
					if m.Role == "tool" {
						got = append(got, m.Content)
					}
				}
				assert.Equal(t, tc.wantToolMsgs, got)
			}
		})
	}
}

func TestStepKeepsHistory(t *testing.T) {
	server := openaitest.NewServer(openaitest.Reply("Hello Ada."), openaitest.Reply("Your name is Ada."))
	defer server.Close()

	a := newTestAgent(t, server)
	ctx := context.Background()

	_, err := a.Step(ctx, "My name is Ada.")
	require.NoError(t, err)
	_, err = a.Step(ctx, "What is my name?")
	require.NoError(t, err)

	requests := server.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "gpt-test", requests[1].Model)
	assert.Empty(t, requests[1].Tools)

	roles := make([]string, 0, len(requests[1].Messages))
	for _, m := range requests[1].Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)

	require.NoError(t, a.Reset(ctx))
	_, err = a.Step(ctx, "Who am I?")
	require.NoError(t, err)

	requests = server.Requests()
	assert.Len(t, requests[2].Messages, 2, "reset drops the earlier turns")
}

func TestStepFailureLeavesHistoryUntouched(t *testing.T) {
	server := openaitest.NewServer(
		openaitest.JudgeError(http.StatusBadRequest, "nope"),
		openaitest.Reply("ok"),
	)
	defer server.Close()

	a := newTestAgent(t, server)
	_, err := a.Step(context.Background(), "first")
	require.Error(t, err)

	_, err = a.Step(context.Background(), "second")
	require.NoError(t, err)

	requests := server.Requests()
	assert.Len(t, requests[1].Messages, 2)
}

func TestToolsAreAdvertised(t *testing.T) {
	server := openaitest.NewServer(openaitest.Reply("done"))
	defer server.Close()

	a := newTestAgent(t, server, Calculator())
	_, err := a.Step(context.Background(), "hi")
	require.NoError(t, err)

	tools := server.Requests()[0].Tools
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "calculator", tools[0].Function.Name)
	assert.Contains(t, tools[0].Function.Parameters, "properties")
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "an API key must be provided")

	_, err = New(Config{APIKey: "sk"}, Calculator(), Calculator())
	assert.ErrorContains(t, err, "a tool named 'calculator' already exists")

	a, err := New(Config{APIKey: "sk", Model: "m"}, Calculator())
	require.NoError(t, err)
	info := a.Info()
	assert.Equal(t, "openai-agent-m", info.Name)
	assert.Equal(t, []string{"calculator"}, info.Capabilities["tools"])
}

func TestEvaluate(t *testing.T) {
	tt := map[string]struct {
		expr    string
		want    float64
		wantErr bool
	}{
		"precedence":     {expr: "2+3*4", want: 14},
		"parentheses":    {expr: "(6+1)*6", want: 42},
		"unary minus":    {expr: "-3 + 5", want: 2},
		"decimals":       {expr: "1.5 * 2", want: 3},
		"left to right":  {expr: "10 - 4 - 3", want: 3},
		"division":       {expr: "9 / 4", want: 2.25},
		"divide by zero": {expr: "1/0", wantErr: true},
		"unbalanced":     {expr: "(1+2", wantErr: true},
		"trailing junk":  {expr: "1+2)", wantErr: true},
		"empty":          {expr: "", wantErr: true},
		"letters":        {expr: "two+two", wantErr: true},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			got, err := Evaluate(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestCalculatorTool(t *testing.T) {
	calc := Calculator()

	out, err := calc.Call(context.Background(), map[string]any{"expression": "7*6"})
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	out, err = calc.Call(context.Background(), map[string]any{"expression": "7*"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid expression.", out)
}
