// Package openaitest provides a fake OpenAI chat completions endpoint for tests that exercise
// the real openai-go client: the llm judge and the OpenAI-backed agent.
package openaitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// ChatCompletionRequest is the subset of the request body the clients send.
type ChatCompletionRequest struct {
	Model      string          `json:"model"`
	Messages   []Message       `json:"messages"`
	Tools      []Tool          `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded string
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type APIError struct {
	Error APIErrorDetail `json:"error"`
}

type APIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Response is what the server sends back for one request.
type Response struct {
	StatusCode int
	Body       *ChatCompletionResponse
	Error      *APIError
}

// JudgeResult is the payload of a submit_judgement call.
type JudgeResult struct {
	Passed          bool     `json:"passed"`
	Reason          string   `json:"reason"`
	Score           *float64 `json:"score,omitempty"`
	FailureCategory string   `json:"failureCategory"`
}

// Server is a fake chat completions endpoint. Responses are served in order; the last one repeats.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	responses []*Response
	requests  []ChatCompletionRequest
}

func NewServer(responses ...*Response) *Server {
	s := &Server{responses: responses}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the value to put in OPENAI_BASE_URL.
func (s *Server) BaseURL() string {
	return s.URL + "/v1/"
}

// Requests returns every request received so far.
func (s *Server) Requests() []ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ChatCompletionRequest(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	var req ChatCompletionRequest
	_ = json.Unmarshal(body, &req)

	s.mu.Lock()
	s.requests = append(s.requests, req)
	resp := JudgeNoToolCall("no response configured")
	if len(s.responses) > 0 {
		resp = s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if resp.Error != nil {
		w.WriteHeader(resp.StatusCode)
		_ = json.NewEncoder(w).Encode(resp.Error)
		return
	}

	_ = json.NewEncoder(w).Encode(resp.Body)
}

func completion(message Message, finishReason string) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Body: &ChatCompletionResponse{
			ID:      "chatcmpl-mock",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   "gpt-4o-mini",
			Choices: []Choice{{
				Index:        0,
				Message:      message,
				FinishReason: finishReason,
			}},
		},
	}
}

// Reply answers with a plain assistant message.
func Reply(content string) *Response {
	return completion(Message{Role: "assistant", Content: content}, "stop")
}

// CallTools answers with an assistant message that requests the given tool calls. Arguments
// are JSON-encoded; call ids are generated from the position.
func CallTools(content string, calls ...FunctionCall) *Response {
	msg := Message{Role: "assistant", Content: content}
	for i, call := range calls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:       fmt.Sprintf("call_mock_%03d", i+1),
			Type:     "function",
			Function: call,
		})
	}
	return completion(msg, "tool_calls")
}

// BuildJudgeResponse answers with a submit_judgement tool call carrying result.
func BuildJudgeResponse(result JudgeResult) *Response {
	args, _ := json.Marshal(result)
	return completion(Message{
		Role: "assistant",
		ToolCalls: []ToolCall{{
			ID:   "call_mock_judge_001",
			Type: "function",
			Function: FunctionCall{
				Name:      "submit_judgement",
				Arguments: string(args),
			},
		}},
	}, "tool_calls")
}

func JudgePass(reason string) *Response {
	return BuildJudgeResponse(JudgeResult{Passed: true, Reason: reason, FailureCategory: "n/a"})
}

func JudgeFail(category, reason string) *Response {
	return BuildJudgeResponse(JudgeResult{Passed: false, Reason: reason, FailureCategory: category})
}

func JudgeScored(passed bool, score float64, reason string) *Response {
	return BuildJudgeResponse(JudgeResult{Passed: passed, Reason: reason, Score: &score})
}

// JudgeNoToolCall answers with plain text instead of a verdict.
func JudgeNoToolCall(message string) *Response {
	return Reply(message)
}

// JudgeInvalidArguments calls submit_judgement with malformed JSON.
func JudgeInvalidArguments() *Response {
	return completion(Message{
		Role: "assistant",
		ToolCalls: []ToolCall{{
			ID:       "call_mock_judge_invalid",
			Type:     "function",
			Function: FunctionCall{Name: "submit_judgement", Arguments: "{invalid json"},
		}},
	}, "tool_calls")
}

// JudgeError answers with an API error. Use a 4xx status to avoid client retries.
func JudgeError(statusCode int, message string) *Response {
	return &Response{
		StatusCode: statusCode,
		Error: &APIError{
			Error: APIErrorDetail{
				Message: message,
				Type:    "invalid_request_error",
				Code:    "bad_request",
			},
		},
	}
}
