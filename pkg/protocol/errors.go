package protocol

import (
	"encoding/json"

	"golang.org/x/exp/jsonrpc2"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603
)

// CodeAgentError is returned when the agent's own handler fails.
const CodeAgentError int64 = -32000

// Error is a coded JSON-RPC error. Returned from a jsonrpc2 handler it is sent with its code,
// because it unwraps to the library's wire error.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return jsonrpc2.NewError(e.Code, e.Message)
}

func MethodNotFoundError(method string) error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

func InvalidParamsError(msg string) error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

func AgentError(msg string) error {
	return &Error{Code: CodeAgentError, Message: msg}
}

// DecodeError extracts the error object of an encoded response. It returns nil when the
// line carries no error.
func DecodeError(line []byte) *Error {
	var resp struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil
	}
	return resp.Error
}
