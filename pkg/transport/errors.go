package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotStarted is returned by Call before Start succeeds or after Stop.
	ErrNotStarted = errors.New("agent process is not running")
)

// LaunchError means the agent command could not be started at all.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch agent '%s': %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TimeoutError means no matching response arrived before the call deadline.
type TimeoutError struct {
	Method   string
	Timeout  time.Duration
	LastLine string
	Stderr   string
}

func (e *TimeoutError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "agent did not answer %s within %s", e.Method, e.Timeout)
	if e.LastLine != "" {
		fmt.Fprintf(&sb, "; last non-JSON output: %q", e.LastLine)
	}
	writeStderr(&sb, e.Stderr)
	return sb.String()
}

// CrashError means the agent's output stream ended while a call was waiting.
type CrashError struct {
	Method string
	Stderr string
	Err    error
}

func (e *CrashError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "agent exited while handling %s", e.Method)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	writeStderr(&sb, e.Stderr)
	return sb.String()
}

func (e *CrashError) Unwrap() error { return e.Err }

// ProtocolError means the agent wrote JSON that is not a usable response.
type ProtocolError struct {
	Method string
	Reason string
	Line   string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol violation during %s: %s", e.Method, e.Reason)
	if e.Line != "" {
		msg += fmt.Sprintf(" (line: %q)", truncate(e.Line, 200))
	}
	return msg
}

// RemoteError is a JSON-RPC error response sent by the agent.
type RemoteError struct {
	Method  string
	Code    int64
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("agent returned error for %s (code %d): %s", e.Method, e.Code, e.Message)
}

// IsCallFailure reports whether err is one of the errors Call produces for a failed exchange.
func IsCallFailure(err error) bool {
	var (
		timeoutErr  *TimeoutError
		crashErr    *CrashError
		protocolErr *ProtocolError
		remoteErr   *RemoteError
	)

	return errors.As(err, &timeoutErr) ||
		errors.As(err, &crashErr) ||
		errors.As(err, &protocolErr) ||
		errors.As(err, &remoteErr)
}

func writeStderr(sb *strings.Builder, stderr string) {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return
	}
	fmt.Fprintf(sb, "\nstderr:\n%s", stderr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
