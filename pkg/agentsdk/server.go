package agentsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/exp/jsonrpc2"

	"github.com/evalcontext/ecp/pkg/protocol"
)

// Server serves one Agent over a JSON-RPC stream. Requests are handled one at a time.
type Server struct {
	agent Agent
	info  Info

	mu sync.Mutex
}

type ServerOption func(*Server)

// WithName overrides the name reported on initialize.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.info.Name = name
	}
}

// WithCapabilities sets the capabilities reported on initialize.
func WithCapabilities(capabilities map[string]any) ServerOption {
	return func(s *Server) {
		s.info.Capabilities = capabilities
	}
}

func NewServer(agent Agent, opts ...ServerOption) *Server {
	s := &Server{agent: agent}
	if d, ok := agent.(Describer); ok {
		s.info = d.Info()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.info.Name == "" {
		s.info.Name = DefaultAgentName
	}
	if s.info.Capabilities == nil {
		s.info.Capabilities = map[string]any{}
	}
	return s
}

// ServeStdio serves on the process's stdin and stdout until stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve answers requests read from r on w until r reaches EOF or ctx is cancelled.
// Both are treated as a clean shutdown.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	conn, err := jsonrpc2.Dial(ctx, &streamDialer{r: r, w: w}, &jsonrpc2.ConnectionOptions{
		Handler: s,
		Framer:  protocol.NewlineFramer(),
	})
	if err != nil {
		return fmt.Errorf("failed to start agent server: %w", err)
	}

	err = conn.Wait()
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// Handle dispatches a single JSON-RPC request.
func (s *Server) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case protocol.MethodInitialize:
		return &protocol.InitializeResult{
			Name:         s.info.Name,
			Capabilities: s.info.Capabilities,
		}, nil
	case protocol.MethodStep:
		return s.handleStep(ctx, req)
	case protocol.MethodReset:
		return s.handleReset(ctx)
	default:
		return nil, protocol.MethodNotFoundError(req.Method)
	}
}

func (s *Server) handleStep(ctx context.Context, req *jsonrpc2.Request) (*protocol.StepResult, error) {
	var params protocol.StepParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.InvalidParamsError(fmt.Sprintf("invalid params: %v", err))
		}
	}

	res, err := s.agent.Step(ctx, params.Input)
	if err != nil {
		return nil, agentError(err)
	}
	if res == nil {
		res = &Result{}
	}

	return res.wire(), nil
}

func (s *Server) handleReset(ctx context.Context) (bool, error) {
	r, ok := s.agent.(Resetter)
	if !ok {
		return true, nil
	}

	if err := r.Reset(ctx); err != nil {
		return false, agentError(err)
	}

	return true, nil
}

func agentError(err error) error {
	var rpcErr *protocol.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	return protocol.AgentError(errorTypeName(err) + ": " + err.Error())
}

// errorTypeName names the concrete error type, collapsing the anonymous stdlib ones.
func errorTypeName(err error) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	switch name {
	case "errors.errorString", "fmt.wrapError", "fmt.wrapErrors", "errors.joinError":
		return "Error"
	default:
		return name
	}
}

type streamDialer struct {
	r io.Reader
	w io.Writer
}

var _ jsonrpc2.Dialer = &streamDialer{}

func (d *streamDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	return &streamReadWriteCloser{r: d.r, w: d.w}, nil
}

type streamReadWriteCloser struct {
	r io.Reader
	w io.Writer
}

var _ io.ReadWriteCloser = &streamReadWriteCloser{}

func (rwc *streamReadWriteCloser) Read(data []byte) (int, error) {
	return rwc.r.Read(data)
}

func (rwc *streamReadWriteCloser) Write(data []byte) (int, error) {
	return rwc.w.Write(data)
}

func (rwc *streamReadWriteCloser) Close() error {
	var err error
	if c, ok := rwc.r.(io.Closer); ok {
		err = c.Close()
	}
	if c, ok := rwc.w.(io.Closer); ok && c != os.Stdout {
		err = errors.Join(err, c.Close())
	}
	return err
}
