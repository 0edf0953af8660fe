package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/exp/jsonrpc2"
	"golang.org/x/sync/errgroup"

	"github.com/evalcontext/ecp/pkg/protocol"
	"github.com/evalcontext/ecp/pkg/util"
)

const (
	DefaultCallTimeout     = 30 * time.Second
	DefaultStopGracePeriod = 2 * time.Second

	lineQueueSize = 64
	stderrSettle  = 200 * time.Millisecond
)

type Options struct {
	// Command is a shell command line, run with $SHELL -c.
	Command string
	// Env is appended to the harness environment.
	Env []string
	// StopGracePeriod bounds how long Stop waits after SIGTERM before killing the agent.
	StopGracePeriod time.Duration
	LogHandler      func(level, message string, data map[string]any)
}

// Process is one agent subprocess and the line-delimited JSON-RPC channel to it.
// Calls are strictly sequential.
type Process struct {
	opts Options
	log  util.LogHandler

	callMu sync.Mutex
	nextID int64
	// lastLine is the most recent non-JSON stdout line; guarded by callMu.
	lastLine string

	stateMu sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderrR io.ReadCloser
	stopped bool

	lines      chan lineResult
	done       chan struct{}
	exited     chan struct{}
	stderrDone chan struct{}
	stderr     *tailBuffer

	stopOnce sync.Once
	stopErr  error
}

type lineResult struct {
	data []byte
	err  error
}

func New(opts Options) *Process {
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = DefaultStopGracePeriod
	}

	return &Process{
		opts:       opts,
		log:        util.LogHandler(opts.LogHandler),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
		stderrDone: make(chan struct{}),
		stderr:     newTailBuffer(maxStderrBytes),
	}
}

// Start launches the agent and begins pumping its stdout and stderr.
func (p *Process) Start(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.stopped {
		return errors.New("agent process was already stopped")
	}
	if p.cmd != nil {
		return errors.New("agent process already started")
	}

	if err := lookupCommand(p.opts.Command); err != nil {
		return &LaunchError{Command: p.opts.Command, Err: err}
	}

	cmd := util.ShellCommand(ctx, p.opts.Command)
	cmd.Env = append(os.Environ(), p.opts.Env...)
	// The agent may be a grandchild of the shell; signals go to the whole group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process, syscall.SIGKILL)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchError{Command: p.opts.Command, Err: fmt.Errorf("failed to get stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &LaunchError{Command: p.opts.Command, Err: fmt.Errorf("failed to get stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &LaunchError{Command: p.opts.Command, Err: fmt.Errorf("failed to get stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &LaunchError{Command: p.opts.Command, Err: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.stderrR = stderr
	p.lines = make(chan lineResult, lineQueueSize)

	var pumps errgroup.Group
	pumps.Go(func() error {
		return p.readLines(stdout)
	})
	pumps.Go(func() error {
		defer close(p.stderrDone)
		_, err := io.Copy(p.stderr, stderr)
		return err
	})

	go func() {
		if err := pumps.Wait(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.log.Debug("agent output pump stopped", map[string]any{"error": err.Error()})
		}
		// Wait must not run before the pipes are drained.
		err := cmd.Wait()
		p.log.Debug("agent process exited", map[string]any{"pid": cmd.Process.Pid, "error": errString(err)})
		close(p.exited)
	}()

	p.log.Debug("agent process started", map[string]any{"pid": cmd.Process.Pid, "command": p.opts.Command})

	return nil
}

// readLines is the single persistent reader of the agent's stdout.
func (p *Process) readLines(stdout io.Reader) error {
	defer close(p.lines)

	scanner := protocol.NewLineScanner(stdout)
	for scanner.Scan() {
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())

		select {
		case p.lines <- lineResult{data: data}:
		case <-p.done:
			return nil
		}
	}

	err := scanner.Err()
	if err != nil {
		select {
		case p.lines <- lineResult{err: err}:
		case <-p.done:
		}
	}

	return err
}

// Call sends one request and waits for its response. Every outcome is either the raw result
// or one of the typed errors in this package.
func (p *Process) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	stdin, ok := p.running()
	if !ok {
		return nil, ErrNotStarted
	}

	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if params == nil {
		params = map[string]any{}
	}

	p.nextID++
	id := jsonrpc2.Int64ID(p.nextID)

	req, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}

	data, err := protocol.EncodeLine(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	if _, err := stdin.Write(data); err != nil {
		p.waitStderr()
		return nil, &CrashError{Method: method, Stderr: p.Stderr(), Err: fmt.Errorf("failed to write request: %w", err)}
	}

	return p.await(ctx, method, id, timeout)
}

func (p *Process) await(ctx context.Context, method string, id jsonrpc2.ID, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, p.timeoutError(method, timeout)
			}
			return nil, fmt.Errorf("%s call cancelled: %w", method, ctx.Err())

		case <-timer.C:
			return nil, p.timeoutError(method, timeout)

		case line, ok := <-p.lines:
			if !ok {
				p.waitStderr()
				return nil, &CrashError{Method: method, Stderr: p.Stderr()}
			}
			if line.err != nil {
				p.waitStderr()
				return nil, &CrashError{Method: method, Stderr: p.Stderr(), Err: line.err}
			}

			result, err := p.handleLine(method, id, line.data)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
		}
	}
}

// handleLine returns the result when line answers the in-flight request, nil to keep
// waiting, or an error when the line breaks the protocol.
func (p *Process) handleLine(method string, id jsonrpc2.ID, data []byte) (json.RawMessage, error) {
	line := bytes.TrimSpace(data)
	if len(line) == 0 {
		return nil, nil
	}

	if line[0] != '{' || !json.Valid(line) {
		p.lastLine = string(line)
		p.log.Warn("discarding non-JSON output from agent", map[string]any{"method": method, "line": string(line)})
		return nil, nil
	}

	msg, err := jsonrpc2.DecodeMessage(line)
	if err != nil {
		return nil, &ProtocolError{Method: method, Reason: err.Error(), Line: string(line)}
	}

	switch m := msg.(type) {
	case *jsonrpc2.Request:
		p.log.Debug("ignoring agent-initiated message", map[string]any{"method": m.Method})
		return nil, nil

	case *jsonrpc2.Response:
		if m.ID != id {
			p.log.Warn("discarding response with unexpected id", map[string]any{"method": method, "expected": id.Raw(), "got": m.ID.Raw()})
			return nil, nil
		}

		if m.Error != nil {
			if rpcErr := protocol.DecodeError(line); rpcErr != nil {
				return nil, &RemoteError{Method: method, Code: rpcErr.Code, Message: rpcErr.Message}
			}
			return nil, &RemoteError{Method: method, Message: m.Error.Error()}
		}

		if len(m.Result) == 0 {
			return nil, &ProtocolError{Method: method, Reason: "response carries neither result nor error", Line: string(line)}
		}

		return m.Result, nil

	default:
		return nil, &ProtocolError{Method: method, Reason: fmt.Sprintf("unexpected message type %T", msg), Line: string(line)}
	}
}

func (p *Process) timeoutError(method string, timeout time.Duration) error {
	return &TimeoutError{Method: method, Timeout: timeout, LastLine: p.lastLine, Stderr: p.Stderr()}
}

// Stop terminates the agent. It is safe to call more than once, before Start, or after a
// failed Start; only the first call does anything.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})

	return p.stopErr
}

func (p *Process) stop() error {
	p.stateMu.Lock()
	p.stopped = true
	cmd := p.cmd
	p.stateMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	close(p.done)
	_ = p.stdin.Close()

	if err := signalGroup(cmd.Process, syscall.SIGTERM); err != nil {
		_ = signalGroup(cmd.Process, syscall.SIGKILL)
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(p.opts.StopGracePeriod):
	}

	p.log.Warn("agent did not exit after SIGTERM, killing it", map[string]any{"pid": cmd.Process.Pid, "grace": p.opts.StopGracePeriod.String()})

	// Unblock the pumps in case a grandchild still holds the pipes open.
	_ = p.stdout.Close()
	_ = p.stderrR.Close()

	if err := signalGroup(cmd.Process, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill agent process: %w", err)
	}

	return nil
}

// signalGroup sends sig to the process group led by proc. A group that is already gone is
// not an error.
func signalGroup(proc *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-proc.Pid, sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}

	// Fall back to the leader alone, e.g. when the group could not be created.
	if err := proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Stderr returns the most recent stderr output of the agent.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

func (p *Process) running() (io.Writer, bool) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.cmd == nil || p.stopped {
		return nil, false
	}

	return p.stdin, true
}

// waitStderr gives the stderr pump a moment to drain after stdout closed, so crash reports
// include the agent's last words.
func (p *Process) waitStderr() {
	select {
	case <-p.stderrDone:
	case <-time.After(stderrSettle):
	}
}

var shellBuiltins = map[string]bool{
	".": true, "cd": true, "exec": true, "export": true, "source": true,
	"set": true, "ulimit": true, "umask": true, "time": true, "eval": true,
}

// lookupCommand catches targets whose executable does not exist, which the shell would
// otherwise report as an immediate exit. Anything with shell syntax in the first word is
// left to the shell.
func lookupCommand(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return errors.New("empty command")
	}

	name := fields[0]
	if shellBuiltins[name] || strings.ContainsAny(name, "$`'\"=(){};&|<>*?~\\") {
		return nil
	}

	if strings.ContainsRune(name, '/') {
		info, err := os.Stat(name)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("'%s' is a directory", name)
		}
		return nil
	}

	_, err := exec.LookPath(name)
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
