package protocol

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"golang.org/x/exp/jsonrpc2"
)

// MaxLineSize bounds a single protocol line. Step results can carry long answers.
const MaxLineSize = 16 * 1024 * 1024

// NewlineFramer frames JSON-RPC messages one per line, as agents and the harness exchange them.
func NewlineFramer() jsonrpc2.Framer {
	return &newlineFramer{}
}

type newlineFramer struct{}

func (f *newlineFramer) Reader(r io.Reader) jsonrpc2.Reader {
	return &newlineReader{scanner: NewLineScanner(r)}
}

func (f *newlineFramer) Writer(w io.Writer) jsonrpc2.Writer {
	return &newlineWriter{w: w}
}

// NewLineScanner returns a scanner sized for protocol lines.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return scanner
}

type scanResult struct {
	data []byte
	err  error
}

// newlineReader keeps one reader goroutine alive for the lifetime of the stream so a
// cancelled Read never leaves a blocked scan behind.
type newlineReader struct {
	scanner  *bufio.Scanner
	resultCh chan scanResult
	once     sync.Once
}

func (r *newlineReader) startReader() {
	r.once.Do(func() {
		r.resultCh = make(chan scanResult)
		go func() {
			defer close(r.resultCh)
			for r.scanner.Scan() {
				line := bytes.TrimSpace(r.scanner.Bytes())
				if len(line) == 0 {
					continue
				}
				data := make([]byte, len(line))
				copy(data, line)
				r.resultCh <- scanResult{data: data}
			}
			r.resultCh <- scanResult{err: r.scanner.Err()}
		}()
	})
}

func (r *newlineReader) Read(ctx context.Context) (jsonrpc2.Message, int64, error) {
	r.startReader()

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case result, ok := <-r.resultCh:
		if !ok {
			return nil, 0, io.EOF
		}
		if result.err != nil {
			return nil, 0, result.err
		}
		if result.data == nil {
			return nil, 0, io.EOF
		}

		msg, err := jsonrpc2.DecodeMessage(result.data)
		if err != nil {
			return nil, 0, err
		}
		return msg, int64(len(result.data)), nil
	}
}

type newlineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *newlineWriter) Write(ctx context.Context, msg jsonrpc2.Message) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	data, err := EncodeLine(msg)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.w.Write(data)
	return int64(n), err
}

// EncodeLine encodes msg as a single newline-terminated line.
func EncodeLine(msg jsonrpc2.Message) ([]byte, error) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}
