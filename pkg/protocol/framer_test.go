package protocol

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/jsonrpc2"
)

func TestNewlineReader_Read(t *testing.T) {
	tt := map[string]struct {
		input       string
		expectedLen int64
		expectErr   bool
		expectEOF   bool
	}{
		"step request": {
			input:       `{"jsonrpc":"2.0","id":1,"method":"agent/step"}` + "\n",
			expectedLen: 46,
		},
		"blank lines are skipped": {
			input:       "\n   \n" + `{"jsonrpc":"2.0","method":"agent/reset"}` + "\n",
			expectedLen: 40,
		},
		"empty input returns EOF": {
			input:     "",
			expectEOF: true,
		},
		"invalid JSON returns error": {
			input:     `{invalid json}` + "\n",
			expectErr: true,
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			reader := NewlineFramer().Reader(strings.NewReader(tc.input))

			msg, n, err := reader.Read(context.Background())
			if tc.expectEOF {
				assert.ErrorIs(t, err, io.EOF)
				return
			}
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedLen, n)
			assert.NotNil(t, msg)
		})
	}
}

func TestNewlineReader_Read_ContextCancellation(t *testing.T) {
	reader := NewlineFramer().Reader(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"agent/step"}` + "\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := reader.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewlineFramer_RoundTrip(t *testing.T) {
	tt := map[string]struct {
		method string
		id     int64
		params any
	}{
		"initialize": {
			method: MethodInitialize,
			id:     1,
			params: InitializeParams{Config: map[string]any{}},
		},
		"step": {
			method: MethodStep,
			id:     42,
			params: StepParams{Input: "What is 6*7?"},
		},
	}

	for tn, tc := range tt {
		t.Run(tn, func(t *testing.T) {
			var buf bytes.Buffer
			framer := NewlineFramer()

			req, err := jsonrpc2.NewCall(jsonrpc2.Int64ID(tc.id), tc.method, tc.params)
			require.NoError(t, err)

			_, err = framer.Writer(&buf).Write(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
			assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))

			readMsg, _, err := framer.Reader(&buf).Read(context.Background())
			require.NoError(t, err)

			got, ok := readMsg.(*jsonrpc2.Request)
			require.True(t, ok, "expected request message")
			assert.Equal(t, tc.method, got.Method)
			assert.Equal(t, jsonrpc2.Int64ID(tc.id), got.ID)
		})
	}
}

func TestNewlineWriter_Write_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := jsonrpc2.NewNotification(MethodReset, nil)
	require.NoError(t, err)

	_, err = NewlineFramer().Writer(&buf).Write(ctx, req)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}
