package openaiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer is a connection to an MCP server whose tools the agent can use.
type MCPServer struct {
	session *mcpsdk.ClientSession
}

// ConnectMCP connects to an MCP server over streamable HTTP.
func ConnectMCP(ctx context.Context, serverURL string) (*MCPServer, error) {
	return ConnectMCPTransport(ctx, &mcpsdk.StreamableClientTransport{Endpoint: serverURL})
}

// ConnectMCPTransport connects to an MCP server over any transport.
func ConnectMCPTransport(ctx context.Context, transport mcpsdk.Transport) (*MCPServer, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "ecp-openai-agent",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}

	return &MCPServer{session: session}, nil
}

// Tools lists the server's tools as agent tools that call back into the server.
func (s *MCPServer) Tools(ctx context.Context) ([]Tool, error) {
	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		if t == nil {
			continue
		}

		tool := Tool{
			Name:        t.Name,
			Description: t.Description,
			Call:        s.caller(t.Name),
		}
		if params, ok := t.InputSchema.(map[string]any); ok {
			tool.Parameters = params
		}
		tools = append(tools, tool)
	}

	return tools, nil
}

func (s *MCPServer) caller(name string) func(context.Context, map[string]any) (string, error) {
	return func(ctx context.Context, arguments map[string]any) (string, error) {
		result, err := s.session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      name,
			Arguments: arguments,
		})
		if err != nil {
			return "", fmt.Errorf("failed to call tool %s: %w", name, err)
		}

		text := contentText(result.Content)
		if result.IsError {
			return "Error: " + text, nil
		}
		return text, nil
	}
}

func (s *MCPServer) Close() error {
	return s.session.Close()
}

// contentText flattens tool output for the model: text as is, anything else as JSON.
func contentText(content []mcpsdk.Content) string {
	var sb strings.Builder
	for _, c := range content {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}

		if text, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
			continue
		}

		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		sb.Write(data)
	}
	return sb.String()
}
