package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahrav/finjudge/internal/domain"
)

// clientImplementation identifies finjudge to MCP judge servers.
var clientImplementation = &sdkmcp.Implementation{Name: "finjudge", Version: "dev"}

// MCPTransport calls judges exposed as MCP tools named after each judge.
// The tool result's first text content is the judge payload.
type MCPTransport struct {
	session *sdkmcp.ClientSession
}

// NewMCPTransport wraps an established client session.
func NewMCPTransport(session *sdkmcp.ClientSession) *MCPTransport {
	return &MCPTransport{session: session}
}

// DialMCP connects to a judge server. An http(s) endpoint uses the streamable
// HTTP transport; anything else is run as a command speaking MCP over stdio.
func DialMCP(ctx context.Context, endpoint string) (*MCPTransport, error) {
	var transport sdkmcp.Transport
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		transport = &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	} else {
		fields := strings.Fields(endpoint)
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: empty mcp endpoint", ErrTransport)
		}
		transport = &sdkmcp.CommandTransport{Command: exec.Command(fields[0], fields[1:]...)}
	}
	client := sdkmcp.NewClient(clientImplementation, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: connect mcp %s: %w", ErrTransport, endpoint, err)
	}
	return NewMCPTransport(session), nil
}

// Call implements Transport.
func (t *MCPTransport) Call(ctx context.Context, name domain.JudgeName, in domain.JudgeInput) ([]byte, error) {
	if in.Rubric == nil {
		in.Rubric = []domain.RubricItem{}
	}
	res, err := t.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      string(name),
		Arguments: in,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, name, err)
	}
	text := firstText(res)
	if res.IsError {
		return nil, fmt.Errorf("%w: %s: %s", ErrJudgeReported, name, text)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: %s returned no text content", ErrSchema, name)
	}
	return []byte(text), nil
}

// Ping implements Pinger.
func (t *MCPTransport) Ping(ctx context.Context) error {
	if err := t.session.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

// Close ends the session.
func (t *MCPTransport) Close() error { return t.session.Close() }

func firstText(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// NewMCPServer exposes backend as an MCP server with one tool per judge.
// Responses are validated before they are returned, so MCP clients only see
// schema-conforming payloads.
func NewMCPServer(backend Transport, version string) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "finjudge-judges", Version: version}, nil)
	descriptions := map[domain.JudgeName]string{
		domain.JudgeSemantic:      "Score whether the model answer means the same as the gold answer",
		domain.JudgeNumeric:       "Score whether the numbers in the model answer match the gold answer within tolerance",
		domain.JudgeContradiction: "Report whether the model answer logically contradicts the gold answer",
	}
	for _, name := range domain.Judges() {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        string(name),
			Description: descriptions[name],
		}, judgeTool(backend, name))
	}
	return server
}

func judgeTool(backend Transport, name domain.JudgeName) func(context.Context, *sdkmcp.CallToolRequest, domain.JudgeInput) (*sdkmcp.CallToolResult, Payload, error) {
	return func(ctx context.Context, _ *sdkmcp.CallToolRequest, in domain.JudgeInput) (*sdkmcp.CallToolResult, Payload, error) {
		raw, err := backend.Call(ctx, name, in)
		if err != nil {
			return nil, Payload{}, err
		}
		normalized, _, err := ValidatePayload(name, raw)
		if err != nil {
			return nil, Payload{}, err
		}
		var p Payload
		if err := json.Unmarshal(normalized, &p); err != nil {
			return nil, Payload{}, err
		}
		return nil, p, nil
	}
}
