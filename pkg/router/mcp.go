package router

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	regerrors "github.com/toolgateway/registry/pkg/errors"
	"github.com/toolgateway/registry/pkg/registry"
)

// mcpEndpointConfig is implementation_code's JSON shape for MCP_SERVER
// tools: {url, tool_name}.
type mcpEndpointConfig struct {
	URL      string `json:"url"`
	ToolName string `json:"tool_name"`
}

// mcpExecutor dispatches MCP_SERVER tools by forwarding tools/call to the
// upstream MCP server over streamable HTTP, grounded on the teacher's own
// MCP client usage (cmd/thv/app/mcp.go).
type mcpExecutor struct {
	clientInfo mcp.Implementation
}

// NewMCPExecutor constructs the MCP_SERVER executor.
func NewMCPExecutor() *mcpExecutor {
	return &mcpExecutor{clientInfo: mcp.Implementation{Name: "tool-registry", Version: "1.0.0"}}
}

func (m *mcpExecutor) Execute(ctx context.Context, tool *registry.Tool, args map[string]any) (map[string]any, error) {
	var cfg mcpEndpointConfig
	if err := json.Unmarshal([]byte(tool.ImplementationCode), &cfg); err != nil {
		return nil, regerrors.NewBackendError(fmt.Sprintf("tool %q has invalid MCP_SERVER config", tool.Name), err)
	}
	if cfg.ToolName == "" {
		cfg.ToolName = tool.Name
	}

	cli, err := mcpclient.NewStreamableHttpClient(cfg.URL)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("connecting to MCP server %q", cfg.URL), err)
	}
	defer cli.Close()

	if err := cli.Start(ctx); err != nil {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("starting MCP transport to %q", cfg.URL), err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = m.clientInfo
	if _, err := cli.Initialize(ctx, initReq); err != nil {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("initializing MCP session with %q", cfg.URL), err)
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = cfg.ToolName
	callReq.Params.Arguments = args

	result, err := cli.CallTool(ctx, callReq)
	if err != nil {
		return nil, regerrors.NewBackendUnavailableError(fmt.Sprintf("calling %q on %q", cfg.ToolName, cfg.URL), err)
	}
	if result.IsError {
		return nil, regerrors.NewBackendError(fmt.Sprintf("upstream tool %q reported an error", cfg.ToolName), fmt.Errorf("%v", textOf(result)))
	}

	return resultToMap(result), nil
}

func resultToMap(result *mcp.CallToolResult) map[string]any {
	if result.StructuredContent != nil {
		if m, ok := result.StructuredContent.(map[string]any); ok {
			return m
		}
		return map[string]any{"result": result.StructuredContent}
	}
	return map[string]any{"text": textOf(result)}
}

func textOf(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
