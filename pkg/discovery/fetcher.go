package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// RemoteTool is one entry from an upstream MCP server's tools/list, before
// it is normalized into a registry.Tool (§4.8 step 2).
type RemoteTool struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
}

// Fetcher retrieves the tool list exposed by an upstream MCP endpoint.
type Fetcher interface {
	ListTools(ctx context.Context, url string) ([]RemoteTool, error)
}

// mcpFetcher calls tools/list over streamable HTTP, grounded on the same
// mcp-go client usage as the execution router's MCP_SERVER executor.
type mcpFetcher struct {
	clientInfo mcp.Implementation
}

// NewMCPFetcher constructs the default Fetcher.
func NewMCPFetcher() Fetcher {
	return &mcpFetcher{clientInfo: mcp.Implementation{Name: "tool-registry-discovery", Version: "1.0.0"}}
}

// ListTools retries the whole connect/initialize/list sequence with bounded
// exponential backoff (§4.8 step 1): a source that is mid-restart or
// momentarily network-flaky should not fail the sync outright.
func (f *mcpFetcher) ListTools(ctx context.Context, url string) ([]RemoteTool, error) {
	operation := func() ([]RemoteTool, error) {
		cli, err := mcpclient.NewStreamableHttpClient(url)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("connecting to %q: %w", url, err))
		}
		defer cli.Close()

		if err := cli.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting MCP transport to %q: %w", url, err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = f.clientInfo
		if _, err := cli.Initialize(ctx, initReq); err != nil {
			return nil, fmt.Errorf("initializing MCP session with %q: %w", url, err)
		}

		result, err := cli.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", url, err)
		}

		out := make([]RemoteTool, 0, len(result.Tools))
		for _, t := range result.Tools {
			out = append(out, RemoteTool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaToMap(t.InputSchema),
			})
		}
		return out, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(20*time.Second),
	)
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	m := map[string]any{"type": schema.Type}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}
